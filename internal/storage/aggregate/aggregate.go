package aggregate

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
)

// DefaultAccuracy is the relative accuracy of percentile estimates.
const DefaultAccuracy = 0.01

// Result holds the statistics of one sensor axis.
type Result struct {
	Sensor string
	Units  string

	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Avg   float64

	// Percentiles, nil if disabled.
	P50 *float64
	P90 *float64
	P95 *float64
	P99 *float64

	// Sample group indices of the first and last value.
	FirstIndex int64
	LastIndex  int64

	// Skipped counts NaN values left out of every statistic.
	Skipped int64
}

// IsEmpty reports whether no values were aggregated.
func (r *Result) IsEmpty() bool {
	return r.Count == 0
}

// HasPercentiles reports whether percentile data is available.
func (r *Result) HasPercentiles() bool {
	return r.P50 != nil
}

// SetPercentiles sets all percentile values.
func (r *Result) SetPercentiles(p50, p90, p95, p99 float64) {
	r.P50 = &p50
	r.P90 = &p90
	r.P95 = &p95
	r.P99 = &p99
}

// StreamingAggregate maintains running statistics for one sensor axis.
// Percentiles come from a DDSketch when enabled.
type StreamingAggregate struct {
	mu sync.Mutex

	sensor string
	units  string

	count      int64
	sum        float64
	min        float64
	max        float64
	firstIndex int64
	lastIndex  int64
	skipped    int64

	accuracy float64
	sketch   *ddsketch.DDSketch
}

// New creates an aggregate for one sensor axis. Percentiles use
// DefaultAccuracy when enabled.
func New(sensor, units string, enablePercentile bool) *StreamingAggregate {
	if !enablePercentile {
		return newAggregate(sensor, units, 0)
	}
	return newAggregate(sensor, units, DefaultAccuracy)
}

// NewWithAccuracy creates an aggregate with custom percentile accuracy.
func NewWithAccuracy(sensor, units string, accuracy float64) *StreamingAggregate {
	return newAggregate(sensor, units, accuracy)
}

func newAggregate(sensor, units string, accuracy float64) *StreamingAggregate {
	agg := &StreamingAggregate{
		sensor:   sensor,
		units:    units,
		accuracy: accuracy,
	}
	agg.resetLocked()
	return agg
}

// Add adds the value of sample group index.
func (a *StreamingAggregate) Add(value float64, index int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if math.IsNaN(value) {
		a.skipped++
		return
	}

	if a.count == 0 || index < a.firstIndex {
		a.firstIndex = index
	}
	if a.count == 0 || index > a.lastIndex {
		a.lastIndex = index
	}

	a.count++
	a.sum += value

	if value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}

	if a.sketch != nil {
		a.sketch.Add(value)
	}
}

// Count returns the number of values added.
func (a *StreamingAggregate) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// IsEmpty returns true if no values have been added.
func (a *StreamingAggregate) IsEmpty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count == 0
}

// Result returns the statistics gathered so far.
func (a *StreamingAggregate) Result() Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := Result{
		Sensor:     a.sensor,
		Units:      a.units,
		Count:      a.count,
		Sum:        a.sum,
		FirstIndex: a.firstIndex,
		LastIndex:  a.lastIndex,
		Skipped:    a.skipped,
	}

	if a.count > 0 {
		result.Avg = a.sum / float64(a.count)
		result.Min = a.min
		result.Max = a.max
	}

	if a.sketch != nil && a.count > 0 {
		p50, _ := a.sketch.GetValueAtQuantile(0.50)
		p90, _ := a.sketch.GetValueAtQuantile(0.90)
		p95, _ := a.sketch.GetValueAtQuantile(0.95)
		p99, _ := a.sketch.GetValueAtQuantile(0.99)
		result.SetPercentiles(p50, p90, p95, p99)
	}

	return result
}

// Reset clears all statistics.
func (a *StreamingAggregate) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}

func (a *StreamingAggregate) resetLocked() {
	a.count = 0
	a.sum = 0
	a.min = math.MaxFloat64
	a.max = -math.MaxFloat64
	a.firstIndex = 0
	a.lastIndex = 0
	a.skipped = 0
	a.sketch = nil

	if a.accuracy > 0 {
		// DDSketch has no Clear method.
		if sketch, err := ddsketch.NewDefaultDDSketch(a.accuracy); err == nil {
			a.sketch = sketch
		}
	}
}

// Merge combines another aggregate of the same axis into this one.
func (a *StreamingAggregate) Merge(other *StreamingAggregate) {
	if other == nil || other == a {
		return
	}

	a.mu.Lock()
	other.mu.Lock()
	defer a.mu.Unlock()
	defer other.mu.Unlock()

	a.skipped += other.skipped
	if other.count == 0 {
		return
	}

	if a.count == 0 || other.firstIndex < a.firstIndex {
		a.firstIndex = other.firstIndex
	}
	if a.count == 0 || other.lastIndex > a.lastIndex {
		a.lastIndex = other.lastIndex
	}

	a.count += other.count
	a.sum += other.sum

	if other.min < a.min {
		a.min = other.min
	}
	if other.max > a.max {
		a.max = other.max
	}

	if a.sketch != nil && other.sketch != nil {
		a.sketch.MergeWith(other.sketch)
	}
}

// Sensor returns the axis name.
func (a *StreamingAggregate) Sensor() string {
	return a.sensor
}
