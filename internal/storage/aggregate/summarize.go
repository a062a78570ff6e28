package aggregate

import (
	"fmt"

	"github.com/xtxerr/capture/internal/acquisition"
	"github.com/xtxerr/capture/internal/errors"
)

// Summarize returns one Result per sensor axis of m, in axis order.
// accuracy <= 0 disables percentiles.
//
// Rows wider than the sensor list are rejected; shorter rows contribute
// the axes they carry.
func Summarize(m *acquisition.Message, accuracy float64) ([]Result, error) {
	if m == nil {
		return nil, errors.ErrMalformedRecording
	}

	sensors := m.Payload.Sensors
	aggs := make([]*StreamingAggregate, len(sensors))
	for i, s := range sensors {
		aggs[i] = newAggregate(s.Name, s.Units, max(accuracy, 0))
	}

	for idx, row := range m.Payload.Values {
		if len(row) > len(aggs) {
			return nil, errors.Mark(errors.ErrMalformedRecording,
				fmt.Errorf("row %d has %d values for %d sensors", idx, len(row), len(aggs)))
		}
		for axis, v := range row {
			aggs[axis].Add(float64(v), int64(idx))
		}
	}

	results := make([]Result, len(aggs))
	for i, agg := range aggs {
		results[i] = agg.Result()
	}
	return results, nil
}
