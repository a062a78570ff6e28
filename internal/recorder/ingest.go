package recorder

import (
	"encoding/binary"
	"math"
)

// onSamples is the ingestion callback handed to the sensor driver. raw
// holds one sample group of little-endian float32 values. It returns true
// once the driver should stop: the required count has been reached, the
// session failed, or the session is over and the group was dropped.
func (s *session) onSamples(raw []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}

	if err := s.enc.AddSamples(decodeSamples(raw)); err != nil {
		s.log.Error("sample group rejected", "sample", s.current.Load(), "error", err)
		s.err = err
		s.closeLocked()
		return true
	}

	n := s.current.Add(1)
	s.metrics.SampleIngested()

	if n >= s.required {
		s.closeLocked()
		return true
	}
	return false
}

// decodeSamples reinterprets raw as float32 values. A trailing partial
// value is ignored.
func decodeSamples(raw []byte) []float32 {
	values := make([]float32, len(raw)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return values
}

// EncodeSamples is the inverse of the callback's decoding, for drivers.
func EncodeSamples(dst []byte, values []float32) []byte {
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}
