package utils

import (
	"fmt"
	"hash/fnv"
	"math"
	"sync/atomic"

	"github.com/google/uuid"
)

// Sequence is a monotonically increasing counter safe for concurrent use.
// Each owner keeps its own; there is no process-wide counter.
type Sequence struct {
	n atomic.Uint64
}

// Next returns the next value, starting at 1.
func (s *Sequence) Next() uint64 {
	return s.n.Add(1)
}

// Current returns the last value handed out.
func (s *Sequence) Current() uint64 {
	return s.n.Load()
}

// GenerateRunID returns a random run identifier.
func GenerateRunID() string {
	return "run-" + uuid.NewString()[:13]
}

// VectorDigest returns a short stable hex digest of a numeric vector.
func VectorDigest(values []float64) string {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range values {
		bits := math.Float64bits(v)
		for i := 0; i < 8; i++ {
			buf[i] = byte(bits >> (8 * i))
		}
		_, _ = h.Write(buf[:])
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
