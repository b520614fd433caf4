package simulator

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/nerrad567/gray-logic-homesim/internal/device"
)

// Reading is one sampled sensor value. Only the field matching the
// sensor's subtype is set.
type Reading struct {
	Temperature *float64
	Luminosity  *float64
	Presence    *bool
}

// Source produces sensor readings.
type Source interface {
	Sample(subtype device.Subtype) Reading
}

// Reading ranges of RandomSource.
const (
	MinTemperature = 18.0
	MaxTemperature = 30.0
	MinLuminosity  = 0.0
	MaxLuminosity  = 1000.0
)

// RandomSource draws uniform readings: temperature in [18, 30], luminosity
// in [0, 1000] and presence as a coin flip. Values are rounded to two
// decimals.
type RandomSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomSource creates a source seeded with seed.
func NewRandomSource(seed uint64) *RandomSource {
	return &RandomSource{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Sample implements Source.
func (s *RandomSource) Sample(subtype device.Subtype) Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch subtype {
	case device.SubtypeTemperature:
		v := s.uniform(MinTemperature, MaxTemperature)
		return Reading{Temperature: &v}
	case device.SubtypeLuminosity:
		v := s.uniform(MinLuminosity, MaxLuminosity)
		return Reading{Luminosity: &v}
	case device.SubtypePresence:
		v := s.rnd.IntN(2) == 1
		return Reading{Presence: &v}
	}
	return Reading{}
}

func (s *RandomSource) uniform(lo, hi float64) float64 {
	return math.Round((lo+s.rnd.Float64()*(hi-lo))*100) / 100
}

// FixedSource replays the same reading. Useful for scripted scenarios.
type FixedSource Reading

// Sample implements Source.
func (f FixedSource) Sample(device.Subtype) Reading {
	return Reading(f)
}
