package market

import (
	"math/rand"
	"time"
)

// Clock abstracts wall-clock time for deterministic testing
type Clock interface {
	Now() time.Time
}

// Rand abstracts randomness for deterministic values
type Rand interface {
	Intn(n int) int
	Float64() float64
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

type RealRand struct{ *rand.Rand }

func (r RealRand) Intn(n int) int   { return r.Rand.Intn(n) }
func (r RealRand) Float64() float64 { return r.Rand.Float64() }

// NewRealRand seeds a Rand from the current time.
func NewRealRand() RealRand {
	return RealRand{rand.New(rand.NewSource(time.Now().UnixNano()))}
}
