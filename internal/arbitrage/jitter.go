package arbitrage

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Jitter supplies values in [0, 1) for the simulated middle leg of a
// triangular route.
type Jitter interface {
	Float64() float64
}

// FixedJitter always returns the same value. 0.5 yields zero perturbation.
type FixedJitter float64

func (f FixedJitter) Float64() float64 { return float64(f) }

// RandJitter is a seedable, goroutine-safe Jitter.
type RandJitter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandJitter returns a RandJitter seeded with seed, or with the current
// time when seed is zero.
func NewRandJitter(seed uint64) *RandJitter {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &RandJitter{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (j *RandJitter) Float64() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rng.Float64()
}
