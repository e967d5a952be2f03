package protocol

import (
	"sync/atomic"
	"time"
)

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 {
	return time.Now().Unix()
}

// SimulatedClock is a manually advanced clock for tests and dry runs.
type SimulatedClock struct {
	now atomic.Int64
}

func NewSimulatedClock(start int64) *SimulatedClock {
	c := &SimulatedClock{}
	c.now.Store(start)
	return c
}

func (c *SimulatedClock) Now() int64 {
	return c.now.Load()
}

func (c *SimulatedClock) Advance(seconds int64) {
	c.now.Add(seconds)
}

func (c *SimulatedClock) Set(t int64) {
	c.now.Store(t)
}
