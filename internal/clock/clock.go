// Package clock provides the engine's monotonic sample counter. Every
// timestamp the engine reasons about — note-on arrival, note-off priority,
// release crossfade alignment — is expressed in this clock rather than wall
// time, so scheduling is immune to OS jitter.
package clock

import "sync/atomic"

// Engine is a 64-bit sample counter advanced only by the Mixer's render
// loop. Reads from other goroutines (metrics, logging) are lock-free.
type Engine struct {
	frames atomic.Uint64
}

// Now returns the current sample-time.
func (c *Engine) Now() uint64 {
	return c.frames.Load()
}

// Advance moves the clock forward by n frames. Only the audio thread calls
// this, once per render callback.
func (c *Engine) Advance(n uint64) {
	c.frames.Add(n)
}
