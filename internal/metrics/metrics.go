// Package metrics exposes a point-in-time snapshot of engine health,
// readable from the control/UI thread without touching the audio thread
// (spec §6 metrics(), SPEC_FULL supplemented feature).
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Snapshot is what metrics() returns: voice count, underrun count,
// callback timing, and the Streamer's outstanding work.
type Snapshot struct {
	SessionID         string // identifies this Collector's engine instance across log lines
	VoiceCount        int
	UnderrunCount     uint64
	StreamerQueueSize int
	CallbackCPU       time.Duration // last callback's wall-clock render time
	CallbackCPUMaxEMA time.Duration // exponential moving average of the max
}

// Collector accumulates the running statistics the audio thread updates
// (Observe, once per render call) and the control thread reads (Last,
// EMA, MaxEMA), via atomics so neither side ever blocks the other (spec
// §5's no-blocking-the-audio-thread invariant).
type Collector struct {
	sessionID string
	emaAlpha  float64

	lastNanos   atomic.Int64
	emaNanos    atomic.Int64
	maxEMANanos atomic.Int64
}

// NewCollector creates a Collector with the given EMA smoothing factor
// (0 < alpha <= 1; higher reacts faster to spikes). Each Collector mints
// its own session id so logs and metrics snapshots from concurrent engine
// instances (tests, multi-organ hosts) don't get attributed to each other.
func NewCollector(alpha float64) *Collector {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.1
	}
	return &Collector{sessionID: uuid.New().String(), emaAlpha: alpha}
}

// SessionID returns the Collector's random session identifier.
func (c *Collector) SessionID() string {
	return c.sessionID
}

// Observe folds one callback's render duration into the running EMA and
// the decaying peak tracker, and returns the updated EMA.
func (c *Collector) Observe(d time.Duration) time.Duration {
	c.lastNanos.Store(int64(d))

	ema := time.Duration(c.emaNanos.Load())
	if ema == 0 {
		ema = d
	} else {
		ema = time.Duration(c.emaAlpha*float64(d) + (1-c.emaAlpha)*float64(ema))
	}
	c.emaNanos.Store(int64(ema))

	maxEMA := time.Duration(c.maxEMANanos.Load())
	if d > maxEMA {
		maxEMA = d // snap up immediately on a new peak
	} else {
		maxEMA = time.Duration(c.emaAlpha*float64(d) + (1-c.emaAlpha)*float64(maxEMA)) // decay otherwise
	}
	c.maxEMANanos.Store(int64(maxEMA))

	return ema
}

// Last returns the most recently observed callback duration.
func (c *Collector) Last() time.Duration {
	return time.Duration(c.lastNanos.Load())
}

// EMA returns the current smoothed callback duration.
func (c *Collector) EMA() time.Duration {
	return time.Duration(c.emaNanos.Load())
}

// MaxEMA returns the decaying-peak callback duration: it jumps to a new
// observation immediately if it's a new high, and otherwise relaxes
// toward each lower observation by the EMA factor, so a single spike
// doesn't linger forever.
func (c *Collector) MaxEMA() time.Duration {
	return time.Duration(c.maxEMANanos.Load())
}
