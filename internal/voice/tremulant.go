package voice

import "math"

// Tremulant is a shared low-frequency oscillator modulating every Sustain
// voice's pitch and amplitude (spec §4.3). One instance is owned by the
// Mixer and handed to every Voice's Render call; Voices never own their own
// LFO phase.
type Tremulant struct {
	Enabled bool
	RateHz  float64 // typical 5-8 Hz
	Depth   float64 // pitch-warp depth, fraction of a semitone

	phase float64
}

// Phase returns the LFO's current phase, exposed only so tests can verify
// it advances once per render call regardless of voice count.
func (t *Tremulant) Phase() float64 {
	return t.phase
}

// Advance steps the LFO by n frames at outputRate and returns the current
// pitch multiplier and amplitude multiplier (1.0, 1.0 when disabled).
func (t *Tremulant) Advance(n int, outputRate float64) (pitchMul, ampMul float64) {
	if !t.Enabled || outputRate <= 0 {
		return 1, 1
	}
	t.phase += float64(n) * t.RateHz / outputRate
	if t.phase > 1 {
		t.phase -= math.Trunc(t.phase)
	}
	lfo := math.Sin(2 * math.Pi * t.phase)
	pitchMul = 1 + t.Depth*lfo*0.02
	ampMul = 1 + t.Depth*lfo*0.05
	return pitchMul, ampMul
}
