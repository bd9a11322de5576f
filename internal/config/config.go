// Package config loads the engine's tunables from a TOML file, layered
// over built-in defaults via koanf, matching the teacher's configs.loader
// pattern (spec §6).
package config

import "github.com/organfox/organfox/utils/mathx"

// EngineConfig holds every option the core recognizes (spec §6).
type EngineConfig struct {
	// Precache loads every sample fully into RAM instead of streaming the
	// tail from disk.
	Precache bool `koanf:"precache"`
	// PreloadFrames is how many frames of a streaming sample are pinned
	// in RAM so the audio thread never waits on first read.
	PreloadFrames int `koanf:"preloadFrames"`
	// AudioBufferFrames is the audio callback's block size.
	AudioBufferFrames int `koanf:"audioBufferFrames"`
	// PolyphonyLimit caps simultaneous active voices.
	PolyphonyLimit int `koanf:"polyphonyLimit"`
	// ReverbMix is the wet/dry blend, clamped to [0,1].
	ReverbMix float64 `koanf:"reverbMix"`
	// GlobalGain is the master output gain, clamped to [0,1].
	GlobalGain float64 `koanf:"globalGain"`
	// OriginalTuning ignores pitch-correction cents whose absolute value
	// is at most 20 (spec §6).
	OriginalTuning bool `koanf:"originalTuning"`
	// ConvertTo16Bit quantizes decoded samples to 16-bit resolution at
	// load time.
	ConvertTo16Bit bool `koanf:"convertTo16bit"`

	Tremulant TremulantConfig `koanf:"tremulant"`
	Reverb    ReverbConfig    `koanf:"reverbIR"`
}

// TremulantConfig exposes the shared LFO's rate/depth as parameters (spec
// §9: "implementations should expose depth and rate as parameters").
type TremulantConfig struct {
	Enabled bool    `koanf:"enabled"`
	RateHz  float64 `koanf:"rateHz"`
	Depth   float64 `koanf:"depth"`
}

// ReverbConfig names an impulse-response file for the convolution reverb.
// engine.New does not read it and never calls LoadIR, so the engine's
// reverb stays bypassed whatever this holds.
type ReverbConfig struct {
	ImpulseResponsePath string `koanf:"impulseResponsePath"`
}

// NewDefaultConfig returns the engine's built-in defaults, the lowest
// priority layer in the load order (spec §6 default values).
func NewDefaultConfig() *EngineConfig {
	return &EngineConfig{
		Precache:          false,
		PreloadFrames:     16384,
		AudioBufferFrames: 512,
		PolyphonyLimit:    64,
		ReverbMix:         0.2,
		GlobalGain:        0.8,
		OriginalTuning:    false,
		ConvertTo16Bit:    false,
		Tremulant: TremulantConfig{
			Enabled: false,
			RateHz:  6,
			Depth:   1,
		},
	}
}

// Clamp defensively clamps user-supplied values that must live in [0,1]
// (spec §7: "core clamps defensively" for invalid configuration).
func (c *EngineConfig) Clamp() {
	c.ReverbMix = mathx.Clamp(c.ReverbMix, 0, 1)
	c.GlobalGain = mathx.Clamp(c.GlobalGain, 0, 1)
	if c.PreloadFrames <= 0 {
		c.PreloadFrames = 16384
	}
	if c.AudioBufferFrames <= 0 {
		c.AudioBufferFrames = 512
	}
	if c.PolyphonyLimit <= 0 {
		c.PolyphonyLimit = 64
	}
}
