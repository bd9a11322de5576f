// Package engine is the composition root: it wires the sample store,
// streamer, voice pool, mixer, reverb, MIDI router and preset store
// together and exposes the upward interface a host binary drives (spec
// §6, §9: "a global mutable engine singleton ... replaced by an Engine
// value created at startup and passed through the pull callback").
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/organfox/organfox/internal/clock"
	"github.com/organfox/organfox/internal/config"
	"github.com/organfox/organfox/internal/metrics"
	"github.com/organfox/organfox/internal/midi"
	"github.com/organfox/organfox/internal/mixer"
	"github.com/organfox/organfox/internal/organ"
	"github.com/organfox/organfox/internal/preset"
	"github.com/organfox/organfox/internal/reverb"
	"github.com/organfox/organfox/internal/sample"
	"github.com/organfox/organfox/internal/stream"
)

// Engine is the single value a host binary creates at startup and pulls
// frames from every callback; there is no package-level mutable state
// anywhere in this module.
type Engine struct {
	desc    *organ.Descriptor
	cfg     *config.EngineConfig
	chanMap *midi.ChannelMap
	router  *midi.Router

	streamer *stream.Streamer
	store    *sample.Store
	mix      *mixer.Mixer
	reverb   *reverb.Reverb
	clock    *clock.Engine

	presets *preset.Store
	metrics *metrics.Collector

	fatal chan error
}

// New wires every component for desc. presets may be nil if preset
// persistence is not wanted (e.g. a headless test harness).
func New(desc *organ.Descriptor, cfg *config.EngineConfig, presets *preset.Store) *Engine {
	cfg.Clamp()

	eng := &Engine{
		desc:    desc,
		cfg:     cfg,
		presets: presets,
		metrics: metrics.NewCollector(0.1),
		fatal:   make(chan error, 1),
	}

	eng.chanMap = midi.NewChannelMap(desc)
	eng.streamer = stream.New(2)
	eng.store = sample.NewStore(cfg.AudioBufferFrames, eng.streamer)
	eng.clock = &clock.Engine{}
	eng.reverb = reverb.New(cfg.AudioBufferFrames)
	eng.reverb.SetMix(cfg.ReverbMix)

	eng.router = midi.New(desc, eng.chanMap, eng.onMIDIOverflow)

	eng.mix = mixer.New(desc, eng.store, eng.streamer, eng.router, eng.clock, eng.reverb, float64(outputRate), cfg.AudioBufferFrames, cfg.PolyphonyLimit)
	eng.mix.SetGain(cfg.GlobalGain)
	eng.mix.SetTremulant(cfg.Tremulant.Enabled, cfg.Tremulant.RateHz, cfg.Tremulant.Depth)
	eng.mix.SetOriginalTuning(cfg.OriginalTuning)

	return eng
}

// outputRate is fixed at construction by the host's AudioDeviceConfig in a
// full deployment; tests and the reference host both run at 44.1kHz.
const outputRate = 44100

// Start launches the background Streamer worker. Call once before the
// first Render.
func (e *Engine) Start(ctx context.Context) {
	e.streamer.Start(ctx)
}

// Stop shuts the Streamer down (spec §5 shutdown sequence step (b)).
func (e *Engine) Stop() {
	e.streamer.Stop()
}

// Render fills dst (interleaved stereo, n frames) — the audio thread's
// pull callback (spec §6: render(n_frames, out)).
func (e *Engine) Render(dst []float32, n int) {
	start := time.Now()
	e.mix.Render(dst, n)
	e.metrics.Observe(time.Since(start))
}

// SubmitMIDI decodes raw bytes from deviceID and routes them to the mixer
// (spec §6: submit_midi(device_id, bytes)).
func (e *Engine) SubmitMIDI(deviceID string, raw []byte) {
	e.router.SubmitRaw(deviceID, raw)
}

// RegisterDevice installs deviceID's channel-mapping mode ahead of any
// SubmitMIDI calls for it.
func (e *Engine) RegisterDevice(deviceID string, cfg *midi.DeviceConfig) {
	e.router.RegisterDevice(deviceID, cfg)
}

// SetStopEnabled draws or retires a stop (spec §6: set_stop_enabled).
func (e *Engine) SetStopEnabled(stopID string, enabled bool) {
	e.mix.SetStopEnabled(e.chanMap, stopID, enabled)
}

// SetGain sets the master output gain (spec §6: set_gain).
func (e *Engine) SetGain(g float64) {
	e.mix.SetGain(g)
}

// SetPolyphony changes the polyphony cap (spec §6: set_polyphony).
func (e *Engine) SetPolyphony(n int) {
	e.mix.SetPolyphony(n)
}

// Panic forces every voice to Dying (spec §6: panic()).
func (e *Engine) Panic() {
	e.mix.Panic()
}

// SavePreset writes the live ChannelMap into slot (spec §6: save_preset).
func (e *Engine) SavePreset(slot int) error {
	if e.presets == nil {
		return errors.New("no preset store configured")
	}
	return e.presets.SaveSlot(e.desc.Name, slot, e.chanMap.Export())
}

// LoadPreset restores slot's ChannelMap snapshot wholesale (spec §6:
// load_preset).
func (e *Engine) LoadPreset(slot int) error {
	if e.presets == nil {
		return errors.New("no preset store configured")
	}
	routes, err := e.presets.LoadSlot(e.desc.Name, slot)
	if err != nil {
		return err
	}
	e.chanMap.Restore(routes)
	return nil
}

// SaveMIDILearn persists a completed MIDI-learn binding (spec §6:
// save_midi_learn).
func (e *Engine) SaveMIDILearn(stopID string, binding organ.LearnBinding) error {
	if e.presets == nil {
		return errors.New("no preset store configured")
	}
	return e.presets.SaveBinding(e.desc.Name, stopID, binding)
}

// BeginMIDILearn arms learn mode for stopID; the next non-note event
// received binds it and persists the binding if a preset store is
// configured.
func (e *Engine) BeginMIDILearn(stopID string) {
	e.router.BeginLearn(stopID, func(stopID string, binding organ.LearnBinding) {
		_ = e.SaveMIDILearn(stopID, binding)
	})
}

// Metrics returns a point-in-time snapshot (spec §6: metrics()).
func (e *Engine) Metrics() metrics.Snapshot {
	return metrics.Snapshot{
		SessionID:         e.metrics.SessionID(),
		VoiceCount:        e.mix.VoiceCount(),
		UnderrunCount:     e.mix.UnderrunCount(),
		StreamerQueueSize: e.streamer.QueueLen(),
		CallbackCPU:       e.metrics.Last(),
		CallbackCPUMaxEMA: e.metrics.MaxEMA(),
	}
}

// Fatal returns a channel that receives exactly one error if the session
// must terminate (spec §7: "MIDI queue overflow: fatal to the session").
func (e *Engine) Fatal() <-chan error {
	return e.fatal
}

func (e *Engine) onMIDIOverflow() {
	select {
	case e.fatal <- fmt.Errorf("midi event queue overflow"):
	default:
	}
}
