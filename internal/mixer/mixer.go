// Package mixer owns the active-voice collection and implements the audio
// callback's render contract: draining MIDI events, enforcing polyphony,
// summing voices, and applying reverb and global gain (spec §4.4).
package mixer

import (
	"math"
	"sort"
	"sync/atomic"

	"github.com/organfox/organfox/internal/clock"
	"github.com/organfox/organfox/internal/midi"
	"github.com/organfox/organfox/internal/organ"
	"github.com/organfox/organfox/internal/reverb"
	"github.com/organfox/organfox/internal/sample"
	"github.com/organfox/organfox/internal/stream"
	"github.com/organfox/organfox/internal/voice"
)

// Mixer is the single owner of every live Voice. Render runs on the audio
// thread and is the only place voices are created, stolen, or reaped (spec
// §5).
type Mixer struct {
	desc     *organ.Descriptor
	store    *sample.Store
	streamer *stream.Streamer
	router   *midi.Router
	clock    *clock.Engine
	trem     *voice.Tremulant
	reverb   *reverb.Reverb

	voices      []*voice.Voice
	nextVoiceID uint64

	polyphonyLimit atomic.Int64
	globalGainBits atomic.Uint64 // math.Float64bits, read/written atomically
	originalTuning atomic.Bool

	outputRate float64

	scratch []float32 // reused per-voice render buffer, sized for one callback
	sum     []float32 // reused stereo accumulation buffer
}

// New builds a Mixer. callbackFrames sizes the pre-allocated scratch and
// sum buffers that every Render reuses. Render still allocates when it
// spawns a voice on note-on (voice.New) and when polyphony enforcement
// collects the Release-state voices.
func New(desc *organ.Descriptor, store *sample.Store, streamer *stream.Streamer, router *midi.Router, eng *clock.Engine, rv *reverb.Reverb, outputRate float64, callbackFrames int, polyphonyLimit int) *Mixer {
	m := &Mixer{
		desc:       desc,
		store:      store,
		streamer:   streamer,
		router:     router,
		clock:      eng,
		trem:       &voice.Tremulant{},
		reverb:     rv,
		outputRate: outputRate,
		scratch:    make([]float32, callbackFrames*2),
		sum:        make([]float32, callbackFrames*2),
	}
	m.polyphonyLimit.Store(int64(polyphonyLimit))
	m.SetGain(1)
	return m
}

// SetGain installs the global output gain applied after summing every
// voice (spec §6).
func (m *Mixer) SetGain(g float64) {
	m.globalGainBits.Store(math.Float64bits(g))
}

func (m *Mixer) gain() float64 {
	return math.Float64frombits(m.globalGainBits.Load())
}

// SetPolyphony changes the maximum simultaneous voice count enforced by the
// next render call.
func (m *Mixer) SetPolyphony(n int) {
	m.polyphonyLimit.Store(int64(n))
}

// SetTremulant configures the shared LFO's rate and depth (spec §9: exposed
// as parameters).
func (m *Mixer) SetTremulant(enabled bool, rateHz, depth float64) {
	m.trem.Enabled = enabled
	m.trem.RateHz = rateHz
	m.trem.Depth = depth
}

// SetOriginalTuning toggles whether small (<=20 cents) pitch corrections
// are honored or ignored (spec §6: original_tuning).
func (m *Mixer) SetOriginalTuning(enabled bool) {
	m.originalTuning.Store(enabled)
}

// VoiceCount reports how many voices (of any state) are currently live.
func (m *Mixer) VoiceCount() int {
	return len(m.voices)
}

// UnderrunCount reports the Streamer's cumulative UnderrunCount since
// startup. Per-handle underruns (sample.Handle.Underruns) are not summed
// into it.
func (m *Mixer) UnderrunCount() uint64 {
	return m.streamer.UnderrunCount()
}

// Panic forces every live voice to Dying (spec §4.4).
func (m *Mixer) Panic() {
	for _, v := range m.voices {
		v.Panic()
	}
}

// SetStopEnabled cuts every note currently sounding from stopID's pipes
// when disabling it (spec §4.4's drawbar semantics); enabling does not
// retrospectively spawn voices.
func (m *Mixer) SetStopEnabled(chanMap *midi.ChannelMap, stopID string, enabled bool) {
	chanMap.SetStopEnabled(stopID, enabled)
	if enabled {
		return
	}
	stop, ok := m.desc.Stop(stopID)
	if !ok {
		return
	}
	pipes := make(map[*organ.Pipe]struct{}, len(stop.Pipes))
	for _, p := range stop.Pipes {
		pipes[p] = struct{}{}
	}
	now := m.clock.Now()
	for _, v := range m.voices {
		if _, belongs := pipes[v.Pipe]; belongs {
			v.Release(m.store, now)
		}
	}
}

// Render is the audio callback's entry point: drains MIDI events, enforces
// polyphony, pulls every voice, mixes, reverbs, clips, and advances the
// clock (spec §4.4). dst is interleaved stereo, n frames long.
func (m *Mixer) Render(dst []float32, n int) {
	m.drainMIDI()
	m.enforcePolyphony()

	sum := m.sum[:n*2]
	for i := range sum {
		sum[i] = 0
	}

	tremPitchMul, tremAmpMul := m.trem.Advance(n, m.outputRate)
	originalTuning := m.originalTuning.Load()

	alive := m.voices[:0]
	for _, v := range m.voices {
		scratch := m.scratch[:n*2]
		stillAlive := v.Render(scratch, n, tremPitchMul, tremAmpMul, originalTuning)
		for i := range sum {
			sum[i] += scratch[i]
		}
		if stillAlive {
			alive = append(alive, v)
		}
	}
	m.voices = alive

	g := float32(m.gain())
	for i := range sum {
		sum[i] *= g
	}

	if m.reverb != nil {
		m.reverb.Process(sum)
	}

	for i, v := range sum {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		dst[i] = v
	}

	m.clock.Advance(uint64(n))
}

// drainMIDI applies every event published since the previous render call,
// in receive order, before any frame is produced (spec §5 ordering
// guarantee).
func (m *Mixer) drainMIDI() {
	for {
		select {
		case ev := <-m.router.Events():
			m.applyEvent(ev)
		default:
			return
		}
	}
}

func (m *Mixer) applyEvent(ev midi.Event) {
	switch ev.Kind {
	case midi.Panic:
		m.Panic()
	case midi.NoteOn:
		stop, ok := m.desc.Stop(ev.StopID)
		if !ok {
			return
		}
		pipe, ok := stop.Pipes[ev.Note]
		if !ok {
			return
		}
		m.nextVoiceID++
		v := voice.New(m.nextVoiceID, pipe, m.store, m.streamer, m.outputRate, m.clock.Now())
		m.voices = append(m.voices, v)
	case midi.NoteOff:
		stop, ok := m.desc.Stop(ev.StopID)
		if !ok {
			return
		}
		pipe, ok := stop.Pipes[ev.Note]
		if !ok {
			return
		}
		now := m.clock.Now()
		for _, v := range m.voices {
			if v.Pipe == pipe {
				v.Release(m.store, now)
			}
		}
	}
}

// enforcePolyphony steals the oldest Release-state voices into Dying until
// the live count is back at the limit. Attack/Sustain voices are never
// touched (spec §4.4, invariant 2 in spec §8).
func (m *Mixer) enforcePolyphony() {
	limit := int(m.polyphonyLimit.Load())
	if limit <= 0 || len(m.voices) <= limit {
		return
	}
	excess := len(m.voices) - limit

	releaseVoices := make([]*voice.Voice, 0, len(m.voices))
	for _, v := range m.voices {
		if v.State() == voice.Release {
			releaseVoices = append(releaseVoices, v)
		}
	}
	sort.Slice(releaseVoices, func(i, j int) bool {
		return releaseVoices[i].NoteOffFrame() < releaseVoices[j].NoteOffFrame()
	})

	for i := 0; i < excess && i < len(releaseVoices); i++ {
		releaseVoices[i].Steal()
	}
}
