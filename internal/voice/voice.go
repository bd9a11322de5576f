// Package voice implements the per-note state machine: attack, looped
// sustain, release and the truncated "dying" fade used when a voice is
// stolen for polyphony (spec §4.3).
package voice

import (
	"github.com/organfox/organfox/internal/organ"
	"github.com/organfox/organfox/internal/sample"
	"github.com/organfox/organfox/internal/stream"
)

// State is a Voice's position in the attack/sustain/release/dying cycle.
type State int

const (
	Attack State = iota
	Sustain
	Release
	Dying
)

func (s State) String() string {
	switch s {
	case Attack:
		return "attack"
	case Sustain:
		return "sustain"
	case Release:
		return "release"
	case Dying:
		return "dying"
	default:
		return "unknown"
	}
}

// releaseCrossfadeFrames is the length of the linear crossfade from the
// last sustain output into the first release-sample frames (spec §4.3:
// "a few hundred samples").
const releaseCrossfadeFrames = 256

// dyingFadeFrames is the stolen-voice fade-out length, about 10ms at 44.1kHz
// (spec §4.3).
const dyingFadeFrames = 441

// Voice renders one sounding pipe. It is owned exclusively by the Mixer's
// render call; nothing else ever touches it (spec §5).
type Voice struct {
	ID   uint64
	Pipe *organ.Pipe

	state State
	gain  float32

	cursor     float64 // fractional frame index, resident-window space
	tail       *tailReader
	inTail     bool
	streamer   *stream.Streamer
	outputRate float64

	attackHandle  *sample.Handle
	releaseHandle *sample.Handle

	holdBucket organ.HoldBucket

	noteOnFrame  uint64
	noteOffFrame uint64

	xfadeRemain int
	xfadeFrom   float64 // cursor in the old (sustain) buffer to keep advancing during crossfade

	dyingRemain int
}

// New starts a voice in the Attack state, reading pipe's attack sample via
// store.
func New(id uint64, pipe *organ.Pipe, store *sample.Store, streamer *stream.Streamer, outputRate float64, noteOnFrame uint64) *Voice {
	v := &Voice{
		ID:           id,
		Pipe:         pipe,
		state:        Attack,
		gain:         float32(pipe.Gain),
		streamer:     streamer,
		outputRate:   outputRate,
		attackHandle: store.OpenAttack(pipe, id),
		noteOnFrame:  noteOnFrame,
	}
	if v.gain == 0 {
		v.gain = 1
	}
	return v
}

// Release transitions the voice to Release, selecting the release-sample
// variant for the hold duration and arming the crossfade (spec §4.3).
func (v *Voice) Release(store *sample.Store, noteOffFrame uint64) {
	if v.state == Release || v.state == Dying {
		return
	}
	v.noteOffFrame = noteOffFrame
	held := noteOffFrame - v.noteOnFrame
	v.holdBucket = bucketFor(held, v.outputRate)

	v.releaseHandle = store.OpenRelease(v.Pipe, v.holdBucket, v.ID)
	v.state = Release
	v.xfadeFrom = v.cursor
	v.xfadeRemain = releaseCrossfadeFrames
	v.cursor = 0
	v.inTail = false
	v.tail = nil
}

// bucketFor maps a hold duration in frames to a HoldBucket. Boundaries are
// treated as opaque by the spec (§9); 1s/4s are reasonable organ-console
// defaults for short/medium/long.
func bucketFor(heldFrames uint64, outputRate float64) organ.HoldBucket {
	seconds := float64(heldFrames) / outputRate
	switch {
	case seconds < 1:
		return organ.HoldShort
	case seconds < 4:
		return organ.HoldMedium
	default:
		return organ.HoldLong
	}
}

// Steal forces the voice into Dying, used by the Mixer's polyphony cap
// (spec §4.4); only Release-state voices may be stolen.
func (v *Voice) Steal() {
	if v.state != Release {
		return
	}
	v.state = Dying
	v.dyingRemain = dyingFadeFrames
}

// Panic forces the voice into Dying regardless of current state (spec
// §4.4).
func (v *Voice) Panic() {
	v.state = Dying
	v.dyingRemain = dyingFadeFrames
}

// Alive reports whether the voice still has anything to render.
func (v *Voice) Alive() bool {
	return v.state != Dying || v.dyingRemain > 0
}

// State returns the voice's current position in the attack/sustain/
// release/dying cycle.
func (v *Voice) State() State {
	return v.state
}

// NoteOffFrame returns the EngineClock frame at which Release was entered,
// used by the Mixer's oldest-Release-first eviction (spec §4.4).
func (v *Voice) NoteOffFrame() uint64 {
	return v.noteOffFrame
}

// Render fills dst (interleaved stereo, n frames) with this voice's output
// for the current render quantum. tremPitchMul/tremAmpMul are this
// callback's shared tremulant modulation, computed once by the Mixer
// (spec §3: "a shared tremulant LFO") and applied here only while the
// voice is in Sustain. It returns false once the voice has finished and
// should be reaped by the Mixer.
func (v *Voice) Render(dst []float32, n int, tremPitchMul, tremAmpMul float64, originalTuning bool) bool {
	asset := v.activeAsset()
	if asset == nil {
		return false
	}
	pitchMul, ampMul := 1.0, 1.0
	if v.state == Sustain {
		pitchMul, ampMul = tremPitchMul, tremAmpMul
	}
	step := (float64(asset.NativeRate) / v.outputRate) * v.Pipe.PitchFactor(originalTuning) * pitchMul

	for i := 0; i < n; i++ {
		l, r, ok := v.frame(asset, step)
		if !ok {
			v.finishSegment()
			asset = v.activeAsset()
			if asset == nil {
				zeroRest(dst, i, v.channelsOf())
				return false
			}
			l, r, ok = v.frame(asset, step)
			if !ok {
				zeroRest(dst, i, v.channelsOf())
				return false
			}
		}

		amp := v.gain * float32(ampMul)
		if v.state == Release && v.xfadeRemain > 0 {
			w := float32(releaseCrossfadeFrames-v.xfadeRemain) / float32(releaseCrossfadeFrames)
			oldL, oldR := v.oldFrame()
			l = oldL*(1-w) + l*w
			r = oldR*(1-w) + r*w
			v.xfadeRemain--
		}
		if v.state == Dying {
			amp *= float32(v.dyingRemain) / float32(dyingFadeFrames)
			v.dyingRemain--
		}

		dst[i*2] = l * amp
		dst[i*2+1] = r * amp

		v.cursor += step
		v.wrapLoop(asset)

		if v.state == Dying && v.dyingRemain <= 0 {
			zeroRest(dst, i+1, 2)
			return false
		}
	}
	return true
}

func zeroRest(dst []float32, fromFrame, channels int) {
	for i := fromFrame * channels; i < len(dst); i++ {
		dst[i] = 0
	}
}

func (v *Voice) channelsOf() int {
	if v.Pipe.Channels == 2 {
		return 2
	}
	return 1
}

// activeAsset returns the SampleAsset currently driving playback.
func (v *Voice) activeAsset() *organ.SampleAsset {
	switch v.state {
	case Attack, Sustain:
		if v.attackHandle == nil {
			return nil
		}
		return v.attackHandle.Asset()
	case Release, Dying:
		if v.releaseHandle == nil {
			return v.attackHandle.Asset()
		}
		return v.releaseHandle.Asset()
	default:
		return nil
	}
}

// frame resolves the interpolated stereo sample at the current cursor,
// reading from the resident window (Prefix/Full) when the loop region
// covers it, or the streaming tail reader once the cursor runs past the
// preloaded prefix (spec §4.1, §4.3). Sustain loop points are assumed to
// lie within the preloaded prefix (see DESIGN.md).
func (v *Voice) frame(asset *organ.SampleAsset, step float64) (l, r float32, ok bool) {
	idx := int64(v.cursor)
	frac := float32(v.cursor - float64(idx))

	resident := residentBuffer(asset)
	if idx+1 < int64(len(resident))/channelsOf(asset) || (asset.Backend == organ.BackendPrecache) {
		l0, r0, ok0 := residentFrame(resident, asset, idx)
		if !ok0 {
			return 0, 0, false
		}
		l1, r1, ok1 := residentFrame(resident, asset, idx+1)
		if !ok1 {
			l1, r1 = l0, r0
		}
		return lerp(l0, l1, frac), lerp(r0, r1, frac), true
	}

	if v.handleForTail() == nil {
		return 0, 0, false
	}
	if v.tail == nil {
		v.tail = newTailReader(v.handleForTail(), channelsOf(asset), idx)
	}
	l0, r0, ok0 := v.tail.frameAt(idx, v.streamer, v.ID)
	if !ok0 {
		return 0, 0, false
	}
	l1, r1, ok1 := v.tail.frameAt(idx+1, v.streamer, v.ID)
	if !ok1 {
		l1, r1 = l0, r0
	}
	v.tail.advance(idx)
	return lerp(l0, l1, frac), lerp(r0, r1, frac), true
}

func (v *Voice) handleForTail() *sample.Handle {
	switch v.state {
	case Attack, Sustain:
		return v.attackHandle
	default:
		return v.releaseHandle
	}
}

func residentBuffer(asset *organ.SampleAsset) []float32 {
	if asset.Backend == organ.BackendPrecache {
		return asset.Full
	}
	return asset.Prefix
}

func residentFrame(buf []float32, asset *organ.SampleAsset, idx int64) (l, r float32, ok bool) {
	channels := int64(channelsOf(asset))
	frames := int64(len(buf)) / channels
	if idx < 0 || idx >= frames {
		return 0, 0, false
	}
	if channels == 1 {
		v := buf[idx]
		return v, v, true
	}
	return buf[idx*2], buf[idx*2+1], true
}

func channelsOf(asset *organ.SampleAsset) int {
	if asset.Channels == 2 {
		return 2
	}
	return 1
}

func lerp(a, b float32, t float32) float32 {
	return a + (b-a)*t
}

// oldFrame returns the sustain-buffer sample continuing to advance during
// the release crossfade window.
func (v *Voice) oldFrame() (l, r float32) {
	if v.attackHandle == nil {
		return 0, 0
	}
	asset := v.attackHandle.Asset()
	idx := int64(v.xfadeFrom)
	l, r, ok := residentFrame(residentBuffer(asset), asset, idx)
	if !ok {
		return 0, 0
	}
	v.xfadeFrom += 1 // advance at native rate; crossfade window is short
	if v.xfadeFrom >= float64(asset.LoopEnd) && asset.Looped && asset.LoopEnd > 0 {
		v.xfadeFrom = float64(asset.LoopStart)
	}
	return l, r
}

// wrapLoop wraps the cursor back to the loop start once Sustain reaches the
// loop end, and transitions Attack into Sustain once the loop start is
// first reached (spec §4.3).
func (v *Voice) wrapLoop(asset *organ.SampleAsset) {
	switch v.state {
	case Attack:
		if asset.Looped && v.cursor >= float64(asset.LoopStart) {
			v.state = Sustain
		}
	case Sustain:
		if asset.Looped && asset.LoopEnd > 0 && v.cursor >= float64(asset.LoopEnd) {
			v.cursor = float64(asset.LoopStart) + (v.cursor - float64(asset.LoopEnd))
		}
	}
}

// finishSegment is called when frame() cannot produce more data from the
// current asset (ran off the end of a non-looped release sample, or a
// streaming tail was exhausted). There is nothing left to fade.
func (v *Voice) finishSegment() {
	v.state = Dying
	v.dyingRemain = 0
}
