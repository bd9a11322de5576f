package voice

import (
	"testing"

	"github.com/organfox/organfox/internal/organ"
	"github.com/organfox/organfox/internal/sample"
	"github.com/organfox/organfox/internal/stream"
)

func sineAsset(frames int64, looped bool) *organ.SampleAsset {
	buf := make([]float32, frames)
	for i := range buf {
		buf[i] = float32(i%100) / 100
	}
	return &organ.SampleAsset{
		Backend:       organ.BackendPrecache,
		Channels:      1,
		NativeRate:    44100,
		FrameCount:    frames,
		PreloadFrames: frames,
		Prefix:        buf,
		Full:          buf,
		Looped:        looped,
		LoopStart:     10,
		LoopEnd:       frames - 1,
	}
}

func testPipe() *organ.Pipe {
	return &organ.Pipe{
		MIDINote: 60,
		Attack:   sineAsset(200, true),
		Releases: []organ.ReleaseVariant{
			{Bucket: organ.HoldShort, Asset: sineAsset(50, false)},
		},
		Gain:     1,
		Channels: 1,
	}
}

func TestVoiceAttackToSustain(t *testing.T) {
	pipe := testPipe()
	streamer := stream.New(1)
	store := sample.NewStore(64, streamer)
	v := New(1, pipe, store, streamer, 44100, 0)

	dst := make([]float32, 2*64)
	for i := 0; i < 5; i++ {
		if !v.Render(dst, 64, 1, 1, false) {
			t.Fatalf("voice died unexpectedly on iteration %d", i)
		}
	}
	if v.state != Sustain {
		t.Errorf("expected voice to reach Sustain after looping, got %v", v.state)
	}
}

func TestVoiceReleaseAndDying(t *testing.T) {
	pipe := testPipe()
	streamer := stream.New(1)
	store := sample.NewStore(64, streamer)
	v := New(1, pipe, store, streamer, 44100, 0)

	dst := make([]float32, 2*64)
	v.Render(dst, 64, 1, 1, false)
	v.Release(store, 64)
	if v.state != Release {
		t.Fatalf("expected Release state, got %v", v.state)
	}

	v.Steal()
	if v.state != Dying {
		t.Errorf("expected Steal to move Release voice to Dying, got %v", v.state)
	}
}

func TestVoiceStealOnlyFromRelease(t *testing.T) {
	pipe := testPipe()
	streamer := stream.New(1)
	store := sample.NewStore(64, streamer)
	v := New(1, pipe, store, streamer, 44100, 0)

	v.Steal()
	if v.state == Dying {
		t.Error("Steal should not affect an Attack/Sustain voice")
	}
}

func TestVoiceRenderOriginalTuningAffectsStep(t *testing.T) {
	pipe := testPipe()
	pipe.PitchCorrectionCents = 10 // small enough to be ignored under original_tuning
	streamer := stream.New(1)
	store := sample.NewStore(64, streamer)
	dst := make([]float32, 2*32)

	corrected := New(1, pipe, store, streamer, 44100, 0)
	corrected.Render(dst, 32, 1, 1, false)

	ignored := New(2, pipe, store, streamer, 44100, 0)
	ignored.Render(dst, 32, 1, 1, true)

	if corrected.cursor == ignored.cursor {
		t.Errorf("originalTuning had no effect on cursor advancement: both ended at %v", corrected.cursor)
	}
}

func TestVoicePanicForcesDying(t *testing.T) {
	pipe := testPipe()
	streamer := stream.New(1)
	store := sample.NewStore(64, streamer)
	v := New(1, pipe, store, streamer, 44100, 0)

	v.Panic()
	if v.state != Dying {
		t.Errorf("expected Panic to force Dying, got %v", v.state)
	}
}
