package mixer

import (
	"testing"

	orgclock "github.com/organfox/organfox/internal/clock"
	"github.com/organfox/organfox/internal/midi"
	"github.com/organfox/organfox/internal/organ"
	"github.com/organfox/organfox/internal/reverb"
	"github.com/organfox/organfox/internal/sample"
	"github.com/organfox/organfox/internal/stream"
	"github.com/organfox/organfox/internal/voice"
)

func sineAsset(frames int64) *organ.SampleAsset {
	buf := make([]float32, frames)
	for i := range buf {
		buf[i] = 0.5
	}
	return &organ.SampleAsset{
		Backend:       organ.BackendPrecache,
		Channels:      1,
		NativeRate:    44100,
		FrameCount:    frames,
		PreloadFrames: frames,
		Prefix:        buf,
		Full:          buf,
	}
}

func testSetup(t *testing.T, polyphony int) (*Mixer, *midi.Router, *organ.Descriptor) {
	t.Helper()
	pipe60 := &organ.Pipe{MIDINote: 60, Attack: sineAsset(4000), Gain: 1, Channels: 1}
	pipe61 := &organ.Pipe{MIDINote: 61, Attack: sineAsset(4000), Gain: 1, Channels: 1}
	stop := &organ.Stop{
		ID:              "principal8",
		Enabled:         true,
		Pipes:           map[int]*organ.Pipe{60: pipe60, 61: pipe61},
		VirtualChannels: map[int]struct{}{0: {}},
	}
	desc := &organ.Descriptor{Name: "test", Stops: []*organ.Stop{stop}}
	desc.Finalize()

	cm := midi.NewChannelMap(desc)
	router := midi.New(desc, cm, nil)
	router.RegisterDevice("dev", &midi.DeviceConfig{Mode: midi.Simple, SimpleVirtualChannel: 0})

	streamer := stream.New(1)
	store := sample.NewStore(64, streamer)
	eng := &orgclock.Engine{}
	rv := reverb.New(64)

	m := New(desc, store, streamer, router, eng, rv, 44100, 64, polyphony)
	return m, router, desc
}

func TestMixerNoteOnSpawnsVoice(t *testing.T) {
	m, router, _ := testSetup(t, 8)
	router.SubmitRaw("dev", []byte{0x90, 60, 100})

	dst := make([]float32, 128)
	m.Render(dst, 64)

	if m.VoiceCount() != 1 {
		t.Fatalf("VoiceCount() = %d, want 1", m.VoiceCount())
	}
}

func TestMixerPolyphonyEviction(t *testing.T) {
	m, router, _ := testSetup(t, 2)
	dst := make([]float32, 128)

	router.SubmitRaw("dev", []byte{0x90, 60, 100})
	m.Render(dst, 64)
	router.SubmitRaw("dev", []byte{0x80, 60, 0})
	m.Render(dst, 64)

	router.SubmitRaw("dev", []byte{0x90, 60, 100})
	m.Render(dst, 64)
	router.SubmitRaw("dev", []byte{0x80, 60, 0})
	m.Render(dst, 64)

	router.SubmitRaw("dev", []byte{0x90, 60, 100})
	m.Render(dst, 64)

	foundDying := false
	for _, v := range m.voices {
		if v.State() == voice.Dying {
			foundDying = true
		}
	}
	if !foundDying {
		t.Error("expected polyphony eviction to move an oldest Release voice to Dying")
	}
}

func TestMixerTremulantAdvancesOncePerRenderRegardlessOfVoiceCount(t *testing.T) {
	m, router, _ := testSetup(t, 8)
	m.SetTremulant(true, 6, 1)
	dst := make([]float32, 128)

	router.SubmitRaw("dev", []byte{0x90, 60, 100})
	m.Render(dst, 64)
	singleVoicePhase := m.trem.Phase()

	router.SubmitRaw("dev", []byte{0x90, 61, 100})
	m.Render(dst, 64)
	twoVoicePhase := m.trem.Phase()

	increment := singleVoicePhase
	got := twoVoicePhase - singleVoicePhase
	if diff := got - increment; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("tremulant phase advanced by %v with 2 live voices, want %v (once per Render call, not once per voice)", got, increment)
	}
}

func TestMixerSetOriginalTuningStored(t *testing.T) {
	m, _, _ := testSetup(t, 8)
	m.SetOriginalTuning(true)
	if !m.originalTuning.Load() {
		t.Error("SetOriginalTuning(true) did not persist")
	}
	m.SetOriginalTuning(false)
	if m.originalTuning.Load() {
		t.Error("SetOriginalTuning(false) did not persist")
	}
}

func TestMixerPanicKillsAllVoices(t *testing.T) {
	m, router, _ := testSetup(t, 8)
	router.SubmitRaw("dev", []byte{0x90, 60, 100})
	dst := make([]float32, 128)
	m.Render(dst, 64)

	m.Panic()
	for _, v := range m.voices {
		if v.State() != voice.Dying {
			t.Errorf("expected all voices Dying after Panic, got %v", v.State())
		}
	}
}
