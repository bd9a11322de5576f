package engine

import (
	"path/filepath"
	"testing"

	"github.com/organfox/organfox/internal/config"
	"github.com/organfox/organfox/internal/midi"
	"github.com/organfox/organfox/internal/organ"
	"github.com/organfox/organfox/internal/preset"
)

func testDescriptor() *organ.Descriptor {
	buf := make([]float32, 2000)
	for i := range buf {
		buf[i] = 0.3
	}
	pipe := &organ.Pipe{
		MIDINote: 60,
		Gain:     1,
		Channels: 1,
		Attack: &organ.SampleAsset{
			Backend:       organ.BackendPrecache,
			Channels:      1,
			NativeRate:    44100,
			FrameCount:    2000,
			PreloadFrames: 2000,
			Prefix:        buf,
			Full:          buf,
		},
	}
	stop := &organ.Stop{
		ID:              "principal8",
		Enabled:         true,
		Pipes:           map[int]*organ.Pipe{60: pipe},
		VirtualChannels: map[int]struct{}{0: {}},
	}
	d := &organ.Descriptor{Name: "test-organ", Stops: []*organ.Stop{stop}}
	d.Finalize()
	return d
}

func TestEngineNoteOnRenderProducesSound(t *testing.T) {
	desc := testDescriptor()
	cfg := config.NewDefaultConfig()
	cfg.AudioBufferFrames = 64

	presetPath := filepath.Join(t.TempDir(), "presets.db")
	store, err := preset.Open(presetPath)
	if err != nil {
		t.Fatalf("preset.Open() error = %v", err)
	}
	defer store.Close()

	eng := New(desc, cfg, store)
	eng.RegisterDevice("dev1", &midi.DeviceConfig{Mode: midi.Simple, SimpleVirtualChannel: 0})

	eng.SubmitMIDI("dev1", []byte{0x90, 60, 100})

	dst := make([]float32, 128)
	eng.Render(dst, 64)

	if eng.Metrics().VoiceCount != 1 {
		t.Fatalf("VoiceCount = %d, want 1", eng.Metrics().VoiceCount)
	}
	silent := true
	for _, s := range dst {
		if s != 0 {
			silent = false
			break
		}
	}
	if silent {
		t.Error("Render after note-on produced only silence")
	}
}

func TestEngineMetricsReportsTimingAndQueueDepth(t *testing.T) {
	desc := testDescriptor()
	cfg := config.NewDefaultConfig()
	cfg.AudioBufferFrames = 64

	eng := New(desc, cfg, nil)
	dst := make([]float32, 128)
	eng.Render(dst, 64)

	snap := eng.Metrics()
	if snap.SessionID == "" {
		t.Error("Metrics().SessionID is empty")
	}
	if snap.CallbackCPU <= 0 {
		t.Error("Metrics().CallbackCPU should be > 0 after at least one Render call")
	}
	if snap.CallbackCPUMaxEMA <= 0 {
		t.Error("Metrics().CallbackCPUMaxEMA should be > 0 after at least one Render call")
	}
	if snap.StreamerQueueSize != 0 {
		t.Errorf("Metrics().StreamerQueueSize = %d, want 0 (nothing queued in this fixture)", snap.StreamerQueueSize)
	}
}

func TestEnginePresetRoundTrip(t *testing.T) {
	desc := testDescriptor()
	cfg := config.NewDefaultConfig()

	presetPath := filepath.Join(t.TempDir(), "presets.db")
	store, err := preset.Open(presetPath)
	if err != nil {
		t.Fatalf("preset.Open() error = %v", err)
	}
	defer store.Close()

	eng := New(desc, cfg, store)
	eng.SetStopEnabled("principal8", true)

	if err := eng.SavePreset(7); err != nil {
		t.Fatalf("SavePreset() error = %v", err)
	}

	eng.SetStopEnabled("principal8", false)
	if err := eng.LoadPreset(7); err != nil {
		t.Fatalf("LoadPreset() error = %v", err)
	}

	snap := eng.chanMap.Current()
	stops := snap.StopsEnabledOn(0)
	if len(stops) != 1 || stops[0] != "principal8" {
		t.Errorf("expected principal8 restored on channel 0, got %v", stops)
	}
}

func TestEnginePanicClearsVoices(t *testing.T) {
	desc := testDescriptor()
	cfg := config.NewDefaultConfig()
	cfg.AudioBufferFrames = 64

	eng := New(desc, cfg, nil)
	eng.RegisterDevice("dev1", &midi.DeviceConfig{Mode: midi.Simple, SimpleVirtualChannel: 0})
	eng.SubmitMIDI("dev1", []byte{0x90, 60, 100})

	dst := make([]float32, 128)
	eng.Render(dst, 64)
	eng.Panic()

	for i := 0; i < 50; i++ {
		eng.Render(dst, 64)
	}
	if eng.Metrics().VoiceCount != 0 {
		t.Errorf("VoiceCount after panic settles = %d, want 0", eng.Metrics().VoiceCount)
	}
}
