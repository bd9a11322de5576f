// Command organfox is the reference host: it owns the OS audio device and
// pulls rendered frames from an engine.Engine, the "core invoked as pull
// function" boundary (spec §1, §9).
package main

import (
	"context"
	"flag"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/organfox/organfox/internal/config"
	"github.com/organfox/organfox/internal/engine"
	"github.com/organfox/organfox/internal/midi"
	"github.com/organfox/organfox/internal/organ"
	"github.com/organfox/organfox/internal/preset"
	"github.com/organfox/organfox/utils/app"
	_ "github.com/organfox/organfox/utils/slogx"
)

const outputSampleRate = beep.SampleRate(44100)

func main() {
	organPath := flag.String("organ", "", "path to a GrandOrgue/Hauptwerk organ definition (parsing is a collaborator's responsibility; empty loads a built-in demo organ)")
	flag.Parse()

	cfg, err := config.Load(filepath.Join(app.ConfigDir(), "organfox.toml"))
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	desc := loadDescriptor(*organPath)

	presets, err := preset.Open(filepath.Join(app.DBDir(), "presets.db"))
	if err != nil {
		slog.Error("open preset store", "error", err)
		os.Exit(1)
	}
	defer presets.Close()

	eng := engine.New(desc, cfg, presets)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)
	defer eng.Stop()

	eng.RegisterDevice("default", &midi.DeviceConfig{Mode: midi.Simple, SimpleVirtualChannel: 0})

	if err := speaker.Init(outputSampleRate, cfg.AudioBufferFrames); err != nil {
		slog.Error("init audio device", "error", err)
		os.Exit(1)
	}
	speaker.Play(&engineStreamer{eng: eng})

	go watchFatal(eng)

	select {}
}

// engineStreamer adapts engine.Engine to beep.Streamer, the pull interface
// speaker.Play drives on the OS audio thread.
type engineStreamer struct {
	eng *engine.Engine
	buf []float32
}

func (s *engineStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.buf == nil || len(s.buf) < len(samples)*2 {
		s.buf = make([]float32, len(samples)*2)
	}
	dst := s.buf[:len(samples)*2]
	s.eng.Render(dst, len(samples))
	for i := range samples {
		samples[i][0] = float64(dst[i*2])
		samples[i][1] = float64(dst[i*2+1])
	}
	return len(samples), true
}

func (s *engineStreamer) Err() error {
	return nil
}

// SubmitRawMIDI decodes one gomidi-wrapped message and forwards it to the
// engine. Device I/O (port enumeration, listening) is owned by whatever
// front-end embeds this binary; this is the seam it calls into.
func SubmitRawMIDI(eng *engine.Engine, deviceID string, msg gomidi.Message) {
	eng.SubmitMIDI(deviceID, msg.Bytes())
}

func watchFatal(eng *engine.Engine) {
	err := <-eng.Fatal()
	slog.Error("engine signalled a fatal condition, terminating session", "error", err)
	os.Exit(1)
}

// loadDescriptor returns a validated OrganDescriptor. Parsing a real
// GrandOrgue .organ or Hauptwerk file is out of scope (spec §6: "consumed
// ... out-of-scope collaborators"); with no path given this builds a small
// demo organ so the engine can be exercised end to end.
func loadDescriptor(path string) *organ.Descriptor {
	if path != "" {
		slog.Warn("organ file parsing is out of scope for this core; falling back to the demo organ", "path", path)
	}
	return demoDescriptor()
}

func demoDescriptor() *organ.Descriptor {
	frames := int64(outputSampleRate) * 2
	buf := make([]float32, frames)
	freq := 440.0
	for i := range buf {
		phase := 2 * math.Pi * freq * float64(i) / float64(outputSampleRate)
		buf[i] = float32(0.3 * math.Sin(phase))
	}
	pipe := &organ.Pipe{
		MIDINote: 69, // A4
		Attack: &organ.SampleAsset{
			Backend:       organ.BackendPrecache,
			Channels:      1,
			NativeRate:    int(outputSampleRate),
			FrameCount:    frames,
			PreloadFrames: frames,
			Prefix:        buf,
			Full:          buf,
			Looped:        true,
			LoopStart:     0,
			LoopEnd:       frames - 1,
		},
		Gain:     1,
		Channels: 1,
	}
	stop := &organ.Stop{
		ID:              "demo",
		Name:            "Demo Principal 8'",
		Enabled:         true,
		Pipes:           map[int]*organ.Pipe{69: pipe},
		VirtualChannels: map[int]struct{}{0: {}},
	}
	desc := &organ.Descriptor{Name: "demo-organ", Stops: []*organ.Stop{stop}}
	desc.Finalize()
	return desc
}

