package reverb

import (
	"testing"

	"github.com/organfox/organfox/internal/organ"
)

func TestReverbBypassWithoutIR(t *testing.T) {
	r := New(64)
	if r.Active() {
		t.Fatal("expected Reverb to be inactive before LoadIR")
	}

	dst := []float32{0.1, 0.2, 0.3, 0.4}
	want := append([]float32(nil), dst...)
	r.Process(dst)
	for i := range dst {
		if dst[i] != want[i] {
			t.Errorf("Process mutated dst while bypassed: got %v want %v", dst, want)
			break
		}
	}
}

func TestReverbSetMixClamps(t *testing.T) {
	r := New(64)
	r.SetMix(-1)
	if r.mix != 0 {
		t.Errorf("SetMix(-1) = %v, want 0", r.mix)
	}
	r.SetMix(5)
	if r.mix != 1 {
		t.Errorf("SetMix(5) = %v, want 1", r.mix)
	}
}

func TestReverbLoadIRActivates(t *testing.T) {
	r := New(64)
	ir := &organ.SampleAsset{
		Channels:   1,
		FrameCount: 128,
		Full:       make([]float32, 128),
	}
	ir.Full[0] = 1
	r.LoadIR(ir)
	if !r.Active() {
		t.Fatal("expected Reverb to be active after LoadIR")
	}
}
