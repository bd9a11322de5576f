package organ

import "testing"

func TestPipeReleaseFor(t *testing.T) {
	short := &SampleAsset{Path: "short.wav"}
	long := &SampleAsset{Path: "long.wav"}
	p := &Pipe{
		Releases: []ReleaseVariant{
			{Bucket: HoldShort, Asset: short},
			{Bucket: HoldLong, Asset: long},
		},
	}

	if got := p.ReleaseFor(HoldShort); got != short {
		t.Errorf("ReleaseFor(HoldShort) = %v, want short", got)
	}
	if got := p.ReleaseFor(HoldMedium); got != short && got != long {
		t.Errorf("ReleaseFor(HoldMedium) returned unexpected asset %v", got)
	}
	if got := p.ReleaseFor(HoldLong); got != long {
		t.Errorf("ReleaseFor(HoldLong) = %v, want long", got)
	}
}

func TestPipeReleaseForEmpty(t *testing.T) {
	p := &Pipe{}
	if got := p.ReleaseFor(HoldShort); got != nil {
		t.Errorf("ReleaseFor with no release variants = %v, want nil", got)
	}
}

func TestPitchFactor(t *testing.T) {
	p := &Pipe{PitchCorrectionCents: 1200}
	if got := p.PitchFactor(false); got != 2.0 {
		t.Errorf("PitchFactor(1200 cents) = %v, want 2.0", got)
	}

	p.PitchCorrectionCents = 10
	if got := p.PitchFactor(true); got != 1.0 {
		t.Errorf("PitchFactor with original_tuning and |cents|<=20 = %v, want 1.0 (ignored)", got)
	}

	p.PitchCorrectionCents = 100
	if got := p.PitchFactor(true); got == 1.0 {
		t.Errorf("PitchFactor with original_tuning and |cents|>20 should still apply correction")
	}
}

func TestDescriptorStopLookup(t *testing.T) {
	d := &Descriptor{
		Name: "test organ",
		Stops: []*Stop{
			{ID: "principal8", Name: "Principal 8'"},
		},
	}
	d.Finalize()

	if _, ok := d.Stop("principal8"); !ok {
		t.Error("expected to find stop principal8")
	}
	if _, ok := d.Stop("missing"); ok {
		t.Error("expected not to find unknown stop")
	}
}
