// Package organ holds the immutable descriptor the core renders: stops,
// pipes and the sample assets they reference. Parsing a GrandOrgue .organ
// INI or Hauptwerk XML file into a Descriptor is out of scope here (spec
// §1); this package only defines the shape the parser must produce and the
// sample-asset materialization (precache or streaming) the rest of the
// engine consumes.
package organ

import "fmt"

// HoldBucket buckets how long a note was held before release, used to pick
// a release-sample variant. Boundaries are sample-set defined and treated
// as opaque by the core (spec §9, open question).
type HoldBucket int

const (
	HoldShort HoldBucket = iota
	HoldMedium
	HoldLong
)

// ReleaseVariant is one release-sample choice for a Pipe, keyed by how long
// the note was held.
type ReleaseVariant struct {
	Bucket HoldBucket
	Asset  *SampleAsset
}

// Pipe is a single tuned sound source mapped to one MIDI note within a Stop.
type Pipe struct {
	MIDINote int

	Attack   *SampleAsset
	Releases []ReleaseVariant

	LoopStart, LoopEnd int64 // frame positions; LoopEnd <= 0 means unlooped
	Looped             bool

	PitchCorrectionCents float64
	Gain                 float64
	Channels             int // 1 (mono) or 2 (stereo)
}

// ReleaseFor selects the release sample for a given hold duration bucket,
// falling back to the nearest defined variant.
func (p *Pipe) ReleaseFor(bucket HoldBucket) *SampleAsset {
	var best *ReleaseVariant
	bestDist := int(^uint(0) >> 1)
	for i := range p.Releases {
		v := &p.Releases[i]
		d := int(v.Bucket - bucket)
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = v
		}
	}
	if best == nil {
		return nil
	}
	return best.Asset
}

// PitchFactor returns the playback-rate multiplier derived from the pipe's
// cents correction. When originalTuning is true and the correction is
// small (<=20 cents, spec §6), it is ignored.
func (p *Pipe) PitchFactor(originalTuning bool) float64 {
	cents := p.PitchCorrectionCents
	if originalTuning && absf(cents) <= 20 {
		cents = 0
	}
	return centsToFactor(cents)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Stop is a named register selecting a set of pipes.
type Stop struct {
	ID      string
	Name    string
	Enabled bool

	// Pipes maps MIDI note number to the pipe it sounds.
	Pipes map[int]*Pipe

	// VirtualChannels is the set of virtual MIDI channels (0-15) that
	// trigger this stop.
	VirtualChannels map[int]struct{}

	// LearnBinding is the optional MIDI event bound to this stop by
	// MIDI-learn. The router does not read it: receiving the bound event
	// does not toggle Enabled.
	LearnBinding *LearnBinding
}

// LearnBinding identifies a raw MIDI event bound to a Stop's toggle via
// MIDI-learn.
type LearnBinding struct {
	DeviceID string
	Status   byte
	Data1    byte
}

// Descriptor is the immutable, fully-loaded organ definition. It never
// mutates after load; every field is safe to read from any thread without
// synchronization (spec §5).
type Descriptor struct {
	Name  string
	Stops []*Stop

	stopsByID map[string]*Stop
}

// Finalize builds lookup indexes after all Stops are populated. Call once
// after construction, before the Descriptor is published to other threads.
func (d *Descriptor) Finalize() {
	d.stopsByID = make(map[string]*Stop, len(d.Stops))
	for _, s := range d.Stops {
		d.stopsByID[s.ID] = s
	}
}

// Stop looks up a stop by id.
func (d *Descriptor) Stop(id string) (*Stop, bool) {
	s, ok := d.stopsByID[id]
	return s, ok
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("organ(%s, %d stops)", d.Name, len(d.Stops))
}

func centsToFactor(cents float64) float64 {
	return pow2(cents / 1200)
}
