// Package midi routes raw MIDI bytes from input devices to the Mixer as
// pipe-organ NoteOn/NoteOff events, and implements MIDI-learn bindings
// (spec §4.6).
package midi

import (
	"sync/atomic"

	"github.com/organfox/organfox/internal/organ"
)

// Snapshot is an immutable virtual-channel routing table: which stops are
// currently enabled and listening on each of the 16 virtual channels. The
// audio-adjacent MidiRouter only ever reads a Snapshot; the control thread
// installs a new one (spec §5: "double-buffered or read through an atomic
// pointer-swap").
type Snapshot struct {
	routes map[int]map[string]bool // virtual channel -> stop ID -> enabled
}

func newEmptySnapshot() *Snapshot {
	return &Snapshot{routes: make(map[int]map[string]bool)}
}

func (s *Snapshot) clone() *Snapshot {
	next := newEmptySnapshot()
	for vc, stops := range s.routes {
		cp := make(map[string]bool, len(stops))
		for id, v := range stops {
			cp[id] = v
		}
		next.routes[vc] = cp
	}
	return next
}

// StopsEnabledOn returns the stop IDs currently enabled on a virtual
// channel.
func (s *Snapshot) StopsEnabledOn(virtualChannel int) []string {
	stops := s.routes[virtualChannel]
	out := make([]string, 0, len(stops))
	for id, enabled := range stops {
		if enabled {
			out = append(out, id)
		}
	}
	return out
}

// ChannelMap is the mutable, atomically-swapped home for stop/channel
// routing. PresetStore persists and restores a Snapshot's contents
// directly (spec §4.7).
type ChannelMap struct {
	desc *organ.Descriptor
	ptr  atomic.Pointer[Snapshot]
}

// NewChannelMap seeds routing from the organ descriptor's own Stop.Enabled
// and Stop.VirtualChannels (the file's defaults).
func NewChannelMap(desc *organ.Descriptor) *ChannelMap {
	snap := newEmptySnapshot()
	for _, s := range desc.Stops {
		for vc := range s.VirtualChannels {
			if snap.routes[vc] == nil {
				snap.routes[vc] = make(map[string]bool)
			}
			snap.routes[vc][s.ID] = s.Enabled
		}
	}
	cm := &ChannelMap{desc: desc}
	cm.ptr.Store(snap)
	return cm
}

// Current returns the live routing snapshot. Safe to call from any thread,
// including the audio thread.
func (cm *ChannelMap) Current() *Snapshot {
	return cm.ptr.Load()
}

// SetStopEnabled enables or disables a stop across every virtual channel it
// is wired to in the organ descriptor (spec §4.4: disabling issues note-off
// to all pipes the stop drives).
func (cm *ChannelMap) SetStopEnabled(stopID string, enabled bool) {
	stop, ok := cm.desc.Stop(stopID)
	if !ok {
		return
	}
	next := cm.ptr.Load().clone()
	for vc := range stop.VirtualChannels {
		if next.routes[vc] == nil {
			next.routes[vc] = make(map[string]bool)
		}
		next.routes[vc][stopID] = enabled
	}
	cm.ptr.Store(next)
}

// Export serializes the live snapshot into a plain map suitable for
// PresetStore (virtual channel -> enabled stop IDs).
func (cm *ChannelMap) Export() map[int][]string {
	snap := cm.ptr.Load()
	out := make(map[int][]string, len(snap.routes))
	for vc := range snap.routes {
		out[vc] = snap.StopsEnabledOn(vc)
	}
	return out
}

// Restore installs a previously-exported snapshot wholesale (preset load,
// spec §4.7). Stops not mentioned for a channel are left disabled there.
func (cm *ChannelMap) Restore(data map[int][]string) {
	next := newEmptySnapshot()
	for _, s := range cm.desc.Stops {
		for vc := range s.VirtualChannels {
			if next.routes[vc] == nil {
				next.routes[vc] = make(map[string]bool)
			}
			next.routes[vc][s.ID] = false
		}
	}
	for vc, ids := range data {
		if next.routes[vc] == nil {
			next.routes[vc] = make(map[string]bool)
		}
		for _, id := range ids {
			next.routes[vc][id] = true
		}
	}
	cm.ptr.Store(next)
}
