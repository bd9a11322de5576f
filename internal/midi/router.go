package midi

import (
	"fmt"
	"log/slog"

	"github.com/organfox/organfox/internal/organ"
	"github.com/organfox/organfox/utils/slogx"
)

// Mode is a physical device's channel-mapping strategy (spec §4.6).
type Mode int

const (
	// Simple collapses every physical channel on a device onto one
	// virtual channel.
	Simple Mode = iota
	// Complex maps each physical channel independently to a set of
	// virtual channels.
	Complex
)

// DeviceConfig describes how one physical MIDI input device's channels map
// to virtual channels.
type DeviceConfig struct {
	Mode Mode

	// SimpleVirtualChannel is used when Mode == Simple.
	SimpleVirtualChannel int

	// ComplexMap maps physical channel (0-15) to the virtual channels it
	// feeds, used when Mode == Complex.
	ComplexMap map[int][]int
}

func (d *DeviceConfig) virtualChannels(physical int) []int {
	if d.Mode == Simple {
		return []int{d.SimpleVirtualChannel}
	}
	return d.ComplexMap[physical]
}

// EventKind tags the events a MidiRouter publishes to the Mixer.
type EventKind int

const (
	NoteOn EventKind = iota
	NoteOff
	Panic
)

// Event is one routed message ready for the Mixer's queue (spec §4.6). It
// carries everything the Mixer needs without a back-reference to the
// router or the organ descriptor, matching the stable-handle substitution
// for cyclic references (spec §9).
type Event struct {
	Kind           EventKind
	VirtualChannel int
	StopID         string
	Note           int
	Velocity       byte
}

// learnTarget is set while a Stop is waiting for its MIDI-learn binding.
type learnTarget struct {
	stopID string
}

// Router decodes raw MIDI bytes from each configured device and publishes
// NoteOn/NoteOff/Panic events to a bounded queue the Mixer drains at the
// start of each render call (spec §4.6, §5).
type Router struct {
	desc    *organ.Descriptor
	chanMap *ChannelMap

	devices map[string]*DeviceConfig

	events chan Event

	learning   *learnTarget
	onLearn    func(stopID string, binding organ.LearnBinding)
	onOverflow func()
}

// queueCapacity bounds the router-to-mixer event queue (spec §5: "bounded
// single-producer/multi-consumer lock-free queue"). A buffered channel is
// the idiomatic Go stand-in: sends never block past this depth, and a full
// queue is treated as the fatal condition the spec calls for.
const queueCapacity = 1024

// New creates a Router bound to desc's stops and chanMap's live routing.
// onOverflow is invoked (and should terminate the session) if the event
// queue ever fills, per spec §7 ("MIDI queue overflow: fatal to the
// session").
func New(desc *organ.Descriptor, chanMap *ChannelMap, onOverflow func()) *Router {
	return &Router{
		desc:       desc,
		chanMap:    chanMap,
		devices:    make(map[string]*DeviceConfig),
		events:     make(chan Event, queueCapacity),
		onOverflow: onOverflow,
	}
}

// Events exposes the queue the Mixer drains each render call.
func (r *Router) Events() <-chan Event {
	return r.events
}

// RegisterDevice installs a device's channel-mapping mode.
func (r *Router) RegisterDevice(deviceID string, cfg *DeviceConfig) {
	r.devices[deviceID] = cfg
}

// BeginLearn arms MIDI-learn for a stop: the next non-note event received
// on any device is bound to it and reported to onBound (spec §4.6). Later
// occurrences of the bound event are handled like any other message; they
// do not toggle the stop.
func (r *Router) BeginLearn(stopID string, onBound func(stopID string, binding organ.LearnBinding)) {
	r.learning = &learnTarget{stopID: stopID}
	r.onLearn = onBound
}

// SubmitRaw decodes one raw MIDI message from deviceID and publishes the
// resulting Event(s), following the status byte and the device's mapping
// mode. Safe to call concurrently from multiple device-reader goroutines;
// each device has its own calling goroutine per spec §5.
func (r *Router) SubmitRaw(deviceID string, raw []byte) {
	if len(raw) == 0 {
		return
	}
	status := raw[0]

	if status == 0xF0 || (status >= 0xB0 && status < 0xC0 && len(raw) > 1 && raw[1] == 123) {
		r.publish(Event{Kind: Panic})
		return
	}

	if r.learning != nil && (status&0xF0) != 0x90 && (status&0xF0) != 0x80 {
		var data1 byte
		if len(raw) > 1 {
			data1 = raw[1]
		}
		binding := organ.LearnBinding{DeviceID: deviceID, Status: status, Data1: data1}
		stopID := r.learning.stopID
		r.learning = nil
		if r.onLearn != nil {
			r.onLearn(stopID, binding)
		}
		return
	}

	cfg := r.devices[deviceID]
	if cfg == nil {
		return
	}

	command := status & 0xF0
	physical := int(status & 0x0F)
	if command != 0x90 && command != 0x80 {
		return
	}
	if len(raw) < 3 {
		return
	}
	note := int(raw[1])
	velocity := raw[2]

	kind := NoteOn
	if command == 0x80 || velocity == 0 {
		kind = NoteOff
	}

	for _, vc := range cfg.virtualChannels(physical) {
		for _, stopID := range r.chanMap.Current().StopsEnabledOn(vc) {
			stop, ok := r.desc.Stop(stopID)
			if !ok {
				continue
			}
			if _, has := stop.Pipes[note]; !has {
				continue
			}
			r.publish(Event{
				Kind:           kind,
				VirtualChannel: vc,
				StopID:         stopID,
				Note:           note,
				Velocity:       velocity,
			})
		}
	}
}

func (r *Router) publish(ev Event) {
	select {
	case r.events <- ev:
	default:
		slog.Error("midi event queue overflow", slogx.Error(fmt.Errorf("capacity %d exceeded", queueCapacity)))
		if r.onOverflow != nil {
			r.onOverflow()
		}
	}
}
