package midi

import (
	"testing"

	"github.com/organfox/organfox/internal/organ"
)

func testDescriptor() *organ.Descriptor {
	stop := &organ.Stop{
		ID:              "principal8",
		Name:            "Principal 8'",
		Enabled:         true,
		Pipes:           map[int]*organ.Pipe{60: {MIDINote: 60}},
		VirtualChannels: map[int]struct{}{0: {}},
	}
	d := &organ.Descriptor{Name: "test", Stops: []*organ.Stop{stop}}
	d.Finalize()
	return d
}

func TestRouterNoteOnOff(t *testing.T) {
	desc := testDescriptor()
	cm := NewChannelMap(desc)
	r := New(desc, cm, nil)
	r.RegisterDevice("dev1", &DeviceConfig{Mode: Simple, SimpleVirtualChannel: 0})

	r.SubmitRaw("dev1", []byte{0x90, 60, 100})
	ev := <-r.Events()
	if ev.Kind != NoteOn || ev.StopID != "principal8" || ev.Note != 60 {
		t.Fatalf("unexpected note-on event: %+v", ev)
	}

	r.SubmitRaw("dev1", []byte{0x80, 60, 0})
	ev = <-r.Events()
	if ev.Kind != NoteOff {
		t.Fatalf("expected note-off, got %+v", ev)
	}
}

func TestRouterNoteOnVelocityZeroIsNoteOff(t *testing.T) {
	desc := testDescriptor()
	cm := NewChannelMap(desc)
	r := New(desc, cm, nil)
	r.RegisterDevice("dev1", &DeviceConfig{Mode: Simple, SimpleVirtualChannel: 0})

	r.SubmitRaw("dev1", []byte{0x90, 60, 0})
	ev := <-r.Events()
	if ev.Kind != NoteOff {
		t.Fatalf("expected note-on with vel=0 to become note-off, got %+v", ev)
	}
}

func TestRouterIgnoresDisabledStop(t *testing.T) {
	desc := testDescriptor()
	cm := NewChannelMap(desc)
	cm.SetStopEnabled("principal8", false)
	r := New(desc, cm, nil)
	r.RegisterDevice("dev1", &DeviceConfig{Mode: Simple, SimpleVirtualChannel: 0})

	r.SubmitRaw("dev1", []byte{0x90, 60, 100})
	select {
	case ev := <-r.Events():
		t.Fatalf("expected no event for disabled stop, got %+v", ev)
	default:
	}
}

func TestRouterPanicOnCC123(t *testing.T) {
	desc := testDescriptor()
	cm := NewChannelMap(desc)
	r := New(desc, cm, nil)

	r.SubmitRaw("dev1", []byte{0xB0, 123, 0})
	ev := <-r.Events()
	if ev.Kind != Panic {
		t.Fatalf("expected Panic event, got %+v", ev)
	}
}

func TestRouterMidiLearn(t *testing.T) {
	desc := testDescriptor()
	cm := NewChannelMap(desc)
	r := New(desc, cm, nil)

	var bound organ.LearnBinding
	var boundStop string
	r.BeginLearn("principal8", func(stopID string, binding organ.LearnBinding) {
		boundStop = stopID
		bound = binding
	})

	r.SubmitRaw("dev1", []byte{0xB0, 20, 127})
	if boundStop != "principal8" {
		t.Fatalf("expected learn to bind principal8, got %q", boundStop)
	}
	if bound.Status != 0xB0 || bound.Data1 != 20 {
		t.Errorf("unexpected binding %+v", bound)
	}
}

func TestChannelMapExportRestore(t *testing.T) {
	desc := testDescriptor()
	cm := NewChannelMap(desc)

	data := cm.Export()
	cm.SetStopEnabled("principal8", false)
	if len(cm.Current().StopsEnabledOn(0)) != 0 {
		t.Fatal("expected stop disabled")
	}

	cm.Restore(data)
	stops := cm.Current().StopsEnabledOn(0)
	if len(stops) != 1 || stops[0] != "principal8" {
		t.Errorf("Restore did not recover snapshot, got %v", stops)
	}
}
