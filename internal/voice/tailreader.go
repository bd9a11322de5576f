package voice

import (
	"github.com/organfox/organfox/internal/sample"
	"github.com/organfox/organfox/internal/stream"
)

// tailReader turns a sample.Handle's block-oriented, forward-only Read into
// per-frame random access within a small sliding window, which is what the
// interpolating cursor in render needs. It never seeks backward past its
// current base; a Voice only ever advances its cursor forward (loop wraps
// are handled against the resident prefix, never through here).
type tailReader struct {
	handle   *sample.Handle
	channels int

	base   int64 // absolute frame index (asset-space) of window[0]
	filled int64 // valid frames currently buffered
	window []float32
}

const tailWindowFrames = 1024

func newTailReader(h *sample.Handle, channels int, startPos int64) *tailReader {
	return &tailReader{
		handle:   h,
		channels: channels,
		base:     startPos,
		window:   make([]float32, tailWindowFrames*channels),
	}
}

// frameAt returns the frame at absolute index idx, pulling more data from
// the handle as needed. ok is false once the underlying asset is exhausted.
func (tr *tailReader) frameAt(idx int64, streamer *stream.Streamer, voiceID uint64) (l, r float32, ok bool) {
	for idx >= tr.base+tr.filled {
		if !tr.refill(streamer, voiceID) {
			return 0, 0, false
		}
	}
	if idx < tr.base {
		return 0, 0, false
	}
	rel := idx - tr.base
	if tr.channels == 1 {
		v := tr.window[rel]
		return v, v, true
	}
	return tr.window[rel*2], tr.window[rel*2+1], true
}

// advance drops frames before minIdx, compacting the window so refill has
// room to pull more without growing unbounded.
func (tr *tailReader) advance(minIdx int64) {
	if minIdx <= tr.base {
		return
	}
	drop := minIdx - tr.base
	if drop >= tr.filled {
		tr.filled = 0
	} else {
		copy(tr.window, tr.window[drop*int64(tr.channels):tr.filled*int64(tr.channels)])
		tr.filled -= drop
	}
	tr.base = minIdx
}

func (tr *tailReader) refill(streamer *stream.Streamer, voiceID uint64) bool {
	capFrames := int64(len(tr.window) / tr.channels)
	if tr.filled >= capFrames {
		return false
	}
	dst := tr.window[tr.filled*int64(tr.channels) : capFrames*int64(tr.channels)]
	n := tr.handle.Read(dst, tr.base+tr.filled, streamer, voiceID)
	if n <= 0 {
		return false
	}
	tr.filled += n
	return true
}
