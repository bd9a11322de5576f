// Package sample turns a Pipe's SampleAsset into a PlaybackHandle a Voice
// can pull frames from without ever touching disk itself (spec §4.1).
package sample

import (
	"sync/atomic"
	"time"

	"github.com/organfox/organfox/internal/organ"
	"github.com/organfox/organfox/internal/stream"
)

// ringCapacityMultiplier sizes a streaming voice's ring buffer as a multiple of
// the audio callback size (spec §4.1 default: "typically 2-8x").
const ringCapacityMultiplier = 4

// Handle is what a Voice reads from each render quantum. It hides whether
// the backing SampleAsset is precache or streaming behind a single Read
// call. The Voice still reads resident frames straight from the asset and
// checks the asset's Backend for each frame it resolves (see
// internal/voice).
type Handle struct {
	asset *organ.SampleAsset

	// precache view, nil for streaming handles.
	full []float32

	// streaming state, zero value for precache handles.
	ring      *stream.RingBuffer
	live      atomic.Bool
	delivered int64 // post-prefix frames already requested from the Streamer
	underruns atomic.Uint64
}

// Open creates a PlaybackHandle for asset. callbackFrames is the audio
// callback's block size, used to size the ring buffer for streaming assets.
// For streaming assets a first Request is enqueued immediately so the
// Streamer starts filling the ring buffer before the prefix is exhausted.
func Open(asset *organ.SampleAsset, callbackFrames int, streamer *stream.Streamer, voiceID uint64) *Handle {
	h := &Handle{asset: asset}

	if asset.Backend == organ.BackendPrecache {
		h.full = asset.Full
		return h
	}

	h.ring = stream.NewRingBuffer(callbackFrames*ringCapacityMultiplier, asset.Channels)
	h.live.Store(true)
	h.requestMore(streamer, voiceID, time.Now())
	return h
}

// Close marks a streaming handle dead so any outstanding Streamer request
// is dropped without being served (spec §4.2).
func (h *Handle) Close() {
	h.live.Store(false)
}

// Asset exposes the backing SampleAsset for the Voice's resident-window
// reads (the attack/sustain loop region is always read straight from
// asset.Prefix or asset.Full, never through the ring buffer; see
// internal/voice).
func (h *Handle) Asset() *organ.SampleAsset {
	return h.asset
}

// Underruns reports how many times Read had to pad with silence because the
// Streamer had not kept up.
func (h *Handle) Underruns() uint64 {
	return h.underruns.Load()
}

// Read copies frames starting at the absolute frame index pos (0-based from
// the start of the asset) into dst, which holds n frames interleaved by
// asset.Channels. It returns the number of frames actually filled. Only a
// read that starts past the prefix zeroes the frames it could not supply
// (and counts an underrun); the precache and prefix paths leave dst beyond
// the returned count untouched.
func (h *Handle) Read(dst []float32, pos int64, streamer *stream.Streamer, voiceID uint64) int64 {
	channels := int64(h.asset.Channels)

	if h.asset.Backend == organ.BackendPrecache {
		return copyFrom(h.full, dst, pos, channels)
	}

	if pos < h.asset.PreloadFrames {
		n := copyFrom(h.asset.Prefix, dst, pos, channels)
		wanted := int64(len(dst)) / channels
		if n < wanted && pos+n == h.asset.PreloadFrames {
			// Ran off the end of the prefix mid-callback; continue from
			// the ring buffer for the remainder of this same read.
			rest := h.ring.Read(dst[n*channels:])
			return n + rest
		}
		return n
	}

	n := h.ring.Read(dst)
	wanted := int64(len(dst)) / channels
	if n < wanted {
		h.underruns.Add(1)
		for i := n * channels; i < int64(len(dst)); i++ {
			dst[i] = 0
		}
	}
	h.requestMore(streamer, voiceID, time.Now().Add(underrunLookahead(wanted, n)))
	return n
}

func underrunLookahead(wanted, got int64) time.Duration {
	if got >= wanted {
		return 50 * time.Millisecond
	}
	return 0
}

// requestMore enqueues a fetch for the next block of frames past whatever
// has already been requested, unless the asset is exhausted.
func (h *Handle) requestMore(streamer *stream.Streamer, voiceID uint64, deadline time.Time) {
	if h.asset.Backend != organ.BackendStreaming {
		return
	}
	remaining := h.asset.FrameCount - h.asset.PreloadFrames - h.delivered
	if remaining <= 0 {
		return
	}
	chunk := h.asset.PreloadFrames
	if chunk > remaining {
		chunk = remaining
	}

	streamer.Enqueue(&stream.Request{
		VoiceID:     voiceID,
		Asset:       h.asset,
		FrameOffset: h.delivered,
		FrameCount:  chunk,
		Ring:        h.ring,
		Deadline:    deadline,
		Live:        &h.live,
	})
	h.delivered += chunk
}

// copyFrom copies frames starting at pos from src into dst (both
// interleaved by channels), returning how many frames were available.
func copyFrom(src []float32, dst []float32, pos int64, channels int64) int64 {
	srcFrames := int64(len(src)) / channels
	if pos >= srcFrames {
		return 0
	}
	avail := srcFrames - pos
	wanted := int64(len(dst)) / channels
	n := avail
	if n > wanted {
		n = wanted
	}
	copy(dst[:n*channels], src[pos*channels:(pos+n)*channels])
	return n
}
