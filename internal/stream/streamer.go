package stream

import (
	"container/heap"
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/organfox/organfox/internal/organ"
	"github.com/organfox/organfox/utils/errorx"
	"github.com/organfox/organfox/utils/slogx"
)

// Request is one outstanding fetch: read frames for a voice's ring buffer
// from a sample file, starting at FrameOffset frames past Asset.FileOffset
// (the first frame after the preloaded prefix).
type Request struct {
	VoiceID     uint64
	Asset       *organ.SampleAsset
	FrameOffset int64 // how many post-prefix frames have already been requested
	FrameCount  int64 // how many frames this request asks for
	Ring        *RingBuffer

	// Deadline is the projected underrun time; earlier deadlines are
	// served first (spec §4.2).
	Deadline time.Time

	// Live is polled before the request is served; a voice that
	// terminates clears it so the request is dropped when dequeued
	// (spec §4.2).
	Live *atomic.Bool

	index int // heap bookkeeping
}

// priorityQueue orders *Request by Deadline, earliest first.
type priorityQueue []*Request

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].Deadline.Before(pq[j].Deadline) }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x any) {
	r := x.(*Request)
	r.index = len(*pq)
	*pq = append(*pq, r)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return r
}

// Streamer is the dedicated worker that fills voice ring buffers from disk.
// It never runs on the audio thread; Mixer/Voice only enqueue requests and
// read from ring buffers (spec §5).
type Streamer struct {
	mu    sync.Mutex
	queue priorityQueue
	cond  *sync.Cond

	sem *semaphore.Weighted // bounds concurrent positioned reads

	underruns atomic.Uint64

	closed atomic.Bool
	done   chan struct{}
}

// New creates a Streamer whose positioned reads are gated by a semaphore of
// weight concurrency. The single worker goroutine serves one request at a
// time, so at most one read is in flight.
func New(concurrency int) *Streamer {
	if concurrency <= 0 {
		concurrency = 2
	}
	s := &Streamer{
		sem:  semaphore.NewWeighted(int64(concurrency)),
		done: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the worker loop. Call once; Stop to shut down.
func (s *Streamer) Start(ctx context.Context) {
	errorx.Go(func() {
		s.run(ctx)
	})
}

// Stop flushes the outstanding queue and exits the worker loop (spec §5
// shutdown sequence).
func (s *Streamer) Stop() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()
	s.cond.Broadcast()
	<-s.done
}

// Enqueue submits a fetch request, ordered by its Deadline.
func (s *Streamer) Enqueue(r *Request) {
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	heap.Push(&s.queue, r)
	s.mu.Unlock()
	s.cond.Signal()
}

// UnderrunCount returns how many served fetches decoded more frames than
// the voice's ring buffer accepted. Silence a Handle emits for lack of
// streamed data is counted per Handle (sample.Handle.Underruns), not here.
func (s *Streamer) UnderrunCount() uint64 {
	return s.underruns.Load()
}

// QueueLen reports how many fetch requests are currently outstanding,
// read by metrics() without touching the audio thread (spec §4.2,
// SPEC_FULL supplemented metrics).
func (s *Streamer) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Streamer) run(ctx context.Context) {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed.Load() {
			s.cond.Wait()
		}
		if s.closed.Load() && len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		req := heap.Pop(&s.queue).(*Request)
		s.mu.Unlock()

		if req.Live != nil && !req.Live.Load() {
			continue // voice terminated; drop (spec §4.2)
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		s.serve(req)
		s.sem.Release(1)
	}
}

func (s *Streamer) serve(req *Request) {
	asset := req.Asset
	if asset.Backend != organ.BackendStreaming {
		return
	}

	toRead := req.FrameCount
	if spare := req.Ring.Free(); spare < toRead {
		toRead = spare
	}
	if toRead <= 0 {
		return
	}

	byteOffset := asset.FileOffset + req.FrameOffset*int64(asset.Channels)*int64(bytesPerSample(asset.BitDepth))
	buf := make([]byte, toRead*int64(asset.Channels)*int64(bytesPerSample(asset.BitDepth)))

	f, err := os.Open(asset.Path)
	if err != nil {
		slog.Error("streamer: open failed", slogx.Error(err), slog.String("path", asset.Path))
		return
	}
	defer f.Close()

	n, err := f.ReadAt(buf, byteOffset)
	if err != nil && n == 0 {
		slog.Error("streamer: positioned read failed", slogx.Error(errors.Wrapf(err, "offset %d", byteOffset)))
		return
	}

	frames := decodePCM(buf[:n], asset.BitDepth, asset.Channels)
	written := req.Ring.Write(frames)
	if written < int64(len(frames))/int64(asset.Channels) {
		s.underruns.Add(1)
	}
}

func bytesPerSample(bitDepth int) int {
	return (bitDepth + 7) / 8
}

// decodePCM converts little-endian signed PCM bytes at the given bit depth
// into interleaved float32 frames in [-1,1].
func decodePCM(raw []byte, bitDepth, channels int) []float32 {
	bps := bytesPerSample(bitDepth)
	if bps == 0 || channels == 0 {
		return nil
	}
	count := len(raw) / bps
	out := make([]float32, count)
	maxVal := float32(int64(1) << uint(bitDepth-1))

	switch bps {
	case 2:
		for i := 0; i < count; i++ {
			v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
			out[i] = float32(v) / maxVal
		}
	case 3:
		for i := 0; i < count; i++ {
			b0, b1, b2 := raw[3*i], raw[3*i+1], raw[3*i+2]
			v := int32(uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16)
			if v&0x800000 != 0 {
				v |= ^0xFFFFFF
			}
			out[i] = float32(v) / maxVal
		}
	case 4:
		for i := 0; i < count; i++ {
			v := int32(uint32(raw[4*i]) | uint32(raw[4*i+1])<<8 | uint32(raw[4*i+2])<<16 | uint32(raw[4*i+3])<<24)
			out[i] = float32(v) / maxVal
		}
	default:
		for i := range out {
			out[i] = 0
		}
	}
	return out
}
