package sample

import (
	"github.com/organfox/organfox/internal/organ"
	"github.com/organfox/organfox/internal/stream"
)

// Store opens PlaybackHandles for pipes. It holds no sample data itself —
// that lives in the already-loaded organ.Descriptor — it only knows the
// audio callback size and the Streamer to wire new streaming handles to
// (spec §4.1).
type Store struct {
	callbackFrames int
	streamer       *stream.Streamer
}

// NewStore builds a Store bound to streamer, sizing streaming ring buffers
// as a multiple of callbackFrames (the Mixer's render quantum).
func NewStore(callbackFrames int, streamer *stream.Streamer) *Store {
	return &Store{callbackFrames: callbackFrames, streamer: streamer}
}

// OpenAttack opens a handle onto a pipe's attack sample for a new note.
func (s *Store) OpenAttack(pipe *organ.Pipe, voiceID uint64) *Handle {
	return Open(pipe.Attack, s.callbackFrames, s.streamer, voiceID)
}

// OpenRelease opens a handle onto the release-sample variant matching how
// long the note was held.
func (s *Store) OpenRelease(pipe *organ.Pipe, bucket organ.HoldBucket, voiceID uint64) *Handle {
	asset := pipe.ReleaseFor(bucket)
	if asset == nil {
		return nil
	}
	return Open(asset, s.callbackFrames, s.streamer, voiceID)
}
