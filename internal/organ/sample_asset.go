package organ

import (
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/organfox/organfox/utils/mathx"
)

func pow2(x float64) float64 {
	return math.Pow(2, x)
}

// Backend tags how a SampleAsset's frames beyond the preload prefix are
// obtained. This is the tagged-variant substitution for dynamic dispatch
// over sample backend (spec §9). The Voice checks it for every frame it
// resolves, to pick between the resident buffer and the streaming tail.
type Backend int

const (
	// BackendPrecache means the full sample lives in a process-wide,
	// immutable RAM buffer; PlaybackHandle needs no Streamer.
	BackendPrecache Backend = iota
	// BackendStreaming means only PreloadFrames live in RAM; the rest is
	// fetched by the Streamer into a per-voice ring buffer.
	BackendStreaming
)

// DefaultPreloadFrames is the spec's default preload-prefix length (§4.1).
const DefaultPreloadFrames = 16384

// SampleAsset is immutable once materialized (spec §3). Precache assets
// carry their full buffer inline; streaming assets carry only the preload
// prefix plus the file location the Streamer reads from.
type SampleAsset struct {
	Path string

	FrameCount    int64
	Channels      int
	NativeRate    int
	BitDepth      int
	LoopStart     int64
	LoopEnd       int64
	Looped        bool
	PreloadFrames int64

	Backend Backend

	// Prefix holds the first PreloadFrames frames, interleaved by
	// Channels, as float32 in [-1,1]. Always populated regardless of
	// Backend; the Voice reads it as its resident buffer for streaming
	// assets and reads Full instead for precache assets.
	Prefix []float32

	// Full holds every frame when Backend == BackendPrecache; nil
	// otherwise.
	Full []float32

	// FileOffset is the byte offset in Path where frame PreloadFrames
	// begins, used by the Streamer for positioned reads when
	// Backend == BackendStreaming.
	FileOffset int64
}

// LoadSampleAsset decodes a WAV file (the format GrandOrgue sample sets and
// the reverb's impulse responses both use) into a SampleAsset. convertTo16
// controls whether the decoded float frames are first quantized to 16-bit
// resolution and back, matching spec §6's convert_to_16bit load-time option.
func LoadSampleAsset(path string, preloadFrames int64, precache bool, convertTo16 bool) (*SampleAsset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sample %s", path)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, errors.Errorf("sample %s: not a valid WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, errors.Wrapf(err, "decode sample %s", path)
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		channels = 1
	}
	frameCount := int64(len(buf.Data) / channels)

	frames := make([]float32, len(buf.Data))
	maxVal := float32(int(1) << (buf.SourceBitDepth - 1))
	for i, s := range buf.Data {
		v := float32(s) / maxVal
		if convertTo16 {
			v = quantize16(v)
		}
		frames[i] = v
	}

	if preloadFrames <= 0 {
		preloadFrames = DefaultPreloadFrames
	}
	if preloadFrames > frameCount {
		preloadFrames = frameCount
	}

	asset := &SampleAsset{
		Path:          path,
		FrameCount:    frameCount,
		Channels:      channels,
		NativeRate:    int(dec.SampleRate),
		BitDepth:      int(buf.SourceBitDepth),
		PreloadFrames: preloadFrames,
	}

	prefixSamples := preloadFrames * int64(channels)
	asset.Prefix = make([]float32, prefixSamples)
	copy(asset.Prefix, frames[:prefixSamples])

	if precache {
		asset.Backend = BackendPrecache
		asset.Full = frames
		slog.Debug("precached sample", "path", path, "size", mathx.FormatBytes(int64(len(frames)*4)))
	} else {
		asset.Backend = BackendStreaming
		dataOffset, err := locateDataChunk(path)
		if err != nil {
			return nil, errors.Wrapf(err, "locate data chunk in %s", path)
		}
		asset.FileOffset = dataOffset + prefixSamples*int64(bytesPerSample(buf.SourceBitDepth))
	}

	return asset, nil
}

func quantize16(v float32) float32 {
	const scale = float32(1 << 15)
	q := float32(int32(v*scale + sign(v)*0.5))
	return q / scale
}

func sign(v float32) float32 {
	if v < 0 {
		return -1
	}
	return 1
}

func bytesPerSample(bitDepth int) int {
	return (bitDepth + 7) / 8
}

// locateDataChunk scans a RIFF/WAVE file's chunk headers to find the byte
// offset of the first PCM sample in the "data" chunk. The decoder used for
// FullPCMBuffer gives us decoded frames but not this raw offset, and the
// Streamer needs a real file position for positioned reads (spec §4.2), so
// we walk the chunk list ourselves.
func locateDataChunk(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var header [12]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return 0, err
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0, errors.New("not a RIFF/WAVE file")
	}

	pos := int64(12)
	var chunkHeader [8]byte
	for {
		if _, err := io.ReadFull(f, chunkHeader[:]); err != nil {
			return 0, errors.New("data chunk not found")
		}
		id := string(chunkHeader[0:4])
		size := int64(binary.LittleEndian.Uint32(chunkHeader[4:8]))
		pos += 8
		if id == "data" {
			return pos, nil
		}
		if size%2 == 1 {
			size++ // chunks are word-aligned
		}
		if _, err := f.Seek(size, io.SeekCurrent); err != nil {
			return 0, err
		}
		pos += size
	}
}
