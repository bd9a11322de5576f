// Package reverb implements partitioned FFT convolution against a
// user-supplied impulse response, with a wet/dry mix applied to the
// Mixer's stereo sum (spec §4.5).
package reverb

import (
	"github.com/cwbudde/algo-fft/fft"

	"github.com/organfox/organfox/internal/organ"
)

// partition holds one impulse-response block's frequency-domain spectrum,
// used by the uniform-partitioned overlap-add convolution below.
type partition struct {
	spectrum []complex128
}

// Reverb is bypassed (Process is a no-op, no allocation) when no impulse
// response has been loaded (spec §4.5: "bypassed ... when no IR is
// configured").
type Reverb struct {
	blockSize int
	fftSize   int

	partitions [2][]partition // per channel

	// inputHistory holds the FFT of the last len(partitions) input blocks,
	// one ring per channel; historyPos indexes the most recent block.
	inputHistory [2][][]complex128
	historyPos   int

	overlap [2][]float64 // overlap-add tail carried between blocks

	// Scratch buffers reused by Process every callback so the audio thread
	// never allocates (spec §5). Sized once in LoadIR, once fftSize is
	// known.
	dryScratch   [2][]float64
	blockScratch [2][]complex128
	accScratch   [2][]complex128
	wetScratch   [2][]float64

	mix    float64
	loaded bool
}

// New creates a bypassed Reverb sized for the audio callback's block size.
// Call LoadIR to activate it.
func New(blockSize int) *Reverb {
	return &Reverb{blockSize: blockSize, mix: 0}
}

// SetMix sets the wet/dry blend, clamped to [0,1] (spec §6, §7).
func (r *Reverb) SetMix(mix float64) {
	if mix < 0 {
		mix = 0
	}
	if mix > 1 {
		mix = 1
	}
	r.mix = mix
}

// Active reports whether an IR is loaded and Process will do real work.
func (r *Reverb) Active() bool {
	return r.loaded
}

// LoadIR partitions ir (already decoded to float32, interleaved by
// channels) into uniform blocks of r.blockSize frames and precomputes each
// partition's FFT, expanding a mono IR to both stereo channels (spec
// §4.5).
func (r *Reverb) LoadIR(ir *organ.SampleAsset) {
	fftSize := nextPow2(2 * r.blockSize)
	r.fftSize = fftSize

	frameCount := ir.FrameCount
	if frameCount == 0 && ir.Full != nil {
		frameCount = int64(len(ir.Full)) / int64(maxInt(ir.Channels, 1))
	}
	numPartitions := int((frameCount + int64(r.blockSize) - 1) / int64(r.blockSize))
	if numPartitions < 1 {
		numPartitions = 1
	}

	for ch := 0; ch < 2; ch++ {
		r.partitions[ch] = make([]partition, numPartitions)
		r.inputHistory[ch] = make([][]complex128, numPartitions)
		for i := range r.inputHistory[ch] {
			r.inputHistory[ch][i] = make([]complex128, fftSize)
		}
		r.overlap[ch] = make([]float64, r.blockSize)
		r.dryScratch[ch] = make([]float64, r.blockSize)
		r.blockScratch[ch] = make([]complex128, fftSize)
		r.accScratch[ch] = make([]complex128, fftSize)
		r.wetScratch[ch] = make([]float64, r.blockSize)

		for p := 0; p < numPartitions; p++ {
			block := make([]complex128, fftSize)
			for i := 0; i < r.blockSize; i++ {
				frameIdx := int64(p*r.blockSize + i)
				if frameIdx >= frameCount {
					break
				}
				block[i] = complex(float64(sampleAt(ir, frameIdx, ch)), 0)
			}
			r.partitions[ch][p].spectrum = fft.FFT(block)
		}
	}
	r.historyPos = 0
	r.loaded = true
}

func sampleAt(ir *organ.SampleAsset, frameIdx int64, channel int) float32 {
	src := ir.Full
	if src == nil {
		src = ir.Prefix
	}
	if ir.Channels == 1 {
		if int64(len(src)) <= frameIdx {
			return 0
		}
		return src[frameIdx]
	}
	idx := frameIdx*2 + int64(channel)
	if int64(len(src)) <= idx {
		return 0
	}
	return src[idx]
}

// Process applies the convolution and wet/dry mix in place to dst, an
// interleaved stereo buffer of r.blockSize frames. A no-op when no IR is
// loaded.
func (r *Reverb) Process(dst []float32) {
	if !r.loaded || r.mix <= 0 {
		return
	}

	for ch := 0; ch < 2; ch++ {
		dry := r.dryScratch[ch]
		for i := 0; i < r.blockSize; i++ {
			dry[i] = float64(dst[i*2+ch])
		}

		block := r.blockScratch[ch]
		for i := range block {
			block[i] = 0
		}
		for i, v := range dry {
			block[i] = complex(v, 0)
		}
		spectrum := fft.FFT(block)

		hist := r.inputHistory[ch]
		numPartitions := len(hist)
		copy(hist[r.historyPos], spectrum)

		acc := r.accScratch[ch]
		for i := range acc {
			acc[i] = 0
		}
		for p := 0; p < numPartitions; p++ {
			histIdx := (r.historyPos - p + numPartitions) % numPartitions
			in := hist[histIdx]
			ir := r.partitions[ch][p].spectrum
			for k := 0; k < r.fftSize; k++ {
				acc[k] += in[k] * ir[k]
			}
		}

		timeDomain := fft.IFFT(acc)

		wet := r.wetScratch[ch]
		for i := 0; i < r.blockSize; i++ {
			wet[i] = real(timeDomain[i]) + r.overlap[ch][i]
		}
		for i := 0; i < r.blockSize; i++ {
			if r.blockSize+i < len(timeDomain) {
				r.overlap[ch][i] = real(timeDomain[r.blockSize+i])
			} else {
				r.overlap[ch][i] = 0
			}
		}

		for i := 0; i < r.blockSize; i++ {
			out := (1-r.mix)*dry[i] + r.mix*wet[i]
			dst[i*2+ch] = float32(out)
		}
	}

	r.historyPos = (r.historyPos + 1) % maxInt(len(r.inputHistory[0]), 1)
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
