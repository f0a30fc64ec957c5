// Package audio converts between PCM encodings, reads and writes WAV files,
// and captures microphone input as fixed-size float chunks.
package audio

import (
	"encoding/binary"
	"errors"
	"iter"
	"time"
)

const (
	// SampleRate is the rate every source delivers.
	SampleRate = 16000
	// SampleWidth is the byte width of one PCM sample.
	SampleWidth = 2
	// Channels is the channel count every source delivers.
	Channels = 1

	// ChunkDuration is the duration of chunks produced by Chunks callers by default.
	ChunkDuration = 100 * time.Millisecond
)

// ErrSampleRate is returned for audio that is not 16 kHz.
var ErrSampleRate = errors.New("audio: sample rate must be 16000 Hz")

// PCM16ToFloat32 converts signed 16-bit little-endian mono PCM to floats,
// dividing by 32767. A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		v := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		samples[i] = float32(v) / 32767
	}
	return samples
}

// Float32ToPCM16 clamps samples to [-1, 1] and encodes them as signed 16-bit
// little-endian PCM.
func Float32ToPCM16(samples []float32) []byte {
	pcm := make([]byte, 2*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16(clamp(v)*32767)))
	}
	return pcm
}

func clamp(v float32) float32 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// SamplesIn returns the number of samples in d at SampleRate.
func SamplesIn(d time.Duration) int {
	return int(time.Duration(SampleRate) * d / time.Second)
}

// Duration returns the play time of n samples at SampleRate.
func Duration(n int64) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}

// Chunks yields consecutive slices of samples of length size; the last one
// may be shorter. The slices alias samples.
func Chunks(samples []float32, size int) iter.Seq[[]float32] {
	return func(yield func([]float32) bool) {
		if size <= 0 {
			size = SamplesIn(ChunkDuration)
		}
		for i := 0; i < len(samples); i += size {
			if !yield(samples[i:min(i+size, len(samples))]) {
				return
			}
		}
	}
}

// FromChan yields chunks received from ch until it is closed.
func FromChan(ch <-chan []float32) iter.Seq[[]float32] {
	return func(yield func([]float32) bool) {
		for chunk := range ch {
			if !yield(chunk) {
				return
			}
		}
	}
}
