package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/youpy/go-wav"
)

// LoadWAV reads a mono or stereo WAV file and returns mono float samples.
// Stereo is averaged. Files that are not 16 kHz are rejected with
// ErrSampleRate; resampling is left to the caller.
func LoadWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadWAV(f)
}

// WAVSource is what the WAV decoder needs: sequential and random access.
// *os.File and *bytes.Reader satisfy it.
type WAVSource interface {
	io.Reader
	io.ReaderAt
}

// ReadWAV decodes WAV data from r. See LoadWAV.
func ReadWAV(r WAVSource) ([]float32, error) {
	wavReader := wav.NewReader(r)
	format, err := wavReader.Format()
	if err != nil {
		return nil, fmt.Errorf("audio: WAV format: %w", err)
	}
	if format.SampleRate != SampleRate {
		return nil, fmt.Errorf("%w (got %d Hz)", ErrSampleRate, format.SampleRate)
	}
	numChannels := int(format.NumChannels)
	if numChannels < 1 || numChannels > 2 {
		return nil, fmt.Errorf("audio: WAV: only mono or stereo supported, got %d channels", numChannels)
	}

	var out []float32
	for {
		readSamples, err := wavReader.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("audio: reading WAV samples: %w", err)
		}
		for _, s := range readSamples {
			var v float64
			if numChannels == 1 {
				v = wavReader.FloatValue(s, 0)
			} else {
				v = (wavReader.FloatValue(s, 0) + wavReader.FloatValue(s, 1)) / 2
			}
			out = append(out, float32(v))
		}
	}
	return out, nil
}

// SaveWAV writes samples as a 16-bit mono WAV file at SampleRate.
func SaveWAV(path string, samples []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, samples); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteWAV encodes samples as a 16-bit mono WAV stream.
func WriteWAV(w io.Writer, samples []float32) error {
	// go-wav Sample.Values[0] is the PCM value (16-bit: -32768..32767)
	wavSamples := make([]wav.Sample, len(samples))
	for i, v := range samples {
		wavSamples[i] = wav.Sample{Values: [2]int{int(clamp(v) * 32767), 0}}
	}
	writer := wav.NewWriter(w, uint32(len(wavSamples)), Channels, SampleRate, 8*SampleWidth)
	return writer.WriteSamples(wavSamples)
}
