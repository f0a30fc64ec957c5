package segment

import (
	"errors"
	"math"
)

var ErrChunkSize = errors.New("chunk must be exactly 512 samples")

// VAD scores one chunk of audio for speech. Implementations are stateful
// and not safe for concurrent use.
type VAD interface {
	// SpeechProb returns a speech probability in [0, 1] for chunk.
	SpeechProb(chunk []float32) (float32, error)
	// Reset clears any recurrent state.
	Reset()
	Close() error
}

// DefaultEnergyLevel is the RMS at which EnergyVAD reports probability 1.
const DefaultEnergyLevel = 0.04

// EnergyVAD is a model-free VAD that maps chunk RMS linearly onto [0, 1].
// With a 0.5 threshold, chunks louder than Level/2 count as speech.
type EnergyVAD struct {
	Level float32
}

// NewEnergyVAD returns an EnergyVAD with DefaultEnergyLevel.
func NewEnergyVAD() *EnergyVAD {
	return &EnergyVAD{Level: DefaultEnergyLevel}
}

func (v *EnergyVAD) SpeechProb(chunk []float32) (float32, error) {
	if len(chunk) == 0 {
		return 0, nil
	}
	var sum float64
	for _, s := range chunk {
		sum += float64(s) * float64(s)
	}
	rms := float32(math.Sqrt(sum / float64(len(chunk))))
	level := v.Level
	if level <= 0 {
		level = DefaultEnergyLevel
	}
	return min(rms/level, 1), nil
}

func (v *EnergyVAD) Reset() {}

func (v *EnergyVAD) Close() error { return nil }
