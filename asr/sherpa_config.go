package asr

import (
	"errors"
	"os"
	"path/filepath"
)

// SherpaConfig selects the transducer model files and decoding parameters.
type SherpaConfig struct {
	ModelDir       string
	NumThreads     int
	DecodingMethod string

	Rule1MinTrailingSilence float32
	Rule2MinTrailingSilence float32
	Rule3MinUtteranceLength float32
}

// DefaultSherpaConfig returns the parameters the int8 Estonian model is
// tuned for.
func DefaultSherpaConfig(modelDir string) SherpaConfig {
	return SherpaConfig{
		ModelDir:                modelDir,
		NumThreads:              2,
		DecodingMethod:          "modified_beam_search",
		Rule1MinTrailingSilence: 5.0,
		Rule2MinTrailingSilence: 2.0,
		Rule3MinUtteranceLength: 300,
	}
}

// ModelFiles lists the files NewSherpa expects under ModelDir.
func (c SherpaConfig) ModelFiles() []string {
	return []string{
		filepath.Join(c.ModelDir, "tokens.txt"),
		filepath.Join(c.ModelDir, "encoder.int8.onnx"),
		filepath.Join(c.ModelDir, "decoder.int8.onnx"),
		filepath.Join(c.ModelDir, "joiner.int8.onnx"),
	}
}

func (c SherpaConfig) validate() error {
	if c.ModelDir == "" {
		return errors.New("asr: model directory is required")
	}
	if c.NumThreads <= 0 {
		return errors.New("asr: NumThreads must be > 0")
	}
	switch c.DecodingMethod {
	case "greedy_search", "modified_beam_search":
	default:
		return errors.New("asr: DecodingMethod must be greedy_search or modified_beam_search")
	}
	for _, p := range c.ModelFiles() {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return errors.New("asr: model file not found: " + p)
			}
			return err
		}
	}
	return nil
}
