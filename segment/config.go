package segment

import (
	"errors"
	"os"
)

const (
	RequiredSampleRate = 16000
	RequiredChunkSize  = 512
)

// Config holds detector configuration. Zero values are not filled in; start
// from DefaultConfig.
type Config struct {
	SampleRate         int     // must be 16000
	ChunkSize          int     // must be 512
	VadThreshold       float32 // speech probability threshold (e.g. 0.5)
	PreSpeechMs        int     // ms of audio to keep before speech trigger (e.g. 200)
	StopMs             int     // ms of trailing silence to end segment (e.g. 1000)
	MaxDurationSeconds float32 // hard cap per segment in seconds (e.g. 600)

	// TurnPauseMs is the shortest pause inside a segment at which the turn
	// predictor is consulted. Must be shorter than StopMs.
	TurnPauseMs int

	SileroVADModelPath string // path to silero_vad.onnx; empty selects the energy VAD
	SmartTurnModelPath string // path to smart-turn-v3.2-cpu.onnx; empty disables turn splitting
	ORTLibPath         string // onnxruntime shared library; empty searches bundled locations
}

// DefaultConfig returns a configuration for the energy VAD without turn
// splitting.
func DefaultConfig() Config {
	return Config{
		SampleRate:         RequiredSampleRate,
		ChunkSize:          RequiredChunkSize,
		VadThreshold:       0.5,
		PreSpeechMs:        200,
		StopMs:             1000,
		MaxDurationSeconds: 600,
		TurnPauseMs:        400,
	}
}

// validateConfig checks Config and returns an error on invalid or missing values.
func validateConfig(cfg Config) error {
	if cfg.SampleRate != RequiredSampleRate {
		return errors.New("config: SampleRate must be 16000")
	}
	if cfg.ChunkSize != RequiredChunkSize {
		return errors.New("config: ChunkSize must be 512")
	}
	if cfg.VadThreshold < 0 || cfg.VadThreshold > 1 {
		return errors.New("config: VadThreshold must be in [0, 1]")
	}
	if cfg.PreSpeechMs < 0 {
		return errors.New("config: PreSpeechMs must be >= 0")
	}
	if cfg.StopMs <= 0 {
		return errors.New("config: StopMs must be > 0")
	}
	if cfg.MaxDurationSeconds <= 0 {
		return errors.New("config: MaxDurationSeconds must be > 0")
	}
	if cfg.TurnPauseMs <= 0 || cfg.TurnPauseMs >= cfg.StopMs {
		return errors.New("config: TurnPauseMs must be in (0, StopMs)")
	}
	if err := checkModel(cfg.SileroVADModelPath, "Silero VAD"); err != nil {
		return err
	}
	return checkModel(cfg.SmartTurnModelPath, "Smart-Turn")
}

func checkModel(path, name string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return errors.New("config: " + name + " model file not found: " + path)
		}
		return err
	}
	return nil
}
