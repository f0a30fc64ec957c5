// Package config loads kiirkirjutaja settings from defaults, an optional
// YAML file, KIIRKIRJUTAJA_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/Yikizi/kiirkirjutaja/asr"
	"github.com/Yikizi/kiirkirjutaja/presenter"
	"github.com/Yikizi/kiirkirjutaja/segment"
	"github.com/Yikizi/kiirkirjutaja/wyoming"
)

// EnvPrefix prefixes environment variables; nested keys use underscores,
// e.g. KIIRKIRJUTAJA_VAD_THRESHOLD.
const EnvPrefix = "KIIRKIRJUTAJA"

// DefaultModelDir holds the int8 transducer files.
const DefaultModelDir = "models/sherpa-int8"

// Recognizer engines.
const (
	EngineAuto   = "auto"
	EngineSherpa = "sherpa"
	EngineStub   = "stub"
)

// VAD engines.
const (
	VADSilero = "silero"
	VADEnergy = "energy"
	VADNone   = "none"
)

type Endpoint struct {
	Rule1MinTrailingSilence float64 `mapstructure:"rule1_min_trailing_silence"`
	Rule2MinTrailingSilence float64 `mapstructure:"rule2_min_trailing_silence"`
	Rule3MinUtteranceLength float64 `mapstructure:"rule3_min_utterance_length"`
}

type VAD struct {
	Engine             string  `mapstructure:"engine"`
	Model              string  `mapstructure:"model"`
	Threshold          float64 `mapstructure:"threshold"`
	PreSpeechMs        int     `mapstructure:"pre_speech_ms"`
	StopMs             int     `mapstructure:"stop_ms"`
	MaxDurationSeconds float64 `mapstructure:"max_duration_seconds"`
}

type Turn struct {
	Model   string `mapstructure:"model"`
	PauseMs int    `mapstructure:"pause_ms"`
}

// Config is the full application configuration.
type Config struct {
	LogLevel       string   `mapstructure:"log_level"`
	Engine         string   `mapstructure:"engine"`
	ModelDir       string   `mapstructure:"model_dir"`
	NumThreads     int      `mapstructure:"num_threads"`
	DecodingMethod string   `mapstructure:"decoding_method"`
	Endpoint       Endpoint `mapstructure:"endpoint"`
	WyomingURI     string   `mapstructure:"wyoming_uri"`
	VAD            VAD      `mapstructure:"vad"`
	Turn           Turn     `mapstructure:"turn"`
	ORTLibPath     string   `mapstructure:"ort_lib_path"`
	Presenter      string   `mapstructure:"presenter"`
	FeedAddr       string   `mapstructure:"feed_addr"`
	QueueSize      int      `mapstructure:"queue_size"`
}

// New returns a viper instance with every key defaulted and environment
// lookup enabled.
func New() *viper.Viper {
	v := viper.New()
	sherpa := asr.DefaultSherpaConfig("")
	seg := segment.DefaultConfig()

	v.SetDefault("log_level", "info")
	v.SetDefault("engine", EngineAuto)
	v.SetDefault("model_dir", DefaultModelDir)
	v.SetDefault("num_threads", sherpa.NumThreads)
	v.SetDefault("decoding_method", sherpa.DecodingMethod)
	v.SetDefault("endpoint.rule1_min_trailing_silence", sherpa.Rule1MinTrailingSilence)
	v.SetDefault("endpoint.rule2_min_trailing_silence", sherpa.Rule2MinTrailingSilence)
	v.SetDefault("endpoint.rule3_min_utterance_length", sherpa.Rule3MinUtteranceLength)
	v.SetDefault("wyoming_uri", wyoming.DefaultURI)
	v.SetDefault("vad.engine", VADEnergy)
	v.SetDefault("vad.model", "")
	v.SetDefault("vad.threshold", seg.VadThreshold)
	v.SetDefault("vad.pre_speech_ms", seg.PreSpeechMs)
	v.SetDefault("vad.stop_ms", seg.StopMs)
	v.SetDefault("vad.max_duration_seconds", seg.MaxDurationSeconds)
	v.SetDefault("turn.model", "")
	v.SetDefault("turn.pause_ms", seg.TurnPauseMs)
	v.SetDefault("ort_lib_path", "")
	v.SetDefault("presenter", presenter.Terminal)
	v.SetDefault("feed_addr", presenter.DefaultFeedAddr)
	v.SetDefault("queue_size", asr.DefaultQueueSize)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (when non-empty) into v, decodes and validates the result.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field except log_level, which falls back to info.
// Model files are checked when the recognizer or segmenter is built.
func (c Config) Validate() error {
	switch c.Engine {
	case EngineAuto, EngineStub:
	case EngineSherpa:
		if c.ModelDir == "" {
			return errors.New("config: model_dir is required for the sherpa engine")
		}
	default:
		return fmt.Errorf("config: engine must be auto, sherpa or stub, got %q", c.Engine)
	}
	if c.NumThreads <= 0 {
		return errors.New("config: num_threads must be > 0")
	}
	if c.DecodingMethod != "greedy_search" && c.DecodingMethod != "modified_beam_search" {
		return fmt.Errorf("config: decoding_method must be greedy_search or modified_beam_search, got %q", c.DecodingMethod)
	}
	if c.Endpoint.Rule1MinTrailingSilence <= 0 || c.Endpoint.Rule2MinTrailingSilence <= 0 || c.Endpoint.Rule3MinUtteranceLength <= 0 {
		return errors.New("config: endpoint rules must be > 0")
	}
	if _, _, err := wyoming.ParseURI(c.WyomingURI); err != nil {
		return fmt.Errorf("config: wyoming_uri: %w", err)
	}
	switch c.VAD.Engine {
	case VADEnergy, VADNone:
	case VADSilero:
		if c.VAD.Model == "" {
			return errors.New("config: vad.model is required for the silero VAD")
		}
	default:
		return fmt.Errorf("config: vad.engine must be silero, energy or none, got %q", c.VAD.Engine)
	}
	if c.VAD.Threshold < 0 || c.VAD.Threshold > 1 {
		return errors.New("config: vad.threshold must be in [0, 1]")
	}
	if c.VAD.PreSpeechMs < 0 {
		return errors.New("config: vad.pre_speech_ms must be >= 0")
	}
	if c.VAD.StopMs <= 0 {
		return errors.New("config: vad.stop_ms must be > 0")
	}
	if c.VAD.MaxDurationSeconds <= 0 {
		return errors.New("config: vad.max_duration_seconds must be > 0")
	}
	if c.Turn.PauseMs <= 0 || c.Turn.PauseMs >= c.VAD.StopMs {
		return errors.New("config: turn.pause_ms must be in (0, vad.stop_ms)")
	}
	switch c.Presenter {
	case presenter.Terminal, presenter.Words, presenter.JSON, presenter.Feed:
	default:
		return fmt.Errorf("config: unknown presenter %q", c.Presenter)
	}
	if c.QueueSize <= 0 {
		return errors.New("config: queue_size must be > 0")
	}
	return nil
}

// Level returns the configured log level, or info when it does not parse.
func (c Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// Sherpa returns the recognizer settings.
func (c Config) Sherpa() asr.SherpaConfig {
	cfg := asr.DefaultSherpaConfig(c.ModelDir)
	cfg.NumThreads = c.NumThreads
	cfg.DecodingMethod = c.DecodingMethod
	cfg.Rule1MinTrailingSilence = float32(c.Endpoint.Rule1MinTrailingSilence)
	cfg.Rule2MinTrailingSilence = float32(c.Endpoint.Rule2MinTrailingSilence)
	cfg.Rule3MinUtteranceLength = float32(c.Endpoint.Rule3MinUtteranceLength)
	return cfg
}

// Segment returns the detector settings. Without the silero engine the
// detector uses the energy VAD.
func (c Config) Segment() segment.Config {
	cfg := segment.DefaultConfig()
	cfg.VadThreshold = float32(c.VAD.Threshold)
	cfg.PreSpeechMs = c.VAD.PreSpeechMs
	cfg.StopMs = c.VAD.StopMs
	cfg.MaxDurationSeconds = float32(c.VAD.MaxDurationSeconds)
	cfg.TurnPauseMs = c.Turn.PauseMs
	cfg.SmartTurnModelPath = c.Turn.Model
	cfg.ORTLibPath = c.ORTLibPath
	if c.VAD.Engine == VADSilero {
		cfg.SileroVADModelPath = c.VAD.Model
	}
	return cfg
}
