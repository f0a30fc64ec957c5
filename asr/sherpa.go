//go:build sherpa

package asr

import (
	"errors"
	"path/filepath"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// NativeAvailable reports that the sherpa-onnx backend is compiled in.
func NativeAvailable() bool { return true }

// SherpaRecognizer is a streaming transducer recognizer backed by
// sherpa-onnx. Like every Recognizer it must be driven by one caller at a
// time.
type SherpaRecognizer struct {
	rec *sherpa.OnlineRecognizer
}

// NewSherpa loads the int8 transducer model files from cfg.ModelDir.
func NewSherpa(cfg SherpaConfig) (Recognizer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := sherpa.OnlineRecognizerConfig{}
	c.FeatConfig = sherpa.FeatureConfig{SampleRate: SampleRate, FeatureDim: 80}
	c.ModelConfig.Transducer.Encoder = filepath.Join(cfg.ModelDir, "encoder.int8.onnx")
	c.ModelConfig.Transducer.Decoder = filepath.Join(cfg.ModelDir, "decoder.int8.onnx")
	c.ModelConfig.Transducer.Joiner = filepath.Join(cfg.ModelDir, "joiner.int8.onnx")
	c.ModelConfig.Tokens = filepath.Join(cfg.ModelDir, "tokens.txt")
	c.ModelConfig.NumThreads = cfg.NumThreads
	c.ModelConfig.Provider = "cpu"
	c.DecodingMethod = cfg.DecodingMethod
	c.MaxActivePaths = 4
	c.EnableEndpoint = 1
	c.Rule1MinTrailingSilence = cfg.Rule1MinTrailingSilence
	c.Rule2MinTrailingSilence = cfg.Rule2MinTrailingSilence
	c.Rule3MinUtteranceLength = cfg.Rule3MinUtteranceLength

	rec := sherpa.NewOnlineRecognizer(&c)
	if rec == nil {
		return nil, errors.New("asr: sherpa-onnx failed to create recognizer")
	}
	return &SherpaRecognizer{rec: rec}, nil
}

// CreateStream allocates a new online stream.
func (r *SherpaRecognizer) CreateStream() (Stream, error) {
	if r.rec == nil {
		return nil, ErrClosed
	}
	return &sherpaStream{rec: r.rec, s: sherpa.NewOnlineStream(r.rec)}, nil
}

// Close frees the native recognizer.
func (r *SherpaRecognizer) Close() error {
	if r.rec == nil {
		return ErrClosed
	}
	sherpa.DeleteOnlineRecognizer(r.rec)
	r.rec = nil
	return nil
}

type sherpaStream struct {
	rec *sherpa.OnlineRecognizer
	s   *sherpa.OnlineStream
}

func (s *sherpaStream) AcceptWaveform(sampleRate int, samples []float32) {
	s.s.AcceptWaveform(sampleRate, samples)
}

func (s *sherpaStream) InputFinished()   { s.s.InputFinished() }
func (s *sherpaStream) IsReady() bool    { return s.rec.IsReady(s.s) }
func (s *sherpaStream) Decode()          { s.rec.Decode(s.s) }
func (s *sherpaStream) IsEndpoint() bool { return s.rec.IsEndpoint(s.s) }
func (s *sherpaStream) Result() string   { return s.rec.GetResult(s.s).Text }
func (s *sherpaStream) Reset()           { s.rec.Reset(s.s) }

func (s *sherpaStream) Close() error {
	if s.s == nil {
		return ErrClosed
	}
	sherpa.DeleteOnlineStream(s.s)
	s.s = nil
	return nil
}
