package asr

import "strings"

const (
	// StubFrameSamples is the amount of audio consumed by one stub decode step.
	StubFrameSamples = 160

	// StubWordSamples of voiced audio produce one token.
	StubWordSamples = 4800

	// StubEndpointSamples of trailing silence end a turn that has text.
	StubEndpointSamples = SampleRate

	// StubIdleEndpointSamples of trailing silence end a turn without text.
	StubIdleEndpointSamples = 2 * SampleRate

	// StubEnergyThreshold is the mean absolute amplitude above which a frame
	// counts as voiced. Tail padding stays below it.
	StubEnergyThreshold = 0.02
)

// StubVocabulary is cycled through as voiced audio accumulates.
var StubVocabulary = []string{"tere", "see", "on", "test", "."}

// StubRecognizer produces deterministic text from audio energy alone. It
// does not recognize speech; it exists for tests and model-less runs.
type StubRecognizer struct{}

// NewStub returns a StubRecognizer.
func NewStub() *StubRecognizer {
	return &StubRecognizer{}
}

// CreateStream returns a fresh stub stream.
func (*StubRecognizer) CreateStream() (Stream, error) {
	return &stubStream{}, nil
}

type stubStream struct {
	pending  []float32
	finished bool
	closed   bool

	tokens  []string
	emitted int
	voiced  int
	silence int
}

func (s *stubStream) AcceptWaveform(_ int, samples []float32) {
	if s.closed || s.finished {
		return
	}
	s.pending = append(s.pending, samples...)
}

func (s *stubStream) InputFinished() {
	s.finished = true
}

func (s *stubStream) IsReady() bool {
	if s.closed {
		return false
	}
	if s.finished {
		return len(s.pending) > 0
	}
	return len(s.pending) >= StubFrameSamples
}

func (s *stubStream) Decode() {
	n := min(StubFrameSamples, len(s.pending))
	if n == 0 {
		return
	}
	frame := s.pending[:n]
	s.pending = s.pending[n:]

	var sum float32
	for _, v := range frame {
		if v < 0 {
			v = -v
		}
		sum += v
	}
	if sum/float32(n) < StubEnergyThreshold {
		s.silence += n
		return
	}
	s.silence = 0
	s.voiced += n
	for s.voiced >= StubWordSamples {
		s.voiced -= StubWordSamples
		s.tokens = append(s.tokens, StubVocabulary[s.emitted%len(StubVocabulary)])
		s.emitted++
	}
}

func (s *stubStream) IsEndpoint() bool {
	if len(s.tokens) > 0 {
		return s.silence >= StubEndpointSamples
	}
	return s.silence >= StubIdleEndpointSamples
}

func (s *stubStream) Result() string {
	return strings.Join(s.tokens, " ")
}

func (s *stubStream) Reset() {
	s.tokens = nil
	s.voiced = 0
	s.silence = 0
}

func (s *stubStream) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.pending = nil
	return nil
}
