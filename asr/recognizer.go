// Package asr drives a streaming speech recognizer: incremental turn
// decoding with endpoint-triggered resets, whole-utterance transcription,
// and the guard that serializes access to the single shared recognizer.
package asr

import (
	"errors"
	"math/rand/v2"
	"time"
)

const (
	// SampleRate is the only rate the recognizer accepts.
	SampleRate = 16000

	// DispatchSamples is the minimum amount of buffered audio (100 ms) fed
	// to the recognizer in one call.
	DispatchSamples = SampleRate / 10

	// TailPaddingDuration of low-amplitude noise is appended before the end
	// of input so the model can finalize trailing words.
	TailPaddingDuration = 300 * time.Millisecond

	tailPaddingAmplitude = 0.01
)

var (
	// ErrClosed is returned when using a stream or recognizer after Close.
	ErrClosed = errors.New("asr: closed")
)

// Recognizer creates decode streams. Implementations are stateful and not
// safe for concurrent use; share one through a Guard.
type Recognizer interface {
	CreateStream() (Stream, error)
}

// Stream is the per-turn decode state of a Recognizer. It is reset, not
// recreated, at turn boundaries.
type Stream interface {
	// AcceptWaveform feeds mono float samples in [-1, 1].
	AcceptWaveform(sampleRate int, samples []float32)
	// InputFinished signals that no more audio will be accepted.
	InputFinished()
	// IsReady reports whether enough audio is buffered for a decode step.
	IsReady() bool
	// Decode runs one decode step.
	Decode()
	// IsEndpoint reports whether the endpoint detector fired.
	IsEndpoint() bool
	// Result returns the current text of the turn.
	Result() string
	// Reset clears the decode state but keeps the stream usable.
	Reset()
	Close() error
}

// drain runs all ready decode steps.
func drain(s Stream) {
	for s.IsReady() {
		s.Decode()
	}
}

// TailPadding returns TailPaddingDuration of uniform noise scaled to a small
// amplitude.
func TailPadding() []float32 {
	n := int(SampleRate * TailPaddingDuration / time.Second)
	pad := make([]float32, n)
	for i := range pad {
		pad[i] = rand.Float32() * tailPaddingAmplitude
	}
	return pad
}
