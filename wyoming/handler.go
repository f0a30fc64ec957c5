package wyoming

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Yikizi/kiirkirjutaja/asr"
	"github.com/Yikizi/kiirkirjutaja/audio"
)

// State is the audio state of one connection.
type State int

const (
	StateIdle State = iota
	StateAudioStarted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAudioStarted:
		return "audio_started"
	default:
		return "unknown"
	}
}

// Handler is the event state machine of one connection. It buffers audio
// between audio-start and audio-stop and answers each stop with exactly one
// transcript. Not safe for concurrent use.
type Handler struct {
	info  Info
	guard *asr.Guard
	w     io.Writer
	log   *log.Logger

	state  State
	format AudioFormat
	buf    []byte
}

// NewHandler returns a handler that writes responses to w and transcribes
// through guard.
func NewHandler(info Info, guard *asr.Guard, w io.Writer, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{info: info, guard: guard, w: w, log: logger}
}

// State reports whether an audio stream is open.
func (h *Handler) State() State { return h.state }

// Buffered returns the number of buffered audio bytes.
func (h *Handler) Buffered() int { return len(h.buf) }

// HandleEvent processes one event. Protocol misuse is logged and ignored;
// the returned error is a write failure or ctx cancellation, after which
// the connection should be closed.
func (h *Handler) HandleEvent(ctx context.Context, ev *Event) error {
	switch ev.Type {
	case TypeDescribe:
		h.log.Debug("describe")
		return WriteEvent(h.w, h.info.Event())
	case TypeAudioStart:
		start, err := AudioStartFromEvent(ev)
		if err != nil {
			h.log.Warn("bad audio-start", "err", err)
			return nil
		}
		h.audioStart(start)
	case TypeAudioChunk:
		h.audioChunk(ev.Payload)
	case TypeAudioStop:
		return h.audioStop(ctx)
	case TypeTranscribe:
		t, _ := TranscribeFromEvent(ev)
		h.log.Debug("transcribe", "name", t.Name, "language", t.Language)
	default:
		h.log.Debug("ignoring event", "type", ev.Type)
	}
	return nil
}

func (h *Handler) audioStart(start AudioStart) {
	h.log.Debug("audio start", "rate", start.Rate, "width", start.Width, "channels", start.Channels)
	if start.Rate != audio.SampleRate {
		h.log.Warn("unexpected sample rate, transcription quality may suffer", "want", audio.SampleRate, "got", start.Rate)
	}
	if start.Width != audio.SampleWidth {
		h.log.Warn("unexpected sample width, transcription may fail", "want", audio.SampleWidth, "got", start.Width)
	}
	if start.Channels != audio.Channels {
		h.log.Warn("unexpected channel count, transcription quality may suffer", "want", audio.Channels, "got", start.Channels)
	}
	h.format = start.AudioFormat
	h.buf = h.buf[:0]
	h.state = StateAudioStarted
}

func (h *Handler) audioChunk(pcm []byte) {
	if h.state != StateAudioStarted {
		h.log.Warn("audio-chunk before audio-start, ignoring")
		return
	}
	h.buf = append(h.buf, pcm...)
	h.log.Debug("audio chunk", "buffered", len(h.buf))
}

func (h *Handler) audioStop(ctx context.Context) error {
	if h.state != StateAudioStarted {
		h.log.Warn("audio-stop before audio-start, ignoring")
		return nil
	}
	h.state = StateIdle
	defer func() { h.buf = h.buf[:0] }()

	h.log.Info("audio stop", "bytes", len(h.buf), "duration", audio.Duration(int64(len(h.buf)/audio.SampleWidth)).Round(10*time.Millisecond))
	if len(h.buf) == 0 {
		h.log.Warn("empty audio buffer, sending empty transcript")
		return WriteEvent(h.w, Transcript{}.Event())
	}

	text, err := h.transcribe(ctx, h.buf)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		h.log.Error("transcription failed", "err", err)
		text = ""
	} else {
		h.log.Info("transcript", "text", text)
	}
	return WriteEvent(h.w, Transcript{Text: text}.Event())
}

// transcribe runs the utterance on a worker goroutine so that a cancelled
// connection stops waiting. The worker keeps the guard until it finishes.
func (h *Handler) transcribe(ctx context.Context, buf []byte) (string, error) {
	pcm := make([]byte, len(buf))
	copy(pcm, buf)

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var text string
		err := h.guard.Do(ctx, func(rec asr.Recognizer) error {
			var err error
			text, err = asr.Transcribe(rec, pcm)
			return err
		})
		done <- result{text, err}
	}()
	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
