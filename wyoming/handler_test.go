package wyoming

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Yikizi/kiirkirjutaja/asr"
)

// countingRecognizer wraps the stub recognizer, counts streams and fails
// the test's overlap check if two streams are ever open at once.
type countingRecognizer struct {
	inner   asr.Recognizer
	delay   time.Duration
	err     error
	created atomic.Int32
	active  atomic.Int32
	overlap atomic.Bool
}

func newCountingRecognizer() *countingRecognizer {
	return &countingRecognizer{inner: asr.NewStub()}
}

func (r *countingRecognizer) CreateStream() (asr.Stream, error) {
	r.created.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	if r.active.Add(1) > 1 {
		r.overlap.Store(true)
	}
	s, err := r.inner.CreateStream()
	if err != nil {
		return nil, err
	}
	return &countingStream{Stream: s, rec: r}, nil
}

type countingStream struct {
	asr.Stream
	rec *countingRecognizer
}

func (s *countingStream) InputFinished() {
	time.Sleep(s.rec.delay)
	s.Stream.InputFinished()
}

func (s *countingStream) Close() error {
	s.rec.active.Add(-1)
	return s.Stream.Close()
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func newTestHandler(rec asr.Recognizer) (*Handler, *bytes.Buffer) {
	var out bytes.Buffer
	return NewHandler(DefaultInfo(), asr.NewGuard(rec), &out, quietLogger()), &out
}

func readAll(t *testing.T, out *bytes.Buffer) []*Event {
	t.Helper()
	r := bufio.NewReader(out)
	var evs []*Event
	for {
		ev, err := ReadEvent(r)
		if errors.Is(err, io.EOF) {
			return evs
		}
		if err != nil {
			t.Fatal(err)
		}
		evs = append(evs, ev)
	}
}

func mustHandle(t *testing.T, h *Handler, ev *Event) {
	t.Helper()
	if err := h.HandleEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
}

func startEvent() *Event {
	return AudioStart{AudioFormat: AudioFormat{Rate: 16000, Width: 2, Channels: 1}}.Event()
}

func chunkEvent(pcm []byte) *Event {
	return AudioChunk{AudioFormat: AudioFormat{Rate: 16000, Width: 2, Channels: 1}, Audio: pcm}.Event()
}

func TestHandlerChunkBeforeStartIsIgnored(t *testing.T) {
	rec := newCountingRecognizer()
	h, out := newTestHandler(rec)

	mustHandle(t, h, chunkEvent(make([]byte, 320)))
	mustHandle(t, h, AudioStop{}.Event())

	if h.Buffered() != 0 || h.State() != StateIdle {
		t.Errorf("state=%v buffered=%d, want idle and empty", h.State(), h.Buffered())
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
	if rec.created.Load() != 0 {
		t.Error("recognizer used")
	}
}

func TestHandlerEmptyStopSkipsRecognizer(t *testing.T) {
	rec := newCountingRecognizer()
	h, out := newTestHandler(rec)

	mustHandle(t, h, startEvent())
	if h.State() != StateAudioStarted {
		t.Fatalf("state = %v, want audio_started", h.State())
	}
	mustHandle(t, h, AudioStop{}.Event())

	evs := readAll(t, out)
	if len(evs) != 1 || evs[0].Type != TypeTranscript {
		t.Fatalf("events = %+v", evs)
	}
	if tr, _ := TranscriptFromEvent(evs[0]); tr.Text != "" {
		t.Errorf("text = %q, want empty", tr.Text)
	}
	if rec.created.Load() != 0 {
		t.Error("recognizer used for an empty buffer")
	}
	if h.State() != StateIdle {
		t.Errorf("state = %v, want idle", h.State())
	}
}

func TestHandlerSilenceScenario(t *testing.T) {
	rec := newCountingRecognizer()
	h, out := newTestHandler(rec)

	mustHandle(t, h, startEvent())
	mustHandle(t, h, chunkEvent(make([]byte, 3200)))
	if h.Buffered() != 3200 {
		t.Fatalf("buffered = %d, want 3200", h.Buffered())
	}
	mustHandle(t, h, AudioStop{}.Event())

	evs := readAll(t, out)
	if len(evs) != 1 || evs[0].Type != TypeTranscript {
		t.Fatalf("events = %+v", evs)
	}
	if tr, _ := TranscriptFromEvent(evs[0]); tr.Text != "" {
		t.Errorf("text = %q, want empty for silence", tr.Text)
	}
	if n := rec.created.Load(); n != 1 {
		t.Errorf("transcriptions = %d, want 1", n)
	}
	if h.State() != StateIdle || h.Buffered() != 0 {
		t.Errorf("state=%v buffered=%d, want idle and empty", h.State(), h.Buffered())
	}
}

func TestHandlerTranscribesVoicedAudio(t *testing.T) {
	h, out := newTestHandler(newCountingRecognizer())

	// One second of a loud square wave gives the stub several words.
	pcm := make([]byte, 32000)
	for i := 0; i < len(pcm); i += 2 {
		v := int16(16000)
		if (i/2/40)%2 == 1 {
			v = -16000
		}
		pcm[i] = byte(v)
		pcm[i+1] = byte(uint16(v) >> 8)
	}
	mustHandle(t, h, startEvent())
	mustHandle(t, h, chunkEvent(pcm))
	mustHandle(t, h, AudioStop{}.Event())

	evs := readAll(t, out)
	if len(evs) != 1 {
		t.Fatalf("got %d events", len(evs))
	}
	tr, _ := TranscriptFromEvent(evs[0])
	if tr.Text != "tere see on" {
		t.Errorf("text = %q, want %q", tr.Text, "tere see on")
	}
}

func TestHandlerFailureYieldsEmptyTranscript(t *testing.T) {
	rec := newCountingRecognizer()
	rec.err = errors.New("model exploded")
	h, out := newTestHandler(rec)

	mustHandle(t, h, startEvent())
	mustHandle(t, h, chunkEvent(make([]byte, 640)))
	mustHandle(t, h, AudioStop{}.Event())

	evs := readAll(t, out)
	if len(evs) != 1 {
		t.Fatalf("got %d events", len(evs))
	}
	if tr, _ := TranscriptFromEvent(evs[0]); tr.Text != "" {
		t.Errorf("text = %q, want empty", tr.Text)
	}
	if h.Buffered() != 0 {
		t.Errorf("buffer not cleared after failure: %d bytes", h.Buffered())
	}
}

func TestHandlerFormatMismatchProceeds(t *testing.T) {
	h, _ := newTestHandler(newCountingRecognizer())
	mustHandle(t, h, AudioStart{AudioFormat: AudioFormat{Rate: 44100, Width: 4, Channels: 2}}.Event())
	mustHandle(t, h, chunkEvent(make([]byte, 100)))
	if h.State() != StateAudioStarted || h.Buffered() != 100 {
		t.Errorf("state=%v buffered=%d, want audio_started and 100", h.State(), h.Buffered())
	}
}

func TestHandlerStartResetsBuffer(t *testing.T) {
	h, _ := newTestHandler(newCountingRecognizer())
	mustHandle(t, h, startEvent())
	mustHandle(t, h, chunkEvent(make([]byte, 100)))
	mustHandle(t, h, startEvent())
	if h.Buffered() != 0 {
		t.Errorf("buffered = %d after second start, want 0", h.Buffered())
	}
}

func TestHandlerDescribeAnyState(t *testing.T) {
	h, out := newTestHandler(newCountingRecognizer())
	mustHandle(t, h, Describe{}.Event())
	mustHandle(t, h, startEvent())
	mustHandle(t, h, Transcribe{Language: "et"}.Event())
	mustHandle(t, h, Describe{}.Event())
	if h.State() != StateAudioStarted {
		t.Errorf("describe changed state to %v", h.State())
	}
	evs := readAll(t, out)
	if len(evs) != 2 || evs[0].Type != TypeInfo || evs[1].Type != TypeInfo {
		t.Fatalf("events = %+v", evs)
	}
}

func TestHandlerCancelledWhileWaiting(t *testing.T) {
	rec := newCountingRecognizer()
	guard := asr.NewGuard(rec)
	var out bytes.Buffer
	h := NewHandler(DefaultInfo(), guard, &out, quietLogger())

	// Hold the guard so the handler has to queue.
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	held := make(chan struct{})
	go func() {
		defer wg.Done()
		_ = guard.Do(context.Background(), func(asr.Recognizer) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithCancel(context.Background())
	mustHandle(t, h, startEvent())
	mustHandle(t, h, chunkEvent(make([]byte, 640)))
	time.AfterFunc(20*time.Millisecond, cancel)
	if err := h.HandleEvent(ctx, AudioStop{}.Event()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	close(release)
	wg.Wait()
	if out.Len() != 0 {
		t.Errorf("transcript written after cancellation: %q", out.String())
	}
	if h.Buffered() != 0 {
		t.Error("buffer not cleared after cancellation")
	}
}
