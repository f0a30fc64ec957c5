package asr

import (
	"context"
	"errors"
	"io"
	"iter"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

var quietLogger = log.NewWithOptions(io.Discard, log.Options{})

// step is what a scripted stream reports after one AcceptWaveform call.
type step struct {
	text     string
	endpoint bool
}

// scriptedRecognizer plays back a fixed sequence of decoder states, one per
// dispatch, and finalText once input is finished.
type scriptedRecognizer struct {
	steps      []step
	finalText  string
	panicAfter int
	createErr  error
}

func (r *scriptedRecognizer) CreateStream() (Stream, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	return &scriptedStream{r: r}, nil
}

type scriptedStream struct {
	r        *scriptedRecognizer
	calls    int
	cur      step
	finished bool
	closed   bool
}

func (s *scriptedStream) AcceptWaveform(_ int, _ []float32) {
	if s.finished || s.calls >= len(s.r.steps) {
		s.calls++
		return
	}
	s.cur = s.r.steps[s.calls]
	s.calls++
}

func (s *scriptedStream) InputFinished() { s.finished = true }
func (s *scriptedStream) IsReady() bool  { return false }

func (s *scriptedStream) Decode() {}

func (s *scriptedStream) IsEndpoint() bool {
	if s.r.panicAfter > 0 && s.calls >= s.r.panicAfter {
		panic("decoder exploded")
	}
	return s.cur.endpoint
}

func (s *scriptedStream) Result() string {
	if s.finished {
		return s.r.finalText
	}
	return s.cur.text
}

func (s *scriptedStream) Reset() { s.cur = step{} }

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

// countingRecognizer reports a new text after every AcceptWaveform call and
// counts the calls across streams.
type countingRecognizer struct {
	accepted atomic.Int32
}

func (r *countingRecognizer) CreateStream() (Stream, error) {
	return &countingStream{r: r}, nil
}

type countingStream struct {
	r    *countingRecognizer
	text string
}

func (s *countingStream) AcceptWaveform(_ int, _ []float32) {
	s.text = "w" + strconv.Itoa(int(s.r.accepted.Add(1)))
}

func (s *countingStream) InputFinished()   {}
func (s *countingStream) IsReady() bool    { return false }
func (s *countingStream) Decode()          {}
func (s *countingStream) IsEndpoint() bool { return false }
func (s *countingStream) Result() string   { return s.text }
func (s *countingStream) Reset()           {}
func (s *countingStream) Close() error     { return nil }

func silence(n int) []float32 { return make([]float32, n) }

// repeat yields n chunks of size samples.
func repeat(n, size int) iter.Seq[[]float32] {
	return func(yield func([]float32) bool) {
		for range n {
			if !yield(silence(size)) {
				return
			}
		}
	}
}

func collect(t *testing.T, ch <-chan Result) []Result {
	t.Helper()
	var out []Result
	timeout := time.After(5 * time.Second)
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, r)
		case <-timeout:
			t.Fatalf("result queue not closed; got %d results", len(out))
		}
	}
}

func TestDecoderNoInput(t *testing.T) {
	d := NewDecoder(NewGuard(NewStub()), quietLogger)
	results := collect(t, d.Run(context.Background(), repeat(0, 0)))
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if !r.Final || r.Endpoint || r.Text != "" || len(r.Words) != 0 || r.Segment != 0 || r.Consumed != 0 || r.Err != nil {
		t.Errorf("final record = %+v", r)
	}
}

func TestDecoderEndpointsAndSegments(t *testing.T) {
	rec := &scriptedRecognizer{steps: []step{
		{text: "tere"},
		{text: "tere"},
		{text: "tere maailm", endpoint: true},
		{},
		{endpoint: true},
		{text: "uus"},
		{text: "uus lause", endpoint: true},
	}}
	d := NewDecoder(NewGuard(rec), quietLogger)
	results := collect(t, d.Run(context.Background(), repeat(7, DispatchSamples)))

	want := []struct {
		text      string
		final     bool
		endpoint  bool
		segment   int
		turnStart int64
		consumed  int64
	}{
		{"tere", false, false, 0, 0, 1600},
		{"tere maailm", true, true, 0, 0, 4800},
		{"", true, true, 1, 4800, 8000},
		{"uus", false, false, 1, 8000, 9600},
		{"uus lause", true, true, 1, 8000, 11200},
		{"", true, false, 2, 11200, 11200},
	}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d: %+v", len(results), len(want), results)
	}
	for i, w := range want {
		r := results[i]
		if r.Text != w.text || r.Final != w.final || r.Endpoint != w.endpoint ||
			r.Segment != w.segment || r.TurnStart != w.turnStart || r.Consumed != w.consumed {
			t.Errorf("result %d = %+v, want %+v", i, r, w)
		}
	}

	// "tere maailm" spans 0..4800 samples; "maailm" starts after 4 of 10 runes.
	words := results[1].Words
	if len(words) != 2 || words[0].Start != 0 || words[1].Start != 120*time.Millisecond {
		t.Errorf("words = %+v", words)
	}
	for i, r := range results {
		prev := time.Duration(r.TurnStart) * time.Second / SampleRate
		for _, w := range r.Words {
			if w.Start < prev {
				t.Errorf("result %d: timestamps not monotonic: %+v", i, r.Words)
			}
			prev = w.Start
		}
	}
}

func TestDecoderBuffersUntilDispatch(t *testing.T) {
	rec := &scriptedRecognizer{steps: []step{{text: "tere"}}, finalText: "tere"}
	d := NewDecoder(NewGuard(rec), quietLogger, WithOffset(SampleRate))
	// Three 512-sample chunks stay below DispatchSamples; the fourth dispatches.
	results := collect(t, d.Run(context.Background(), repeat(4, 512)))
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(results), results)
	}
	if results[0].Consumed != 2048 {
		t.Errorf("consumed = %d, want 2048", results[0].Consumed)
	}
	if w := results[0].Words; len(w) != 1 || w[0].Start != time.Second {
		t.Errorf("offset words = %+v", w)
	}
	if !results[1].Final || results[1].Text != "tere" {
		t.Errorf("final = %+v", results[1])
	}
}

func TestDecoderStubFinalizesTrailingWords(t *testing.T) {
	d := NewDecoder(NewGuard(NewStub()), quietLogger)
	voiced := make([]float32, 9600)
	for i := range voiced {
		voiced[i] = 0.5
	}
	results := collect(t, d.Run(context.Background(), func(yield func([]float32) bool) {
		for i := 0; i < len(voiced); i += DispatchSamples {
			if !yield(voiced[i : i+DispatchSamples]) {
				return
			}
		}
	}))
	last := results[len(results)-1]
	if !last.Final || last.Text != "tere see" {
		t.Errorf("final = %+v", last)
	}
	for _, r := range results[:len(results)-1] {
		if r.Final {
			t.Errorf("unexpected final before end of input: %+v", r)
		}
	}
}

func TestDecoderCreateStreamError(t *testing.T) {
	boom := errors.New("no model")
	d := NewDecoder(NewGuard(&scriptedRecognizer{createErr: boom}), quietLogger)
	results := collect(t, d.Run(context.Background(), repeat(3, DispatchSamples)))
	if len(results) != 1 || !errors.Is(results[0].Err, boom) || !results[0].Final {
		t.Fatalf("results = %+v", results)
	}
}

func TestDecoderRecoversPanic(t *testing.T) {
	g := NewGuard(&scriptedRecognizer{steps: []step{{text: "a"}, {text: "a b"}}, panicAfter: 2})
	d := NewDecoder(g, quietLogger)
	results := collect(t, d.Run(context.Background(), repeat(5, DispatchSamples)))
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(results), results)
	}
	if results[0].Text != "a" || results[1].Err == nil {
		t.Errorf("results = %+v", results)
	}

	// The guard must be usable again.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.Do(ctx, func(Recognizer) error { return nil }); err != nil {
		t.Fatalf("guard still held: %v", err)
	}
}

func TestDecoderCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endless := func(yield func([]float32) bool) {
		for {
			if !yield(silence(DispatchSamples)) {
				return
			}
		}
	}
	d := NewDecoder(NewGuard(NewStub()), quietLogger, WithQueueSize(1))
	ch := d.Run(ctx, endless)

	// Silence yields an empty endpoint record after two seconds of audio.
	select {
	case r := <-ch:
		if !r.Endpoint || r.Text != "" {
			t.Errorf("first record = %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no record")
	}
	cancel()
	for r := range ch {
		if r.Err != nil {
			t.Errorf("unexpected error record after cancel: %v", r.Err)
		}
	}
}

func TestDecoderBackpressure(t *testing.T) {
	rec := &countingRecognizer{}
	d := NewDecoder(NewGuard(rec), quietLogger, WithQueueSize(1))
	const chunks = 10
	results := d.Run(context.Background(), repeat(chunks, DispatchSamples))

	// One record waits in the queue and the next blocks the worker.
	deadline := time.Now().Add(5 * time.Second)
	for rec.accepted.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("accepted = %d, want 2", rec.accepted.Load())
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := rec.accepted.Load(); got != 2 {
		t.Fatalf("accepted = %d with a full queue, want 2", got)
	}

	got := collect(t, results)
	if len(got) != chunks+1 {
		t.Fatalf("got %d results, want %d", len(got), chunks+1)
	}
	for i, r := range got[:chunks] {
		if want := "w" + strconv.Itoa(i+1); r.Text != want || r.Final {
			t.Errorf("result %d = %q final=%v, want partial %q", i, r.Text, r.Final, want)
		}
	}
	if last := got[chunks]; !last.Final || last.Err != nil {
		t.Errorf("last result = %+v, want final", last)
	}
	// Every chunk plus the tail padding.
	if n := rec.accepted.Load(); n != chunks+1 {
		t.Errorf("accepted = %d, want %d", n, chunks+1)
	}
}
