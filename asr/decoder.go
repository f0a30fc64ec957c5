package asr

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/charmbracelet/log"
)

// DefaultQueueSize bounds the number of undelivered results. A slow consumer
// blocks the decode loop once the queue is full.
const DefaultQueueSize = 10

// Result is one update of the current turn. Results of one Run are delivered
// in emission order; the channel is closed after the last one.
type Result struct {
	Words []Word
	Text  string

	// Final is set on the record that freezes a turn: at an endpoint and
	// once at the end of input.
	Final    bool
	Endpoint bool

	// Segment counts endpoints that closed a non-empty turn.
	Segment int

	// TurnStart and Consumed are sample cursors relative to the start of
	// the input.
	TurnStart int64
	Consumed  int64

	// Err is set on the last record when decoding stopped on a failure.
	Err error
}

// Decoder runs incremental turn decoding against a shared recognizer.
type Decoder struct {
	guard     *Guard
	log       *log.Logger
	queueSize int
	offset    int64
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithQueueSize sets the result queue capacity.
func WithQueueSize(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithOffset shifts all word timestamps by the given number of samples.
func WithOffset(samples int64) DecoderOption {
	return func(d *Decoder) {
		d.offset = samples
	}
}

// NewDecoder returns a Decoder that takes the guard once per dispatch.
func NewDecoder(g *Guard, logger *log.Logger, opts ...DecoderOption) *Decoder {
	if logger == nil {
		logger = log.Default()
	}
	d := &Decoder{
		guard:     g,
		log:       logger.With("component", "decoder"),
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// turn is the worker-owned decode state. Only the worker goroutine touches
// it, and the stream only while holding the guard.
type turn struct {
	stream    Stream
	buf       []float32
	consumed  int64
	turnStart int64
	segment   int
	lastText  string
}

// Run starts a worker that pulls chunks (16 kHz mono) and returns the result
// queue. The queue is closed after the final record, after an error record,
// or when ctx is cancelled.
func (d *Decoder) Run(ctx context.Context, chunks iter.Seq[[]float32]) <-chan Result {
	out := make(chan Result, d.queueSize)
	go d.run(ctx, chunks, out)
	return out
}

func (d *Decoder) run(ctx context.Context, chunks iter.Seq[[]float32], out chan<- Result) {
	defer close(out)

	t := &turn{}
	defer func() {
		if r := recover(); r != nil {
			d.fail(ctx, out, t, fmt.Errorf("asr: decoder panic: %v", r))
		}
	}()

	err := d.guard.Do(ctx, func(rec Recognizer) error {
		s, err := rec.CreateStream()
		if err != nil {
			return fmt.Errorf("asr: create stream: %w", err)
		}
		t.stream = s
		return nil
	})
	if err != nil {
		d.fail(ctx, out, t, err)
		return
	}
	defer func() {
		_ = d.guard.Do(context.Background(), func(Recognizer) error {
			return t.stream.Close()
		})
	}()

	for chunk := range chunks {
		if ctx.Err() != nil {
			return
		}
		t.buf = append(t.buf, chunk...)
		if len(t.buf) < DispatchSamples {
			continue
		}

		var res *Result
		err := d.guard.Do(ctx, func(Recognizer) error {
			res = d.dispatch(t)
			return nil
		})
		if err != nil {
			d.fail(ctx, out, t, err)
			return
		}
		if res != nil && !send(ctx, out, *res) {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	var final Result
	err = d.guard.Do(ctx, func(Recognizer) error {
		final = d.finish(t)
		return nil
	})
	if err != nil {
		d.fail(ctx, out, t, err)
		return
	}
	send(ctx, out, final)
}

// dispatch feeds the buffered audio, drains the decoder and handles an
// endpoint. It returns the record to emit, or nil when nothing changed.
func (d *Decoder) dispatch(t *turn) *Result {
	t.stream.AcceptWaveform(SampleRate, t.buf)
	t.consumed += int64(len(t.buf))
	t.buf = make([]float32, 0, DispatchSamples)
	drain(t.stream)

	endpoint := t.stream.IsEndpoint()
	text := strings.TrimSpace(t.stream.Result())

	var res *Result
	if text != t.lastText || endpoint {
		r := d.record(t, text, endpoint)
		res = &r
		t.lastText = text
	}

	if endpoint {
		if text != "" {
			t.segment++
		}
		d.log.Debug("endpoint", "segment", t.segment, "consumed", t.consumed, "text", text)
		t.turnStart = t.consumed
		t.lastText = ""
		t.stream.Reset()
	}
	return res
}

// finish flushes the remaining audio plus tail padding and returns the final
// record.
func (d *Decoder) finish(t *turn) Result {
	if len(t.buf) > 0 {
		t.stream.AcceptWaveform(SampleRate, t.buf)
		t.consumed += int64(len(t.buf))
		t.buf = nil
	}
	t.stream.AcceptWaveform(SampleRate, TailPadding())
	t.stream.InputFinished()
	drain(t.stream)

	text := strings.TrimSpace(t.stream.Result())
	res := d.record(t, text, false)
	res.Final = true
	return res
}

func (d *Decoder) record(t *turn, text string, endpoint bool) Result {
	return Result{
		Words:     Timestamps(SplitWords(text), t.turnStart, t.consumed, d.offset),
		Text:      text,
		Final:     endpoint,
		Endpoint:  endpoint,
		Segment:   t.segment,
		TurnStart: t.turnStart,
		Consumed:  t.consumed,
	}
}

func (d *Decoder) fail(ctx context.Context, out chan<- Result, t *turn, err error) {
	if ctx.Err() != nil {
		return
	}
	d.log.Error("decoding failed", "error", err)
	send(ctx, out, Result{
		Final:     true,
		Segment:   t.segment,
		TurnStart: t.turnStart,
		Consumed:  t.consumed,
		Err:       err,
	})
}

func send(ctx context.Context, out chan<- Result, r Result) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
