// Package pipeline connects audio sources, segmentation, the turn decoder
// and a presenter.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/Yikizi/kiirkirjutaja/asr"
	"github.com/Yikizi/kiirkirjutaja/audio"
	"github.com/Yikizi/kiirkirjutaja/presenter"
	"github.com/Yikizi/kiirkirjutaja/segment"
)

// Segmenter finds speech segments and their turns in a whole recording.
type Segmenter func(samples []float32) ([]segment.Segment, error)

// WholeRecording treats the recording as one segment with one turn.
func WholeRecording(samples []float32) ([]segment.Segment, error) {
	return segment.Whole(samples), nil
}

// Detect segments recordings with a VAD detector built from cfg.
func Detect(cfg segment.Config) Segmenter {
	return func(samples []float32) ([]segment.Segment, error) {
		return segment.Split(cfg, samples)
	}
}

// Pipeline decodes audio through a shared recognizer guard and reports
// progress to a presenter.
type Pipeline struct {
	guard     *asr.Guard
	pres      presenter.Presenter
	log       *log.Logger
	queueSize int
}

// New returns a Pipeline. queueSize <= 0 selects asr.DefaultQueueSize.
func New(guard *asr.Guard, pres presenter.Presenter, logger *log.Logger, queueSize int) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	if queueSize <= 0 {
		queueSize = asr.DefaultQueueSize
	}
	return &Pipeline{guard: guard, pres: pres, log: logger, queueSize: queueSize}
}

// Batch transcribes a recording. Each turn is decoded with a fresh decoder
// whose timestamps are shifted to the turn's absolute position.
func (p *Pipeline) Batch(ctx context.Context, samples []float32, split Segmenter) error {
	segs, err := split(samples)
	if err != nil {
		return fmt.Errorf("pipeline: segmentation: %w", err)
	}
	p.log.Info("segmented", "segments", len(segs), "duration", audio.Duration(int64(len(samples))))

	for i, seg := range segs {
		p.log.Debug("segment", "index", i, "start", audio.Duration(seg.Start), "turns", len(seg.Turns))
		p.pres.SegmentStart()
		err := p.decodeTurns(ctx, seg)
		p.pres.SegmentEnd()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// decodeTurns decodes each turn of seg with a fresh decoder whose timestamps
// are shifted to the turn's absolute position.
func (p *Pipeline) decodeTurns(ctx context.Context, seg segment.Segment) error {
	chunkSize := audio.SamplesIn(audio.ChunkDuration)
	for _, turn := range seg.Turns {
		p.pres.NewTurn()
		dec := asr.NewDecoder(p.guard, p.log,
			asr.WithQueueSize(p.queueSize),
			asr.WithOffset(seg.Start+turn.Offset))
		if err := p.present(dec.Run(ctx, turn.Chunks(chunkSize))); err != nil {
			return err
		}
	}
	return nil
}

// Live transcribes a stream of chunks as one segment until the stream ends
// or ctx is done. A new turn starts whenever an endpoint closes a turn with
// text. The last turn is finalized only when the stream ends; cancelling ctx
// abandons it.
func (p *Pipeline) Live(ctx context.Context, chunks iter.Seq[[]float32]) error {
	p.pres.SegmentStart()
	p.pres.NewTurn()
	defer p.pres.SegmentEnd()

	dec := asr.NewDecoder(p.guard, p.log, asr.WithQueueSize(p.queueSize))
	if err := p.present(dec.Run(ctx, chunks)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// segmentQueue bounds the finished segments waiting for the decoder while
// detection continues.
const segmentQueue = 16

// liveEvent is either the start of speech or a finished segment.
type liveEvent struct {
	seg *segment.Segment
}

// Segmented transcribes a live stream segment by segment. Chunks are cut to
// the detector's chunk size and pushed through a VAD detector built from cfg;
// every segment it finishes is decoded turn by turn while detection goes on.
// A segment in progress when the stream ends is flushed and decoded.
func (p *Pipeline) Segmented(ctx context.Context, chunks iter.Seq[[]float32], cfg segment.Config) error {
	g, gctx := errgroup.WithContext(ctx)
	events := make(chan liveEvent, segmentQueue)
	send := func(ev liveEvent) {
		select {
		case events <- ev:
		case <-gctx.Done():
		}
	}

	det, err := segment.New(cfg, segment.Callbacks{
		OnListeningStarted: func() { p.log.Info("listening") },
		OnListeningStopped: func() { p.log.Debug("listening stopped") },
		OnSpeechStart:      func() { send(liveEvent{}) },
		OnSpeechEnd:        func() { p.log.Debug("speech ended") },
		OnSegmentReady:     func(seg segment.Segment) { send(liveEvent{seg: &seg}) },
		OnTurnPrediction: func(complete bool, prob float32) {
			p.log.Debug("turn prediction", "complete", complete, "probability", prob)
		},
		OnError: func(err error) { p.log.Warn("segmentation", "err", err) },
	})
	if err != nil {
		return fmt.Errorf("pipeline: detector: %w", err)
	}

	g.Go(func() error {
		defer close(events)
		defer det.Close()
		det.Start()
		defer det.Stop()

		size := segment.RequiredChunkSize
		var buf []float32
		for chunk := range chunks {
			if err := gctx.Err(); err != nil {
				return err
			}
			buf = append(buf, chunk...)
			for len(buf) >= size {
				if err := det.PushPCM(buf[:size]); err != nil {
					return fmt.Errorf("pipeline: segmentation: %w", err)
				}
				buf = buf[size:]
			}
		}
		if len(buf) > 0 {
			padded := make([]float32, size)
			copy(padded, buf)
			if err := det.PushPCM(padded); err != nil {
				return fmt.Errorf("pipeline: segmentation: %w", err)
			}
		}
		return det.Flush()
	})

	g.Go(func() error {
		open := false
		defer func() {
			if open {
				p.pres.SegmentEnd()
			}
		}()
		for ev := range events {
			if !open {
				p.pres.SegmentStart()
				open = true
			}
			if ev.seg == nil {
				continue
			}
			p.log.Debug("segment", "start", audio.Duration(ev.seg.Start), "turns", len(ev.seg.Turns))
			err := p.decodeTurns(gctx, *ev.seg)
			p.pres.SegmentEnd()
			open = false
			if err != nil {
				return err
			}
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// present forwards decoder results until the queue closes. Empty finals
// with nothing on display are dropped.
func (p *Pipeline) present(results <-chan asr.Result) error {
	var (
		err     error
		segment int
		shown   bool
	)
	for r := range results {
		if r.Err != nil {
			err = fmt.Errorf("pipeline: decoding: %w", r.Err)
			continue
		}
		if r.Segment != segment {
			p.pres.NewTurn()
			segment = r.Segment
		}
		switch {
		case !r.Final:
			p.pres.PartialResult(r.Words)
			shown = len(r.Words) > 0
		case len(r.Words) > 0 || shown:
			p.pres.FinalResult(r.Words)
			shown = false
		}
	}
	return err
}
