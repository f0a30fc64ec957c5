// Package segment finds speech segments in 16 kHz audio with a VAD and
// splits them into conversational turns with an optional Smart-Turn model.
package segment

import (
	"errors"

	"github.com/Yikizi/kiirkirjutaja/audio"
)

var ErrClosed = errors.New("detector is closed")

// Detector runs VAD segmentation and turn splitting over pushed chunks. It is
// single-threaded and not goroutine-safe; the caller must serialize PushPCM
// and lifecycle methods.
type Detector struct {
	cfg       Config
	cb        Callbacks
	vad       VAD
	segmenter *segmenter
	splitter  *TurnSplitter
	predictor TurnPredictor

	listening bool
	closed    bool
}

// New creates a detector from config and callbacks. It validates config and,
// when model paths are set, initializes ONNX Runtime and loads the Silero VAD
// and Smart-Turn models. Without a VAD model the energy VAD is used.
func New(cfg Config, cb Callbacks) (*Detector, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	var vad VAD = NewEnergyVAD()
	var predictor TurnPredictor
	if cfg.SileroVADModelPath != "" || cfg.SmartTurnModelPath != "" {
		if err := InitRuntime(cfg.ORTLibPath); err != nil {
			return nil, err
		}
	}
	if cfg.SileroVADModelPath != "" {
		v, err := NewSileroVAD(cfg.SileroVADModelPath)
		if err != nil {
			return nil, err
		}
		vad = v
	}
	if cfg.SmartTurnModelPath != "" {
		st, err := NewSmartTurn(cfg.SmartTurnModelPath)
		if err != nil {
			_ = vad.Close()
			return nil, err
		}
		predictor = st
	}
	return newDetector(cfg, vad, predictor, cb), nil
}

// NewWithModels creates a detector around an existing VAD and turn
// predictor (which may be nil). The detector takes ownership of both.
func NewWithModels(cfg Config, vad VAD, predictor TurnPredictor, cb Callbacks) (*Detector, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if vad == nil {
		return nil, errors.New("config: VAD is required")
	}
	return newDetector(cfg, vad, predictor, cb), nil
}

func newDetector(cfg Config, vad VAD, predictor TurnPredictor, cb Callbacks) *Detector {
	splitter := NewTurnSplitter(predictor, cfg.TurnPauseMs)
	splitter.OnPrediction = cb.OnTurnPrediction
	return &Detector{
		cfg:       cfg,
		cb:        cb,
		vad:       vad,
		segmenter: newSegmenter(cfg.SampleRate, cfg.ChunkSize, cfg.PreSpeechMs, cfg.StopMs, cfg.MaxDurationSeconds),
		splitter:  splitter,
		predictor: predictor,
	}
}

// Start starts listening. Invokes OnListeningStarted callback.
func (d *Detector) Start() {
	if d.closed {
		return
	}
	d.listening = true
	if d.cb.OnListeningStarted != nil {
		d.cb.OnListeningStarted()
	}
}

// Stop stops listening. Invokes OnListeningStopped callback.
func (d *Detector) Stop() {
	if d.closed {
		return
	}
	d.listening = false
	if d.cb.OnListeningStopped != nil {
		d.cb.OnListeningStopped()
	}
}

// PushPCM processes one chunk of 512 samples (mono, 16 kHz). Returns
// ErrChunkSize if len(chunk) != 512. Chunks pushed while not listening are
// ignored. Callbacks are invoked synchronously.
func (d *Detector) PushPCM(chunk []float32) error {
	if d.closed {
		return ErrClosed
	}
	if len(chunk) != RequiredChunkSize {
		return ErrChunkSize
	}
	if !d.listening {
		return nil
	}
	seg, err := d.push(chunk)
	if err != nil {
		return err
	}
	if seg != nil && d.cb.OnSegmentReady != nil {
		d.cb.OnSegmentReady(*seg)
	}
	return nil
}

// Flush ends a segment in progress, as at end of input.
func (d *Detector) Flush() error {
	if d.closed {
		return ErrClosed
	}
	seg := d.emit(d.segmenter.flush())
	if seg != nil && d.cb.OnSegmentReady != nil {
		d.cb.OnSegmentReady(*seg)
	}
	return nil
}

// Process runs a whole recording through the detector and returns its
// segments. The final partial chunk is zero-padded. Detector state is reset
// first, so Start is not required.
func (d *Detector) Process(samples []float32) ([]Segment, error) {
	if d.closed {
		return nil, ErrClosed
	}
	d.Reset()
	var segs []Segment
	for chunk := range audio.Chunks(samples, RequiredChunkSize) {
		if len(chunk) < RequiredChunkSize {
			padded := make([]float32, RequiredChunkSize)
			copy(padded, chunk)
			chunk = padded
		}
		seg, err := d.push(chunk)
		if err != nil {
			return segs, err
		}
		if seg != nil {
			segs = append(segs, *seg)
		}
	}
	if seg := d.emit(d.segmenter.flush()); seg != nil {
		segs = append(segs, *seg)
	}
	return segs, nil
}

func (d *Detector) push(chunk []float32) (*Segment, error) {
	prob, err := d.vad.SpeechProb(chunk)
	if err != nil {
		d.fail(err)
		return nil, err
	}
	res := d.segmenter.processChunk(prob > d.cfg.VadThreshold, chunk)
	if res.Started && d.cb.OnSpeechStart != nil {
		d.cb.OnSpeechStart()
	}
	return d.emit(res), nil
}

func (d *Detector) emit(res segmentResult) *Segment {
	if !res.Ended {
		return nil
	}
	if d.cb.OnSpeechEnd != nil {
		d.cb.OnSpeechEnd()
	}
	turns, err := d.splitter.Split(res.Samples, res.Flags)
	if err != nil {
		// Keep the segment as a single turn.
		d.fail(err)
	}
	return &Segment{
		Start:          res.Start,
		Samples:        res.Samples,
		EndedBySilence: res.EndedBySilence,
		Turns:          turns,
	}
}

func (d *Detector) fail(err error) {
	if d.cb.OnError != nil {
		d.cb.OnError(err)
	}
}

// Reset clears VAD and segment state. Models are not unloaded.
func (d *Detector) Reset() {
	if d.closed {
		return
	}
	d.vad.Reset()
	d.segmenter.reset()
}

// Close releases the models. The detector must not be used after Close.
func (d *Detector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.listening = false
	err := d.vad.Close()
	if d.predictor != nil {
		err = errors.Join(err, d.predictor.Close())
	}
	return err
}

// Whole returns samples as a single segment with a single turn, for use
// without a VAD.
func Whole(samples []float32) []Segment {
	if len(samples) == 0 {
		return nil
	}
	return []Segment{{
		Samples: samples,
		Turns:   []Turn{{Samples: samples}},
	}}
}

// Split runs a fresh detector built from cfg over a whole recording and
// returns its segments.
func Split(cfg Config, samples []float32) ([]Segment, error) {
	d, err := New(cfg, Callbacks{})
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return d.Process(samples)
}
