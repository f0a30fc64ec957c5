package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Yikizi/kiirkirjutaja/asr"
	"github.com/Yikizi/kiirkirjutaja/audio"
	"github.com/Yikizi/kiirkirjutaja/internal/config"
	"github.com/Yikizi/kiirkirjutaja/pipeline"
	"github.com/Yikizi/kiirkirjutaja/segment"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file.wav>",
	Short: "Transcribe a 16 kHz mono WAV file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscribe,
}

var dumpDir string

func init() {
	transcribeCmd.Flags().StringVar(&dumpDir, "dump-dir", "", "Write every detected segment as a WAV file into this directory")
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Caption the default microphone live",
	RunE:  runListen,
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	samples, err := audio.LoadWAV(args[0])
	if err != nil {
		return err
	}
	logger.Info("loaded", "file", args[0], "duration", audio.Duration(int64(len(samples))))

	var split pipeline.Segmenter = pipeline.WholeRecording
	if cfg.VAD.Engine != config.VADNone {
		split = pipeline.Detect(cfg.Segment())
	}
	if dumpDir != "" {
		split = dumpSegments(split, dumpDir)
	}
	return run(func(p *pipeline.Pipeline) error {
		ctx, stop := signalContext()
		defer stop()
		return p.Batch(ctx, samples, split)
	})
}

func runListen(cmd *cobra.Command, args []string) error {
	chunkSize := audio.SamplesIn(audio.ChunkDuration)
	if cfg.VAD.Engine != config.VADNone {
		chunkSize = segment.RequiredChunkSize
	}
	mic, err := audio.OpenMic(chunkSize)
	if err != nil {
		return err
	}
	defer mic.Close()

	return run(func(p *pipeline.Pipeline) error {
		// The signal stops capture only. Decoding runs on until the mic
		// channel closes so the last turn is finalized; a second signal
		// kills the process.
		capture, stop := signalContext()
		defer stop()
		context.AfterFunc(capture, stop)

		chunks, err := mic.Capture(capture)
		if err != nil {
			return err
		}
		logger.Info("listening, press Ctrl+C to stop", "vad", cfg.VAD.Engine)
		if cfg.VAD.Engine == config.VADNone {
			err = p.Live(context.Background(), audio.FromChan(chunks))
		} else {
			err = p.Segmented(context.Background(), audio.FromChan(chunks), cfg.Segment())
		}
		if n := mic.Dropped(); n > 0 {
			logger.Warn("dropped audio chunks", "count", n)
		}
		return err
	})
}

// run builds the recognizer, guard and presenter shared by the file and
// microphone commands.
func run(fn func(*pipeline.Pipeline) error) error {
	rec, err := newRecognizer()
	if err != nil {
		return err
	}
	defer closeRecognizer(rec)

	pres, closePres, err := newPresenter()
	if err != nil {
		return err
	}
	defer closePres()

	return fn(pipeline.New(asr.NewGuard(rec), pres, logger, cfg.QueueSize))
}

// dumpSegments saves each segment found by split as segment-NNN.wav in dir.
func dumpSegments(split pipeline.Segmenter, dir string) pipeline.Segmenter {
	return func(samples []float32) ([]segment.Segment, error) {
		segs, err := split(samples)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		for i, seg := range segs {
			path := filepath.Join(dir, fmt.Sprintf("segment-%03d.wav", i))
			if err := audio.SaveWAV(path, seg.Samples); err != nil {
				return nil, fmt.Errorf("dump segment %d: %w", i, err)
			}
			logger.Debug("dumped segment", "path", path, "start", audio.Duration(seg.Start))
		}
		return segs, nil
	}
}
