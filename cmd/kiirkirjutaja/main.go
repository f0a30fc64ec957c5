// Command kiirkirjutaja is a streaming Estonian speech recognizer. It serves
// the Wyoming protocol, transcribes WAV files and captions the microphone.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Yikizi/kiirkirjutaja/asr"
	"github.com/Yikizi/kiirkirjutaja/internal/config"
	"github.com/Yikizi/kiirkirjutaja/presenter"
)

var (
	v          = config.New()
	configFile string
	cfg        config.Config
	logger     *log.Logger
)

var rootCmd = &cobra.Command{
	Use:           "kiirkirjutaja",
	Short:         "Streaming Estonian speech recognition",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, configFile)
		if err != nil {
			return err
		}
		logger = newLogger(cfg.Level())
		if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
			logger.Warn("unknown log level, using info", "log_level", cfg.LogLevel)
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("engine", config.EngineAuto, "Recognizer engine (auto, sherpa, stub)")
	flags.String("model-dir", config.DefaultModelDir, "Directory containing encoder/decoder/joiner/tokens files")
	flags.Int("num-threads", 2, "Recognizer threads")
	flags.String("vad", config.VADEnergy, "Voice activity detector (silero, energy, none)")
	flags.String("vad-model", "", "Silero VAD ONNX model")
	flags.String("turn-model", "", "Smart Turn ONNX model")
	flags.String("ort-lib", "", "ONNX Runtime shared library")
	flags.Int("queue-size", asr.DefaultQueueSize, "Undelivered decoder results before decoding blocks")
	flags.String("presenter", presenter.Terminal, "Output of transcribe and listen (terminal, words, json, feed)")
	flags.String("feed-addr", presenter.DefaultFeedAddr, "WebSocket feed listen address")

	bind := map[string]string{
		"log_level":    "log-level",
		"engine":       "engine",
		"model_dir":    "model-dir",
		"num_threads":  "num-threads",
		"vad.engine":   "vad",
		"vad.model":    "vad-model",
		"turn.model":   "turn-model",
		"ort_lib_path": "ort-lib",
		"queue_size":   "queue-size",
		"presenter":    "presenter",
		"feed_addr":    "feed-addr",
	}
	for key, flag := range bind {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(serveCmd, transcribeCmd, listenCmd)
}

func newLogger(level log.Level) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Level:           level,
	})
	styles := log.DefaultStyles()
	styles.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR").
		Bold(true).
		Foreground(lipgloss.Color("204"))
	l.SetStyles(styles)
	return l
}

// newRecognizer picks the engine. With "auto" the native recognizer is used
// when compiled in and the stub otherwise.
func newRecognizer() (asr.Recognizer, error) {
	switch cfg.Engine {
	case config.EngineStub:
		return asr.NewStub(), nil
	case config.EngineSherpa:
		return asr.NewSherpa(cfg.Sherpa())
	}
	if !asr.NativeAvailable() {
		logger.Warn("sherpa-onnx not compiled in, using the stub recognizer", "hint", "build with -tags sherpa")
		return asr.NewStub(), nil
	}
	return asr.NewSherpa(cfg.Sherpa())
}

func closeRecognizer(rec asr.Recognizer) {
	if c, ok := rec.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn("close recognizer", "err", err)
		}
	}
}

func newPresenter() (presenter.Presenter, func(), error) {
	p, err := presenter.New(cfg.Presenter, os.Stdout, presenter.Options{
		FeedAddr: cfg.FeedAddr,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("close presenter", "err", err)
			}
		}
	}
	return p, closeFn, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error(err.Error())
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
