package main

import (
	"github.com/spf13/cobra"

	"github.com/Yikizi/kiirkirjutaja/asr"
	"github.com/Yikizi/kiirkirjutaja/wyoming"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve speech-to-text over the Wyoming protocol",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("wyoming-uri", wyoming.DefaultURI, "Wyoming URI, e.g. tcp://0.0.0.0:10300")
	if err := v.BindPFlag("wyoming_uri", serveCmd.Flags().Lookup("wyoming-uri")); err != nil {
		panic(err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	rec, err := newRecognizer()
	if err != nil {
		return err
	}
	defer closeRecognizer(rec)

	ctx, stop := signalContext()
	defer stop()

	srv := &wyoming.Server{
		Info:   wyoming.DefaultInfo(),
		Guard:  asr.NewGuard(rec),
		Logger: logger,
	}
	logger.Info("starting wyoming server", "uri", cfg.WyomingURI, "engine", cfg.Engine)
	if err := srv.ListenAndServe(ctx, cfg.WyomingURI); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
