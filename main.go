package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/photonicat/pcat2_slot_display/internal/app"
	"github.com/photonicat/pcat2_slot_display/internal/config"
	"github.com/photonicat/pcat2_slot_display/internal/logging"
	"github.com/photonicat/pcat2_slot_display/internal/syncutil"
)

func main() {
	cfgPath := flag.String("config", config.DefaultPath, "path to the config file")
	headless := flag.Bool("headless", false, "render into memory instead of the panel")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	fs := afero.NewOsFs()

	cfg, err := config.New(fs, *cfgPath, config.BaseDefaults)
	if err != nil {
		log.Fatal().Err(err).Str("path", *cfgPath).Msg("failed to load config")
	}
	vals := cfg.Values()

	logCfg := vals.Log
	if *debug {
		logCfg.Level = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}
	log.Info().Str("config", cfg.Path()).Bool("deadlockDetection", syncutil.DeadlockEnabled).Msg("starting slot display")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, fs, cfg, app.Options{Headless: *headless}); err != nil {
		log.Error().Err(err).Msg("slot display stopped")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("slot display stopped")
}
