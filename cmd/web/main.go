package main

import (
	"fmt"
	"os"

	"github.com/ingresounam/ingreso/internal/config"
	"github.com/ingresounam/ingreso/internal/logger"
	"github.com/ingresounam/ingreso/internal/web"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	host, err := web.New(cfg, log, version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create web host")
	}

	log.Info().Str("version", version).Str("backend", cfg.Web.BackendURL).Msg("Starting IngresoUNAM web host...")

	if err := host.Start(); err != nil {
		log.Fatal().Err(err).Msg("Web host failed to start")
	}
}
