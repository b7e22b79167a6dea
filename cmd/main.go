// Command folio runs the portfolio ledger and valuation service.
// It serves the HTTP API, keeps the price cache fresh on a schedule and can
// be configured via a YAML file, command line flags or the setup wizard.
//
// Usage:
//
//	folio --config config.yaml
//	folio --setup
//	folio --storage memory --addr :8080
//
// Optional environment variables (also read from .env):
//
//	BRAPI_API_KEY, BINANCE_API_KEY, BINANCE_API_SECRET,
//	BYBIT_API_KEY, BYBIT_API_SECRET, FOLIO_POSTGRES_DSN
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/folio/config"
	"github.com/vadiminshakov/folio/internal"
	"github.com/vadiminshakov/folio/internal/setup"
)

func main() {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	if flags.Setup {
		path, err := setup.RunTUI()
		if err != nil {
			log.Fatal(err)
		}
		flags.ConfigPath = path
	}

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := internal.NewApp(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("failed to start folio", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close folio", zap.Error(err))
		}
	}()

	logger.Info("starting folio",
		zap.String("addr", cfg.ListenAddr),
		zap.String("storage", cfg.Storage.Driver),
		zap.Strings("providers", cfg.Quotes.Providers))

	if err := app.Run(ctx); err != nil {
		logger.Error("folio stopped with error", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
