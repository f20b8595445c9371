package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"vcissuer/internal/platform/config"
	"vcissuer/internal/platform/httpserver"
	"vcissuer/internal/platform/logger"
	"vcissuer/internal/platform/metrics"
)

var version = "dev"

var globalFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: "vcissuer",
		Usage: "add 'service' tag to logs",
	},
}

var serveFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Usage: "address to listen on for the API (overrides VCISSUER_ADDR)",
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "address to serve Prometheus metrics on; empty serves them on the API listener",
	},
	&cli.StringFlag{
		Name:  "catalog-file",
		Usage: "YAML catalog seed applied at startup (overrides CATALOG_FILE)",
	},
	&cli.Int64Flag{
		Name:  "drain-seconds",
		Usage: "seconds to report not-ready before shutting the listener down",
	},
}

func main() {
	app := &cli.App{
		Name:    "vcissuer",
		Usage:   "Verifiable credential issuer and verifier gateway",
		Version: version,
		Flags:   globalFlags,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP gateway",
				Flags:  serveFlags,
				Action: serve,
			},
			walletCommand,
			whitelistCommand,
			onboardingCommand,
		},
		DefaultCommand: "serve",
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogger(cCtx *cli.Context) *slog.Logger {
	l := logger.New(logger.Options{
		JSON:    cCtx.Bool("log-json"),
		Debug:   cCtx.Bool("log-debug"),
		Service: cCtx.String("log-service"),
		Version: version,
	})
	slog.SetDefault(l)
	return l
}

func loadConfig(cCtx *cli.Context) config.Server {
	cfg := config.FromEnv()
	if cCtx.IsSet("listen-addr") {
		cfg.Addr = cCtx.String("listen-addr")
	}
	if cCtx.IsSet("metrics-addr") {
		cfg.MetricsAddr = cCtx.String("metrics-addr")
	}
	if cCtx.IsSet("catalog-file") {
		cfg.CatalogFile = cCtx.String("catalog-file")
	}
	if cCtx.IsSet("drain-seconds") {
		cfg.DrainDuration = time.Duration(cCtx.Int64("drain-seconds")) * time.Second
	}
	return cfg
}

func serve(cCtx *cli.Context) error {
	logger := setupLogger(cCtx)
	cfg := loadConfig(cCtx)
	if cfg.Issuer.OperatorDID == "" {
		return errors.New("ISSUER_DID is required")
	}
	if cfg.Signer.URL == "" {
		return errors.New("SIGNER_URL is required")
	}

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := assemble(ctx, cfg, logger)
	defer gw.close()
	if err != nil {
		logger.Error("failed to assemble gateway", "error", err)
		return err
	}
	if err := gw.seedCatalog(ctx); err != nil {
		logger.Error("failed to load catalog", "error", err)
		return err
	}

	srv := httpserver.New(httpserver.Config{
		ListenAddr:    cfg.Addr,
		MetricsAddr:   cfg.MetricsAddr,
		DrainDuration: cfg.DrainDuration,
		ShutdownGrace: cfg.ShutdownGrace,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
	}, logger, metrics.New())
	for _, h := range gw.handlers() {
		h.Register(srv.Router())
	}
	gw.registerReadiness(srv)

	// background workers stop with ctx; the onboarding pool drains separately
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCancel(gw.relay.Run(gctx))
	})
	if gw.memNonce != nil {
		g.Go(func() error {
			return ignoreCancel(gw.memNonce.StartCleanup(gctx, cfg.Nonce.GCInterval))
		})
	}
	gw.pool.Start(ctx)
	srv.Start()
	logger.Info("vcissuer started",
		"addr", cfg.Addr,
		"operator_did", cfg.Issuer.OperatorDID,
		"catalog_version", gw.catalog.Current().Version,
	)

	<-gctx.Done()
	logger.Info("shutting down")
	srv.Shutdown(context.Background())

	if err := gw.pool.Shutdown(context.Background()); err != nil {
		logger.Warn("onboarding pool did not drain", "error", err)
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("background worker: %w", err)
	}
	return nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
