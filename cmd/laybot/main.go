package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/laybot/config"
	"github.com/alejandrodnm/laybot/internal/adapters/exchange"
	"github.com/alejandrodnm/laybot/internal/adapters/feed"
	"github.com/alejandrodnm/laybot/internal/adapters/notify"
	"github.com/alejandrodnm/laybot/internal/adapters/storage"
	"github.com/alejandrodnm/laybot/internal/application/engine"
	"github.com/alejandrodnm/laybot/internal/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "paper trading: real market data, simulated orders")
	report := flag.Bool("report", false, "print open orders and daily ledgers, then exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *report {
		if err := notify.NewConsole().Report(ctx, store); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if !*dryRun && (cfg.Exchange.AppKey == "" || cfg.Exchange.SessionToken == "") {
		slog.Error("live mode needs EXCHANGE_APP_KEY and EXCHANGE_SESSION_TOKEN in the environment")
		os.Exit(1)
	}

	client := exchange.NewClient(cfg.Exchange.Base, cfg.Exchange.AppKey, cfg.Exchange.SessionToken)
	schedule := feed.NewScheduleClient(cfg.Feed.Base)

	var exch ports.Exchange = client
	if *dryRun {
		exch = exchange.NewPaper(client)
		slog.Info("dry-run: orders go to the paper exchange")
	}

	slog.Info("laybot starting",
		"config", *configPath,
		"dry_run", *dryRun,
		"stake", cfg.Betting.Stake,
		"window", cfg.Betting.WindowMaxSeconds,
		"tick", cfg.TickInterval(),
	)

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr)
	}

	if !*dryRun {
		// A short arming pause so a fat-fingered launch can still be ^C'd
		// before real money moves.
		slog.Info("live mode: arming", "delay", cfg.ArmDelay())
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.ArmDelay()):
		}
	}

	eng := engine.New(schedule, client, exch, client, store, engine.Config{
		Stake:              cfg.Betting.Stake,
		MinOdds:            cfg.Betting.MinOdds,
		MaxOdds:            cfg.Betting.MaxOdds,
		WindowMin:          cfg.Betting.WindowMinSeconds,
		WindowMax:          cfg.Betting.WindowMaxSeconds,
		Stage1Seconds:      cfg.Betting.Stage1Seconds,
		Stage2Seconds:      cfg.Betting.Stage2Seconds,
		Stage3Seconds:      cfg.Betting.Stage3Seconds,
		MinFieldSize:       cfg.Betting.MinFieldSize,
		BaseDispersion:     cfg.Betting.BaseDispersion,
		BaseCeiling:        cfg.Betting.BaseCeiling,
		ReferenceFieldSize: cfg.Betting.ReferenceFieldSize,
		MaxDailyBets:       cfg.Betting.MaxDailyBets,
		MaxDailyLoss:       cfg.Betting.MaxDailyLoss,
		LifetimeStopLoss:   cfg.Betting.LifetimeStopLoss,
		RequireProjection:  cfg.Betting.RequireProjection,
		TickInterval:       cfg.TickInterval(),
		FeedRefresh:        cfg.FeedRefresh(),
	}, nil)

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("laybot stopped cleanly")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("metrics listener stopped", "err", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
