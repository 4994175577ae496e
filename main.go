package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/example/germanbot/internal/bot"
	"github.com/example/germanbot/internal/config"
	"github.com/example/germanbot/internal/jobs"
	"github.com/example/germanbot/internal/quiz"
	"github.com/example/germanbot/internal/srs"
	"github.com/example/germanbot/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading configuration failed", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	st, err := openStore(cfg, log)
	if err != nil {
		log.Error("opening store failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	engineCfg := quiz.DefaultConfig()
	engineCfg.RoundLimit = cfg.RoundLimit
	engineCfg.InactivityWindow = cfg.InactivityWindow
	engine := quiz.New(st, srs.New(), engineCfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Reload(ctx); err != nil {
		log.Error("loading vocabulary failed", "error", err)
		os.Exit(1)
	}

	b, err := bot.New(cfg.TelegramToken, engine, log)
	if err != nil {
		log.Error("creating bot failed", "error", err)
		os.Exit(1)
	}

	runner := jobs.New(engine, st, b, jobs.Config{
		ReminderStartHour: cfg.ReminderStartHour,
		ReminderEndHour:   cfg.ReminderEndHour,
	}, log)
	runner.Start()
	defer runner.Stop()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		sig := <-sigChan
		log.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	log.Info("bot started")
	if err := b.Start(ctx); err != nil {
		log.Error("bot stopped with error", "error", err)
		os.Exit(1)
	}

	// Final chance to land writes that failed during rounds.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := engine.Reconcile(shutdownCtx); err != nil {
		log.Warn("final reconciliation failed", "error", err)
	}
	log.Info("bot stopped")
}

// openStore picks the persistence adapter: a SQL database when
// DATABASE_URL is set, the spreadsheet workbook otherwise.
func openStore(cfg *config.Config, log *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		return store.OpenSQL(cfg.DatabaseURL, log)
	}
	return store.OpenWorkbook(cfg.SpreadsheetPath, log)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	}))
}
