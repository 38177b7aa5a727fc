package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/typofix/internal/app"
	"github.com/MrWong99/typofix/internal/config"
	"github.com/MrWong99/typofix/internal/observe"
)

// shutdownTimeout bounds the graceful shutdown after a stop signal.
const shutdownTimeout = 15 * time.Second

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the correction daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), g, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func serve(ctx context.Context, g *globalFlags, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := g.load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found: %w", g.configPath, err)
		}
		return err
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	lv := new(slog.LevelVar)
	lv.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(stderr, lv))

	slog.Info("typofix starting",
		"version", version,
		"config", g.configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Backend:        string(cfg.Correction.BackendKind),
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	triggers := make(chan struct{}, 1)
	stopTriggers := notifyTriggers(ctx, triggers)
	defer stopTriggers()

	// ── Application ───────────────────────────────────────────────────────────
	opts := []app.Option{
		app.WithLogLevel(lv),
		app.WithTriggers(triggers),
	}
	if g.configPath != "" {
		opts = append(opts, app.WithConfigPath(g.configPath))
	}
	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	printStartupSummary(stdout, cfg)
	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	return runErr
}

func printStartupSummary(w io.Writer, cfg *config.Config) {
	c := cfg.Correction
	backend := string(c.BackendKind)
	switch c.BackendKind {
	case config.BackendRemote:
		backend += " / " + cfg.Remote.Provider
		if cfg.Remote.Model != "" {
			backend += " / " + cfg.Remote.Model
		}
	case config.BackendOnDevice:
		backend += " / " + c.ModelPath
	}
	journal := "(disabled)"
	switch {
	case cfg.Journal.PostgresDSN != "":
		journal = "postgres"
	case cfg.Journal.Path != "":
		journal = cfg.Journal.Path
	}

	fmt.Fprintln(w, "typofix startup summary")
	fmt.Fprintf(w, "  %-18s: %s\n", "Backend", backend)
	fmt.Fprintf(w, "  %-18s: %s\n", "Correction budget", c.CorrectionDeadline())
	fmt.Fprintf(w, "  %-18s: %s\n", "Loading budget", c.LoadingDeadline())
	fmt.Fprintf(w, "  %-18s: %.2f\n", "Max length ratio", c.MaxLengthRatio)
	fmt.Fprintf(w, "  %-18s: %d\n", "Cache entries", c.CacheEntries())
	fmt.Fprintf(w, "  %-18s: %d\n", "Inline profiles", len(cfg.Profiles.Apps))
	fmt.Fprintf(w, "  %-18s: %s\n", "Journal", journal)
	fmt.Fprintf(w, "  %-18s: %s\n", "Listen addr", cfg.Server.ListenAddr)
}
