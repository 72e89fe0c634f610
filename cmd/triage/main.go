// Triage - symptom-to-disease detection and aggregation service.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-health/triage/internal/api"
	"github.com/opensource-health/triage/internal/bus"
	"github.com/opensource-health/triage/internal/cache"
	"github.com/opensource-health/triage/internal/config"
	"github.com/opensource-health/triage/internal/domain"
	"github.com/opensource-health/triage/internal/lexicon"
	"github.com/opensource-health/triage/internal/repository"
	"github.com/opensource-health/triage/internal/sentiment"
	"github.com/opensource-health/triage/internal/stats"
	"github.com/opensource-health/triage/internal/summary"
	"github.com/opensource-health/triage/internal/triage"
	"github.com/opensource-health/triage/internal/velocity"
	"github.com/opensource-health/triage/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "triage",
		Short:        "Symptom triage detection and aggregation service",
		Version:      Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./triage.yaml if present)")

	load := func() (*domain.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		slog.SetDefault(newLogger(os.Stderr, cfg.Logging))
		return cfg, nil
	}

	root.AddCommand(serveCmd(load))
	root.AddCommand(detectCmd(load))
	root.AddCommand(statsCmd(load))

	return root
}

func serveCmd(load func() (*domain.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			slog.SetDefault(newLogger(os.Stdout, cfg.Logging))
			return runServer(cmd.Context(), cfg)
		},
	}
}

func detectCmd(load func() (*domain.Config, error)) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "detect <text>",
		Short: "Classify a symptom description without storing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			lex, err := lexicon.Load(cfg.Lexicon)
			if err != nil {
				return fmt.Errorf("failed to load lexicon: %w", err)
			}

			b := summary.NewBuilder()
			if cfg.Lexicon.NoMatchText != "" {
				b.NoMatchText = cfg.Lexicon.NoMatchText
			}
			sum := b.Build(lex.Detect(strings.Join(args, " ")))

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, sum)
			}
			fmt.Fprintln(out, sum.DisplayText)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func statsCmd(load func() (*domain.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [disease]",
		Short: "Print disease percentages from the configured store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			store, err := repository.New(cfg.Repository)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer store.Close()

			return printStats(cmd.Context(), cmd.OutOrStdout(), stats.NewEngine(store), args)
		},
	}
}

func printStats(ctx context.Context, out io.Writer, engine *stats.Engine, args []string) error {
	if len(args) == 1 {
		pct, err := engine.ComputePercentageFor(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s%%\n", pct.Disease, pct.Percentage)
		return nil
	}

	agg, err := engine.ComputeOverallPercentages(ctx)
	if errors.Is(err, domain.ErrNoData) {
		fmt.Fprintln(out, "no detection data available")
		return nil
	}
	if err != nil {
		return err
	}

	names := make([]string, 0, len(agg.PercentageByDisease))
	for name := range agg.PercentageByDisease {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := agg.PercentageByDisease[names[i]], agg.PercentageByDisease[names[j]]
		if pi != pj {
			return pi > pj
		}
		return names[i] < names[j]
	})

	fmt.Fprintf(out, "total detections: %d\n", agg.TotalCount)
	for _, name := range names {
		fmt.Fprintf(out, "  %-16s %6s%%\n", name, stats.FormatPercentage(agg.PercentageByDisease[name]))
	}
	return nil
}

func runServer(parent context.Context, cfg *domain.Config) error {
	slog.Info("starting triage",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"lexicon_mode", cfg.Lexicon.Mode,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Repository
	store, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer store.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Load the lexicon
	lex, err := lexicon.Load(cfg.Lexicon)
	if err != nil {
		return fmt.Errorf("failed to load lexicon: %w", err)
	}
	registry := lexicon.NewRegistry(lex, cfg.Lexicon)
	slog.Info("lexicon loaded",
		"source", sourceName(cfg.Lexicon.Path),
		"version", lex.Version(),
		"rules_count", lex.Len(),
	)

	if cfg.Lexicon.Watch {
		go func() {
			if err := registry.Watch(ctx); err != nil {
				slog.Error("lexicon watcher stopped", "error", err)
			}
		}()
	}

	builder := summary.NewBuilder()
	if cfg.Lexicon.NoMatchText != "" {
		builder.NoMatchText = cfg.Lexicon.NoMatchText
	}

	pipeline := triage.NewService(registry, store,
		triage.WithCache(cacheImpl, cfg.Cache.DetectionTTL),
		triage.WithBus(busImpl),
		triage.WithBuilder(builder),
	)

	limiter := velocity.NewLimiter(cacheImpl, cfg.Velocity)
	slog.Info("velocity limiter initialized",
		"enabled", limiter.Enabled(),
		"max_submissions", cfg.Velocity.MaxSubmissions,
		"window_secs", cfg.Velocity.WindowSecs,
	)

	// Live tally worker
	var tally *worker.Tally
	if cfg.Worker.Enabled {
		tally = worker.NewTally(busImpl)
		if err := tally.Start(); err != nil {
			slog.Error("failed to start tally worker", "error", err)
			tally = nil
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Pipeline:  pipeline,
		Stats:     stats.NewEngine(store),
		Store:     store,
		Lexicons:  registry,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Tally:     tally,
		Sentiment: sentiment.Default(),
		Version:   Version,
	}, limiter)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("triage is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	if tally != nil {
		if err := tally.Stop(); err != nil {
			slog.Error("failed to stop tally worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("triage shutdown complete")
	return nil
}

// newLogger builds the process logger. TRIAGE_DEBUG=true forces debug level.
func newLogger(w io.Writer, cfg domain.LoggingConfig) *slog.Logger {
	level := parseLevel(cfg.Level)
	if os.Getenv("TRIAGE_DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sourceName(path string) string {
	if path == "" {
		return "builtin"
	}
	return path
}
