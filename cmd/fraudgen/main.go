// Fraudgen - Synthetic card transactions with labelled fraud.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/fraudgen/internal/api"
	"github.com/opensource-finance/fraudgen/internal/bus"
	"github.com/opensource-finance/fraudgen/internal/cache"
	"github.com/opensource-finance/fraudgen/internal/config"
	"github.com/opensource-finance/fraudgen/internal/domain"
	"github.com/opensource-finance/fraudgen/internal/metrics"
	"github.com/opensource-finance/fraudgen/internal/pipeline"
	"github.com/opensource-finance/fraudgen/internal/publisher"
	"github.com/opensource-finance/fraudgen/internal/repository"
	"github.com/opensource-finance/fraudgen/internal/rules"
	"github.com/opensource-finance/fraudgen/internal/sink"
	"github.com/opensource-finance/fraudgen/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const usage = `usage: fraudgen [generate|serve] [flags]

  generate   build one dataset and write it to the configured sinks (default)
  serve      run the dataset HTTP API

Run "fraudgen <command> -h" for the flags of a command.
`

func main() {
	cmd, args := "generate", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "generate":
		err = runGenerate(args)
	case "serve":
		err = runServe(args)
	case "version":
		fmt.Printf("fraudgen %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("fraudgen failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

// loadConfig reads .env and FRAUDGEN_* variables, then applies the flags
// registered by bind. Flags win over the environment.
func loadConfig(name string, args []string, bind func(*flag.FlagSet, *domain.Config)) (*domain.Config, error) {
	envFile := envFileArg(args)

	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.String("env", envFile, "env file to load before parsing flags")
	bind(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	if os.Getenv("FRAUDGEN_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	slog.SetDefault(config.Logger(cfg.Logging))
	return cfg, nil
}

// envFileArg finds -env in args before the flag set exists, since the env
// file feeds the flag defaults.
func envFileArg(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if name != "env" || !strings.HasPrefix(a, "-") {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ".env"
}

func bindGeneration(fs *flag.FlagSet, g *domain.GenerationConfig) {
	fs.Int64Var(&g.Seed, "seed", g.Seed, "random seed")
	fs.IntVar(&g.Users, "users", g.Users, "number of users")
	fs.IntVar(&g.Merchants, "merchants", g.Merchants, "number of merchants")
	fs.IntVar(&g.Transactions, "transactions", g.Transactions, "number of transactions to accept")
	fs.StringVar(&g.Start, "start", g.Start, "window start (RFC3339 or YYYY-MM-DD, default end minus 90 days)")
	fs.StringVar(&g.End, "end", g.End, "window end (RFC3339 or YYYY-MM-DD, default now)")
	fs.IntVar(&g.AttemptMultiplier, "attempt-multiplier", g.AttemptMultiplier, "attempt budget as a multiple of -transactions")
	fs.IntVar(&g.Workers, "workers", g.Workers, "parallel generation shards (only 1 is reproducible)")
	fs.BoolVar(&g.BackfillPoints, "backfill-points", g.BackfillPoints, "emit points rows for users without transactions")
	fs.BoolVar(&g.Chronological, "chronological", g.Chronological, "order each card's gaps by transaction time")
	fs.StringVar(&g.RiskTablePath, "risk-table", g.RiskTablePath, "JSON file replacing the built-in risk table")
	fs.BoolVar(&g.Checks, "checks", g.Checks, "run quality checks over the generated stream")
}

// sinkList is a comma-separated flag value.
type sinkList struct{ names *[]string }

func (s sinkList) String() string {
	if s.names == nil {
		return ""
	}
	return strings.Join(*s.names, ",")
}

func (s sinkList) Set(v string) error {
	*s.names = config.ParseSinks(v)
	return nil
}

func runGenerate(args []string) error {
	cfg, err := loadConfig("generate", args, func(fs *flag.FlagSet, cfg *domain.Config) {
		bindGeneration(fs, &cfg.Generation)
		fs.StringVar(&cfg.Output.Dir, "out", cfg.Output.Dir, "output directory for the csv sink")
		fs.Var(sinkList{&cfg.Output.Sinks}, "sinks", "comma-separated sinks: csv, sql, bus, kafka, cache")
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, closeDeps, err := buildDeps(cfg, cfg.Output.Sinks, sink.Deps{Config: cfg})
	if err != nil {
		return err
	}
	defer closeDeps()

	sinks, err := sink.Build(cfg.Output.Sinks, deps)
	if err != nil {
		return err
	}

	runID := uuid.New().String()

	// The consumer must be subscribed before the bus sink publishes.
	var consumer *worker.Worker
	if deps.Bus != nil {
		consumer, err = startConsumer(deps, cfg, runID)
		if err != nil {
			return err
		}
		defer consumer.Stop()
	}

	ds, err := pipeline.New(pipeline.WithRunID(runID)).Run(ctx, cfg.Generation)
	if err != nil {
		return err
	}
	if err := sink.WriteAll(ctx, sinks, ds); err != nil {
		return err
	}

	if consumer != nil {
		drain(ctx, consumer, int64(len(ds.Transactions)), 30*time.Second)
	}

	s := ds.Summary
	fmt.Printf("run %s: %d users, %d cards, %d merchants, %d transactions (%d fraud), %d alerts, %d points rows -> %s\n",
		ds.RunID, s.Users, s.Cards, s.Merchants, s.Accepted, s.FraudCount, s.AlertCount, s.PointsCount,
		strings.Join(cfg.Output.Sinks, ","))
	if s.Short {
		fmt.Printf("warning: attempt budget exhausted after %d attempts, %d of %d transactions generated\n",
			s.Attempts, s.Accepted, s.Requested)
	}
	if s.ChecksFailed > 0 {
		return fmt.Errorf("%d quality checks failed", s.ChecksFailed)
	}
	return nil
}

// buildDeps opens the components the named sinks write through, keeping
// any already set in deps.
func buildDeps(cfg *domain.Config, names []string, deps sink.Deps) (sink.Deps, func(), error) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("failed to close component", "error", err)
			}
		}
	}

	uses := func(name string) bool { return slices.Contains(names, name) }

	if uses(domain.SinkSQL) && deps.Repo == nil {
		repo, err := repository.New(cfg.Repository)
		if err != nil {
			closeAll()
			return deps, nil, fmt.Errorf("failed to initialize repository: %w", err)
		}
		closers = append(closers, repo.Close)
		deps.Repo = repo
		slog.Info("repository initialized", "driver", cfg.Repository.Driver)
	}
	if (uses(domain.SinkCache) || uses(domain.SinkBus)) && deps.Cache == nil {
		c, err := cache.New(cfg.Cache)
		if err != nil {
			closeAll()
			return deps, nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		closers = append(closers, c.Close)
		deps.Cache = c
		slog.Info("cache initialized", "type", cfg.Cache.Type)
	}
	if uses(domain.SinkBus) && deps.Bus == nil {
		b, err := bus.New(cfg.EventBus)
		if err != nil {
			closeAll()
			return deps, nil, fmt.Errorf("failed to initialize event bus: %w", err)
		}
		closers = append(closers, b.Close)
		deps.Bus = b
		slog.Info("event bus initialized", "type", cfg.EventBus.Type)
	}
	if uses(domain.SinkKafka) && deps.Kafka == nil {
		p, err := publisher.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			closeAll()
			return deps, nil, fmt.Errorf("failed to initialize kafka publisher: %w", err)
		}
		closers = append(closers, p.Close)
		deps.Kafka = p
		slog.Info("kafka publisher initialized", "brokers", cfg.Kafka.Brokers)
	}
	return deps, closeAll, nil
}

func startConsumer(deps sink.Deps, cfg *domain.Config, runID string) (*worker.Worker, error) {
	var engine *rules.Engine
	if cfg.Generation.Checks {
		e, err := rules.NewEngine(cfg.Generation.Workers)
		if err != nil {
			return nil, err
		}
		if err := e.LoadChecks(rules.BuiltinChecks()); err != nil {
			return nil, err
		}
		engine = e
	}

	w := worker.NewWorker(deps.Bus, deps.Cache, engine)
	if err := w.Start(worker.Config{
		RunIDs:     []string{runID},
		SignalsTTL: cfg.Cache.SignalsTTL,
	}); err != nil {
		return nil, err
	}
	return w, nil
}

// drain waits until the consumer has handled want transactions.
func drain(ctx context.Context, w *worker.Worker, want int64, timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	for {
		stats := w.GetStats()
		if stats.Processed+stats.Errors >= want {
			slog.Info("consumer drained",
				"processed", stats.Processed,
				"failed_checks", stats.FailedChecks,
				"errors", stats.Errors,
			)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			slog.Warn("consumer did not drain in time", "processed", stats.Processed, "want", want)
			return
		case <-tick.C:
		}
	}
}

func runServe(args []string) error {
	cfg, err := loadConfig("serve", args, func(fs *flag.FlagSet, cfg *domain.Config) {
		bindGeneration(fs, &cfg.Generation)
		fs.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "listen host")
		fs.IntVar(&cfg.Server.Port, "port", cfg.Server.Port, "listen port")
		fs.IntVar(&cfg.Server.MaxTransactions, "max-transactions", cfg.Server.MaxTransactions, "most transactions a request may ask for")
		fs.IntVar(&cfg.Server.MaxUsers, "max-users", cfg.Server.MaxUsers, "most users a request may ask for")
		fs.IntVar(&cfg.Server.MaxMerchants, "max-merchants", cfg.Server.MaxMerchants, "most merchants a request may ask for")
		fs.Var(sinkList{&cfg.Output.Sinks}, "sinks", "comma-separated sinks run after each stored dataset")
	})
	if err != nil {
		return err
	}

	slog.Info("starting fraudgen",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	c, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer c.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Every request already stores its dataset; sql would write it twice.
	names := slices.DeleteFunc(slices.Clone(cfg.Output.Sinks), func(s string) bool {
		return s == domain.SinkSQL
	})
	deps, closeDeps, err := buildDeps(cfg, names, sink.Deps{Repo: repo, Cache: c, Config: cfg})
	if err != nil {
		return err
	}
	defer closeDeps()

	sinks, err := sink.Build(names, deps)
	if err != nil {
		return err
	}

	m := metrics.New()
	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:     repo,
		Cache:    c,
		Pipeline: pipeline.New(pipeline.WithMetrics(m)),
		Sinks:    sinks,
		Defaults: cfg.Generation,
	}, m, Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("fraudgen is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"sinks", names,
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("fraudgen shutdown complete")
	return nil
}
