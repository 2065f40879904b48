package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	// Ledger drivers selectable with LEDGER_DRIVER.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/mohans/resultx"
	"github.com/mohans/resultx/config"
	rx "github.com/mohans/resultx/resultx"
	"github.com/mohans/resultx/tasks"
	"golang.org/x/sync/errgroup"
)

const usage = `usage: resultx <command> [task...]

commands:
  worker            consume the configured queue and run the demo tasks
  client [task...]  submit demo tasks and check their outcomes (default: all)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger, os.Args[1:]); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("missing command")
	}

	deps, err := newDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(ctx, logger)

	switch args[0] {
	case "worker":
		return runWorker(ctx, cfg, deps)
	case "client":
		return runClient(ctx, cfg, deps, args[1:])
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

type deps struct {
	store   *rx.RedisStore
	db      *sql.DB
	backend *rx.Backend
}

func newDeps(ctx context.Context, cfg config.Config, logger *slog.Logger) (*deps, error) {
	store, err := rx.NewRedisStore(cfg.StoreConfig())
	if err != nil {
		return nil, err
	}
	classifier, err := cfg.Classifier.Classifier()
	if err != nil {
		return nil, err
	}
	opts := []rx.Option{
		rx.WithLogger(logger),
		rx.WithPollInterval(cfg.Results.PollInterval),
		rx.WithClassifier(classifier),
	}

	d := &deps{store: store}
	if cfg.Ledger.Driver != "" {
		db, err := sql.Open(cfg.Ledger.Driver, cfg.Ledger.DSN)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		ledger := rx.NewSQLLedger(db, cfg.Ledger.Driver)
		if err := ledger.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		d.db = db
		opts = append(opts, rx.WithLedger(ledger))
	}
	d.backend = rx.NewBackend(store, opts...)
	return d, nil
}

func (d *deps) close(ctx context.Context, logger *slog.Logger) {
	if err := d.store.Close(); err != nil {
		logger.ErrorContext(ctx, "close redis failed", "error", err)
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			logger.ErrorContext(ctx, "close ledger failed", "error", err)
		}
	}
}

func runWorker(ctx context.Context, cfg config.Config, d *deps) error {
	redisOpt, err := cfg.Redis.AsynqOpt()
	if err != nil {
		return err
	}
	p := resultx.NewProcessor(redisOpt, d.backend, resultx.ProcessorConfig{
		Concurrency: cfg.Broker.Concurrency,
		Queues:      map[string]int{cfg.Broker.Queue: 1},
	})
	tasks.Register(p)
	return p.ConsumeFrom(ctx, cfg.Broker.Queue)
}

func runClient(ctx context.Context, cfg config.Config, d *deps, names []string) error {
	redisOpt, err := cfg.Redis.AsynqOpt()
	if err != nil {
		return err
	}
	client := rx.NewClientWithBackend(rx.NewAsynqBroker(redisOpt, cfg.Broker.Queue), d.backend)
	defer client.Close()

	if len(names) == 0 {
		names = tasks.Names
	}
	selected, err := selectChecks(names)
	if err != nil {
		return err
	}
	policy := waitPolicy{wait: cfg.Results.Wait, cleanup: cfg.Results.Cleanup}
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		check := selected[i]
		g.Go(func() error {
			d.backend.Logger().InfoContext(gctx, "running task", "name", name)
			if err := check(gctx, client, policy); err != nil {
				return fmt.Errorf("task %s: %w", name, err)
			}
			d.backend.Logger().InfoContext(gctx, "task succeeded", "name", name)
			return nil
		})
	}
	return g.Wait()
}
