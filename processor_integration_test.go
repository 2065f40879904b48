package resultx_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	_ "modernc.org/sqlite"

	"github.com/mohans/resultx"
	rx "github.com/mohans/resultx/resultx"
	"github.com/mohans/resultx/tasks"
)

func openTestLedger(t *testing.T) *rx.SQLLedger {
	t.Helper()
	db, err := sql.Open("sqlite", "file:resultx_it?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	ledger := rx.NewSQLLedger(db, "sqlite")
	if err := ledger.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return ledger
}

func pollUntil(t *testing.T, timeout time.Duration, f func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := f()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("timeout")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func startWorker(t *testing.T) (*rx.Client, *rx.SQLLedger, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	ledger := openTestLedger(t)

	store, err := rx.NewRedisStore(rx.StoreConfig{Addr: s.Addr()})
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	backend := rx.NewBackend(store, rx.WithLedger(ledger), rx.WithPollInterval(20*time.Millisecond))

	redisOpt := asynq.RedisClientOpt{Addr: s.Addr()}
	processor := resultx.NewProcessor(redisOpt, backend, resultx.ProcessorConfig{Concurrency: 5})
	tasks.Register(processor)
	if err := processor.Start(); err != nil {
		t.Fatalf("start processor: %v", err)
	}
	t.Cleanup(processor.Shutdown)

	client := rx.NewClientWithBackend(rx.NewAsynqBroker(redisOpt, ""), backend)
	t.Cleanup(func() { _ = client.Close() })
	return client, ledger, s
}

func TestProcessor_Integration_Add(t *testing.T) {
	client, ledger, s := startWorker(t)
	ctx := context.Background()

	task, err := tasks.Add.Start(ctx, client, tasks.AddArgs{X: 1, Y: 2})
	if err != nil {
		t.Fatalf("start add: %v", err)
	}
	got, err := task.WaitForResult(ctx)
	if err != nil {
		t.Fatalf("wait add: %v", err)
	}
	if got != 3 {
		t.Fatalf("want 3 got %d", got)
	}
	if s.Exists("celery-task-meta-" + task.ID()) {
		t.Fatalf("result of %s was not cleaned up", task.ID())
	}

	entry, err := ledger.Get(ctx, task.ID())
	if err != nil {
		t.Fatalf("ledger get: %v", err)
	}
	if entry.Status != rx.StatusSuccess || entry.Name != "add" {
		t.Fatalf("unexpected ledger entry: %#v", entry)
	}
}

func TestProcessor_Integration_Failures(t *testing.T) {
	client, ledger, _ := startWorker(t)
	ctx := context.Background()

	expected, err := tasks.ExpectedFailure.Start(ctx, client, tasks.None{})
	if err != nil {
		t.Fatalf("start expected_failure: %v", err)
	}
	unexpected, err := tasks.UnexpectedFailure.Start(ctx, client, tasks.None{})
	if err != nil {
		t.Fatalf("start unexpected_failure: %v", err)
	}

	_, err = expected.WaitForResult(ctx)
	failure, ok := rx.AsTaskFailure(err)
	if !ok || failure.Kind != rx.KindExpected {
		t.Fatalf("want expected failure, got %v", err)
	}
	if failure.Message() != "failure expected" {
		t.Fatalf("unexpected message %q", failure.Message())
	}

	_, err = unexpected.WaitForResult(ctx)
	failure, ok = rx.AsTaskFailure(err)
	if !ok || failure.Kind != rx.KindUnexpected {
		t.Fatalf("want unexpected failure, got %v", err)
	}

	if err := pollUntil(t, 3*time.Second, func() (bool, error) {
		entry, err := ledger.Get(ctx, unexpected.ID())
		if err != nil {
			return false, nil
		}
		return entry.Status == rx.StatusFailure && entry.FinishedAt != nil, nil
	}); err != nil {
		t.Fatalf("unexpected_failure not finished in ledger: %v", err)
	}
}

func TestProcessor_Integration_TimeLimit(t *testing.T) {
	client, _, _ := startWorker(t)
	ctx := context.Background()

	task, err := tasks.TaskWithTimeout.Start(ctx, client, tasks.None{})
	if err != nil {
		t.Fatalf("start task_with_timeout: %v", err)
	}
	_, err = task.WaitForResult(ctx)
	failure, ok := rx.AsTaskFailure(err)
	if !ok {
		t.Fatalf("want task failure, got %v", err)
	}
	if failure.Kind != rx.KindOther || !failure.TimeLimit() {
		t.Fatalf("want time limit failure, got %+v", failure.Classification)
	}
}

func TestProcessor_StartTwice(t *testing.T) {
	s := miniredis.RunT(t)
	store, err := rx.NewRedisStore(rx.StoreConfig{Addr: s.Addr()})
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	defer store.Close()

	p := resultx.NewProcessor(asynq.RedisClientOpt{Addr: s.Addr()}, rx.NewBackend(store), resultx.ProcessorConfig{})
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Shutdown()
	if err := p.Start(); err == nil {
		t.Fatal("second start should fail")
	}
}
