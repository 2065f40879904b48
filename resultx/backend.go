package resultx

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Option configures a Backend or a Client.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	pollInterval time.Duration
	classifier   *Classifier
	ledger       Ledger
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPollInterval sets the minimum spacing between reads while waiting.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithClassifier replaces the default failure classifier.
func WithClassifier(c *Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithLedger records submissions and outcomes in l.
func WithLedger(l Ledger) Option {
	return func(o *options) { o.ledger = l }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.classifier == nil {
		o.classifier = NewClassifier()
	}
	return o
}

// Backend reads and writes task outcomes. It is shared by the submitting
// client and the executing worker and holds no per-task state.
type Backend struct {
	store      Store
	poller     *Poller
	classifier *Classifier
	ledger     Ledger
	logger     *slog.Logger
}

// NewBackend builds a Backend over store.
func NewBackend(store Store, opts ...Option) *Backend {
	o := buildOptions(opts)
	return &Backend{
		store:      store,
		poller:     NewPoller(store, o.pollInterval, o.logger),
		classifier: o.classifier,
		ledger:     o.ledger,
		logger:     o.logger,
	}
}

func (b *Backend) Store() Store { return b.store }

func (b *Backend) Poller() *Poller { return b.poller }

func (b *Backend) Classifier() *Classifier { return b.classifier }

// Ledger returns the configured ledger, or nil.
func (b *Backend) Ledger() Ledger { return b.ledger }

func (b *Backend) Logger() *slog.Logger { return b.logger }

// Put encodes an outcome as JSON and stores it under taskID.
func (b *Backend) Put(ctx context.Context, taskID string, outcome any) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return newError(ErrCodeSerialization, taskID, err, "encode outcome")
	}
	return b.store.Put(ctx, taskID, payload)
}

// StoreFailure writes rec under its task id.
func (b *Backend) StoreFailure(ctx context.Context, rec *FailureRecord) error {
	b.logger.DebugContext(ctx, "storing task failure", "task_id", rec.TaskID, "exc_type", rec.Exception.Type)
	return b.Put(ctx, rec.TaskID, rec)
}

// Cleanup deletes the stored outcome of taskID. Failures are logged and
// never returned: the value has already been read.
func (b *Backend) Cleanup(ctx context.Context, taskID string) {
	if err := b.store.Delete(ctx, taskID); err != nil {
		b.logger.WarnContext(ctx, "cleanup of task result failed", "task_id", taskID, "error", err)
	}
}

// RecordStarted marks taskID as started in the ledger, if any.
func (b *Backend) RecordStarted(ctx context.Context, taskID string) {
	if b.ledger == nil {
		return
	}
	if err := b.ledger.RecordStarted(ctx, taskID, time.Now()); err != nil {
		b.logger.WarnContext(ctx, "ledger record started failed", "task_id", taskID, "error", err)
	}
}

// RecordFinished marks taskID as finished in the ledger, if any. Ledger
// errors are logged only.
func (b *Backend) RecordFinished(ctx context.Context, taskID string, status Status, detail string) {
	if b.ledger == nil {
		return
	}
	if err := b.ledger.RecordFinished(ctx, taskID, status, detail, time.Now()); err != nil {
		b.logger.WarnContext(ctx, "ledger record finished failed", "task_id", taskID, "error", err)
	}
}

// Await waits up to wait for the outcome of taskID and decodes it as R.
//
// A Success envelope yields its result; it is deleted afterwards when
// cleanup is set. A FailureRecord yields a *TaskFailure. Otherwise the
// error is an *Error with code timeout, canceled or backend_unavailable; a
// value matching neither shape is backend_unavailable and also IsDecode.
func Await[R any](ctx context.Context, b *Backend, taskID string, wait time.Duration, cleanup bool) (R, error) {
	var zero R
	b.logger.DebugContext(ctx, "waiting for task result", "task_id", taskID, "wait", wait)

	res := b.poller.Poll(ctx, taskID, wait)
	if res.Kind != PollFound {
		b.logger.DebugContext(ctx, "no task result", "task_id", taskID, "outcome", res.Kind, "attempts", res.Attempts)
		return zero, res.Err
	}

	env, rec, err := Decode[R](taskID, res.Value)
	if err != nil {
		return zero, err
	}
	if rec != nil {
		failure := &TaskFailure{Classification: b.classifier.Classify(rec), Record: rec}
		b.logger.DebugContext(ctx, "task failed", "task_id", taskID, "kind", failure.Kind, "exc_type", rec.Exception.Type)
		b.RecordFinished(ctx, taskID, rec.Status, failure.Message())
		return zero, failure
	}

	b.logger.DebugContext(ctx, "task result status", "task_id", taskID, "status", env.Status)
	if cleanup {
		b.Cleanup(ctx, taskID)
	}
	b.RecordFinished(ctx, taskID, StatusSuccess, "")
	return env.Result, nil
}
