package resultx

import (
	"context"
	"encoding/json"
	"time"
)

// Defaults applied to every Definition unless overridden.
const (
	DefaultWaitDuration = 10 * time.Second
	DefaultCleanup      = true
)

// Definition describes a task type taking A and producing R. The zero
// policy is DefaultWaitDuration and DefaultCleanup; each task type may
// override them with DefinitionOptions.
type Definition[A, R any] struct {
	name   string
	policy definitionPolicy
}

// DefinitionOption overrides part of a Definition's policy.
type DefinitionOption func(*definitionPolicy)

type definitionPolicy struct {
	queue        string
	timeLimit    time.Duration
	maxRetry     int
	waitDuration time.Duration
	cleanup      bool
}

// WithQueue routes the task to queue.
func WithQueue(queue string) DefinitionOption {
	return func(p *definitionPolicy) { p.queue = queue }
}

// WithTimeLimit bounds execution time on the worker.
func WithTimeLimit(d time.Duration) DefinitionOption {
	return func(p *definitionPolicy) { p.timeLimit = d }
}

// WithMaxRetry lets the broker retry unexpected failures n times.
func WithMaxRetry(n int) DefinitionOption {
	return func(p *definitionPolicy) { p.maxRetry = n }
}

// WithWaitDuration sets how long WaitForResult waits.
func WithWaitDuration(d time.Duration) DefinitionOption {
	return func(p *definitionPolicy) { p.waitDuration = d }
}

// WithCleanup sets whether WaitForResult deletes a successfully read result.
func WithCleanup(cleanup bool) DefinitionOption {
	return func(p *definitionPolicy) { p.cleanup = cleanup }
}

// Define declares a task type registered under name.
func Define[A, R any](name string, opts ...DefinitionOption) Definition[A, R] {
	p := definitionPolicy{waitDuration: DefaultWaitDuration, cleanup: DefaultCleanup}
	for _, opt := range opts {
		opt(&p)
	}
	if p.waitDuration <= 0 {
		p.waitDuration = DefaultWaitDuration
	}
	return Definition[A, R]{name: name, policy: p}
}

func (d Definition[A, R]) Name() string                { return d.name }
func (d Definition[A, R]) Queue() string               { return d.policy.queue }
func (d Definition[A, R]) TimeLimit() time.Duration    { return d.policy.timeLimit }
func (d Definition[A, R]) WaitDuration() time.Duration { return d.policy.waitDuration }
func (d Definition[A, R]) Cleanup() bool               { return d.policy.cleanup }

// Signature builds the broker signature for args.
func (d Definition[A, R]) Signature(args A) (Signature, error) {
	sig, err := NewSignature(d.name, args)
	if err != nil {
		return Signature{}, err
	}
	sig.Queue = d.policy.queue
	sig.TimeLimit = d.policy.timeLimit
	sig.MaxRetry = d.policy.maxRetry
	return sig, nil
}

// DecodeArgs decodes a signature payload produced by Signature.
func (d Definition[A, R]) DecodeArgs(payload []byte) (A, error) {
	var args A
	if err := json.Unmarshal(payload, &args); err != nil {
		return args, newError(ErrCodeSerialization, "", err, "decode arguments of %s", d.name)
	}
	return args, nil
}

// Start submits a run of the task with args.
func (d Definition[A, R]) Start(ctx context.Context, c *Client, args A) (*Task[A, R], error) {
	sig, err := d.Signature(args)
	if err != nil {
		return nil, err
	}
	id, err := c.Send(ctx, sig)
	if err != nil {
		return nil, err
	}
	return d.Bind(c.Backend(), id), nil
}

// Bind returns the handle of an already submitted run. Workers use it to
// store the result of the run they execute.
func (d Definition[A, R]) Bind(b *Backend, taskID string) *Task[A, R] {
	return &Task[A, R]{id: taskID, def: d, backend: b}
}

// Task is the handle of one submitted run.
type Task[A, R any] struct {
	id      string
	def     Definition[A, R]
	backend *Backend
}

func (t *Task[A, R]) ID() string { return t.id }

func (t *Task[A, R]) Definition() Definition[A, R] { return t.def }

// StoreResult writes a Success envelope carrying result and returns result.
func (t *Task[A, R]) StoreResult(ctx context.Context, result R) (R, error) {
	t.backend.logger.DebugContext(ctx, "storing task result", "task_id", t.id)
	if err := t.backend.Put(ctx, t.id, Success(t.id, result)); err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}

// WaitForResult waits for the outcome of the run using the definition's
// wait duration and cleanup policy.
func (t *Task[A, R]) WaitForResult(ctx context.Context) (R, error) {
	return Await[R](ctx, t.backend, t.id, t.def.WaitDuration(), t.def.Cleanup())
}
