package resultx

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPollInterval is the minimum spacing between two reads of the same key.
const DefaultPollInterval = 50 * time.Millisecond

// PollKind is the terminal state of a Poll call.
type PollKind int

const (
	// PollFound means a terminal value was read; PollResult.Value holds it.
	PollFound PollKind = iota
	// PollTimedOut means the wait elapsed without a terminal value.
	PollTimedOut
	// PollBackendError means the store could not be read.
	PollBackendError
	// PollCanceled means the caller's context ended first.
	PollCanceled
)

func (k PollKind) String() string {
	switch k {
	case PollFound:
		return "found"
	case PollTimedOut:
		return "timed_out"
	case PollBackendError:
		return "backend_error"
	case PollCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// PollResult is the outcome of Poll. Err is set for every kind but PollFound.
type PollResult struct {
	Kind     PollKind
	Value    []byte
	Err      error
	Attempts int
}

// Poller waits for a task outcome to appear in a Store.
type Poller struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller builds a Poller reading from store. A non-positive interval
// means DefaultPollInterval.
func NewPoller(store Store, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{store: store, interval: interval, logger: logger}
}

// Poll reads taskID until a terminal value is stored or wait elapses.
// Between reads it blocks on a rate limiter, never spinning. Values in a
// non-terminal status (PENDING, STARTED, RETRY, ...) count as absent. The
// key is always read at least once, and once more at the deadline when the
// next interval would end after it.
//
// A read error is not retried. If a second read of the key returns a
// decodable FailureRecord that record is reported as found, since a
// completed failure must not be masked by a transient error.
func (p *Poller) Poll(ctx context.Context, taskID string, wait time.Duration) PollResult {
	deadline := time.Now().Add(wait)
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(p.interval), 1)
	attempts := 0
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			return p.lastRead(ctx, taskID, deadline, wait, attempts)
		}
		attempts++
		raw, ok, err := p.store.Get(waitCtx, taskID)
		if err != nil {
			if waitCtx.Err() != nil {
				return p.lastRead(ctx, taskID, deadline, wait, attempts)
			}
			return p.recoverFailure(waitCtx, taskID, err, attempts)
		}
		if p.terminal(ctx, taskID, raw, ok) {
			return PollResult{Kind: PollFound, Value: raw, Attempts: attempts}
		}
	}
}

func (p *Poller) terminal(ctx context.Context, taskID string, raw []byte, ok bool) bool {
	if !ok {
		return false
	}
	if status, perr := peekStatus(raw); perr == nil && status != "" && !status.Terminal() {
		p.logger.DebugContext(ctx, "task not finished", "task_id", taskID, "status", status)
		return false
	}
	return true
}

// lastRead sleeps until the deadline and reads the key one final time.
func (p *Poller) lastRead(ctx context.Context, taskID string, deadline time.Time, wait time.Duration, attempts int) PollResult {
	if ctx.Err() != nil {
		return p.expired(ctx, taskID, wait, attempts)
	}
	if d := time.Until(deadline); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return p.expired(ctx, taskID, wait, attempts)
		case <-timer.C:
		}
	}
	attempts++
	raw, ok, err := p.store.Get(ctx, taskID)
	if err != nil {
		if ctx.Err() != nil {
			return p.expired(ctx, taskID, wait, attempts)
		}
		return p.recoverFailure(ctx, taskID, err, attempts)
	}
	if p.terminal(ctx, taskID, raw, ok) {
		return PollResult{Kind: PollFound, Value: raw, Attempts: attempts}
	}
	return p.expired(ctx, taskID, wait, attempts)
}

func (p *Poller) expired(ctx context.Context, taskID string, wait time.Duration, attempts int) PollResult {
	if err := ctx.Err(); err != nil {
		return PollResult{
			Kind:     PollCanceled,
			Err:      newError(ErrCodeCanceled, taskID, err, "wait for result canceled"),
			Attempts: attempts,
		}
	}
	return PollResult{
		Kind:     PollTimedOut,
		Err:      newError(ErrCodeTimeout, taskID, nil, "no result after %s", wait),
		Attempts: attempts,
	}
}

func (p *Poller) recoverFailure(ctx context.Context, taskID string, readErr error, attempts int) PollResult {
	raw, ok, err := p.store.Get(ctx, taskID)
	if err == nil && ok {
		if _, decodeErr := DecodeFailure(raw); decodeErr == nil {
			p.logger.WarnContext(ctx, "read failed, failure record found on retry", "task_id", taskID, "error", readErr)
			return PollResult{Kind: PollFound, Value: raw, Attempts: attempts + 1}
		}
	}
	if GetCode(readErr) == "" {
		readErr = newError(ErrCodeBackendUnavailable, taskID, readErr, "read task result")
	}
	return PollResult{Kind: PollBackendError, Err: readErr, Attempts: attempts + 1}
}
