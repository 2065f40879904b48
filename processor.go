package resultx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/mohans/resultx/resultx"
)

// Processor executes registered task definitions consumed from the broker
// and writes their outcomes to the result backend.
type Processor struct {
	redisOpt asynq.RedisConnOpt
	cfg      ProcessorConfig
	backend  *resultx.Backend
	mux      *asynq.ServeMux
	logger   *slog.Logger

	mu     sync.Mutex
	server *asynq.Server
}

type ProcessorConfig struct {
	Concurrency int
	// Queues maps queue names to priority; used when ConsumeFrom or Start
	// get no queue names.
	Queues          map[string]int
	ShutdownTimeout time.Duration
}

func NewProcessor(redisOpt asynq.RedisConnOpt, backend *resultx.Backend, cfg ProcessorConfig) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Queues == nil {
		cfg.Queues = map[string]int{resultx.DefaultQueue: 1}
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 8 * time.Second
	}
	return &Processor{
		redisOpt: redisOpt,
		cfg:      cfg,
		backend:  backend,
		mux:      asynq.NewServeMux(),
		logger:   backend.Logger(),
	}
}

// HandlerFunc runs one task with decoded arguments. Return resultx.Expected
// for deliberate business failures; any other error is unexpected.
type HandlerFunc[A, R any] func(ctx context.Context, args A) (R, error)

// Handle registers fn as the implementation of def. Must be called before
// Start.
func Handle[A, R any](p *Processor, def resultx.Definition[A, R], fn HandlerFunc[A, R]) {
	p.mux.HandleFunc(def.Name(), func(ctx context.Context, t *asynq.Task) (err error) {
		id, _ := asynq.GetTaskID(ctx)
		defer func() {
			if r := recover(); r != nil {
				err = p.fail(ctx, id, &panicError{value: r, stack: debug.Stack()})
			}
		}()

		args, err := def.DecodeArgs(t.Payload())
		if err != nil {
			return p.fail(ctx, id, resultx.Unexpected(err.Error()))
		}
		result, err := fn(ctx, args)
		if err != nil {
			return p.fail(ctx, id, err)
		}
		// a result produced after the time limit is a time-limit failure
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return p.fail(ctx, id, ctx.Err())
		}
		if _, err := def.Bind(p.backend, id).StoreResult(context.WithoutCancel(ctx), result); err != nil {
			return fmt.Errorf("store result of %s: %w", id, err)
		}
		return nil
	})
}

// fail writes the failure record of a run. Records of runs asynq will retry
// carry RETRY status so waiting clients keep polling.
func (p *Processor) fail(ctx context.Context, id string, err error) error {
	rec, retryable := failureRecord(ctx, id, err)
	if retryable && !lastAttempt(ctx) {
		rec.Status = resultx.StatusRetry
	}
	if serr := p.backend.StoreFailure(context.WithoutCancel(ctx), rec); serr != nil {
		p.logger.ErrorContext(ctx, "store task failure", "task_id", id, "error", serr)
	}
	if !retryable {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func lastAttempt(ctx context.Context) bool {
	retried, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	return !ok1 || !ok2 || retried >= maxRetry
}

// failureRecord tags err with the exception type the classifier maps back
// to its kind. Expected failures and time-limit violations are final.
func failureRecord(ctx context.Context, id string, err error) (*resultx.FailureRecord, bool) {
	exc := resultx.ExceptionInfo{
		Module:  resultx.NativeModule,
		Message: resultx.TextPart(err.Error()),
	}
	retryable := false
	var taskErr *resultx.TaskError
	var pe *panicError
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		exc.Type = resultx.ExcTypeTimeLimit
		exc.Message = resultx.TextPart("task exceeded its time limit")
	case errors.As(err, &taskErr) && taskErr.Kind == resultx.KindExpected:
		exc.Type = resultx.ExcTypeExpected
	case errors.As(err, &pe):
		exc.Type = resultx.ExcTypeUnexpected
		exc.Traceback = resultx.LooseText(pe.stack)
		retryable = true
	default:
		exc.Type = resultx.ExcTypeUnexpected
		retryable = true
	}
	return &resultx.FailureRecord{
		TaskID:    id,
		Status:    resultx.StatusFailure,
		Exception: exc,
		DateDone:  resultx.Now(),
	}, retryable
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// lifecycleMiddleware marks runs started and finished in the ledger.
func (p *Processor) lifecycleMiddleware(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		id, ok := asynq.GetTaskID(ctx)
		if ok {
			p.backend.RecordStarted(ctx, id)
			p.logger.DebugContext(ctx, "task started", "task_id", id, "name", t.Type())
		}
		err := next.ProcessTask(ctx, t)
		if ok {
			// a ledger write must not fail because the run hit its deadline
			lctx := context.WithoutCancel(ctx)
			switch {
			case err == nil:
				p.backend.RecordFinished(lctx, id, resultx.StatusSuccess, "")
			case errors.Is(err, asynq.SkipRetry) || lastAttempt(ctx):
				p.backend.RecordFinished(lctx, id, resultx.StatusFailure, err.Error())
			}
		}
		return err
	})
}

// Start consumes queues in the background. With no queue names the
// configured queues are used.
func (p *Processor) Start(queues ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.server != nil {
		return errors.New("processor already started")
	}
	qs := p.cfg.Queues
	if len(queues) > 0 {
		qs = make(map[string]int, len(queues))
		for _, q := range queues {
			qs[q] = 1
		}
	}
	server := asynq.NewServer(p.redisOpt, asynq.Config{
		Concurrency:     p.cfg.Concurrency,
		Queues:          qs,
		ShutdownTimeout: p.cfg.ShutdownTimeout,
		Logger:          asynqLogger{p.logger},
	})
	if err := server.Start(p.lifecycleMiddleware(p.mux)); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	p.server = server
	return nil
}

// Shutdown stops consuming and waits for in-flight runs.
func (p *Processor) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.server != nil {
		p.server.Shutdown()
		p.server = nil
	}
}

// ConsumeFrom consumes queues until ctx is done.
func (p *Processor) ConsumeFrom(ctx context.Context, queues ...string) error {
	if err := p.Start(queues...); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "consuming", "queues", queues)
	<-ctx.Done()
	p.Shutdown()
	return nil
}

// asynqLogger routes asynq's logs to slog.
type asynqLogger struct {
	l *slog.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Info(args ...any)  { a.l.Info(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Error(args ...any) { a.l.Error(fmt.Sprint(args...), "component", "asynq") }

func (a asynqLogger) Fatal(args ...any) {
	a.l.Error(fmt.Sprint(args...), "component", "asynq")
	os.Exit(1)
}
