// Package tasks is the demo task set shared by the worker and the client:
// one success, one deliberate failure, one defect and one time-limit
// violation.
package tasks

import (
	"context"
	"time"

	"github.com/mohans/resultx"
	rx "github.com/mohans/resultx/resultx"
)

// AddArgs are the operands of Add.
type AddArgs struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// None is the argument and result of tasks that take or return nothing.
type None struct{}

var (
	Add               = rx.Define[AddArgs, int]("add", rx.WithTimeLimit(time.Second))
	ExpectedFailure   = rx.Define[None, int]("expected_failure", rx.WithTimeLimit(time.Second))
	UnexpectedFailure = rx.Define[None, int]("unexpected_failure", rx.WithTimeLimit(time.Second))
	TaskWithTimeout   = rx.Define[None, None]("task_with_timeout", rx.WithTimeLimit(time.Second))
)

// Names lists every task in the set.
var Names = []string{
	Add.Name(),
	ExpectedFailure.Name(),
	UnexpectedFailure.Name(),
	TaskWithTimeout.Name(),
}

// SleepFor is how long TaskWithTimeout runs, longer than its time limit.
var SleepFor = 2 * time.Second

// Register installs the implementations of every task on p.
func Register(p *resultx.Processor) {
	resultx.Handle(p, Add, add)
	resultx.Handle(p, ExpectedFailure, expectedFailure)
	resultx.Handle(p, UnexpectedFailure, unexpectedFailure)
	resultx.Handle(p, TaskWithTimeout, taskWithTimeout)
}

func add(_ context.Context, args AddArgs) (int, error) {
	return args.X + args.Y, nil
}

func expectedFailure(context.Context, None) (int, error) {
	return 0, rx.Expected("failure expected")
}

func unexpectedFailure(context.Context, None) (int, error) {
	return 0, rx.Unexpected("failure unexpected")
}

func taskWithTimeout(ctx context.Context, _ None) (None, error) {
	select {
	case <-time.After(SleepFor):
		return None{}, nil
	case <-ctx.Done():
		return None{}, ctx.Err()
	}
}
