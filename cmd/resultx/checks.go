package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	rx "github.com/mohans/resultx/resultx"
	"github.com/mohans/resultx/tasks"
)

type check func(ctx context.Context, c *rx.Client, p waitPolicy) error

// waitPolicy overrides the task definition's wait duration and cleanup
// flag where set.
type waitPolicy struct {
	wait    *time.Duration
	cleanup *bool
}

func wait[A, R any](ctx context.Context, task *rx.Task[A, R], c *rx.Client, p waitPolicy) (R, error) {
	if p.wait == nil && p.cleanup == nil {
		return task.WaitForResult(ctx)
	}
	d, cleanup := task.Definition().WaitDuration(), task.Definition().Cleanup()
	if p.wait != nil {
		d = *p.wait
	}
	if p.cleanup != nil {
		cleanup = *p.cleanup
	}
	return rx.Await[R](ctx, c.Backend(), task.ID(), d, cleanup)
}

var checks = map[string]check{
	tasks.Add.Name(): func(ctx context.Context, c *rx.Client, p waitPolicy) error {
		task, err := tasks.Add.Start(ctx, c, tasks.AddArgs{X: 1, Y: 2})
		if err != nil {
			return err
		}
		got, err := wait(ctx, task, c, p)
		if err != nil {
			return err
		}
		if got != 3 {
			return fmt.Errorf("add(1, 2) = %d", got)
		}
		return nil
	},
	tasks.ExpectedFailure.Name(): func(ctx context.Context, c *rx.Client, p waitPolicy) error {
		task, err := tasks.ExpectedFailure.Start(ctx, c, tasks.None{})
		if err != nil {
			return err
		}
		_, err = wait(ctx, task, c, p)
		return expectFailure(err, func(f *rx.TaskFailure) bool { return f.Kind != rx.KindUnexpected })
	},
	tasks.UnexpectedFailure.Name(): func(ctx context.Context, c *rx.Client, p waitPolicy) error {
		task, err := tasks.UnexpectedFailure.Start(ctx, c, tasks.None{})
		if err != nil {
			return err
		}
		_, err = wait(ctx, task, c, p)
		return expectFailure(err, func(f *rx.TaskFailure) bool { return f.Kind != rx.KindExpected })
	},
	tasks.TaskWithTimeout.Name(): func(ctx context.Context, c *rx.Client, p waitPolicy) error {
		task, err := tasks.TaskWithTimeout.Start(ctx, c, tasks.None{})
		if err != nil {
			return err
		}
		_, err = wait(ctx, task, c, p)
		return expectFailure(err, func(f *rx.TaskFailure) bool { return f.TimeLimit() })
	},
}

// selectChecks resolves every name before any task is submitted.
func selectChecks(names []string) ([]check, error) {
	selected := make([]check, 0, len(names))
	for _, name := range names {
		c, ok := checks[name]
		if !ok {
			return nil, fmt.Errorf("unknown task %q (valid: %v)", name, tasks.Names)
		}
		selected = append(selected, c)
	}
	return selected, nil
}

// expectFailure accepts err only if it is a task failure satisfying ok.
// Foreign workers report their own failures as KindOther, so the checks
// only reject the opposite native kind.
func expectFailure(err error, ok func(*rx.TaskFailure) bool) error {
	if err == nil {
		return errors.New("task succeeded, failure expected")
	}
	failure, isFailure := rx.AsTaskFailure(err)
	if !isFailure {
		return err
	}
	if !ok(failure) {
		return fmt.Errorf("unexpected failure classification %s: %w", failure.Kind, err)
	}
	return nil
}
