package resultx

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohans/resultx/resultx"
)

func TestFailureRecord(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		err       error
		excType   string
		message   string
		retryable bool
	}{
		{"expected", resultx.Expected("no stock"), resultx.ExcTypeExpected, "no stock", false},
		{"wrapped expected", fmt.Errorf("reserve: %w", resultx.Expected("no stock")), resultx.ExcTypeExpected, "reserve: no stock", false},
		{"unexpected", resultx.Unexpected("boom"), resultx.ExcTypeUnexpected, "boom", true},
		{"plain error", errors.New("nil map"), resultx.ExcTypeUnexpected, "nil map", true},
		{"deadline", context.DeadlineExceeded, resultx.ExcTypeTimeLimit, "task exceeded its time limit", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, retryable := failureRecord(ctx, "t1", tt.err)
			assert.Equal(t, tt.retryable, retryable)
			assert.Equal(t, "t1", rec.TaskID)
			assert.Equal(t, resultx.StatusFailure, rec.Status)
			assert.Equal(t, tt.excType, rec.Exception.Type)
			assert.Equal(t, resultx.NativeModule, rec.Exception.Module)
			assert.Equal(t, tt.message, rec.Exception.Message.Flatten())
			assert.NotNil(t, rec.DateDone)
		})
	}
}

func TestFailureRecord_PanicCarriesStack(t *testing.T) {
	rec, retryable := failureRecord(context.Background(), "t1", &panicError{value: "index out of range", stack: []byte("goroutine 1 [running]:")})
	require.True(t, retryable)
	assert.Equal(t, resultx.ExcTypeUnexpected, rec.Exception.Type)
	assert.Equal(t, "panic: index out of range", rec.Exception.Message.Flatten())
	assert.Contains(t, string(rec.Exception.Traceback), "goroutine 1")
}

func TestFailureRecord_ClassifiesBack(t *testing.T) {
	c := resultx.NewClassifier()
	expected, _ := failureRecord(context.Background(), "t1", resultx.Expected("x"))
	assert.Equal(t, resultx.KindExpected, c.Classify(expected).Kind)

	unexpected, _ := failureRecord(context.Background(), "t1", errors.New("x"))
	assert.Equal(t, resultx.KindUnexpected, c.Classify(unexpected).Kind)

	limit, _ := failureRecord(context.Background(), "t1", context.DeadlineExceeded)
	assert.True(t, c.Classify(limit).TimeLimit())
}

func TestLastAttempt_WithoutAsynqContext(t *testing.T) {
	assert.True(t, lastAttempt(context.Background()))
}
