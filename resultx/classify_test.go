package resultx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failureOf(excType, module, excTraceback string) *FailureRecord {
	return &FailureRecord{
		TaskID: "t",
		Status: StatusFailure,
		Exception: ExceptionInfo{
			Type:      excType,
			Module:    module,
			Message:   TextPart("boom"),
			Traceback: LooseText(excTraceback),
		},
	}
}

func TestClassifier_Defaults(t *testing.T) {
	c := NewClassifier()
	tests := []struct {
		name string
		rec  *FailureRecord
		want Classification
	}{
		{
			name: "native expected",
			rec:  failureOf(ExcTypeExpected, NativeModule, ""),
			want: Classification{Kind: KindExpected},
		},
		{
			name: "native unexpected",
			rec:  failureOf(ExcTypeUnexpected, NativeModule, ""),
			want: Classification{Kind: KindUnexpected},
		},
		{
			name: "native tag from another module is not trusted",
			rec:  failureOf(ExcTypeExpected, "celery.exceptions", ""),
			want: Classification{Kind: KindOther},
		},
		{
			name: "foreign hard time limit",
			rec:  failureOf("TimeLimitExceeded", "billiard.exceptions", ""),
			want: Classification{Kind: KindOther, Fault: FaultTimeLimit},
		},
		{
			name: "foreign soft time limit",
			rec:  failureOf("SoftTimeLimitExceeded", "celery.exceptions", ""),
			want: Classification{Kind: KindOther, Fault: FaultTimeLimit},
		},
		{
			name: "foreign generic exception",
			rec:  failureOf("Exception", "builtins", "Traceback ..."),
			want: Classification{Kind: KindOther},
		},
		{
			name: "nil record",
			rec:  nil,
			want: Classification{Kind: KindOther},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.rec))
		})
	}
}

func TestClassifier_TimeLimitFault(t *testing.T) {
	got := NewClassifier().Classify(failureOf("TimeLimitExceeded", "billiard.exceptions", ""))
	assert.Equal(t, KindOther, got.Kind)
	assert.True(t, got.TimeLimit())
}

func TestClassifier_MarkerRules(t *testing.T) {
	markers, err := MarkerRules(map[string]string{
		"BusinessRuleViolation": "expected",
		"panicked at":           "unexpected",
	})
	require.NoError(t, err)
	c := NewClassifier(append(NativeRules(), markers...)...)

	got := c.Classify(failureOf("Exception", "builtins", "raise BusinessRuleViolation('no stock')"))
	assert.Equal(t, KindExpected, got.Kind)

	// the record traceback is searched when exc_traceback is empty
	rec := failureOf("Error", "worker", "")
	rec.Traceback = "thread 'main' panicked at src/lib.rs:3:5"
	assert.Equal(t, KindUnexpected, c.Classify(rec).Kind)

	assert.Equal(t, KindOther, c.Classify(failureOf("Exception", "builtins", "plain")).Kind)
}

func TestClassifier_IsDeterministic(t *testing.T) {
	markers, err := MarkerRules(map[string]string{"alpha": "expected", "alphabet": "unexpected", "beta": "other"})
	require.NoError(t, err)
	rec := failureOf("Exception", "builtins", "alphabet beta")

	first := NewClassifier(markers...).Classify(rec)
	for i := 0; i < 50; i++ {
		rules, err := MarkerRules(map[string]string{"alpha": "expected", "alphabet": "unexpected", "beta": "other"})
		require.NoError(t, err)
		assert.Equal(t, first, NewClassifier(rules...).Classify(rec))
	}
}

func TestMarkerRules_RejectsUnknownKind(t *testing.T) {
	_, err := MarkerRules(map[string]string{"x": "fatal"})
	assert.Error(t, err)
}

func TestParseFailureKind(t *testing.T) {
	k, err := ParseFailureKind(" Expected ")
	require.NoError(t, err)
	assert.Equal(t, KindExpected, k)
}
