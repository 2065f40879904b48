package resultx

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccess_StampsCompletionTime(t *testing.T) {
	env := Success("task-1", 3)
	assert.Equal(t, StatusSuccess, env.Status)
	assert.Equal(t, "task-1", env.TaskID)
	assert.Equal(t, 3, env.Result)
	require.NotNil(t, env.DateDone)
	assert.WithinDuration(t, time.Now(), env.DateDone.Time, time.Second)
}

func TestSuccess_EncodesCeleryShape(t *testing.T) {
	env := Success("task-1", map[string]int{"sum": 3})
	env.DateDone = &Timestamp{Time: time.Date(2024, 5, 1, 10, 11, 12, 123456000, time.UTC)}

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"task_id": "task-1",
		"status": "SUCCESS",
		"result": {"sum": 3},
		"traceback": null,
		"date_done": "2024-05-01T10:11:12.123456",
		"children": []
	}`, string(data))
}

func TestTimestamp_ParsesProducerLayouts(t *testing.T) {
	want := time.Date(2024, 5, 1, 10, 11, 12, 123456000, time.UTC)
	inputs := []string{
		`"2024-05-01T10:11:12.123456"`,
		`"2024-05-01T10:11:12.123456+00:00"`,
		`"2024-05-01T10:11:12.123456Z"`,
		`"2024-05-01 10:11:12.123456"`,
		`"2024-05-01T12:11:12.123456+02:00"`,
	}
	for _, in := range inputs {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(in), &ts), in)
		assert.True(t, want.Equal(ts.Time), "%s parsed as %s", in, ts.Time)
	}
}

func TestTimestamp_RejectsGarbage(t *testing.T) {
	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusSuccess, StatusFailure, StatusRevoked} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []Status{StatusPending, StatusReceived, StatusStarted, StatusRetry} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestLooseText_AcceptsForeignShapes(t *testing.T) {
	tests := []struct {
		raw  string
		want LooseText
	}{
		{raw: `"Traceback (most recent call last)"`, want: "Traceback (most recent call last)"},
		{raw: `null`, want: ""},
		{raw: `["line 1", "line 2"]`, want: "line 1\nline 2"},
		{raw: `42`, want: "42"},
		{raw: `true`, want: "true"},
	}
	for _, tt := range tests {
		var got LooseText
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &got), tt.raw)
		assert.Equal(t, tt.want, got)
	}
}
