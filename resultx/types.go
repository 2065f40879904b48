package resultx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Status is the state discriminator stored with every task outcome.
// Values follow the Celery state names so records written by other
// producers on the same backend are understood.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusReceived Status = "RECEIVED"
	StatusStarted  Status = "STARTED"
	StatusSuccess  Status = "SUCCESS"
	StatusFailure  Status = "FAILURE"
	StatusRetry    Status = "RETRY"
	StatusRevoked  Status = "REVOKED"
)

// Terminal reports whether no further state change is expected for a task
// in this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusRevoked:
		return true
	default:
		return false
	}
}

// timestampLayout is the naive UTC layout written for date_done.
const timestampLayout = "2006-01-02T15:04:05.000000"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// Timestamp is a completion time. It is always encoded as naive UTC and
// decoded from any of the ISO-8601 shapes producers are known to write.
type Timestamp struct {
	time.Time
}

// Now returns the current time as a Timestamp.
func Now() *Timestamp {
	return &Timestamp{Time: time.Now().UTC()}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(timestampLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised layout %q", s)
}

func (t Timestamp) String() string {
	return t.UTC().Format(timestampLayout)
}

// ResultEnvelope is the persisted success outcome of a task.
type ResultEnvelope[T any] struct {
	TaskID    string     `json:"task_id"`
	Status    Status     `json:"status"`
	Result    T          `json:"result"`
	Traceback *string    `json:"traceback"`
	DateDone  *Timestamp `json:"date_done"`
	Children  []string   `json:"children"`
}

// Success builds a Success envelope stamped with the current time.
func Success[T any](taskID string, result T) ResultEnvelope[T] {
	return ResultEnvelope[T]{
		TaskID:   taskID,
		Status:   StatusSuccess,
		Result:   result,
		DateDone: Now(),
		Children: []string{},
	}
}

// FailureRecord is the persisted failure outcome of a task. It is stored
// under the same key a ResultEnvelope would have been.
type FailureRecord struct {
	TaskID    string        `json:"task_id"`
	Status    Status        `json:"status"`
	Exception ExceptionInfo `json:"result"`
	Traceback LooseText     `json:"traceback"`
	DateDone  *Timestamp    `json:"date_done"`
}

// ExceptionInfo describes the exception raised by a failed task.
type ExceptionInfo struct {
	Type      string      `json:"exc_type"`
	Module    string      `json:"exc_module"`
	Message   MessagePart `json:"exc_message"`
	Cause     LooseText   `json:"exc_cause,omitempty"`
	Traceback LooseText   `json:"exc_traceback,omitempty"`
}

// LooseText is an optional free-text field. Foreign producers write it as a
// string, a list of lines, a scalar or null; all normalise to text.
type LooseText string

func (l LooseText) MarshalJSON() ([]byte, error) {
	if l == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(l))
}

func (l *LooseText) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch tv := v.(type) {
	case nil:
		*l = ""
	case []any:
		lines := make([]string, 0, len(tv))
		for _, item := range tv {
			s, err := cast.ToStringE(item)
			if err != nil {
				return fmt.Errorf("text line: %w", err)
			}
			lines = append(lines, s)
		}
		*l = LooseText(strings.Join(lines, "\n"))
	default:
		s, err := cast.ToStringE(tv)
		if err != nil {
			return fmt.Errorf("text: %w", err)
		}
		*l = LooseText(s)
	}
	return nil
}
