package resultx

import (
	"fmt"
	"strings"
)

// String renders the record for humans: a header with task id, status and
// completion time, the exception type and module, the message one leaf per
// line, then any tracebacks.
func (r *FailureRecord) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "task failed task_id=%s status=%s", r.TaskID, r.Status)
	if r.DateDone != nil {
		fmt.Fprintf(&b, " time=%s", r.DateDone)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s: %s\n", r.Exception.Type, r.Exception.Module)
	r.Exception.Message.write(&b, 0)
	if r.Exception.Traceback != "" {
		fmt.Fprintf(&b, "exc traceback: %s\n", r.Exception.Traceback)
	}
	if r.Traceback != "" {
		fmt.Fprintf(&b, "traceback: %s\n", r.Traceback)
	}
	return b.String()
}
