package resultx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LedgerEntry is the audit trail of one submission. The result store holds
// the outcome itself and may expire or clean it up; the ledger keeps a
// record of what was submitted and how it ended.
type LedgerEntry struct {
	TaskID      string
	Name        string
	Queue       string
	ArgsJSON    string
	Status      Status
	Detail      *string // failure summary, if any
	SubmittedAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

// Ledger persists task lifecycle records.
// Implementations must be safe for concurrent use.
type Ledger interface {
	RecordSubmitted(ctx context.Context, entry LedgerEntry) error
	RecordStarted(ctx context.Context, taskID string, startedAt time.Time) error
	// RecordFinished sets the final status. It is a no-op for entries that
	// are already finished, so a worker and a client may both report.
	RecordFinished(ctx context.Context, taskID string, status Status, detail string, finishedAt time.Time) error
	Get(ctx context.Context, taskID string) (*LedgerEntry, error)
}

// ErrLedgerEntryNotFound is returned by Ledger.Get for unknown task ids.
var ErrLedgerEntryNotFound = errors.New("ledger entry not found")

// LedgerSchema creates the ledger table. It is valid for SQLite and Postgres.
const LedgerSchema = `
CREATE TABLE IF NOT EXISTS resultx_tasks (
    id           VARCHAR(64)  PRIMARY KEY,
    name         VARCHAR(255) NOT NULL,
    queue        VARCHAR(64)  NOT NULL,
    args_json    TEXT         NOT NULL,
    status       VARCHAR(32)  NOT NULL,
    detail       TEXT         NULL,
    submitted_at TIMESTAMP    NOT NULL,
    started_at   TIMESTAMP    NULL,
    finished_at  TIMESTAMP    NULL
);
`

// SQLLedger is a Ledger on database/sql. Placeholders are rewritten for the
// driver: `?` for SQLite and MySQL, `$n` for Postgres drivers.
type SQLLedger struct {
	db     *sql.DB
	dollar bool
}

// NewSQLLedger wraps db opened with the named driver.
func NewSQLLedger(db *sql.DB, driver string) *SQLLedger {
	switch driver {
	case "pgx", "postgres", "pq":
		return &SQLLedger{db: db, dollar: true}
	default:
		return &SQLLedger{db: db}
	}
}

// Migrate creates the ledger table if it does not exist.
func (l *SQLLedger) Migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, LedgerSchema); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	return nil
}

func (l *SQLLedger) rebind(query string) string {
	if !l.dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (l *SQLLedger) exec(ctx context.Context, query string, args ...any) error {
	if l.db == nil {
		return errors.New("nil db")
	}
	_, err := l.db.ExecContext(ctx, l.rebind(query), args...)
	return err
}

func (l *SQLLedger) RecordSubmitted(ctx context.Context, entry LedgerEntry) error {
	status := entry.Status
	if status == "" {
		status = StatusPending
	}
	submittedAt := entry.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}
	q := `INSERT INTO resultx_tasks (id, name, queue, args_json, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	return l.exec(ctx, q, entry.TaskID, entry.Name, entry.Queue, entry.ArgsJSON, string(status), submittedAt.UTC())
}

func (l *SQLLedger) RecordStarted(ctx context.Context, taskID string, startedAt time.Time) error {
	q := `UPDATE resultx_tasks SET status = ?, started_at = ? WHERE id = ? AND finished_at IS NULL`
	return l.exec(ctx, q, string(StatusStarted), startedAt.UTC(), taskID)
}

func (l *SQLLedger) RecordFinished(ctx context.Context, taskID string, status Status, detail string, finishedAt time.Time) error {
	var d *string
	if detail != "" {
		d = &detail
	}
	q := `UPDATE resultx_tasks SET status = ?, detail = ?, finished_at = ? WHERE id = ? AND finished_at IS NULL`
	return l.exec(ctx, q, string(status), d, finishedAt.UTC(), taskID)
}

func (l *SQLLedger) Get(ctx context.Context, taskID string) (*LedgerEntry, error) {
	if l.db == nil {
		return nil, errors.New("nil db")
	}
	q := `SELECT id, name, queue, args_json, status, detail, submitted_at, started_at, finished_at
		FROM resultx_tasks WHERE id = ?`
	row := l.db.QueryRowContext(ctx, l.rebind(q), taskID)
	entry := LedgerEntry{}
	var status string
	var detail sql.NullString
	var startedAt, finishedAt sql.NullTime
	if err := row.Scan(&entry.TaskID, &entry.Name, &entry.Queue, &entry.ArgsJSON, &status, &detail, &entry.SubmittedAt, &startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrLedgerEntryNotFound, taskID)
		}
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}
	entry.Status = Status(status)
	if detail.Valid {
		v := detail.String
		entry.Detail = &v
	}
	if startedAt.Valid {
		t := startedAt.Time
		entry.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		entry.FinishedAt = &t
	}
	return &entry, nil
}
