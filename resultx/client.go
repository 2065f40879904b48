package resultx

import (
	"context"
	"fmt"
	"time"
)

// Client submits signatures to a Broker and reads outcomes through a
// Backend.
type Client struct {
	broker  Broker
	backend *Backend
}

// NewClient builds a Client. The options configure the Backend built over
// store.
func NewClient(broker Broker, store Store, opts ...Option) *Client {
	return &Client{broker: broker, backend: NewBackend(store, opts...)}
}

// NewClientWithBackend builds a Client sharing an existing Backend.
func NewClientWithBackend(broker Broker, backend *Backend) *Client {
	return &Client{broker: broker, backend: backend}
}

func (c *Client) Backend() *Backend { return c.backend }

// Send submits sig and returns its task id. The submission is recorded in
// the ledger when one is configured; ledger failures are only logged.
func (c *Client) Send(ctx context.Context, sig Signature) (string, error) {
	if c.broker == nil {
		return "", newError(ErrCodeSubmission, "", nil, "no broker configured")
	}
	c.backend.logger.DebugContext(ctx, "submitting task", "name", sig.Name, "queue", sig.Queue)
	id, err := c.broker.Send(ctx, sig)
	if err != nil {
		if GetCode(err) == "" {
			err = newError(ErrCodeSubmission, "", err, "send %s", sig.Name)
		}
		return "", err
	}
	if l := c.backend.ledger; l != nil {
		entry := LedgerEntry{
			TaskID:      id,
			Name:        sig.Name,
			Queue:       sig.Queue,
			ArgsJSON:    string(sig.Args),
			Status:      StatusPending,
			SubmittedAt: time.Now(),
		}
		if lerr := l.RecordSubmitted(ctx, entry); lerr != nil {
			c.backend.logger.WarnContext(ctx, "ledger record submitted failed", "task_id", id, "error", lerr)
		}
	}
	return id, nil
}

func (c *Client) Close() error {
	if c.broker == nil {
		return nil
	}
	if err := c.broker.Close(); err != nil {
		return fmt.Errorf("close broker: %w", err)
	}
	return nil
}
