package resultx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// DefaultQueue is the queue tasks are routed to when none is given.
const DefaultQueue = "celery"

// Signature names a task to run with its arguments.
type Signature struct {
	Name  string
	Args  json.RawMessage
	Queue string
	// TimeLimit bounds the execution time on the worker; zero means the
	// worker default.
	TimeLimit time.Duration
	MaxRetry  int
}

// NewSignature encodes args as the JSON payload of a signature.
func NewSignature(name string, args any) (Signature, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return Signature{}, newError(ErrCodeSerialization, "", err, "encode arguments of %s", name)
	}
	return Signature{Name: name, Args: payload}, nil
}

// Broker hands signatures to workers.
type Broker interface {
	// Send submits sig and returns the id its outcome will be stored under.
	Send(ctx context.Context, sig Signature) (string, error)
	Close() error
}

// AsynqBroker submits signatures through asynq.
type AsynqBroker struct {
	client *asynq.Client
	queue  string
}

// NewAsynqBroker connects to the asynq broker at redisOpt. Signatures
// without a queue go to queue, or DefaultQueue if it is empty.
func NewAsynqBroker(redisOpt asynq.RedisConnOpt, queue string) *AsynqBroker {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AsynqBroker{client: asynq.NewClient(redisOpt), queue: queue}
}

// Send enqueues sig under a fresh random task id.
func (b *AsynqBroker) Send(ctx context.Context, sig Signature) (string, error) {
	if b.client == nil {
		return "", newError(ErrCodeSubmission, "", nil, "nil asynq client")
	}
	queue := sig.Queue
	if queue == "" {
		queue = b.queue
	}
	id := uuid.NewString()
	opts := []asynq.Option{
		asynq.TaskID(id),
		asynq.Queue(queue),
		asynq.MaxRetry(sig.MaxRetry),
	}
	if sig.TimeLimit > 0 {
		opts = append(opts, asynq.Timeout(sig.TimeLimit))
	}
	info, err := b.client.EnqueueContext(ctx, asynq.NewTask(sig.Name, sig.Args), opts...)
	if err != nil {
		return "", newError(ErrCodeSubmission, id, err, "enqueue %s", sig.Name)
	}
	return info.ID, nil
}

func (b *AsynqBroker) Close() error {
	if b.client != nil {
		if err := b.client.Close(); err != nil {
			return fmt.Errorf("close asynq client: %w", err)
		}
	}
	return nil
}
