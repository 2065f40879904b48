// Package resultx submits tasks to an asynq broker and retrieves their
// outcomes from a Celery-compatible Redis result backend.
//
// Outcomes are JSON objects stored under "celery-task-meta-<task id>". A
// success is a ResultEnvelope; a failure is a FailureRecord whose exception
// message may be a string, a nested list or any JSON value. Both shapes
// share one key and are told apart at read time.
//
// Quick start:
//  1. Build a Store with NewRedisStore and a Broker with NewAsynqBroker.
//  2. Create a Client with NewClient(broker, store, ...).
//  3. Declare task types with Define and submit them with Definition.Start.
//  4. Call Task.WaitForResult; failures come back as *TaskFailure with a
//     Classification and the full FailureRecord, other problems as *Error.
package resultx
