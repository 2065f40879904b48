package resultx

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeEnvelope decodes raw as a Success envelope carrying a T.
func DecodeEnvelope[T any](raw []byte) (*ResultEnvelope[T], error) {
	var env ResultEnvelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Status != StatusSuccess {
		return nil, fmt.Errorf("decode envelope: status %q is not %s", env.Status, StatusSuccess)
	}
	return &env, nil
}

// DecodeFailure decodes raw as a FailureRecord. A record must carry a
// non-success status and an exception type.
func DecodeFailure(raw []byte) (*FailureRecord, error) {
	var rec FailureRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode failure record: %w", err)
	}
	if rec.Status == "" || rec.Status == StatusSuccess {
		return nil, fmt.Errorf("decode failure record: status %q is not a failure", rec.Status)
	}
	if rec.Exception.Type == "" {
		return nil, errors.New("decode failure record: missing exc_type")
	}
	return &rec, nil
}

// Decode reads a stored value whose shape is only known at read time. The
// Success envelope is tried first and the FailureRecord second. Exactly one
// of the returned pointers is non-nil when err is nil; a value matching
// neither shape is a backend error whose cause carries ErrCodeDecode.
func Decode[T any](taskID string, raw []byte) (*ResultEnvelope[T], *FailureRecord, error) {
	env, envErr := DecodeEnvelope[T](raw)
	if envErr == nil {
		return env, nil, nil
	}
	rec, recErr := DecodeFailure(raw)
	if recErr == nil {
		return nil, rec, nil
	}
	cause := newError(ErrCodeDecode, "", errors.Join(envErr, recErr), "stored value matches no outcome shape")
	return nil, nil, newError(ErrCodeBackendUnavailable, taskID, cause, "read task result")
}

// peekStatus reads only the status discriminator of a stored value.
func peekStatus(raw []byte) (Status, error) {
	var head struct {
		Status Status `json:"status"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", err
	}
	return head.Status, nil
}
