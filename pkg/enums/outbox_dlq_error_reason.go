package enums

import (
	"fmt"
	"slices"
)

// OutboxDLQErrorReason records why the publisher gave up on an outbox row.
type OutboxDLQErrorReason string

const (
	// retries exhausted on a transient publish error
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// the broker rejected the message outright
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// no topic or publisher exists for the event type
	OutboxDLQReasonUnroutable OutboxDLQErrorReason = "unroutable"
	// the stored envelope or payload does not decode
	OutboxDLQReasonDecodeFailed OutboxDLQErrorReason = "decode_failed"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
	OutboxDLQReasonUnroutable,
	OutboxDLQReasonDecodeFailed,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	return slices.Contains(validOutboxDLQErrorReasons, r)
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	r := OutboxDLQErrorReason(value)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid dlq error reason %q", value)
	}
	return r, nil
}
