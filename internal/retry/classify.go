// Package retry implements the reliable-client supervisor shared by the
// Queue, KV, and Blob clients: a two-state reliability machine (Connected /
// Reconnecting) with a FIFO mailbox of deferred calls, resent on a fixed
// tick until they succeed or fail permanently.
package retry

import (
	"context"
	"errors"
	"net"

	"github.com/aws/smithy-go"
)

// Disposition is the outcome of classifying a failed call.
type Disposition int

const (
	// Transient failures are retried by the resender loop: I/O failures,
	// timeouts, and dispatch errors of an unrecognized "other" category.
	Transient Disposition = iota
	// Permanent failures are surfaced to the caller immediately and never
	// retried: construction failures, user errors, and explicit
	// client-class errors (validation, conditional-check, not-found).
	Permanent
)

// Classify inspects err the way the original ActionHandler match_result!
// macro does: AWS SDK v2 client-fault APIErrors (validation,
// ConditionalCheckFailedException, ResourceNotFoundException, and the like)
// are Permanent; context deadlines and network timeouts are Transient;
// anything unrecognized defaults to Transient, favoring availability over a
// premature permanent failure.
func Classify(err error) Disposition {
	if err == nil {
		return Transient // callers only classify non-nil errors; treated as a no-op
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorFault() == smithy.FaultClient {
			return Permanent
		}
		return Transient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}

	return Transient
}
