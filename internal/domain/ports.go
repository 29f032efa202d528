package domain

import (
	"context"
	"errors"
	"time"
)

// QueueMessageEnvelope pairs a decoded Queue Message with the receipt handle
// needed to delete it once processing completes.
type QueueMessageEnvelope struct {
	Message       QueueMessage
	ReceiptHandle string
}

// QueueClient is the reliable-client port over the job queue.
type QueueClient interface {
	// Receive long-polls for up to maxMessages queued jobs.
	Receive(ctx context.Context, maxMessages int32) ([]QueueMessageEnvelope, error)
	// Delete acknowledges a message so it is not redelivered.
	Delete(ctx context.Context, receiptHandle string) error
}

// KVClient is the reliable-client port over the job-record store.
type KVClient interface {
	// Get fetches a job record, returning ErrNotFound if absent.
	Get(ctx context.Context, id JobID) (Record, error)
	// UpdateStatusConditional performs the sole cross-worker coordination
	// point: an atomic compare-and-set transitioning from -> to. Returns
	// ErrConditionalCheckFailed when the current status is not from.
	UpdateStatusConditional(ctx context.Context, id JobID, from, to Status) error
	// Complete writes the terminal Done status with its TaskResult payload.
	Complete(ctx context.Context, id JobID, result TaskResult) error
	// Delete removes a job record.
	Delete(ctx context.Context, id JobID) error
	// ScanPriorTo pages through records created at or before cutoff, page
	// size fixed at 100, for Purgatory's bootstrap scan.
	ScanPriorTo(ctx context.Context, cutoff time.Time, cursor string) (items []Record, nextCursor string, err error)
}

// BlobClient is the reliable-client port over object storage.
type BlobClient interface {
	// ListPrefix enumerates all object keys under prefix.
	ListPrefix(ctx context.Context, prefix string) ([]string, error)
	// GetObject downloads one object's full contents, verifying the byte
	// count read matches the object's reported size.
	GetObject(ctx context.Context, key string) ([]byte, error)
	// PutObject uploads data under key, retrying from the start of data on
	// a transient failure.
	PutObject(ctx context.Context, key string, data []byte) error
	// PresignGet mints a time-limited download URL.
	PresignGet(ctx context.Context, key string, ttlSeconds int64) (string, error)
	// Delete removes a single object.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object under prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// ErrConditionalCheckFailed is returned by UpdateStatusConditional when the
// record's current status does not match the expected "from" status —
// meaning another worker already won the claim race. This is a permanent
// (non-retryable) error: the caller should abandon the job, not retry.
var ErrConditionalCheckFailed = errors.New("conditional check failed")
