// Package domain holds the core types shared by every adapter: job
// identifiers, status, task results, and the queue message wire format. It
// imports nothing from internal/adapter, keeping the dependency direction
// one-way (internal/domain is adapter-free).
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by the KV client when a record does not exist.
var ErrNotFound = errors.New("record not found")

// JobID names one compile or verify request end-to-end. It is a UUID
// rendered as text everywhere it crosses a wire or filesystem boundary:
// queue message payload key, workspace directory name, Blob prefix for
// inputs and artifacts, and KV primary key.
type JobID uuid.UUID

// NewJobID generates a fresh random Job Identifier.
func NewJobID() JobID { return JobID(uuid.New()) }

// ParseJobID parses the textual rendering of a Job Identifier.
func ParseJobID(s string) (JobID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return JobID{}, err
	}
	return JobID(id), nil
}

// String renders the Job Identifier in canonical UUID form.
func (id JobID) String() string { return uuid.UUID(id).String() }

// MarshalText implements encoding.TextMarshaler so JobID round-trips
// through JSON as a plain string.
func (id JobID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *JobID) UnmarshalText(b []byte) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = JobID(parsed)
	return nil
}

// Status is the KV record's lifecycle state. It transitions monotonically
// Pending -> InProgress -> Done; no other transition exists.
type Status int

const (
	// StatusPending is the initial status set by the front door at enqueue time.
	StatusPending Status = 0
	// StatusInProgress is set by the single worker that wins the claim race.
	StatusInProgress Status = 1
	// StatusDone is the terminal status; Data holds the TaskResult.
	StatusDone Status = 2
)

// String renders the status for logging.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "InProgress"
	case StatusDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// ArtifactKind classifies one file under a compilation's artifacts/ subtree
// by its filename suffix.
type ArtifactKind int

const (
	// ArtifactUnknown is any artifact file that is neither a contract nor a debug file.
	ArtifactUnknown ArtifactKind = iota
	// ArtifactContract is a *.json artifact that is not a *.dbg.json debug file.
	ArtifactContract
	// ArtifactDbg is a *.dbg.json debug artifact.
	ArtifactDbg
)

// String renders the artifact kind for logging and KV encoding.
func (k ArtifactKind) String() string {
	switch k {
	case ArtifactContract:
		return "Contract"
	case ArtifactDbg:
		return "Dbg"
	default:
		return "Unknown"
	}
}

// ArtifactInfo describes one uploaded compiler output.
type ArtifactInfo struct {
	Kind ArtifactKind
	Path string
	URL  string
}

// ErrorType is the closed enumeration of terminal failure reasons. The
// front door (out of scope here) maps each to an HTTP status code via
// HTTPStatus.
type ErrorType string

const (
	ErrUnsupportedCompilerVersion ErrorType = "UnsupportedCompilerVersion"
	ErrCompilationError           ErrorType = "CompilationError"
	ErrNothingToCompile           ErrorType = "NothingToCompile"
	ErrUnknownNetworkError        ErrorType = "UnknownNetworkError"
	ErrVerificationError          ErrorType = "VerificationError"
	ErrInternalError              ErrorType = "InternalError"
)

// HTTPStatus returns the status code a front door would surface for this
// error type: every variant maps to 400 except InternalError, which maps
// to 500.
func (e ErrorType) HTTPStatus() int {
	if e == ErrInternalError {
		return 500
	}
	return 400
}

// SuccessKind discriminates which job kind a Success TaskResult came from,
// since a Verify success can legitimately carry an empty message and a
// Compile success can legitimately carry zero artifacts (the sentinel
// case) — Kind, not payload shape, is the discriminator.
type SuccessKind int

const (
	SuccessCompile SuccessKind = iota
	SuccessVerify
)

// TaskResult is the tagged sum committed to the KV record's Data attribute
// on transition to Done. Kind == "" (the zero ErrorType) signals Success,
// further discriminated by Success; any other Kind is the Failure variant's
// error type.
type TaskResult struct {
	Kind ErrorType // zero value ("") signals Success; any other value is the failure's error type

	Success SuccessKind

	// Compile-success payload.
	Artifacts []ArtifactInfo
	// Verify-success payload.
	VerifyMessage string

	// Failure payload (either job kind).
	FailureMessage string
}

// IsSuccess reports whether this TaskResult is the Success variant.
func (r TaskResult) IsSuccess() bool { return r.Kind == "" }

// NewCompileSuccess builds a Success TaskResult carrying compile artifacts.
func NewCompileSuccess(artifacts []ArtifactInfo) TaskResult {
	return TaskResult{Success: SuccessCompile, Artifacts: artifacts}
}

// NewVerifySuccess builds a Success TaskResult carrying the verifier's stdout.
func NewVerifySuccess(message string) TaskResult {
	return TaskResult{Success: SuccessVerify, VerifyMessage: message}
}

// NewFailure builds a Failure TaskResult.
func NewFailure(kind ErrorType, message string) TaskResult {
	if kind == "" {
		kind = ErrInternalError
	}
	return TaskResult{Kind: kind, FailureMessage: message}
}

// Record is the KV item keyed by Job Identifier.
type Record struct {
	ID        JobID
	CreatedAt time.Time
	Status    Status
	Data      *TaskResult // nil unless Status == StatusDone
}
