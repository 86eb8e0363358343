// Package output provides JSONL output for listings and object metadata.
//
// Output is structured as typed record envelopes. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"context"
	"errors"
	"time"

	"github.com/3leaps/blobfs/pkg/listing"
	"github.com/3leaps/blobfs/pkg/provider"
)

// Record type constants follow the pattern blobfs.<type>.v<version>.
const (
	// TypeNode identifies directory listing entries.
	TypeNode = "blobfs.node.v1"

	// TypeObject identifies full object metadata (stat).
	TypeObject = "blobfs.object.v1"

	// TypeError identifies error records.
	TypeError = "blobfs.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "blobfs.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	Type string    `json:"type"`
	TS   time.Time `json:"ts"`

	// JobID correlates all records of one command run.
	JobID    string `json:"job_id"`
	Provider string `json:"provider"`

	// Data is the type-specific payload.
	Data any `json:"data"`
}

// NodeRecord is one entry of a directory listing. Absent attributes are
// omitted.
type NodeRecord struct {
	Path         string     `json:"path"`
	Kind         string     `json:"kind"`
	Size         *int64     `json:"size,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	MimeType     string     `json:"mime_type,omitempty"`
}

// NewNodeRecord converts a listing node.
func NewNodeRecord(n listing.Node) *NodeRecord {
	return &NodeRecord{
		Path:         n.Path,
		Kind:         n.Kind.String(),
		Size:         n.Size,
		LastModified: n.LastModified,
		MimeType:     n.MimeType,
	}
}

// ObjectRecord is the full metadata of a single object.
type ObjectRecord struct {
	Path         string            `json:"path"`
	Size         int64             `json:"size"`
	LastModified time.Time         `json:"last_modified"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	CacheControl string            `json:"cache_control,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ErrorRecord is the payload for errors. A listing that fails part way
// emits the nodes it produced, then an ErrorRecord.
type ErrorRecord struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Path is the listed directory or object path, if applicable.
	Path string `json:"path,omitempty"`

	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord and HTTP error envelopes.
const (
	ErrCodeAccessDenied      = "ACCESS_DENIED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeContainerNotFound = "CONTAINER_NOT_FOUND"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeThrottled         = "THROTTLED"
	ErrCodeUnavailable       = "UNAVAILABLE"
	ErrCodeUnsupported       = "UNSUPPORTED"
	ErrCodeInternal          = "INTERNAL"
)

// ErrorCode classifies err into one of the ErrCode constants.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case provider.IsContainerNotFound(err):
		return ErrCodeContainerNotFound
	case provider.IsNotFound(err):
		return ErrCodeNotFound
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		return ErrCodeAccessDenied
	case provider.IsThrottled(err):
		return ErrCodeThrottled
	case provider.IsProviderUnavailable(err):
		return ErrCodeUnavailable
	case provider.IsUnsupported(err):
		return ErrCodeUnsupported
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		return ErrCodeCancelled
	default:
		return ErrCodeInternal
	}
}

// NewErrorRecord builds an ErrorRecord for err at path.
func NewErrorRecord(path string, err error) *ErrorRecord {
	return &ErrorRecord{
		Code:    ErrorCode(err),
		Message: err.Error(),
		Path:    path,
	}
}

// SummaryRecord closes a listing with aggregate counts.
type SummaryRecord struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`

	Files       int64 `json:"files"`
	Directories int64 `json:"directories"`
	BytesTotal  int64 `json:"bytes_total"`

	// Truncated reports that a failed prefix query ended the listing early.
	Truncated bool `json:"truncated"`

	Duration      time.Duration `json:"duration_ns"`
	DurationHuman string        `json:"duration"`
}

// Add counts n into the summary.
func (s *SummaryRecord) Add(n listing.Node) {
	if n.IsDir() {
		s.Directories++
		return
	}
	s.Files++
	if n.Size != nil {
		s.BytesTotal += *n.Size
	}
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal", "write")
	Err error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
