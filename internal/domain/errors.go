package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound            = errors.New("resource not found")
	ErrJobNotFound         = errors.New("processing job not found")
	ErrStatementNotFound   = errors.New("statement not found")
	ErrJobNotRetryable     = errors.New("job is not in a retryable state")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrUploadFailed        = errors.New("file upload to storage failed")
	ErrEmptyDocument       = errors.New("document is empty")
	ErrNoPages             = errors.New("document has no pages")
	ErrInvalidSubject      = errors.New("invalid ticker symbol")
)

// RasterizationError means the document could not be turned into page images.
// It is fatal for the whole run.
type RasterizationError struct {
	DocumentID string
	Err        error
}

func (e *RasterizationError) Error() string {
	if e.DocumentID == "" {
		return fmt.Sprintf("rasterization failed: %v", e.Err)
	}
	return fmt.Sprintf("rasterization failed for %s: %v", e.DocumentID, e.Err)
}

func (e *RasterizationError) Unwrap() error { return e.Err }

// ExtractionError means a text/table backend failed. The chain recovers by
// trying the next backend; it is returned to callers only once every backend
// has been tried.
type ExtractionError struct {
	Backend string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s extraction failed: %v", e.Backend, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// AvailabilityError means a backend is not configured or installed. It is
// distinct from a backend that ran and failed.
type AvailabilityError struct {
	Backend string
	Reason  string
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("%s unavailable: %s", e.Backend, e.Reason)
}

// MalformedResponseError means a model response was not valid JSON or lacked
// required keys. The affected page or chunk is treated as empty.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// TransportError means the call to a model or external service did not
// complete (network, auth, non-2xx status).
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request failed (check that the model service is reachable and credentials are valid): %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// JobTimeoutError means an async document-analysis job did not finish within
// the polling ceiling.
type JobTimeoutError struct {
	JobID   string
	Elapsed time.Duration
}

func (e *JobTimeoutError) Error() string {
	return fmt.Sprintf("analysis job %s did not finish after %s", e.JobID, e.Elapsed.Round(time.Second))
}
