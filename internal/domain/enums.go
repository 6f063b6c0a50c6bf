package domain

// FileType represents the allowed file types for upload.
type FileType string

const (
	FileTypePDF FileType = "pdf"
)

// AllowedContentTypes maps MIME content types to FileType.
var AllowedContentTypes = map[string]FileType{
	"application/pdf":   FileTypePDF,
	"application/x-pdf": FileTypePDF,
}

// AllowedExtensions maps file extensions (without dot) to FileType.
var AllowedExtensions = map[string]FileType{
	"pdf": FileTypePDF,
}

// JobStatus represents the lifecycle of a processing job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ExtractionStrategy is the page-count driven processing path, chosen once
// per document.
type ExtractionStrategy string

const (
	StrategySmall       ExtractionStrategy = "small"
	StrategyLargeAsync  ExtractionStrategy = "large_async"
	StrategyHugeBatched ExtractionStrategy = "huge_batched"
)
