package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProcessingJob tracks one document-extraction run. The pipeline reports
// progress into it through a callback; the record itself belongs to the
// job repository.
type ProcessingJob struct {
	ID             uuid.UUID          `db:"id" json:"id"`
	Subject        string             `db:"subject" json:"subject"`
	FileName       string             `db:"file_name" json:"file_name"`
	FileSize       int64              `db:"file_size" json:"file_size"`
	StorageBucket  string             `db:"storage_bucket" json:"-"`
	StorageKey     string             `db:"storage_key" json:"-"`
	Status         JobStatus          `db:"status" json:"status"`
	Strategy       ExtractionStrategy `db:"strategy" json:"strategy"`
	TotalPages     int                `db:"total_pages" json:"total_pages"`
	PagesProcessed int                `db:"pages_processed" json:"pages_processed"`
	CurrentTask    string             `db:"current_task" json:"current_task"`
	Summary        string             `db:"summary" json:"summary"`
	Error          string             `db:"error" json:"error,omitempty"`
	Attempts       int                `db:"attempts" json:"attempts"`
	StartedAt      *time.Time         `db:"started_at" json:"started_at"`
	CompletedAt    *time.Time         `db:"completed_at" json:"completed_at"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
}

// Object locates the uploaded filing.
func (j *ProcessingJob) Object() ObjectRef {
	return ObjectRef{Bucket: j.StorageBucket, Key: j.StorageKey}
}

// ObjectRef names one object in a bucket.
type ObjectRef struct {
	Bucket string
	Key    string
}

func (r ObjectRef) String() string { return "s3://" + r.Bucket + "/" + r.Key }

// StatementRecord is a merged statement persisted for a completed job.
type StatementRecord struct {
	JobID     uuid.UUID       `db:"job_id" json:"job_id"`
	Subject   string          `db:"subject" json:"subject"`
	Data      json.RawMessage `db:"data" json:"data"`
	Fields    int             `db:"fields" json:"fields"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Statement decodes the stored statement data.
func (r *StatementRecord) Statement() (Fragment, error) {
	var f Fragment
	if err := json.Unmarshal(r.Data, &f); err != nil {
		return NewFragment(), err
	}
	return f, nil
}

// PageImage is one rasterized page. Number is 1-indexed.
type PageImage struct {
	Number int
	PNG    []byte
	Width  int
	Height int
}

// TableFragment holds the cells of one table found on a page.
type TableFragment struct {
	Page int        `json:"page"`
	Rows [][]string `json:"rows"`
}

// TextExtraction is the output of a text/table backend. Pages in Text are
// separated by form feeds.
type TextExtraction struct {
	Text     string          `json:"text"`
	Tables   []TableFragment `json:"tables,omitempty"`
	Pages    int             `json:"pages"`
	Backend  string          `json:"backend"`
	Warnings []string        `json:"warnings,omitempty"`
}
