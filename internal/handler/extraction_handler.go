package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/phuslu/log"

	"finextract/internal/domain"
	"finextract/internal/export"
	"finextract/internal/service"
)

// ExtractionHandler handles extraction job endpoints.
type ExtractionHandler struct {
	svc service.ExtractionService
}

// NewExtractionHandler creates a new ExtractionHandler.
func NewExtractionHandler(svc service.ExtractionService) *ExtractionHandler {
	return &ExtractionHandler{svc: svc}
}

// statementResponse is the JSON view of a stored statement.
type statementResponse struct {
	JobID     uuid.UUID       `json:"job_id"`
	Subject   string          `json:"subject"`
	Fields    int             `json:"fields"`
	Statement domain.Fragment `json:"statement"`
	CreatedAt time.Time       `json:"created_at"`
}

// Submit handles POST /api/v1/extractions
func (h *ExtractionHandler) Submit(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	ticker := c.PostForm("ticker")
	if ticker == "" {
		RespondError(c, http.StatusBadRequest, "MISSING_TICKER", "ticker field is required")
		return
	}

	job, err := h.svc.Submit(c.Request.Context(), service.ExtractionUploadInput{
		Subject: ticker,
		File:    file,
		Header:  header,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	c.Header("Location", "/api/v1/extractions/"+job.ID.String())
	RespondAccepted(c, job)
}

// List handles GET /api/v1/extractions
func (h *ExtractionHandler) List(c *gin.Context) {
	offset, limit := parsePagination(c)

	jobs, total, err := h.svc.ListJobs(c.Request.Context(), c.Query("ticker"), offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	if jobs == nil {
		jobs = []domain.ProcessingJob{}
	}
	RespondPaginated(c, jobs, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// Get handles GET /api/v1/extractions/:id
func (h *ExtractionHandler) Get(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}
	job, err := h.svc.GetJob(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, job)
}

// Statements handles GET /api/v1/extractions/:id/statements
func (h *ExtractionHandler) Statements(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}
	rec, err := h.svc.GetStatement(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	h.respondStatement(c, rec)
}

// Latest handles GET /api/v1/tickers/:ticker/statements
func (h *ExtractionHandler) Latest(c *gin.Context) {
	rec, err := h.svc.LatestStatement(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		HandleError(c, err)
		return
	}
	h.respondStatement(c, rec)
}

func (h *ExtractionHandler) respondStatement(c *gin.Context, rec *domain.StatementRecord) {
	stmt, err := rec.Statement()
	if err != nil {
		HandleError(c, fmt.Errorf("decoding statement for job %s: %w", rec.JobID, err))
		return
	}
	RespondOK(c, statementResponse{
		JobID:     rec.JobID,
		Subject:   rec.Subject,
		Fields:    rec.Fields,
		Statement: stmt,
		CreatedAt: rec.CreatedAt,
	})
}

// Export handles GET /api/v1/extractions/:id/export?format=xlsx|csv
func (h *ExtractionHandler) Export(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", "xlsx")
	if format != "xlsx" && format != "csv" {
		RespondError(c, http.StatusBadRequest, "INVALID_FORMAT", "format must be xlsx or csv")
		return
	}

	rec, err := h.svc.GetStatement(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	stmt, err := rec.Statement()
	if err != nil {
		HandleError(c, fmt.Errorf("decoding statement for job %s: %w", rec.JobID, err))
		return
	}

	filename := export.BuildFilename(rec.Subject, format, time.Now())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if format == "csv" {
		var buf bytes.Buffer
		if err := export.CSV(&buf, stmt); err != nil {
			HandleError(c, err)
			return
		}
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
		return
	}

	data, err := export.XLSX(stmt)
	if err != nil {
		HandleError(c, err)
		return
	}
	log.Debug().Str("job_id", id.String()).Int("bytes", len(data)).Msg("extractionHandler.Export: workbook built")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// Download handles GET /api/v1/extractions/:id/download and returns a
// presigned URL for the original filing.
func (h *ExtractionHandler) Download(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}
	url, err := h.svc.GetDownloadURL(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"url": url})
}

// Retry handles POST /api/v1/extractions/:id/retry
func (h *ExtractionHandler) Retry(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}
	job, err := h.svc.Retry(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondAccepted(c, job)
}

func parseJobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid extraction ID")
		return uuid.Nil, false
	}
	return id, true
}
