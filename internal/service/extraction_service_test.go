package service_test

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/textproto"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"finextract/internal/config"
	"finextract/internal/domain"
	"finextract/internal/parser"
	"finextract/internal/pipeline"
	"finextract/internal/service"
	"finextract/mocks"
)

type fixture struct {
	jobs       *mocks.MockJobRepo
	statements *mocks.MockStatementRepo
	storage    *mocks.MockObjectStorage
	extractor  *mocks.MockExtractor
	svc        service.ExtractionService
}

func newFixture() *fixture {
	f := &fixture{
		jobs:       new(mocks.MockJobRepo),
		statements: new(mocks.MockStatementRepo),
		storage:    new(mocks.MockObjectStorage),
		extractor:  new(mocks.MockExtractor),
	}
	cfg := &config.S3Config{Bucket: "filings", PresignExpiry: 600}
	f.svc = service.NewExtractionService(f.jobs, f.statements, f.storage, f.extractor, cfg, 1)
	return f
}

func createMultipartFile(filename string, content []byte) (multipart.File, *multipart.FileHeader) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", "application/pdf")

	part, _ := writer.CreatePart(h)
	_, _ = part.Write(content)
	_ = writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, _ := reader.ReadForm(int64(len(content) + 1024))
	file, _ := form.File["file"][0].Open()
	return file, form.File["file"][0]
}

func pdfContent() []byte {
	return []byte("%PDF-1.7 annual report content long enough for content sniffing")
}

func TestNormalizeSubject(t *testing.T) {
	s, err := service.NormalizeSubject("  brk.b ")
	require.NoError(t, err)
	assert.Equal(t, "BRK.B", s)

	for _, bad := range []string{"", "   ", "AAPL; DROP", "../etc"} {
		_, err := service.NormalizeSubject(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidSubject, bad)
	}
}

func TestExtractionService_Submit_QueuesJob(t *testing.T) {
	f := newFixture()
	file, header := createMultipartFile("acme-10k.pdf", pdfContent())
	defer file.Close()

	f.storage.On("Put", mock.Anything, mock.MatchedBy(func(ref domain.ObjectRef) bool {
		return ref.Bucket == "filings"
	}), pdfContent(), "application/pdf").Return(nil)
	f.jobs.On("Create", mock.Anything, mock.AnythingOfType("*domain.ProcessingJob")).Return(nil)

	job, err := f.svc.Submit(context.Background(), service.ExtractionUploadInput{Subject: "acme", File: file, Header: header})

	require.NoError(t, err)
	assert.Equal(t, "ACME", job.Subject)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, "filings", job.StorageBucket)
	assert.Contains(t, job.StorageKey, "filings/ACME/"+job.ID.String()+"/acme-10k.pdf")
	f.storage.AssertExpectations(t)
	f.jobs.AssertExpectations(t)
}

func TestExtractionService_Submit_RejectsNonPDF(t *testing.T) {
	f := newFixture()

	file, header := createMultipartFile("notes.txt", []byte("plain text"))
	defer file.Close()
	_, err := f.svc.Submit(context.Background(), service.ExtractionUploadInput{Subject: "ACME", File: file, Header: header})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)

	// Right extension, wrong content.
	file2, header2 := createMultipartFile("fake.pdf", []byte("just some words, not a pdf at all"))
	defer file2.Close()
	_, err = f.svc.Submit(context.Background(), service.ExtractionUploadInput{Subject: "ACME", File: file2, Header: header2})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)

	f.storage.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExtractionService_Submit_TooLarge(t *testing.T) {
	f := newFixture()
	content := append(pdfContent(), bytes.Repeat([]byte("x"), 2*1024*1024)...)
	file, header := createMultipartFile("big.pdf", content)
	defer file.Close()

	_, err := f.svc.Submit(context.Background(), service.ExtractionUploadInput{Subject: "ACME", File: file, Header: header})

	assert.ErrorIs(t, err, domain.ErrFileTooLarge)
}

func TestExtractionService_Submit_UploadFailure(t *testing.T) {
	f := newFixture()
	file, header := createMultipartFile("acme.pdf", pdfContent())
	defer file.Close()
	f.storage.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	_, err := f.svc.Submit(context.Background(), service.ExtractionUploadInput{Subject: "ACME", File: file, Header: header})

	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	f.jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestExtractionService_Submit_RemovesUploadWhenJobNotCreated(t *testing.T) {
	f := newFixture()
	file, header := createMultipartFile("acme.pdf", pdfContent())
	defer file.Close()
	f.storage.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.storage.On("Remove", mock.Anything, mock.MatchedBy(func(ref domain.ObjectRef) bool {
		return ref.Bucket == "filings" && ref.Key != ""
	})).Return(nil)
	f.jobs.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	_, err := f.svc.Submit(context.Background(), service.ExtractionUploadInput{Subject: "ACME", File: file, Header: header})

	require.Error(t, err)
	f.storage.AssertNumberOfCalls(t, "Remove", 1)
}

func TestExtractionService_GetDownloadURL(t *testing.T) {
	f := newFixture()
	job := claimedJob()
	f.jobs.On("GetByID", mock.Anything, job.ID).Return(job, nil)
	f.storage.On("SignedURL", mock.Anything, job.Object(), 10*time.Minute).Return("https://signed.example/acme.pdf", nil)

	url, err := f.svc.GetDownloadURL(context.Background(), job.ID)

	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/acme.pdf", url)
}

func TestExtractionService_GetStatement_UnknownJob(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	f.jobs.On("GetByID", mock.Anything, id).Return(nil, domain.ErrJobNotFound)

	_, err := f.svc.GetStatement(context.Background(), id)

	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	f.statements.AssertNotCalled(t, "GetByJobID", mock.Anything, mock.Anything)
}

func TestExtractionService_Retry(t *testing.T) {
	t.Run("failed job is requeued", func(t *testing.T) {
		f := newFixture()
		id := uuid.New()
		f.jobs.On("GetByID", mock.Anything, id).Return(&domain.ProcessingJob{ID: id, Status: domain.JobStatusFailed, Attempts: 3, Error: "boom"}, nil)
		f.jobs.On("Update", mock.Anything, mock.MatchedBy(func(j *domain.ProcessingJob) bool {
			return j.Status == domain.JobStatusQueued && j.Attempts == 0 && j.Error == ""
		})).Return(nil)

		job, err := f.svc.Retry(context.Background(), id)

		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusQueued, job.Status)
		f.jobs.AssertExpectations(t)
	})

	t.Run("running job is not retryable", func(t *testing.T) {
		f := newFixture()
		id := uuid.New()
		f.jobs.On("GetByID", mock.Anything, id).Return(&domain.ProcessingJob{ID: id, Status: domain.JobStatusRunning}, nil)

		_, err := f.svc.Retry(context.Background(), id)

		assert.ErrorIs(t, err, domain.ErrJobNotRetryable)
		f.jobs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})
}

func claimedJob() *domain.ProcessingJob {
	return &domain.ProcessingJob{
		ID: uuid.New(), Subject: "ACME", StorageBucket: "filings", StorageKey: "filings/ACME/x/acme.pdf",
		Status: domain.JobStatusRunning, Attempts: 1,
	}
}

func TestExtractionService_Process_Completes(t *testing.T) {
	f := newFixture()
	job := claimedJob()

	statement := domain.NewFragment()
	statement.IncomeStatement["2024-12-31"] = map[string]float64{"Total Revenue": 1234, "Net Income": -56}

	f.storage.On("Get", mock.Anything, domain.ObjectRef{Bucket: "filings", Key: job.StorageKey}).Return([]byte("%PDF-1.7"), nil)
	f.jobs.On("UpdateProgress", mock.Anything, job.ID, 3, 12, "page 3/12").Return(nil)
	f.extractor.On("Run", mock.Anything, []byte("%PDF-1.7"), job.ID.String(), "ACME", mock.Anything).
		Run(func(args mock.Arguments) {
			progress := args.Get(4).(pipeline.ProgressFunc)
			progress(3, 12, "page 3/12")
		}).
		Return(&pipeline.Result{Statement: statement, Summary: "Extracted 2 fields", Strategy: domain.StrategyLargeAsync, Pages: 12}, nil)
	f.statements.On("Save", mock.Anything, mock.MatchedBy(func(rec *domain.StatementRecord) bool {
		got, err := rec.Statement()
		return err == nil && rec.JobID == job.ID && rec.Fields == 2 &&
			got.IncomeStatement["2024-12-31"]["Total Revenue"] == 1234
	})).Return(nil)
	f.jobs.On("Update", mock.Anything, mock.MatchedBy(func(j *domain.ProcessingJob) bool {
		return j.Status == domain.JobStatusCompleted && j.Strategy == domain.StrategyLargeAsync &&
			j.PagesProcessed == 12 && j.Summary == "Extracted 2 fields" && j.CompletedAt != nil
	})).Return(nil)

	f.svc.Process(context.Background(), job, 3)

	f.jobs.AssertExpectations(t)
	f.statements.AssertExpectations(t)
	f.extractor.AssertExpectations(t)
}

func TestExtractionService_Process_ProgressWritesAreBounded(t *testing.T) {
	f := newFixture()
	job := claimedJob()

	f.storage.On("Get", mock.Anything, mock.Anything).Return([]byte("%PDF"), nil)
	f.jobs.On("UpdateProgress", mock.Anything, job.ID, 1, 4, "page 1/4").
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, ok := ctx.Deadline()
			assert.True(t, ok, "progress write should carry a deadline")
		}).
		Return(errors.New("statement timeout"))
	f.extractor.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(4).(pipeline.ProgressFunc)(1, 4, "page 1/4")
		}).
		Return(&pipeline.Result{Statement: domain.NewFragment(), Strategy: domain.StrategySmall, Pages: 4}, nil)
	f.statements.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.jobs.On("Update", mock.Anything, mock.Anything).Return(nil)

	f.svc.Process(context.Background(), job, 3)

	// A failed progress write does not fail the job.
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	f.jobs.AssertCalled(t, "UpdateProgress", mock.Anything, job.ID, 1, 4, "page 1/4")
}

func TestExtractionService_Process_DownloadFailure(t *testing.T) {
	f := newFixture()
	job := claimedJob()
	f.storage.On("Get", mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)
	f.jobs.On("Update", mock.Anything, mock.MatchedBy(func(j *domain.ProcessingJob) bool {
		return j.Status == domain.JobStatusFailed && j.Error != ""
	})).Return(nil)

	f.svc.Process(context.Background(), job, 3)

	assert.Contains(t, job.Error, "downloading document")
	f.extractor.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExtractionService_Process_RateLimitedIsRequeued(t *testing.T) {
	f := newFixture()
	job := claimedJob()
	rl := parser.NewRateLimitError("openai", errors.New("429"), 30)

	f.storage.On("Get", mock.Anything, mock.Anything).Return([]byte("%PDF"), nil)
	f.extractor.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &domain.TransportError{Provider: "openai", Err: rl})
	f.jobs.On("Update", mock.Anything, mock.Anything).Return(nil)

	f.svc.Process(context.Background(), job, 3)

	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Contains(t, job.Error, "rate limited by openai")
	f.statements.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestExtractionService_Process_RateLimitedOnLastAttemptFails(t *testing.T) {
	f := newFixture()
	job := claimedJob()
	job.Attempts = 3

	f.storage.On("Get", mock.Anything, mock.Anything).Return([]byte("%PDF"), nil)
	f.extractor.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, parser.NewRateLimitError("all", errors.New("all models rate limited"), 60))
	f.jobs.On("Update", mock.Anything, mock.Anything).Return(nil)

	f.svc.Process(context.Background(), job, 3)

	assert.Equal(t, domain.JobStatusFailed, job.Status)
}

func TestExtractionService_Process_PipelineErrorFails(t *testing.T) {
	f := newFixture()
	job := claimedJob()

	f.storage.On("Get", mock.Anything, mock.Anything).Return([]byte("%PDF"), nil)
	f.extractor.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &domain.RasterizationError{DocumentID: job.ID.String(), Err: errors.New("pdftoppm exited 1")})
	f.jobs.On("Update", mock.Anything, mock.Anything).Return(nil)

	f.svc.Process(context.Background(), job, 3)

	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "rasterization failed")
	assert.NotNil(t, job.CompletedAt)
}
