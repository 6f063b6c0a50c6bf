package textextract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/google/uuid"
	"github.com/phuslu/log"

	"finextract/internal/domain"
	"finextract/internal/port"
)

// AsyncOptions configures an AsyncAnalyzer.
type AsyncOptions struct {
	Bucket       string
	Prefix       string
	PollInterval time.Duration
	Timeout      time.Duration
}

// AsyncAnalyzer stages a document in object storage, runs an asynchronous
// document analysis over it and collects every result page. The staged copy
// is removed on every exit path.
type AsyncAnalyzer struct {
	client  TextractAPI
	storage port.ObjectStorage
	opts    AsyncOptions
}

// NewAsyncAnalyzer creates an AsyncAnalyzer.
func NewAsyncAnalyzer(client TextractAPI, storage port.ObjectStorage, opts AsyncOptions) *AsyncAnalyzer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Hour
	}
	return &AsyncAnalyzer{client: client, storage: storage, opts: opts}
}

// Analyze implements port.AsyncAnalyzer.
func (a *AsyncAnalyzer) Analyze(ctx context.Context, doc []byte, documentID string) (*domain.TextExtraction, error) {
	ref := domain.ObjectRef{
		Bucket: a.opts.Bucket,
		Key:    fmt.Sprintf("%s%s/%s.pdf", a.opts.Prefix, documentID, uuid.New().String()),
	}
	if err := a.storage.Put(ctx, ref, bytes.NewReader(doc), "application/pdf"); err != nil {
		return nil, fmt.Errorf("staging document: %w", err)
	}
	defer func() {
		// The caller's context may already be done; cleanup gets its own.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := a.storage.Remove(cleanupCtx, ref); err != nil {
			log.Warn().Err(err).Str("object", ref.String()).Msg("textextract.AsyncAnalyzer: failed to delete staged document")
		} else {
			log.Debug().Str("object", ref.String()).Msg("textextract.AsyncAnalyzer: staged document deleted")
		}
	}()

	start, err := a.client.StartDocumentAnalysis(ctx, &textract.StartDocumentAnalysisInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{Bucket: aws.String(ref.Bucket), Name: aws.String(ref.Key)},
		},
		FeatureTypes: []types.FeatureType{types.FeatureTypeTables},
	})
	if err != nil {
		return nil, fmt.Errorf("starting analysis: %w", err)
	}
	jobID := aws.ToString(start.JobId)
	log.Info().Str("document_id", documentID).Str("job_id", jobID).Msg("textextract.AsyncAnalyzer: analysis started")

	first, err := a.wait(ctx, jobID)
	if err != nil {
		return nil, err
	}

	blocks := append([]types.Block(nil), first.Blocks...)
	pages := 0
	if first.DocumentMetadata != nil {
		pages = int(aws.ToInt32(first.DocumentMetadata.Pages))
	}
	next := first.NextToken
	for next != nil {
		out, err := a.client.GetDocumentAnalysis(ctx, &textract.GetDocumentAnalysisInput{
			JobId:     aws.String(jobID),
			NextToken: next,
		})
		if err != nil {
			return nil, fmt.Errorf("fetching analysis results: %w", err)
		}
		blocks = append(blocks, out.Blocks...)
		next = out.NextToken
	}

	res := BlocksToExtraction(blocks, pages)
	res.Backend = BackendTextract + "-async"
	if first.JobStatus == types.JobStatusPartialSuccess {
		res.Warnings = append(res.Warnings, "analysis completed with partial success: "+aws.ToString(first.StatusMessage))
	}
	return res, nil
}

// wait polls the job until it leaves IN_PROGRESS or the timeout elapses, and
// returns the first results page.
func (a *AsyncAnalyzer) wait(ctx context.Context, jobID string) (*textract.GetDocumentAnalysisOutput, error) {
	began := time.Now()
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	for {
		out, err := a.client.GetDocumentAnalysis(ctx, &textract.GetDocumentAnalysisInput{JobId: aws.String(jobID)})
		if err != nil {
			return nil, fmt.Errorf("polling analysis job %s: %w", jobID, err)
		}
		switch out.JobStatus {
		case types.JobStatusSucceeded, types.JobStatusPartialSuccess:
			return out, nil
		case types.JobStatusFailed:
			return nil, fmt.Errorf("analysis job %s failed: %w", jobID, errors.New(aws.ToString(out.StatusMessage)))
		}

		if elapsed := time.Since(began); elapsed >= a.opts.Timeout {
			return nil, &domain.JobTimeoutError{JobID: jobID, Elapsed: elapsed}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
