package port

import (
	"context"

	"finextract/internal/domain"
)

// TextBackend extracts raw text, and tables where supported, from a whole
// document. Implementations return *domain.AvailabilityError when they are
// not configured.
type TextBackend interface {
	Name() string
	Extract(ctx context.Context, doc []byte) (*domain.TextExtraction, error)
}

// Rasterizer converts document pages into images at the given DPI.
type Rasterizer interface {
	Rasterize(ctx context.Context, doc []byte, dpi int) ([]domain.PageImage, error)
}

// PageCounter reports the exact number of pages in a document.
type PageCounter interface {
	CountPages(doc []byte) (int, error)
}

// DocumentSplitter splits a document into sub-documents of at most maxPages pages.
type DocumentSplitter interface {
	Split(ctx context.Context, doc []byte, maxPages int) ([][]byte, error)
}

// AsyncAnalyzer runs a managed, asynchronous document analysis over a
// document and returns its text and tables.
type AsyncAnalyzer interface {
	Analyze(ctx context.Context, doc []byte, documentID string) (*domain.TextExtraction, error)
}
