package port

import (
	"context"
	"io"
	"time"

	"finextract/internal/domain"
)

// ObjectStorage keeps uploaded filings and the short-lived staged copies used
// by async document analysis. Get reports a missing object as
// domain.ErrNotFound.
type ObjectStorage interface {
	Put(ctx context.Context, ref domain.ObjectRef, body io.Reader, contentType string) error
	Get(ctx context.Context, ref domain.ObjectRef) ([]byte, error)
	Remove(ctx context.Context, ref domain.ObjectRef) error
	SignedURL(ctx context.Context, ref domain.ObjectRef, ttl time.Duration) (string, error)
}
