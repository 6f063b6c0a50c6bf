package textextract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/phuslu/log"

	"finextract/internal/domain"
)

// BackendLayout is the name of the embedded-text backend.
const BackendLayout = "layout"

// LayoutBackend reads the text layer of digital-native PDFs. It is the
// fastest backend and yields nothing for scanned documents.
type LayoutBackend struct{}

// NewLayoutBackend creates a LayoutBackend.
func NewLayoutBackend() *LayoutBackend {
	return &LayoutBackend{}
}

func (b *LayoutBackend) Name() string { return BackendLayout }

func (b *LayoutBackend) Extract(ctx context.Context, doc []byte) (out *domain.TextExtraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	total := r.NumPage()
	res := &domain.TextExtraction{Pages: total, Backend: BackendLayout}
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := pageText(r.Page(i))
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("page %d: %v", i, err))
			log.Debug().Int("page", i).Err(err).Msg("textextract.Layout: page text failed")
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	res.Text = strings.Join(pages, "\f")
	return res, nil
}

// pageText prefers row-grouped text, which keeps a statement line's label and
// figures together, and falls back to the plain content stream.
func pageText(p pdf.Page) (string, error) {
	if p.V.IsNull() {
		return "", nil
	}
	rows, err := p.GetTextByRow()
	if err == nil && len(rows) > 0 {
		var sb strings.Builder
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, t := range row.Content {
				if s := strings.TrimSpace(t.S); s != "" {
					words = append(words, s)
				}
			}
			if len(words) == 0 {
				continue
			}
			sb.WriteString(strings.Join(words, " "))
			sb.WriteByte('\n')
		}
		if sb.Len() > 0 {
			return sb.String(), nil
		}
	}
	return p.GetPlainText(nil)
}
