package pdftools

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PageCounter counts pages by parsing the PDF cross-reference table.
type PageCounter struct{}

// NewPageCounter creates a PageCounter.
func NewPageCounter() *PageCounter {
	return &PageCounter{}
}

// CountPages returns the exact number of pages in doc.
func (PageCounter) CountPages(doc []byte) (n int, err error) {
	// The reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("pdf reader panic: %v", r)
		}
	}()
	if len(doc) == 0 {
		return 0, fmt.Errorf("empty document")
	}
	r, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return 0, fmt.Errorf("opening pdf: %w", err)
	}
	return r.NumPage(), nil
}

// EstimatePages guesses a page count from the document size: ten pages per
// megabyte, never less than one.
func EstimatePages(size int) int {
	mb := float64(size) / (1024 * 1024)
	n := int(mb * 10)
	if n < 1 {
		return 1
	}
	return n
}
