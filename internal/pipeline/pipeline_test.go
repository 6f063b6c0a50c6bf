package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"finextract/internal/config"
	"finextract/internal/domain"
	"finextract/internal/pipeline"
	"finextract/mocks"
)

var doc = []byte("%PDF-1.7 synthetic")

// fakeStructurer answers ExtractPage and StructureText from per-test
// functions and counts calls.
type fakeStructurer struct {
	mu        sync.Mutex
	page      func(n int) (domain.Fragment, string, error)
	text      func(text string, chunk, total int) (domain.Fragment, string, error)
	pageCalls int
	textCalls int
}

func (f *fakeStructurer) ExtractPage(_ context.Context, page domain.PageImage, _ string, _ int) (domain.Fragment, string, error) {
	f.mu.Lock()
	f.pageCalls++
	f.mu.Unlock()
	return f.page(page.Number)
}

func (f *fakeStructurer) StructureText(_ context.Context, text, _ string, chunk, total int) (domain.Fragment, string, error) {
	f.mu.Lock()
	f.textCalls++
	f.mu.Unlock()
	return f.text(text, chunk, total)
}

func counter(pages int) *mocks.MockPageCounter {
	c := new(mocks.MockPageCounter)
	c.On("CountPages", mock.Anything).Return(pages, nil)
	return c
}

func images(n int) []domain.PageImage {
	out := make([]domain.PageImage, n)
	for i := range out {
		out[i] = domain.PageImage{Number: i + 1, PNG: []byte{byte(i)}}
	}
	return out
}

func revenue(period string, v float64) domain.Fragment {
	f := domain.NewFragment()
	f.IncomeStatement[period] = map[string]float64{"Total Revenue": v}
	return f
}

func cfg() config.PipelineConfig {
	return config.PipelineConfig{
		SmallMaxPages:    10,
		LargeMaxPages:    100,
		MaxPagesPerChunk: 50,
		BatchWorkers:     3,
		PageConcurrency:  30,
		ProgressInterval: time.Millisecond,
		VisionDPI:        200,
		ChunkChars:       12000,
	}
}

func TestSelectStrategy_Boundaries(t *testing.T) {
	th := pipeline.Thresholds{SmallMaxPages: 10, LargeMaxPages: 100}

	assert.Equal(t, domain.StrategySmall, pipeline.SelectStrategy(1, th))
	assert.Equal(t, domain.StrategySmall, pipeline.SelectStrategy(10, th))
	assert.Equal(t, domain.StrategyLargeAsync, pipeline.SelectStrategy(11, th))
	assert.Equal(t, domain.StrategyLargeAsync, pipeline.SelectStrategy(100, th))
	assert.Equal(t, domain.StrategyHugeBatched, pipeline.SelectStrategy(101, th))
	assert.Equal(t, domain.StrategySmall, pipeline.SelectStrategy(10, pipeline.Thresholds{}))
}

func TestRun_SmallAtThreshold(t *testing.T) {
	text := new(mocks.MockTextBackend)
	text.On("Extract", mock.Anything, doc).Return(&domain.TextExtraction{Text: "Total revenue 1,234", Backend: "layout", Pages: 10}, nil)
	st := &fakeStructurer{text: func(string, int, int) (domain.Fragment, string, error) {
		return revenue("2024-12-31", 1234), "{}", nil
	}}
	raster := new(mocks.MockRasterizer)

	p := pipeline.New(pipeline.Deps{Counter: counter(10), Text: text, Rasterizer: raster, Structurer: st}, cfg())
	res, err := p.Run(context.Background(), doc, "doc-1", "ACME", nil)

	require.NoError(t, err)
	assert.Equal(t, domain.StrategySmall, res.Strategy)
	assert.Equal(t, 1234.0, res.Statement.IncomeStatement["2024-12-31"]["Total Revenue"])
	assert.Equal(t, 1, st.textCalls)
	assert.Equal(t, "layout", res.Diagnostics.Backend)
	assert.Contains(t, res.Summary, "Extracted 1 fields")
	raster.AssertNotCalled(t, "Rasterize", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_LargeJustAboveThresholdUsesVision(t *testing.T) {
	raster := new(mocks.MockRasterizer)
	raster.On("Rasterize", mock.Anything, doc, 200).Return(images(11), nil)
	st := &fakeStructurer{page: func(int) (domain.Fragment, string, error) {
		return domain.NewFragment(), "{}", nil
	}}
	text := new(mocks.MockTextBackend)

	p := pipeline.New(pipeline.Deps{Counter: counter(11), Text: text, Rasterizer: raster, Structurer: st}, cfg())
	res, err := p.Run(context.Background(), doc, "doc-1", "ACME", nil)

	require.NoError(t, err)
	assert.Equal(t, domain.StrategyLargeAsync, res.Strategy)
	assert.Equal(t, 11, st.pageCalls)
	text.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestRun_EstimatesPagesWhenCountFails(t *testing.T) {
	c := new(mocks.MockPageCounter)
	c.On("CountPages", mock.Anything).Return(0, errors.New("xref table broken"))
	big := append([]byte("%PDF"), bytes.Repeat([]byte{0}, 3*1024*1024)...) // ~30 pages by size
	raster := new(mocks.MockRasterizer)
	raster.On("Rasterize", mock.Anything, big, 200).Return(images(2), nil)
	st := &fakeStructurer{page: func(int) (domain.Fragment, string, error) {
		return domain.NewFragment(), "", nil
	}}

	p := pipeline.New(pipeline.Deps{Counter: c, Rasterizer: raster, Structurer: st}, cfg())
	res, err := p.Run(context.Background(), big, "doc-1", "", nil)

	require.NoError(t, err)
	assert.Equal(t, 30, res.Pages)
	assert.Equal(t, domain.StrategyLargeAsync, res.Strategy)
}

func TestRun_ThreePageScenarioMergesPages(t *testing.T) {
	raster := new(mocks.MockRasterizer)
	raster.On("Rasterize", mock.Anything, doc, 200).Return(images(3), nil)
	st := &fakeStructurer{page: func(n int) (domain.Fragment, string, error) {
		switch n {
		case 1:
			return revenue("2023-12-31", 1000000), "p1", nil
		case 2:
			f := domain.NewFragment()
			f.BalanceSheet["2023-12-31"] = map[string]float64{"Total Assets": 5000000}
			return f, "p2", nil
		default:
			return domain.NewFragment(), "p3", nil
		}
	}}
	c := cfg()
	c.SmallMaxPages = 1

	p := pipeline.New(pipeline.Deps{Counter: counter(3), Rasterizer: raster, Structurer: st}, c)
	res, err := p.Run(context.Background(), doc, "doc-3", "ACME", nil)

	require.NoError(t, err)
	assert.Equal(t, 1000000.0, res.Statement.IncomeStatement["2023-12-31"]["Total Revenue"])
	assert.Equal(t, 5000000.0, res.Statement.BalanceSheet["2023-12-31"]["Total Assets"])
	assert.Empty(t, res.Statement.Cashflow)
	assert.Empty(t, res.Statement.KeyMetrics)
	assert.Equal(t, 2, res.Diagnostics.Contributors)
	assert.Equal(t, 3, res.Diagnostics.Units)
}

func TestRun_RasterizationFailureIsFatal(t *testing.T) {
	raster := new(mocks.MockRasterizer)
	raster.On("Rasterize", mock.Anything, doc, 200).Return(nil, errors.New("pdftoppm: syntax error"))
	st := &fakeStructurer{}

	p := pipeline.New(pipeline.Deps{Counter: counter(20), Rasterizer: raster, Structurer: st}, cfg())
	res, err := p.Run(context.Background(), doc, "doc-bad", "", nil)

	assert.Nil(t, res)
	var rErr *domain.RasterizationError
	require.ErrorAs(t, err, &rErr)
	assert.Equal(t, "doc-bad", rErr.DocumentID)
	assert.Contains(t, err.Error(), "doc-bad")
}

func TestRun_FailingPageIsIsolated(t *testing.T) {
	raster := new(mocks.MockRasterizer)
	raster.On("Rasterize", mock.Anything, doc, 200).Return(images(10), nil)
	st := &fakeStructurer{page: func(n int) (domain.Fragment, string, error) {
		if n == 5 {
			return domain.NewFragment(), "", &domain.TransportError{Provider: "ollama", Err: errors.New("timeout")}
		}
		return revenue(fmt.Sprintf("20%02d-12-31", n), float64(n)), "", nil
	}}
	c := cfg()
	c.SmallMaxPages = 1

	p := pipeline.New(pipeline.Deps{Counter: counter(10), Rasterizer: raster, Structurer: st}, c)
	res, err := p.Run(context.Background(), doc, "doc-1", "", nil)

	require.NoError(t, err)
	assert.Len(t, res.Statement.IncomeStatement, 9)
	assert.NotContains(t, res.Statement.IncomeStatement, "2005-12-31")
	require.Len(t, res.Diagnostics.FailedUnits, 1)
	assert.Equal(t, 5, res.Diagnostics.FailedUnits[0].Number)
	assert.Equal(t, "transport", res.Diagnostics.FailedUnits[0].Kind)
}

func TestRun_SmallTransportErrorIsFatal(t *testing.T) {
	text := new(mocks.MockTextBackend)
	text.On("Extract", mock.Anything, doc).Return(&domain.TextExtraction{Text: "Revenue"}, nil)
	st := &fakeStructurer{text: func(string, int, int) (domain.Fragment, string, error) {
		return domain.NewFragment(), "", &domain.TransportError{Provider: "ollama", Err: errors.New("connection refused")}
	}}

	p := pipeline.New(pipeline.Deps{Counter: counter(2), Text: text, Structurer: st}, cfg())
	_, err := p.Run(context.Background(), doc, "doc-1", "", nil)

	var tErr *domain.TransportError
	assert.ErrorAs(t, err, &tErr)
}

func TestRun_SmallTextExtractionExhausted(t *testing.T) {
	text := new(mocks.MockTextBackend)
	text.On("Extract", mock.Anything, doc).Return(nil, &domain.ExtractionError{Backend: "chain", Err: errors.New("all backends failed")})

	p := pipeline.New(pipeline.Deps{Counter: counter(2), Text: text, Structurer: &fakeStructurer{}}, cfg())
	_, err := p.Run(context.Background(), doc, "doc-1", "", nil)

	var eErr *domain.ExtractionError
	assert.ErrorAs(t, err, &eErr)
}

func TestRun_EmptyResultCarriesDiagnostics(t *testing.T) {
	text := new(mocks.MockTextBackend)
	text.On("Extract", mock.Anything, doc).Return(&domain.TextExtraction{Text: "Consolidated balance sheet. Total assets and liabilities.", Backend: "ocr"}, nil)
	st := &fakeStructurer{text: func(string, int, int) (domain.Fragment, string, error) {
		return domain.NewFragment(), "I cannot read this", &domain.MalformedResponseError{Raw: "I cannot read this", Err: errors.New("no JSON")}
	}}

	p := pipeline.New(pipeline.Deps{Counter: counter(1), Text: text, Structurer: st}, cfg())
	res, err := p.Run(context.Background(), doc, "doc-1", "", nil)

	require.NoError(t, err)
	assert.True(t, res.Statement.IsEmpty())
	assert.Contains(t, res.Diagnostics.KeywordHits, "assets")
	assert.Contains(t, res.Diagnostics.KeywordHits, "balance sheet")
	assert.Contains(t, res.Diagnostics.ModelOutput, "1 malformed")
	assert.Contains(t, res.Summary, "No financial data extracted")
}

func TestRun_AsyncAnalysisStructuresChunks(t *testing.T) {
	async := new(mocks.MockAsyncAnalyzer)
	pageText := strings.Repeat("Total revenue 1,234 1,100\n", 20)
	async.On("Analyze", mock.Anything, doc, "doc-42").Return(&domain.TextExtraction{
		Text:    strings.Repeat(pageText+"\f", 30),
		Backend: "textract-async",
		Pages:   30,
	}, nil)
	st := &fakeStructurer{text: func(_ string, chunk, _ int) (domain.Fragment, string, error) {
		return revenue("2024-12-31", float64(chunk)), "", nil
	}}
	c := cfg()
	c.ChunkChars = 2000

	p := pipeline.New(pipeline.Deps{Counter: counter(30), Async: async, Structurer: st}, c)
	res, err := p.Run(context.Background(), doc, "doc-42", "", nil)

	require.NoError(t, err)
	assert.Greater(t, st.textCalls, 1)
	assert.Equal(t, "textract-async", res.Diagnostics.Backend)
	assert.Equal(t, float64(st.textCalls), res.Statement.IncomeStatement["2024-12-31"]["Total Revenue"])
}

func TestRun_AsyncUnavailableFallsBackToVision(t *testing.T) {
	async := new(mocks.MockAsyncAnalyzer)
	async.On("Analyze", mock.Anything, doc, "doc-1").Return(nil, &domain.AvailabilityError{Backend: "textract-async", Reason: "no credentials"})
	raster := new(mocks.MockRasterizer)
	raster.On("Rasterize", mock.Anything, doc, 200).Return(images(2), nil)
	st := &fakeStructurer{page: func(n int) (domain.Fragment, string, error) {
		return revenue("2024-12-31", float64(n)), "", nil
	}}

	p := pipeline.New(pipeline.Deps{Counter: counter(20), Async: async, Rasterizer: raster, Structurer: st}, cfg())
	res, err := p.Run(context.Background(), doc, "doc-1", "", nil)

	require.NoError(t, err)
	assert.Equal(t, "vision", res.Diagnostics.Backend)
	assert.Equal(t, 2, st.pageCalls)
}

func TestRun_AsyncTimeoutPropagates(t *testing.T) {
	async := new(mocks.MockAsyncAnalyzer)
	async.On("Analyze", mock.Anything, doc, "doc-1").Return(nil, &domain.JobTimeoutError{JobID: "job-1", Elapsed: time.Hour})

	p := pipeline.New(pipeline.Deps{Counter: counter(20), Async: async, Structurer: &fakeStructurer{}}, cfg())
	_, err := p.Run(context.Background(), doc, "doc-1", "", nil)

	var tErr *domain.JobTimeoutError
	assert.ErrorAs(t, err, &tErr)
}

func hugeDeps(textFor func(part []byte) (*domain.TextExtraction, error)) (pipeline.Deps, *fakeStructurer) {
	parts := [][]byte{[]byte("part-1"), []byte("part-2"), []byte("part-3")}
	splitter := new(mocks.MockDocumentSplitter)
	splitter.On("Split", mock.Anything, doc, 50).Return(parts, nil)

	text := new(mocks.MockTextBackend)
	for _, part := range parts {
		ext, err := textFor(part)
		text.On("Extract", mock.Anything, part).Return(ext, err)
	}
	st := &fakeStructurer{text: func(text string, _, _ int) (domain.Fragment, string, error) {
		f := domain.NewFragment()
		f.KeyMetrics[strings.TrimSpace(text)] = 1
		return f, "", nil
	}}
	return pipeline.Deps{Counter: counter(130), Text: text, Splitter: splitter, Structurer: st}, st
}

func TestRun_HugeMergesParts(t *testing.T) {
	deps, _ := hugeDeps(func(part []byte) (*domain.TextExtraction, error) {
		if string(part) == "part-2" {
			return nil, &domain.ExtractionError{Backend: "chain", Err: errors.New("exhausted")}
		}
		return &domain.TextExtraction{Text: string(part), Backend: "layout"}, nil
	})

	var last [2]int
	res, err := pipeline.New(deps, cfg()).Run(context.Background(), doc, "doc-1", "", func(done, total int, _ string) {
		last = [2]int{done, total}
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StrategyHugeBatched, res.Strategy)
	assert.Equal(t, map[string]float64{"part-1": 1, "part-3": 1}, res.Statement.KeyMetrics)
	require.Len(t, res.Diagnostics.FailedParts, 1)
	assert.Equal(t, 2, res.Diagnostics.FailedParts[0].Part)
	assert.Equal(t, [2]int{130, 130}, last)
}

func TestRun_HugeAllPartsFailed(t *testing.T) {
	deps, _ := hugeDeps(func([]byte) (*domain.TextExtraction, error) {
		return nil, &domain.ExtractionError{Backend: "chain", Err: errors.New("exhausted")}
	})

	_, err := pipeline.New(deps, cfg()).Run(context.Background(), doc, "doc-1", "", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 document parts failed")
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	raster := new(mocks.MockRasterizer)
	raster.On("Rasterize", mock.Anything, doc, 200).Return(images(40), nil)
	st := &fakeStructurer{page: func(n int) (domain.Fragment, string, error) {
		time.Sleep(time.Duration(n%4) * time.Millisecond)
		return domain.NewFragment(), "", nil
	}}

	var mu sync.Mutex
	var seen []int
	progress := func(done, total int, _ string) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 40, total)
		seen = append(seen, done)
	}

	_, err := pipeline.New(pipeline.Deps{Counter: counter(40), Rasterizer: raster, Structurer: st}, cfg()).
		Run(context.Background(), doc, "doc-1", "", progress)

	require.NoError(t, err)
	require.NotEmpty(t, seen)
	assert.Equal(t, 0, seen[0])
	assert.Equal(t, 40, seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
}

func TestRun_EmptyDocument(t *testing.T) {
	_, err := pipeline.New(pipeline.Deps{}, cfg()).Run(context.Background(), nil, "doc-1", "", nil)

	assert.ErrorIs(t, err, domain.ErrEmptyDocument)
}

func TestSafeProgress_RecoversPanics(t *testing.T) {
	p := pipeline.SafeProgress(func(int, int, string) { panic("sink down") })

	assert.NotPanics(t, func() { p(1, 2, "x") })
	assert.NotPanics(t, func() { pipeline.SafeProgress(nil)(1, 2, "x") })
}
