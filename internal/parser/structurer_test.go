package parser_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"finextract/internal/domain"
	"finextract/internal/parser"
	"finextract/internal/port"
	"finextract/mocks"
)

const emptyJSON = `{"income_statement":{},"balance_sheet":{},"cashflow":{},"key_metrics":{}}`

func newStructurer(m port.LanguageModel, ruleFallback bool) *parser.Structurer {
	return parser.NewStructurer(m, parser.StructurerOptions{
		Provider:          "ollama",
		MaxPromptChars:    24000,
		WindowChars:       2000,
		RuleBasedFallback: ruleFallback,
	})
}

func TestStructurer_ExtractPage(t *testing.T) {
	m := new(mocks.MockLanguageModel)
	png := []byte{0x89, 'P', 'N', 'G'}
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req port.ModelRequest) bool {
		return req.System == parser.SystemPrompt &&
			len(req.Images) == 1 && string(req.Images[0]) == string(png) &&
			strings.Contains(req.Prompt, "page 2 of 5")
	})).Return(&port.ModelResponse{
		Text:  `{"income_statement":{"2023-12-31":{"Total Revenue":1000000}},"balance_sheet":{},"cashflow":{},"key_metrics":{}}`,
		Model: "llama3.2-vision",
	}, nil)

	frag, raw, err := newStructurer(m, true).ExtractPage(context.Background(), domain.PageImage{Number: 2, PNG: png}, "ACME", 5)

	require.NoError(t, err)
	assert.Contains(t, raw, "Total Revenue")
	assert.Equal(t, 1000000.0, frag.IncomeStatement["2023-12-31"]["Total Revenue"])
	m.AssertExpectations(t)
}

func TestStructurer_ExtractPage_TransportError(t *testing.T) {
	m := new(mocks.MockLanguageModel)
	m.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: connection refused"))

	frag, _, err := newStructurer(m, true).ExtractPage(context.Background(), domain.PageImage{Number: 1}, "", 1)

	var tErr *domain.TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "ollama", tErr.Provider)
	assert.Contains(t, err.Error(), "reachable")
	assert.True(t, frag.IsEmpty())
}

func TestStructurer_ExtractPage_EmptyResponse(t *testing.T) {
	m := new(mocks.MockLanguageModel)
	m.On("Generate", mock.Anything, mock.Anything).Return(&port.ModelResponse{Text: "  ", Model: "x"}, nil)

	_, _, err := newStructurer(m, true).ExtractPage(context.Background(), domain.PageImage{Number: 1}, "", 1)

	var mErr *domain.MalformedResponseError
	assert.ErrorAs(t, err, &mErr)
}

func TestStructurer_ExtractPage_MalformedKeepsRaw(t *testing.T) {
	m := new(mocks.MockLanguageModel)
	m.On("Generate", mock.Anything, mock.Anything).Return(&port.ModelResponse{Text: "no tables here"}, nil)

	frag, raw, err := newStructurer(m, true).ExtractPage(context.Background(), domain.PageImage{Number: 1}, "", 1)

	var mErr *domain.MalformedResponseError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, "no tables here", raw)
	assert.True(t, frag.IsEmpty())
}

func TestStructurer_StructureText_RuleFallback(t *testing.T) {
	m := new(mocks.MockLanguageModel)
	m.On("Generate", mock.Anything, mock.Anything).Return(&port.ModelResponse{Text: emptyJSON}, nil)

	frag, raw, err := newStructurer(m, true).StructureText(context.Background(), operationsPage, "", 1, 1)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "[rule-based] "))
	assert.Equal(t, 1234.0, frag.IncomeStatement["2024-12-31"]["Total Revenue"])
}

func TestStructurer_StructureText_RuleFallbackAfterMalformed(t *testing.T) {
	m := new(mocks.MockLanguageModel)
	m.On("Generate", mock.Anything, mock.Anything).Return(&port.ModelResponse{Text: "sorry"}, nil)

	frag, _, err := newStructurer(m, true).StructureText(context.Background(), operationsPage, "", 1, 1)

	require.NoError(t, err)
	assert.False(t, frag.IsEmpty())
}

func TestStructurer_StructureText_NoRulesOnTransportError(t *testing.T) {
	m := new(mocks.MockLanguageModel)
	m.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("401 unauthorized"))

	frag, _, err := newStructurer(m, true).StructureText(context.Background(), operationsPage, "", 1, 1)

	var tErr *domain.TransportError
	require.ErrorAs(t, err, &tErr)
	assert.True(t, frag.IsEmpty())
}

func TestStructurer_StructureText_FallbackDisabled(t *testing.T) {
	m := new(mocks.MockLanguageModel)
	m.On("Generate", mock.Anything, mock.Anything).Return(&port.ModelResponse{Text: emptyJSON}, nil)

	frag, raw, err := newStructurer(m, false).StructureText(context.Background(), operationsPage, "", 1, 1)

	require.NoError(t, err)
	assert.Equal(t, emptyJSON, raw)
	assert.True(t, frag.IsEmpty())
}

func TestStructurer_StructureText_TruncatesLongText(t *testing.T) {
	m := new(mocks.MockLanguageModel)
	long := strings.Repeat("boilerplate legal text. ", 200) + "Total revenue 1,234" + strings.Repeat(" more boilerplate.", 200)
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req port.ModelRequest) bool {
		return strings.Contains(req.Prompt, "Total revenue 1,234") && !strings.Contains(req.Prompt, long)
	})).Return(&port.ModelResponse{Text: emptyJSON}, nil)

	s := parser.NewStructurer(m, parser.StructurerOptions{MaxPromptChars: 500, WindowChars: 100})
	_, _, err := s.StructureText(context.Background(), long, "", 1, 1)

	require.NoError(t, err)
	m.AssertExpectations(t)
}
