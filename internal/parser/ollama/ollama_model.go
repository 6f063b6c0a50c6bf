package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"finextract/internal/config"
	"finextract/internal/parser"
	"finextract/internal/port"
)

const defaultBaseURL = "http://localhost:11434"

// Model implements port.LanguageModel using Ollama's native /api/generate
// endpoint, which takes page images as base64 strings.
type Model struct {
	model    string
	endpoint string
	client   *http.Client
}

// NewModel creates an Ollama model from a provider config.
func NewModel(cfg *config.ModelProviderConfig) *Model {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return newModel(cfg, strings.TrimRight(base, "/")+"/api/generate")
}

// NewModelWithEndpoint creates a model pointing at a custom API endpoint (for testing).
func NewModelWithEndpoint(cfg *config.ModelProviderConfig, endpoint string) *Model {
	return newModel(cfg, endpoint)
}

func newModel(cfg *config.ModelProviderConfig, endpoint string) *Model {
	model := cfg.DefaultModel
	if model == "" {
		model = "llama3.2-vision"
	}
	// Local vision models are slow on large pages.
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	return &Model{
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (m *Model) Generate(ctx context.Context, req port.ModelRequest) (*port.ModelResponse, error) {
	images := make([]string, 0, len(req.Images))
	for _, img := range req.Images {
		images = append(images, base64.StdEncoding.EncodeToString(img))
	}

	reqBody := map[string]interface{}{
		"model":  m.model,
		"prompt": req.Prompt,
		"stream": false,
		"format": "json",
		"options": map[string]interface{}{
			"temperature": 0,
		},
	}
	if req.System != "" {
		reqBody["system"] = req.System
	}
	if len(images) > 0 {
		reqBody["images"] = images
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling ollama at %s: %w", m.endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if err := parser.CheckStatus("ollama", resp, respBody); err != nil {
		return nil, err
	}

	var out struct {
		Model    string `json:"model"`
		Response string `json:"response"`
		Done     bool   `json:"done"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", out.Error)
	}
	model := m.model
	if out.Model != "" {
		model = out.Model
	}
	return &port.ModelResponse{Text: out.Response, Model: model}, nil
}
