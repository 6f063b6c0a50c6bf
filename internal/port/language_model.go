package port

import "context"

// ModelRequest is one prompt sent to a language model, optionally with page
// images (PNG bytes) for vision-capable models.
type ModelRequest struct {
	System string
	Prompt string
	Images [][]byte
}

// ModelResponse carries the model's raw text output.
type ModelResponse struct {
	Text  string
	Model string
}

// LanguageModel abstracts a (vision-capable) language model reachable over HTTP.
type LanguageModel interface {
	Generate(ctx context.Context, req ModelRequest) (*ModelResponse, error)
}
