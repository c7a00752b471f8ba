// Package scan turns a photographed or PDF document into a draft record:
// a local vision model extracts a loosely-typed field map, which is merged
// into the operator's draft without ever overwriting what they typed, and
// freeform names are resolved to lookup references by fuzzy matching.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kursbuero/kursd/internal/catalog"
	"github.com/kursbuero/kursd/internal/ollama"
)

const defaultTimeout = 60 * time.Second

// Chatter is the interface for chat completion against the vision model.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// Extractor drives a local multimodal model to read document photos into
// field maps shaped by a collection schema.
type Extractor struct {
	client  Chatter
	model   string
	timeout time.Duration
}

// NewExtractor creates an Extractor using the given client and model name.
// If timeout is <= 0, a default of 60s applies.
func NewExtractor(client Chatter, model string, timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Extractor{client: client, model: model, timeout: timeout}
}

// ExtractImage reads a base64 data URI photo of a document and returns the
// extracted field map for the collection, sanitized against its schema.
// Unlike resolution misses, extraction failures are real errors: the caller
// must leave the draft untouched and surface them to the operator.
func (e *Extractor) ExtractImage(ctx context.Context, dataURI string, collection catalog.Key) (map[string]any, error) {
	payload, err := DecodeDataURI(dataURI)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	messages := []ollama.Message{
		{Role: "system", Content: systemPrompt(collection)},
		{Role: "user", Content: "Extrahiere die Felder aus dem Dokument.", Images: []string{payload}},
	}
	return e.extract(ctx, collection, messages)
}

// ExtractText reads already-extracted document text (e.g. from a PDF) and
// returns the field map for the collection.
func (e *Extractor) ExtractText(ctx context.Context, text string, collection catalog.Key) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("extract: empty document text")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	messages := []ollama.Message{
		{Role: "system", Content: systemPrompt(collection)},
		{Role: "user", Content: "Dokumenttext:\n\n" + text},
	}
	return e.extract(ctx, collection, messages)
}

func (e *Extractor) extract(ctx context.Context, collection catalog.Key, messages []ollama.Message) (map[string]any, error) {
	raw, err := e.client.Chat(ctx, e.model, messages, extractionSchema(collection))
	if err != nil {
		return nil, fmt.Errorf("extraction chat: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("unmarshalling extraction result: %w", err)
	}
	return catalog.Sanitize(collection, fields), nil
}

// DecodeDataURI strips the data URI envelope ("data:image/...;base64,") and
// returns the base64 payload. Bare base64 input is accepted as-is.
func DecodeDataURI(uri string) (string, error) {
	if uri == "" {
		return "", fmt.Errorf("extract: empty image")
	}
	if !strings.HasPrefix(uri, "data:") {
		return uri, nil
	}
	idx := strings.Index(uri, ",")
	if idx < 0 || !strings.Contains(uri[:idx], ";base64") {
		return "", fmt.Errorf("extract: malformed data URI")
	}
	payload := uri[idx+1:]
	if payload == "" {
		return "", fmt.Errorf("extract: empty data URI payload")
	}
	return payload, nil
}
