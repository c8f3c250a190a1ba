// Package output serializes completion results for the CLI in JSON,
// JSONL and YAML form.
package output

import (
	"fmt"
	"io"

	"github.com/parleylabs/parley/pkg/inference"
)

// Format represents output format types.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// Record is one prompt/answer pair as emitted to the user, flattened
// from the full response shape.
type Record struct {
	Model      string `json:"model" yaml:"model"`
	Prompt     string `json:"prompt" yaml:"prompt"`
	Answer     string `json:"answer" yaml:"answer"`
	StopReason string `json:"stop_reason" yaml:"stop_reason"`

	PromptTokens     int `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" yaml:"completion_tokens"`
	TotalTokens      int `json:"total_tokens" yaml:"total_tokens"`
}

// NewRecord flattens a response into its output form.
func NewRecord(model string, prompt inference.Prompt, resp *inference.Response) Record {
	rec := Record{
		Model:            model,
		Prompt:           prompt.String(),
		Answer:           resp.FirstContent(),
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
	}
	if len(resp.Choices) > 0 {
		rec.StopReason = string(resp.Choices[0].StopReason)
	}
	return rec
}

// Writer emits records in one concrete format. Records may be buffered;
// Flush makes them visible.
type Writer interface {
	Write(rec Record) error
	Flush() error
}

// NewWriter creates a writer for the specified format.
func NewWriter(w io.Writer, format Format) (Writer, error) {
	switch format {
	case FormatJSON:
		return NewJSONWriter(w), nil
	case FormatJSONL:
		return NewJSONLWriter(w), nil
	case FormatYAML:
		return NewYAMLWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
