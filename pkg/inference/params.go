package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	maxMetadataEntries     = 16
	maxMetadataKeyLength   = 64
	maxMetadataValueLength = 512
)

var validate = validator.New()

// StopSequences is the set of stop strings for a completion. It accepts
// either a bare string or a list of strings when decoding, and always
// encodes as a list so that equal values serialize identically.
type StopSequences []string

func (s *StopSequences) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = StopSequences{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("stop must be a string or a list of strings")
	}
	*s = StopSequences(many)
	return nil
}

// ResponseFormat selects the provider-side output format, e.g.
// {"type": "json_object"}.
type ResponseFormat struct {
	Type string `json:"type"`
}

// Params describes sampling behavior for a completion request,
// mirroring the OpenAI chat-completion options this layer recognizes.
//
// Params are value types: two instances with identical field values are
// equal and produce the same cache key regardless of how they were
// built. Optional fields are pointers; nil means "provider default".
type Params struct {
	Temperature float64 `json:"temperature" validate:"gte=0,lte=2"`
	TopP        float64 `json:"top_p" validate:"gte=0,lte=1"`
	N           int     `json:"n" validate:"gte=1"`

	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" validate:"omitempty,gte=-2,lte=2"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty" validate:"omitempty,gte=-2,lte=2"`

	MaxCompletionTokens *int          `json:"max_completion_tokens,omitempty" validate:"omitempty,gte=1"`
	Stop                StopSequences `json:"stop,omitempty"`
	LogProbs            bool          `json:"logprobs,omitempty"`
	TopLogProbs         *int          `json:"top_logprobs,omitempty" validate:"omitempty,gte=0,lte=20"`
	Seed                *int64        `json:"seed,omitempty"`

	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	Tools             []json.RawMessage `json:"tools,omitempty"`
	ToolChoice        string            `json:"tool_choice,omitempty"`
	ParallelToolCalls *bool             `json:"parallel_tool_calls,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// DefaultParams returns the parameter set used when a caller passes
// none: temperature 1, top_p 1, a single completion.
func DefaultParams() Params {
	return Params{
		Temperature: 1.0,
		TopP:        1.0,
		N:           1,
	}
}

// Validate checks every constrained field and returns a
// *ValidationError for the first violation found.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{
				Field:  jsonFieldName(fe.StructField()),
				Reason: fmt.Sprintf("failed constraint %q (value %v)", fe.Tag(), fe.Value()),
			}
		}
		return &ValidationError{Field: "params", Reason: err.Error()}
	}
	return p.validateMetadata()
}

func (p Params) validateMetadata() error {
	if p.Metadata == nil {
		return nil
	}
	if len(p.Metadata) > maxMetadataEntries {
		return &ValidationError{
			Field:  "metadata",
			Reason: fmt.Sprintf("at most %d entries allowed, got %d", maxMetadataEntries, len(p.Metadata)),
		}
	}
	for k, v := range p.Metadata {
		if len(k) > maxMetadataKeyLength {
			return &ValidationError{
				Field:  "metadata",
				Reason: fmt.Sprintf("key %q exceeds %d characters", truncate(k, 16), maxMetadataKeyLength),
			}
		}
		if len(v) > maxMetadataValueLength {
			return &ValidationError{
				Field:  "metadata",
				Reason: fmt.Sprintf("value for key %q exceeds %d characters", k, maxMetadataValueLength),
			}
		}
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// jsonFieldName converts a Go struct field name to its wire name, so
// validation errors read like the JSON callers actually write.
func jsonFieldName(structField string) string {
	switch structField {
	case "Temperature":
		return "temperature"
	case "TopP":
		return "top_p"
	case "N":
		return "n"
	case "FrequencyPenalty":
		return "frequency_penalty"
	case "PresencePenalty":
		return "presence_penalty"
	case "MaxCompletionTokens":
		return "max_completion_tokens"
	case "TopLogProbs":
		return "top_logprobs"
	}
	return strings.ToLower(structField)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
