package inference

import (
	"encoding/json"
	"fmt"
)

// StopReason is the normalized reason a completion stopped. Provider
// wire strings ("length", "stop", ...) are mapped through
// ParseStopReason; unrecognized values fail rather than defaulting.
type StopReason string

const (
	StopMaxTokens     StopReason = "max_tokens"
	StopSequence      StopReason = "stop_sequence"
	StopContentFilter StopReason = "content_filter"
	StopToolCall      StopReason = "tool_call"
	StopAPIError      StopReason = "api_error"
	StopUnknown       StopReason = "unknown"
)

// ParseStopReason normalizes a provider finish reason. It accepts both
// provider wire values and the canonical values this package persists,
// so cached responses round-trip.
func ParseStopReason(s string) (StopReason, error) {
	switch s {
	case "length", string(StopMaxTokens):
		return StopMaxTokens, nil
	case "stop", string(StopSequence):
		return StopSequence, nil
	case string(StopContentFilter):
		return StopContentFilter, nil
	case "tool_calls", "function_call", string(StopToolCall):
		return StopToolCall, nil
	case string(StopAPIError):
		return StopAPIError, nil
	case string(StopUnknown):
		return StopUnknown, nil
	}
	return "", fmt.Errorf("unrecognized stop reason %q", s)
}

func (s StopReason) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

func (s *StopReason) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStopReason(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// TokenLogProb is the log-probability record for one generated token.
type TokenLogProb struct {
	Token       string             `json:"token"`
	LogProb     float64            `json:"logprob"`
	Bytes       []int64            `json:"bytes,omitempty"`
	TopLogProbs []TopLogProbsEntry `json:"top_logprobs,omitempty"`
}

// TopLogProbsEntry is one candidate token in a top-logprobs listing.
type TopLogProbsEntry struct {
	Token   string  `json:"token"`
	LogProb float64 `json:"logprob"`
}

// LogProbs carries per-token log probabilities when requested.
type LogProbs struct {
	Content []TokenLogProb `json:"content,omitempty"`
	Refusal []TokenLogProb `json:"refusal,omitempty"`
}

// Choice is one completion within a response.
type Choice struct {
	StopReason StopReason `json:"stop_reason"`
	Message    Message    `json:"message"`
	LogProbs   *LogProbs  `json:"logprobs,omitempty"`
}

// Response is the normalized result of one successful provider call.
// Immutable once produced.
type Response struct {
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Validate enforces the token-accounting invariant and that at least
// one choice is present.
func (r *Response) Validate() error {
	if len(r.Choices) == 0 {
		return fmt.Errorf("response has no choices")
	}
	if r.TotalTokens != r.PromptTokens+r.CompletionTokens {
		return fmt.Errorf("token accounting mismatch: total %d != prompt %d + completion %d",
			r.TotalTokens, r.PromptTokens, r.CompletionTokens)
	}
	return nil
}

// FirstContent returns the text content of the first choice.
func (r *Response) FirstContent() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}
