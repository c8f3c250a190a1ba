// Package openaichat executes inference requests against any backend
// speaking the OpenAI chat-completions wire protocol: OpenAI itself,
// the OpenRouter proxy, and Hyperbolic. One Client is bound to one
// backend (key + base URL); the model is supplied per call.
package openaichat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/parleylabs/parley/pkg/inference"
)

// Client is the innermost layer of a composed stack: it serializes the
// prompt, issues one HTTP chat-completion request, and normalizes the
// result. Retries belong to the wrapping layer, so the SDK's internal
// retry is disabled.
type Client struct {
	api openai.Client
}

// New creates a client for the backend at baseURL (empty means the
// OpenAI default).
func New(apiKey, baseURL string, opts ...option.RequestOption) *Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)
	return &Client{api: openai.NewClient(reqOpts...)}
}

// Factory adapts New to the registry's provider-factory hook.
func Factory(_ inference.BackendFamily, cfg inference.BackendConfig) inference.Client {
	return New(cfg.APIKey, cfg.BaseURL)
}

// Complete implements inference.Client.
func (c *Client) Complete(ctx context.Context, model string, prompt inference.Prompt, params inference.Params) (*inference.Response, error) {
	if err := prompt.Validate(); err != nil {
		return nil, err
	}

	req, err := buildRequest(model, prompt, params)
	if err != nil {
		return nil, err
	}

	completion, err := c.api.Chat.Completions.New(ctx, req)
	if err != nil {
		return nil, classifyError(model, err)
	}
	return normalize(model, completion)
}

func buildRequest(model string, prompt inference.Prompt, params inference.Params) (openai.ChatCompletionNewParams, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(prompt.Messages))
	for _, msg := range prompt.Messages {
		switch msg.Role {
		case inference.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case inference.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case inference.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			return openai.ChatCompletionNewParams{}, &inference.ValidationError{
				Field:  "messages",
				Reason: fmt.Sprintf("unknown role %q", msg.Role),
			}
		}
	}

	req := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(params.Temperature),
		TopP:        openai.Float(params.TopP),
		N:           openai.Int(int64(params.N)),
	}

	if params.FrequencyPenalty != nil {
		req.FrequencyPenalty = openai.Float(*params.FrequencyPenalty)
	}
	if params.PresencePenalty != nil {
		req.PresencePenalty = openai.Float(*params.PresencePenalty)
	}
	if params.MaxCompletionTokens != nil {
		req.MaxCompletionTokens = openai.Int(int64(*params.MaxCompletionTokens))
	}
	if len(params.Stop) > 0 {
		req.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: params.Stop}
	}
	if params.LogProbs {
		req.Logprobs = openai.Bool(true)
	}
	if params.TopLogProbs != nil {
		req.TopLogprobs = openai.Int(int64(*params.TopLogProbs))
	}
	if params.Seed != nil {
		req.Seed = openai.Int(*params.Seed)
	}
	if params.ParallelToolCalls != nil {
		req.ParallelToolCalls = openai.Bool(*params.ParallelToolCalls)
	}
	if len(params.Metadata) > 0 {
		req.Metadata = openai.Metadata(params.Metadata)
	}
	if params.ResponseFormat != nil {
		switch params.ResponseFormat.Type {
		case "json_object":
			req.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
			}
		case "text", "":
			req.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfText: &openai.ResponseFormatTextParam{},
			}
		default:
			return openai.ChatCompletionNewParams{}, &inference.ValidationError{
				Field:  "response_format",
				Reason: fmt.Sprintf("unsupported type %q", params.ResponseFormat.Type),
			}
		}
	}
	if len(params.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(params.Tools))
		for i, raw := range params.Tools {
			var tool openai.ChatCompletionToolParam
			if err := json.Unmarshal(raw, &tool); err != nil {
				return openai.ChatCompletionNewParams{}, &inference.ValidationError{
					Field:  "tools",
					Reason: fmt.Sprintf("tool %d is not a valid tool definition: %v", i, err),
				}
			}
			tools = append(tools, tool)
		}
		req.Tools = tools
	}

	return req, nil
}

// normalize maps the raw completion into the canonical response shape.
// A missing usage block or an unrecognized finish reason means the
// provider sent something malformed; that is fatal for the call, never
// silently defaulted.
func normalize(model string, completion *openai.ChatCompletion) (*inference.Response, error) {
	if len(completion.Choices) == 0 {
		return nil, &inference.ProviderError{
			Kind:  inference.KindMalformedResponse,
			Model: model,
			Err:   fmt.Errorf("response has no choices"),
		}
	}
	if !completion.JSON.Usage.Valid() {
		return nil, &inference.ProviderError{
			Kind:  inference.KindMalformedResponse,
			Model: model,
			Err:   fmt.Errorf("response has no usage block"),
		}
	}

	choices := make([]inference.Choice, 0, len(completion.Choices))
	for _, choice := range completion.Choices {
		stopReason, err := inference.ParseStopReason(choice.FinishReason)
		if err != nil {
			return nil, &inference.ProviderError{
				Kind:  inference.KindMalformedResponse,
				Model: model,
				Err:   err,
			}
		}
		choices = append(choices, inference.Choice{
			StopReason: stopReason,
			Message: inference.Message{
				Role:    inference.RoleAssistant,
				Content: choice.Message.Content,
			},
			LogProbs: normalizeLogProbs(choice.Logprobs),
		})
	}

	resp := &inference.Response{
		Model:            completion.Model,
		Choices:          choices,
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
	}
	if err := resp.Validate(); err != nil {
		return nil, &inference.ProviderError{
			Kind:  inference.KindMalformedResponse,
			Model: model,
			Err:   err,
		}
	}
	return resp, nil
}

func normalizeLogProbs(lp openai.ChatCompletionChoiceLogprobs) *inference.LogProbs {
	if len(lp.Content) == 0 && len(lp.Refusal) == 0 {
		return nil
	}
	return &inference.LogProbs{
		Content: normalizeTokenLogProbs(lp.Content),
		Refusal: normalizeTokenLogProbs(lp.Refusal),
	}
}

func normalizeTokenLogProbs(tokens []openai.ChatCompletionTokenLogprob) []inference.TokenLogProb {
	if len(tokens) == 0 {
		return nil
	}
	out := make([]inference.TokenLogProb, 0, len(tokens))
	for _, tok := range tokens {
		entry := inference.TokenLogProb{
			Token:   tok.Token,
			LogProb: tok.Logprob,
			Bytes:   tok.Bytes,
		}
		for _, top := range tok.TopLogprobs {
			entry.TopLogProbs = append(entry.TopLogProbs, inference.TopLogProbsEntry{
				Token:   top.Token,
				LogProb: top.Logprob,
			})
		}
		out = append(out, entry)
	}
	return out
}
