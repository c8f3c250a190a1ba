// Package inference implements the request layer that turns a model
// identifier and a structured conversation into a completed response.
// It handles backend routing, sliding-window rate limiting, retries
// with exponential backoff, and durable response caching.
//
// The entry point for most callers is Registry.GetResponse; lower-level
// composition is available through the Client interface and the
// WithRetry / WithRateLimit / NewCachedClient decorators.
package inference

import (
	"fmt"
	"strings"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three recognized roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single chat turn. Messages are value types: equality is
// structural and instances are never mutated after construction.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is an ordered conversation. Two prompts with the same messages
// in the same order are equal and produce the same cache key.
type Prompt struct {
	Messages []Message `json:"messages"`
}

// NewPrompt builds a prompt from the given messages.
func NewPrompt(messages ...Message) Prompt {
	return Prompt{Messages: messages}
}

// UserPrompt wraps a raw string as a single user-role prompt.
func UserPrompt(text string) Prompt {
	return Prompt{Messages: []Message{{Role: RoleUser, Content: text}}}
}

// SystemPrompt wraps a raw string as a single system-role prompt.
func SystemPrompt(text string) Prompt {
	return Prompt{Messages: []Message{{Role: RoleSystem, Content: text}}}
}

// Append returns a new prompt with other's messages concatenated after
// p's. Neither input is modified.
func (p Prompt) Append(other Prompt) Prompt {
	merged := make([]Message, 0, len(p.Messages)+len(other.Messages))
	merged = append(merged, p.Messages...)
	merged = append(merged, other.Messages...)
	return Prompt{Messages: merged}
}

// With returns a new prompt with one extra message appended.
func (p Prompt) With(role Role, content string) Prompt {
	return p.Append(Prompt{Messages: []Message{{Role: role, Content: content}}})
}

// Validate checks that the prompt is non-empty and every role is known.
func (p Prompt) Validate() error {
	if len(p.Messages) == 0 {
		return &ValidationError{Field: "messages", Reason: "prompt must contain at least one message"}
	}
	for i, msg := range p.Messages {
		if !msg.Role.Valid() {
			return &ValidationError{
				Field:  "messages",
				Reason: fmt.Sprintf("message %d has unknown role %q", i, msg.Role),
			}
		}
	}
	return nil
}

// String renders the conversation as "role: content" paragraphs.
func (p Prompt) String() string {
	var sb strings.Builder
	for i, msg := range p.Messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(string(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
	}
	return sb.String()
}
