// Package llm talks to the language model, either loaded in process through
// kronk or served by an external llama.cpp-style server.
package llm

import (
	"context"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Params struct {
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// Chatter issues one chat completion over a structured message list.
type Chatter interface {
	Chat(ctx context.Context, messages []Message, params Params) (string, error)
}

// Generator issues one raw text completion over an already templated prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, params Params) (string, error)
}

// RenderChatML applies the ChatML template and leaves the assistant turn open
// for generation.
func RenderChatML(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString("<|im_start|>")
		b.WriteString(m.Role)
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteString("<|im_end|>\n")
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String()
}
