package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/teemow/gistflow/internal/gist"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string `json:"name"`
	Strict bool   `json:"strict"`
	Schema any    `json:"schema"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (r chatResponse) completion() (Completion, error) {
	out := Completion{
		Model:            r.Model,
		PromptTokens:     r.Usage.PromptTokens,
		CompletionTokens: r.Usage.CompletionTokens,
	}
	if len(r.Choices) == 0 {
		return out, gist.Validation("llm.complete", errors.New("response has no choices"))
	}

	choice := r.Choices[0]
	out.FinishReason = choice.FinishReason
	out.Content = strings.TrimSpace(choice.Message.Content)

	switch {
	case choice.Message.Refusal != "":
		return out, gist.Validation("llm.complete", fmt.Errorf("model refused: %s", choice.Message.Refusal))
	case choice.FinishReason == "length":
		return out, gist.Validation("llm.complete", errors.New("response truncated at max tokens"))
	case out.Content == "":
		return out, gist.Validation("llm.complete", errors.New("empty response content"))
	}
	return out, nil
}
