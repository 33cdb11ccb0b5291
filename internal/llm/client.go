// Package llm wraps the chat-completion provider the agent talks to.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNoAPIKey is returned when a completion is requested without a
// configured API key.
var ErrNoAPIKey = errors.New("llm: no API key configured")

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Usage is the token accounting of one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the provider's answer.
type Completion struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Client produces chat completions.
type Client interface {
	// Complete sends the conversation and returns the model's reply.
	Complete(ctx context.Context, messages []Message) (*Completion, error)
	// Model returns the model identifier in use.
	Model() string
}

// Options configures an OpenAI-compatible client.
type Options struct {
	APIKey      string
	APIBase     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// OpenAIClient is a Client backed by an OpenAI-compatible completion API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	hasKey      bool
}

// NewOpenAIClient creates a client for the configured endpoint. Any
// OpenAI-compatible API base works.
func NewOpenAIClient(opts Options) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.APIBase != "" {
		cfg.BaseURL = strings.TrimSuffix(opts.APIBase, "/")
	}

	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: float32(opts.Temperature),
		hasKey:      opts.APIKey != "",
	}
}

// Model returns the configured model identifier.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete sends the conversation to the completion endpoint.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	if !c.hasKey {
		return nil, ErrNoAPIKey
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llm: completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm: completion returned no choices")
	}

	choice := resp.Choices[0]
	return &Completion{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
