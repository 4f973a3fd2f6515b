package valuation

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIModel talks to any OpenAI-compatible chat completion endpoint.
type OpenAIModel struct {
	client *openai.Client
	model  string
}

// NewOpenAIModel returns nil when apiKey is empty.
func NewOpenAIModel(apiKey, baseURL, model string) *OpenAIModel {
	if apiKey == "" {
		return nil
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIModel{client: openai.NewClientWithConfig(cfg), model: model}
}

func (m *OpenAIModel) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a careful book appraiser. Answer in JSON."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   200,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}
