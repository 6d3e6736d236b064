package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bookwell/booking-assistant/internal/extract"
)

// chatClient is the slice of the OpenAI SDK we use, narrowed for testing.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider talks to the OpenAI chat completions API.
type OpenAIProvider struct {
	client chatClient
	model  string
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt, contextInfo string) (string, error) {
	system := assistantSystemPrompt
	if contextInfo != "" {
		system += "\n\nConversation context:\n" + contextInfo
	}
	return p.complete(ctx, system, prompt, 0.7)
}

func (p *OpenAIProvider) ExtractEntities(ctx context.Context, text string) (extract.Result, error) {
	raw, err := p.complete(ctx, extractionSystemPrompt, text, 0)
	if err != nil {
		return extract.Result{}, err
	}
	var result extract.Result
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &result); err != nil {
		return extract.Result{}, fmt.Errorf("openai: malformed extraction payload: %w", ErrProviderUnavailable)
	}
	return result, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w: %v", ErrProviderUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty completion: %w", ErrProviderUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}
