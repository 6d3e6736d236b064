package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/bookwell/booking-assistant/internal/extract"
)

// GeminiProvider uses the Google generative AI SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func (p *GeminiProvider) Generate(ctx context.Context, prompt, contextInfo string) (string, error) {
	system := assistantSystemPrompt
	if contextInfo != "" {
		system += "\n\nConversation context:\n" + contextInfo
	}
	return p.generate(ctx, system, prompt)
}

func (p *GeminiProvider) ExtractEntities(ctx context.Context, text string) (extract.Result, error) {
	raw, err := p.generate(ctx, extractionSystemPrompt, text)
	if err != nil {
		return extract.Result{}, err
	}
	var result extract.Result
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &result); err != nil {
		return extract.Result{}, fmt.Errorf("gemini: malformed extraction payload: %w", ErrProviderUnavailable)
	}
	return result, nil
}

func (p *GeminiProvider) generate(ctx context.Context, system, user string) (string, error) {
	model := p.client.GenerativeModel(p.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("gemini: %w: %v", ErrProviderUnavailable, err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: empty response: %w", ErrProviderUnavailable)
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	if out == "" {
		return "", fmt.Errorf("gemini: no text parts: %w", ErrProviderUnavailable)
	}
	return out, nil
}
