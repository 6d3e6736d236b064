package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bookwell/booking-assistant/internal/extract"
	"github.com/bookwell/booking-assistant/pkg/logging"
)

type fakeChatClient struct {
	reply string
	err   error
	last  openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.last = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}},
		},
	}, nil
}

func TestOpenAIGenerate(t *testing.T) {
	fake := &fakeChatClient{reply: "Sure, what day works for you?"}
	p := &OpenAIProvider{client: fake, model: "gpt-4o-mini"}

	out, err := p.Generate(context.Background(), "book a meeting", "stage: greeting")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Sure, what day works for you?" {
		t.Errorf("unexpected reply %q", out)
	}
	if fake.last.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", fake.last.Model)
	}
	if len(fake.last.Messages) != 2 || fake.last.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("expected system+user messages, got %+v", fake.last.Messages)
	}
}

func TestOpenAIExtractEntities(t *testing.T) {
	payload := `{"intent":"booking","confirmed":false,"rejected":false,` +
		`"entities":{"service_type":"meeting","date":"2025-06-09","time":"10:00","duration_minutes":30,"purpose":null,"email":null}}`
	fake := &fakeChatClient{reply: "```json\n" + payload + "\n```"}
	p := &OpenAIProvider{client: fake, model: "gpt-4o-mini"}

	got, err := p.ExtractEntities(context.Background(), "book a meeting next monday at 10 am for 30 minutes")
	if err != nil {
		t.Fatalf("ExtractEntities: %v", err)
	}
	if got.Intent != extract.IntentBooking {
		t.Errorf("intent = %s", got.Intent)
	}
	if got.Entities.Date == nil || *got.Entities.Date != "2025-06-09" {
		t.Errorf("date = %v", got.Entities.Date)
	}
	if got.Entities.DurationMin == nil || *got.Entities.DurationMin != 30 {
		t.Errorf("duration = %v", got.Entities.DurationMin)
	}
}

func TestOpenAIErrorWrapsUnavailable(t *testing.T) {
	fake := &fakeChatClient{err: errors.New("rate limited")}
	p := &OpenAIProvider{client: fake, model: "gpt-4o-mini"}

	_, err := p.Generate(context.Background(), "hi", "")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestAnthropicGenerate(t *testing.T) {
	var gotVersion, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVersion = r.Header.Get("anthropic-version")
		gotKey = r.Header.Get("x-api-key")
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "Happy to help with that booking."}},
		})
	}))
	defer srv.Close()

	p := &AnthropicProvider{
		apiKey:     "test-key",
		model:      "claude-3-5-haiku-latest",
		baseURL:    srv.URL,
		httpClient: srv.Client(),
	}
	out, err := p.Generate(context.Background(), "book a meeting", "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Happy to help with that booking." {
		t.Errorf("unexpected reply %q", out)
	}
	if gotVersion != anthropicVersion || gotKey != "test-key" {
		t.Errorf("headers version=%q key=%q", gotVersion, gotKey)
	}
}

func TestAnthropicNon200IsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := &AnthropicProvider{baseURL: srv.URL, httpClient: srv.Client()}
	_, err := p.Generate(context.Background(), "hi", "")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestMockExtractEntities(t *testing.T) {
	anchor := time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC)
	p := NewMockProviderAt(func() time.Time { return anchor })

	got, err := p.ExtractEntities(context.Background(), "book a meeting tomorrow at 2pm")
	if err != nil {
		t.Fatalf("ExtractEntities: %v", err)
	}
	if got.Intent != extract.IntentBooking {
		t.Errorf("intent = %s", got.Intent)
	}
	if got.Entities.Date == nil || *got.Entities.Date != "2025-06-05" {
		t.Errorf("date = %v", got.Entities.Date)
	}
	if got.Entities.Time == nil || *got.Entities.Time != "14:00" {
		t.Errorf("time = %v", got.Entities.Time)
	}
}

type stubProvider struct {
	reply string
	err   error
	calls int
}

func (s *stubProvider) Generate(ctx context.Context, prompt, contextInfo string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func (s *stubProvider) ExtractEntities(ctx context.Context, text string) (extract.Result, error) {
	s.calls++
	return extract.Result{Intent: extract.IntentUnknown}, s.err
}

func TestFallbackUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubProvider{reply: "from primary"}
	secondary := &stubProvider{reply: "from fallback"}
	fired := 0
	p := NewFallbackProvider(primary, secondary, logging.Default(), func() { fired++ })

	out, err := p.Generate(context.Background(), "hi", "")
	if err != nil || out != "from primary" {
		t.Fatalf("Generate = (%q, %v)", out, err)
	}
	if secondary.calls != 0 || fired != 0 {
		t.Errorf("fallback touched: calls=%d fired=%d", secondary.calls, fired)
	}
}

func TestFallbackOnPrimaryError(t *testing.T) {
	primary := &stubProvider{err: ErrProviderUnavailable}
	secondary := &stubProvider{reply: "from fallback"}
	fired := 0
	p := NewFallbackProvider(primary, secondary, logging.Default(), func() { fired++ })

	out, err := p.Generate(context.Background(), "hi", "")
	if err != nil || out != "from fallback" {
		t.Fatalf("Generate = (%q, %v)", out, err)
	}
	if fired != 1 {
		t.Errorf("onFallback fired %d times, want 1", fired)
	}
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"{\"a\":1}", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"  {\"a\":1}  ", "{\"a\":1}"},
	}
	for _, tt := range tests {
		if got := cleanJSON(tt.in); got != tt.want {
			t.Errorf("cleanJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
