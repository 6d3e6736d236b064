package llm

import (
	"context"

	"github.com/bookwell/booking-assistant/internal/extract"
	"github.com/bookwell/booking-assistant/pkg/logging"
)

// FallbackProvider tries the primary provider and, on any error, retries the
// same call against the fallback. onFallback fires once per failed primary
// call so the service can count them.
type FallbackProvider struct {
	primary    Provider
	fallback   Provider
	logger     *logging.Logger
	onFallback func()
}

func NewFallbackProvider(primary, fallback Provider, logger *logging.Logger, onFallback func()) *FallbackProvider {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackProvider{primary: primary, fallback: fallback, logger: logger, onFallback: onFallback}
}

func (p *FallbackProvider) Generate(ctx context.Context, prompt, contextInfo string) (string, error) {
	out, err := p.primary.Generate(ctx, prompt, contextInfo)
	if err == nil {
		return out, nil
	}
	p.note(err)
	return p.fallback.Generate(ctx, prompt, contextInfo)
}

func (p *FallbackProvider) ExtractEntities(ctx context.Context, text string) (extract.Result, error) {
	out, err := p.primary.ExtractEntities(ctx, text)
	if err == nil {
		return out, nil
	}
	p.note(err)
	return p.fallback.ExtractEntities(ctx, text)
}

func (p *FallbackProvider) note(err error) {
	p.logger.Warn("primary llm provider failed, using fallback", "error", err)
	if p.onFallback != nil {
		p.onFallback()
	}
}
