// internal/env/processor.go
package env

import (
	"context"

	"go.uber.org/zap"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
	"github.com/brandontrabucco/insta-dev-sub000/internal/candidates"
	"github.com/brandontrabucco/insta-dev-sub000/internal/markdown"
	"github.com/brandontrabucco/insta-dev-sub000/internal/retry"
)

// Converter renders a DOM snapshot to text. *markdown.Converter implements it.
type Converter interface {
	Convert(rawHTML string, metadata map[string]*schemas.NodeMetadata) (string, error)
}

// ConversionAttempts bounds the markdown build and render: one retry.
const ConversionAttempts = 2

// Processor fills in the processed text of raw observations.
type Processor struct {
	resolver  candidates.Resolver
	converter Converter
	policy    retry.Policy
	logger    *zap.Logger
}

// NewProcessor returns a processor. Nil arguments fall back to the identity
// resolver and a converter over the default registry.
func NewProcessor(resolver candidates.Resolver, converter Converter, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("processor")
	if resolver == nil {
		resolver = candidates.IdentityResolver{}
	}
	if converter == nil {
		converter = markdown.NewConverter(nil, markdown.BuildOptions{}, markdown.RenderOptions{}, logger)
	}
	return &Processor{
		resolver:  resolver,
		converter: converter,
		policy:    retry.Policy{Enabled: true, MaxAttempts: ConversionAttempts, Logger: logger},
		logger:    logger,
	}
}

// Process stamps candidate ids and sets obs.ProcessedText. A page that
// cannot be converted gets markdown.FailedObservationText so the agent
// always receives an observation.
func (p *Processor) Process(ctx context.Context, obs *schemas.BrowserObservation) {
	p.resolver.Resolve(obs)
	text, err := retry.Do(ctx, p.policy, "markdown", func(context.Context) (string, error) {
		return p.converter.Convert(obs.RawHTML, obs.Metadata)
	})
	if err != nil {
		p.logger.Error("Failed to convert observation.", zap.String("url", obs.CurrentURL), zap.Error(err))
		text = markdown.FailedObservationText
	}
	obs.ProcessedText = text
}
