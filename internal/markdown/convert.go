// internal/markdown/convert.go
package markdown

import (
	"go.uber.org/zap"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
	"github.com/brandontrabucco/insta-dev-sub000/internal/config"
)

// FailedObservationText stands in for the processed text when the page could
// not be converted.
const FailedObservationText = "There was an error processing this page."

// Converter pairs a builder with the options of one environment.
type Converter struct {
	registry   *Registry
	builder    *Builder
	buildOpts  BuildOptions
	renderOpts RenderOptions
}

// NewConverter returns a converter. A nil registry uses NewDefaultRegistry.
func NewConverter(registry *Registry, buildOpts BuildOptions, renderOpts RenderOptions, logger *zap.Logger) *Converter {
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	return &Converter{
		registry:   registry,
		builder:    NewBuilder(registry, logger),
		buildOpts:  buildOpts,
		renderOpts: renderOpts,
	}
}

// OptionsFromConfig maps the observation config section onto build and
// render options.
func OptionsFromConfig(cfg config.ObservationConfig) (BuildOptions, RenderOptions) {
	build := BuildOptions{
		RequireVisible:   cfg.RequireVisible,
		RequireFrontmost: cfg.RequireFrontmost,
	}
	if cfg.Viewport != nil {
		build.Viewport = &schemas.Rect{
			X:      cfg.Viewport.X,
			Y:      cfg.Viewport.Y,
			Width:  cfg.Viewport.Width,
			Height: cfg.Viewport.Height,
		}
	}
	return build, RenderOptions{MaxLabelLength: cfg.MaxLabelLength}
}

// Registry returns the registry the converter classifies with.
func (c *Converter) Registry() *Registry { return c.registry }

// Convert builds and renders one snapshot.
func (c *Converter) Convert(rawHTML string, metadata map[string]*schemas.NodeMetadata) (string, error) {
	nodes, err := c.builder.Build(rawHTML, metadata, c.buildOpts)
	if err != nil {
		return "", err
	}
	return Render(nodes, c.registry, c.renderOpts), nil
}
