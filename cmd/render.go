// cmd/render.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
	"github.com/brandontrabucco/insta-dev-sub000/internal/candidates"
	"github.com/brandontrabucco/insta-dev-sub000/internal/config"
	"github.com/brandontrabucco/insta-dev-sub000/internal/env"
	"github.com/brandontrabucco/insta-dev-sub000/internal/markdown"
	"github.com/brandontrabucco/insta-dev-sub000/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newRenderCmd() *cobra.Command {
	var htmlPath, metadataPath, viewport string

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Render a saved DOM snapshot as observation text",
		Long: `Reads the raw HTML and the per-element metadata of a snapshot taken by the
automation server and prints the text an agent would observe for it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if viewport != "" {
				vp, err := parseViewport(viewport)
				if err != nil {
					return err
				}
				cfg.SetObservationViewport(vp)
			}

			logger := observability.Component(observability.GetLogger(), "render")
			text, err := runRender(cmd.Context(), logger, cfg.Observation(), htmlPath, metadataPath)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}

	renderCmd.Flags().StringVar(&htmlPath, "html", "", "Path to the raw HTML of the snapshot (required)")
	_ = renderCmd.MarkFlagRequired("html")
	renderCmd.Flags().StringVar(&metadataPath, "metadata", "", "Path to the JSON metadata map keyed by backend node id")
	renderCmd.Flags().StringVar(&viewport, "viewport", "", "Only render elements overlapping x,y,width,height (overrides config)")
	return renderCmd
}

// runRender contains the core, testable logic of the render command.
func runRender(ctx context.Context, logger *zap.Logger, obsCfg config.ObservationConfig, htmlPath, metadataPath string) (string, error) {
	rawHTML, err := os.ReadFile(htmlPath)
	if err != nil {
		return "", fmt.Errorf("failed to read HTML: %w", err)
	}

	obs := &schemas.BrowserObservation{RawHTML: string(rawHTML), Metadata: map[string]*schemas.NodeMetadata{}}
	if metadataPath != "" {
		raw, err := os.ReadFile(metadataPath)
		if err != nil {
			return "", fmt.Errorf("failed to read metadata: %w", err)
		}
		if err := json.Unmarshal(raw, &obs.Metadata); err != nil {
			return "", fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	buildOpts, renderOpts := markdown.OptionsFromConfig(obsCfg)
	processor := env.NewProcessor(
		candidates.IdentityResolver{},
		markdown.NewConverter(nil, buildOpts, renderOpts, logger),
		logger,
	)
	processor.Process(ctx, obs)
	return obs.ProcessedText, nil
}

// parseViewport parses "x,y,width,height".
func parseViewport(s string) (*config.ViewportConfig, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("viewport must be x,y,width,height, got %q", s)
	}
	var values [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid viewport component %q: %w", part, err)
		}
		values[i] = f
	}
	if values[2] <= 0 || values[3] <= 0 {
		return nil, fmt.Errorf("viewport width and height must be positive, got %q", s)
	}
	return &config.ViewportConfig{X: values[0], Y: values[1], Width: values[2], Height: values[3]}, nil
}
