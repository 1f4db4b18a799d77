// cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandontrabucco/insta-dev-sub000/internal/actions"
	"github.com/brandontrabucco/insta-dev-sub000/internal/candidates"
	"github.com/brandontrabucco/insta-dev-sub000/internal/config"
	"github.com/brandontrabucco/insta-dev-sub000/internal/env"
	"github.com/brandontrabucco/insta-dev-sub000/internal/markdown"
	"github.com/brandontrabucco/insta-dev-sub000/internal/network"
	"github.com/brandontrabucco/insta-dev-sub000/internal/observability"
	"github.com/brandontrabucco/insta-dev-sub000/internal/transport"
)

// closeTimeout bounds the session close issued when a run ends, even when the
// run itself was cancelled.
const closeTimeout = 15 * time.Second

// responsePattern splits an action script into agent responses, one per
// fenced block.
var responsePattern = regexp.MustCompile("(?s)```.*?```")

func newRunCmd(provider storeProvider) *cobra.Command {
	var (
		startURL    string
		actionsPath string
		serverURL   string
		grammar     string
		settleDelay time.Duration
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scripted trajectory against the automation server",
		Long: `Resets a browser session at --url, then steps through the fenced actions read
from --actions (or stdin), printing the observation after every step. The run
ends at the first stop action or when the script is exhausted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			// Flag overrides.
			if cmd.Flags().Changed("server") {
				cfg.SetServerURL(serverURL)
			}
			if cmd.Flags().Changed("settle-delay") {
				cfg.SetServerSettleDelay(settleDelay)
			}
			if grammar != "" {
				cfg.SetActionGrammar(grammar)
			}

			script, err := readSource(cmd, actionsSource(actionsPath))
			if err != nil {
				return err
			}

			logger := observability.GetLogger()
			return runTrajectory(ctx, cmd.OutOrStdout(), logger, cfg, provider, startURL, script)
		},
	}

	runCmd.Flags().StringVar(&startURL, "url", "", "URL the trajectory starts at (required)")
	_ = runCmd.MarkFlagRequired("url")
	runCmd.Flags().StringVarP(&actionsPath, "actions", "a", "", "File of fenced agent actions. Reads stdin when unset or \"-\".")
	runCmd.Flags().StringVar(&serverURL, "server", "", "Automation server URL (overrides config/env)")
	runCmd.Flags().DurationVar(&settleDelay, "settle-delay", 0, "Delay before every navigation (overrides config/env)")
	runCmd.Flags().StringVarP(&grammar, "grammar", "g", "", "Action grammar: json or call_chain (overrides config)")
	return runCmd
}

func actionsSource(path string) string {
	if path == "" {
		return "-"
	}
	return path
}

// runTrajectory contains the core, testable logic of the run command.
func runTrajectory(ctx context.Context, out io.Writer, logger *zap.Logger, cfg *config.Config, provider storeProvider, startURL, script string) error {
	parser, err := actions.NewParser(cfg.Action().Grammar)
	if err != nil {
		return err
	}

	clientOpts := transport.OptionsFromConfig(cfg.Server(), cfg.Retry())
	clientOpts.HTTPClient = network.NewClient(network.ClientConfigFromServer(cfg.Server(), logger))
	client, err := transport.NewClient(clientOpts, logger)
	if err != nil {
		return err
	}

	opts := env.Options{Parser: parser, Logger: logger}
	buildOpts, renderOpts := markdown.OptionsFromConfig(cfg.Observation())
	opts.Processor = env.NewProcessor(
		candidates.IdentityResolver{},
		markdown.NewConverter(nil, buildOpts, renderOpts, logger),
		logger,
	)

	if cfg.Store().Enabled {
		st, cleanup, err := provider.Create(ctx, cfg.Store(), logger)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		defer cleanup()
		if err := st.EnsureSchema(ctx); err != nil {
			return err
		}
		opts.Recorder = st
	}

	environment := env.New(client, opts)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if status, err := environment.Close(closeCtx); err != nil {
			logger.Warn("Failed to close session", zap.String("status", string(status)), zap.Error(err))
		}
	}()

	obs, err := environment.Reset(ctx, startURL)
	if err != nil {
		return fmt.Errorf("failed to reset at %s: %w", startURL, err)
	}
	logger.Info("Trajectory started", zap.String("trajectory_id", environment.TrajectoryID()))
	printObservation(out, 0, "reset", obs.CurrentURL, obs.ProcessedText)

	for i, response := range responsePattern.FindAllString(script, -1) {
		result, err := environment.StepText(ctx, response)
		if result.ParseErr != nil {
			logger.Warn("Response held no valid action", zap.Int("step", i+1), zap.Error(result.ParseErr))
		}
		if err != nil {
			if result.Truncated {
				fmt.Fprintf(out, "=== trajectory truncated: %v\n", err)
			}
			return err
		}
		if result.Done {
			fmt.Fprintf(out, "=== stop: %s\n", result.Answer)
			return nil
		}
		if result.Err != nil {
			logger.Warn("Action failed", zap.Int("step", i+1), zap.Error(result.Err))
		}
		printObservation(out, i+1, string(result.Status), result.Observation.CurrentURL, result.Observation.ProcessedText)
	}
	return nil
}

func printObservation(w io.Writer, index int, status, url, text string) {
	fmt.Fprintf(w, "=== step %d | %s | %s\n%s\n", index, status, url, text)
}
