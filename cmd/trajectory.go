// cmd/trajectory.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandontrabucco/insta-dev-sub000/internal/config"
	"github.com/brandontrabucco/insta-dev-sub000/internal/observability"
	"github.com/brandontrabucco/insta-dev-sub000/internal/store"
)

// errStoreDisabled is returned when a command needs the trajectory store but
// store.enabled is false.
var errStoreDisabled = errors.New("the trajectory store is disabled, set store.enabled and INSTA_STORE_URL")

// storeProvider opens the trajectory store. Tests swap in a mock pool.
type storeProvider interface {
	Create(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*store.Store, func(), error)
}

type pgxStoreProvider struct{}

func (pgxStoreProvider) Create(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*store.Store, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	st, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return st, pool.Close, nil
}

func newTrajectoryCmd(provider storeProvider) *cobra.Command {
	var trajectoryID string

	trajectoryCmd := &cobra.Command{
		Use:   "trajectory",
		Short: "Print the recorded steps of a trajectory as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if !cfg.Store().Enabled {
				return errStoreDisabled
			}
			logger := observability.Component(observability.GetLogger(), "trajectory")
			return runShowTrajectory(ctx, cmd.OutOrStdout(), logger, cfg.Store(), provider, trajectoryID)
		},
	}

	trajectoryCmd.Flags().StringVar(&trajectoryID, "id", "", "The ID of the trajectory to print (required)")
	_ = trajectoryCmd.MarkFlagRequired("id")
	return trajectoryCmd
}

// runShowTrajectory contains the core, testable logic of the trajectory command.
func runShowTrajectory(ctx context.Context, w io.Writer, logger *zap.Logger, cfg config.StoreConfig, provider storeProvider, trajectoryID string) error {
	st, cleanup, err := provider.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	steps, err := st.Steps(ctx, trajectoryID)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return fmt.Errorf("no steps recorded for trajectory %s", trajectoryID)
	}

	out, err := json.MarshalIndent(steps, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
