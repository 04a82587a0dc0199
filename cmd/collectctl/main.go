package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/collectdesk/collectdesk/internal/app"
	"github.com/collectdesk/collectdesk/internal/config"
	"github.com/collectdesk/collectdesk/internal/domain"
	"github.com/collectdesk/collectdesk/internal/logger"
	"github.com/collectdesk/collectdesk/internal/usecase"
)

type globalOptions struct {
	actor   string
	store   string
	fixture string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts globalOptions

	root := &cobra.Command{
		Use:           "collectctl",
		Short:         "Operate the collections assignment engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.actor, "actor", "", "Principal recorded on assignments (default: configured system actor)")
	root.PersistentFlags().StringVar(&opts.store, "store", "", "Store driver override: postgres or memory")
	root.PersistentFlags().StringVar(&opts.fixture, "fixture", "", "JSON fixture loaded into the store before the command runs")

	root.AddCommand(
		newBatchCmd(&opts),
		newReassignCmd(&opts),
		newAuditCmd(&opts),
		newStatsCmd(&opts),
	)
	return root
}

func newBatchCmd(opts *globalOptions) *cobra.Command {
	var (
		specialization string
		limit          int
		includeOwned   bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Distribute the unassigned backlog across available officers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts, func(ctx context.Context, a *app.App) (interface{}, error) {
				req := domain.BatchRequest{
					Limit:        limit,
					ExcludeOwned: !includeOwned,
					RequestedBy:  actorOrDefault(opts.actor, a.Config),
				}
				if specialization != "" {
					pt := domain.ProductType(specialization)
					req.Specialization = &pt
				}
				return a.Service.RunBatch(ctx, req)
			}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&specialization, "specialization", "", "Only distribute accounts of this product type")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum accounts to read (0 uses the configured default)")
	cmd.Flags().BoolVar(&includeOwned, "include-owned", false, "Also redistribute accounts that already have an owner")
	return cmd
}

func newReassignCmd(opts *globalOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reassign <customer-id> <officer-id>",
		Short: "Move one customer to a different officer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Service.Reassign(ctx, domain.ReassignRequest{
					CustomerID:  args[0],
					OfficerID:   args[1],
					Reason:      reason,
					RequestedBy: actorOrDefault(opts.actor, a.Config),
				})
			}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&reason, "reason", usecase.DefaultReassignReason, "Reason recorded in the assignment history")
	return cmd
}

func newAuditCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Report ownership and roster inconsistencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Service.Audit(ctx)
			}, cmd.OutOrStdout())
		},
	}
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show assignment coverage and officer load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Service.Stats(ctx)
			}, cmd.OutOrStdout())
		},
	}
}

// withService builds the application from the environment and the global
// flags, runs fn and prints its result as indented JSON
func withService(ctx context.Context, opts *globalOptions, fn func(context.Context, *app.App) (interface{}, error), out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logger.WithCorrelationID(ctx, uuid.NewString())

	cfg := config.FromEnv()
	if opts.store != "" {
		cfg.Store.Driver = opts.store
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := app.New(ctx, cfg, app.NewLogger(cfg.Logging, os.Stderr))
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.fixture != "" {
		fixture, err := app.ReadFixtureFile(opts.fixture)
		if err != nil {
			return fmt.Errorf("failed to read fixture: %w", err)
		}
		if err := a.Seed(ctx, fixture); err != nil {
			return err
		}
	}

	result, err := fn(ctx, a)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func actorOrDefault(actor string, cfg *config.Config) string {
	if actor != "" {
		return actor
	}
	return cfg.Assignment.SystemActor
}
