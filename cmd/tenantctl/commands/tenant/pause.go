package tenant

import (
	"context"
	"fmt"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <tenant-id>",
	Short: "Pause an active tenant",
	Long: `Pause an active tenant.

Pausing flushes the tenant's runtime state, takes a checkpoint, and stops
the container. A paused tenant can be resumed later with its state intact.

Examples:
  tenantctl tenant pause tenant-batch-42-1a2b3c4d`,
	Args: cobra.ExactArgs(1),
	RunE: runPause,
}

func runPause(cmd *cobra.Command, args []string) error {
	id := args[0]

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		if err := srv.Orchestrator().Pause(ctx, id); err != nil {
			return fmt.Errorf("failed to pause tenant: %w", err)
		}

		cmdutil.PrintSuccess(fmt.Sprintf("Tenant '%s' paused", id))
		return nil
	})
}
