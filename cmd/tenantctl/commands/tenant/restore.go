package tenant

import (
	"context"
	"fmt"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <tenant-id>",
	Short: "Restore a paused tenant from its latest checkpoint",
	Long: `Restore a paused tenant from its latest checkpoint.

Restore provisions a fresh container, loads the checkpointed state into the
state store, and activates the tenant. Use this when the tenant's previous
container or runtime state is gone.

Examples:
  tenantctl tenant restore tenant-batch-42-1a2b3c4d`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	id := args[0]

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		if err := srv.Orchestrator().Restore(ctx, id); err != nil {
			return fmt.Errorf("failed to restore tenant: %w", err)
		}

		cmdutil.PrintSuccess(fmt.Sprintf("Tenant '%s' restored", id))
		return nil
	})
}
