package tenant

import (
	"context"
	"fmt"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <tenant-id>",
	Short: "Delete a tenant",
	Long: `Delete a tenant from any lifecycle state.

The container and runtime state are destroyed; the registry row is kept as
a soft-deleted record for auditing. You will be prompted for confirmation
unless --force is specified.

Examples:
  # Delete with confirmation
  tenantctl tenant delete tenant-batch-42-1a2b3c4d

  # Delete without confirmation
  tenantctl tenant delete tenant-batch-42-1a2b3c4d --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := args[0]

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		return cmdutil.RunWithConfirmation(
			fmt.Sprintf("Delete tenant '%s'?", id),
			deleteForce,
			fmt.Sprintf("Tenant '%s' deleted", id),
			func() error {
				if err := srv.Orchestrator().Delete(ctx, id); err != nil {
					return fmt.Errorf("failed to delete tenant: %w", err)
				}
				return nil
			})
	})
}
