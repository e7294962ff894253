package checkpoint

import (
	"context"
	"fmt"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var restoreForce bool

var restoreCmd = &cobra.Command{
	Use:   "restore <tenant-id> <location>",
	Short: "Restore tenant state from a checkpoint",
	Long: `Restore a tenant's runtime state from a specific checkpoint location.

This overwrites the tenant's current state in the state store. The tenant's
lifecycle status is not changed; use 'tenantctl tenant restore' to bring a
paused tenant back to active from its latest checkpoint.

Examples:
  tenantctl checkpoint restore tenant-batch-42-1a2b3c4d \
    checkpoints/tenant-batch-42-1a2b3c4d/20260831T120000Z.json`,
	Args: cobra.ExactArgs(2),
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().BoolVarP(&restoreForce, "force", "f", false, "Skip confirmation prompt")
}

func runRestore(cmd *cobra.Command, args []string) error {
	id, location := args[0], args[1]

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		return cmdutil.RunWithConfirmation(
			fmt.Sprintf("Overwrite current state of tenant '%s' with checkpoint '%s'?", id, location),
			restoreForce,
			fmt.Sprintf("Tenant '%s' state restored from '%s'", id, location),
			func() error {
				if err := srv.Checkpoints().Restore(ctx, id, location); err != nil {
					return fmt.Errorf("failed to restore checkpoint: %w", err)
				}
				return nil
			})
	})
}
