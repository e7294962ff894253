package tenant

import (
	"context"
	"fmt"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var archiveForce bool

var archiveCmd = &cobra.Command{
	Use:   "archive <tenant-id>",
	Short: "Archive a paused tenant",
	Long: `Archive a paused tenant.

Archiving writes the tenant's workspace and state to blob storage, removes
the container, and marks the tenant archived. Archived tenants cannot be
resumed. You will be prompted for confirmation unless --force is specified.

Examples:
  # Archive with confirmation
  tenantctl tenant archive tenant-batch-42-1a2b3c4d

  # Archive without confirmation
  tenantctl tenant archive tenant-batch-42-1a2b3c4d --force`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

func init() {
	archiveCmd.Flags().BoolVarP(&archiveForce, "force", "f", false, "Skip confirmation prompt")
}

func runArchive(cmd *cobra.Command, args []string) error {
	id := args[0]

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		return cmdutil.RunWithConfirmation(
			fmt.Sprintf("Archive tenant '%s'? This cannot be undone", id),
			archiveForce,
			fmt.Sprintf("Tenant '%s' archived", id),
			func() error {
				if err := srv.Orchestrator().Archive(ctx, id); err != nil {
					return fmt.Errorf("failed to archive tenant: %w", err)
				}
				return nil
			})
	})
}
