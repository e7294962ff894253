package tenant

import (
	"context"
	"fmt"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <tenant-id>",
	Short: "Resume a paused tenant",
	Long: `Resume a paused tenant.

If the tenant's container is gone or its runtime state is missing, resume
falls back to restoring from the latest checkpoint. The global active cap
applies: resuming fails when the cap is reached.

Examples:
  tenantctl tenant resume tenant-batch-42-1a2b3c4d`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	id := args[0]

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		if err := srv.Orchestrator().Resume(ctx, id); err != nil {
			return fmt.Errorf("failed to resume tenant: %w", err)
		}

		cmdutil.PrintSuccess(fmt.Sprintf("Tenant '%s' resumed", id))
		return nil
	})
}
