package tenant

import (
	"context"
	"fmt"
	"os"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <tenant-id>",
	Short: "Show tenant status and details",
	Long: `Show a tenant's lifecycle status and registry details.

Examples:
  # Show tenant details
  tenantctl tenant status tenant-batch-42-1a2b3c4d

  # Output as JSON
  tenantctl tenant status tenant-batch-42-1a2b3c4d -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	id := args[0]

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		tenant, err := srv.Registry().GetTenant(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get tenant: %w", err)
		}

		return cmdutil.PrintResource(os.Stdout, tenant, tenantDetails(tenant))
	})
}
