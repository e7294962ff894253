package tenant

import (
	"context"
	"fmt"
	"os"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/internal/cli/output"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var budgetCmd = &cobra.Command{
	Use:   "budget <tenant-id>",
	Short: "Show a tenant's budget",
	Long: `Show a tenant's budget ceiling, spend, and remaining credits.

The spend figure comes from the in-memory ledger when the tenant is running
in this process, otherwise from the registry mirror.

Examples:
  tenantctl tenant budget tenant-batch-42-1a2b3c4d
  tenantctl tenant budget tenant-batch-42-1a2b3c4d -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runBudget,
}

func runBudget(cmd *cobra.Command, args []string) error {
	id := args[0]

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		view, err := srv.Orchestrator().Budget(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get budget: %w", err)
		}

		table := output.NewTableData("FIELD", "VALUE")
		table.AddRow("Tenant", view.TenantID)
		table.AddRow("Ceiling", cmdutil.FormatCredits(view.Ceiling))
		table.AddRow("Spent", cmdutil.FormatCredits(view.Spent))
		table.AddRow("Remaining", cmdutil.FormatCredits(view.Remaining()))

		return cmdutil.PrintResource(os.Stdout, view, table)
	})
}
