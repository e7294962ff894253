package tenant

import (
	"context"
	"fmt"
	"os"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/internal/cli/timeutil"
	"github.com/mkarlsen/tenantd/pkg/registry"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var listStatus string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants",
	Long: `List tenants in the registry.

Examples:
  # List all tenants as a table
  tenantctl tenant list

  # List only active tenants
  tenantctl tenant list --status active

  # List as JSON
  tenantctl tenant list -o json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (initializing|active|paused|archived|deleted)")
}

// TenantList is a list of tenants for table rendering.
type TenantList []*registry.Tenant

// Headers implements TableRenderer.
func (tl TenantList) Headers() []string {
	return []string{"ID", "NAME", "STATUS", "OWNER", "SPENT/BUDGET", "DEADLINE", "AGE"}
}

// Rows implements TableRenderer.
func (tl TenantList) Rows() [][]string {
	rows := make([][]string, 0, len(tl))
	for _, t := range tl {
		rows = append(rows, []string{
			t.ID,
			t.Name,
			string(t.Status),
			t.Owner,
			fmt.Sprintf("%s/%s", cmdutil.FormatCredits(t.BudgetSpent), cmdutil.FormatCredits(t.Budget)),
			timeutil.FormatTime(t.Deadline),
			timeutil.FormatAge(t.CreatedAt),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	var statuses []registry.Status
	if listStatus != "" {
		statuses = append(statuses, registry.Status(listStatus))
	}

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		tenants, err := srv.Registry().ListTenants(ctx, statuses...)
		if err != nil {
			return fmt.Errorf("failed to list tenants: %w", err)
		}

		return cmdutil.PrintOutput(os.Stdout, tenants, len(tenants) == 0, "No tenants found.", TenantList(tenants))
	})
}
