package tenant

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/internal/cli/output"
	"github.com/mkarlsen/tenantd/pkg/orchestrator"
	"github.com/mkarlsen/tenantd/pkg/registry"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var (
	createName     string
	createOwner    string
	createDeadline string
	createBudget   float64
	createMembers  string
	createCPUs     float64
	createMemoryMB int64
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new tenant",
	Long: `Create a new tenant and activate it.

The tenant gets its own container, an entry in the registry, and initial
runtime state in the state store. Creation is rejected when the global
active-tenant cap is reached.

The deadline accepts either a duration from now (e.g. 24h, 30m) or an
absolute RFC3339 timestamp.

Examples:
  # Create with a relative deadline
  tenantctl tenant create --name batch-42 --owner alice --deadline 24h --budget 100

  # Create with an absolute deadline and members
  tenantctl tenant create --name batch-42 --owner alice \
    --deadline 2026-09-30T00:00:00Z --budget 100 --members bob,carol

  # Create with container resource limits
  tenantctl tenant create --name batch-42 --owner alice --deadline 24h \
    --budget 100 --cpus 2 --memory-mb 2048`,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createName, "name", "", "Tenant name (required)")
	createCmd.Flags().StringVar(&createOwner, "owner", "", "Tenant owner (required)")
	createCmd.Flags().StringVar(&createDeadline, "deadline", "", "Deadline as duration from now or RFC3339 timestamp (required)")
	createCmd.Flags().Float64Var(&createBudget, "budget", 0, "Budget ceiling in credits (required)")
	createCmd.Flags().StringVar(&createMembers, "members", "", "Comma-separated list of additional members")
	createCmd.Flags().Float64Var(&createCPUs, "cpus", 0, "Container CPU limit (0 = unlimited)")
	createCmd.Flags().Int64Var(&createMemoryMB, "memory-mb", 0, "Container memory limit in MB (0 = unlimited)")

	_ = createCmd.MarkFlagRequired("name")
	_ = createCmd.MarkFlagRequired("owner")
	_ = createCmd.MarkFlagRequired("deadline")
	_ = createCmd.MarkFlagRequired("budget")
}

// parseDeadline accepts a duration relative to now or an RFC3339 timestamp.
func parseDeadline(s string) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().Add(d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid deadline %q (expected duration like 24h or RFC3339 timestamp)", s)
}

func runCreate(cmd *cobra.Command, args []string) error {
	deadline, err := parseDeadline(createDeadline)
	if err != nil {
		return err
	}

	params := orchestrator.CreateParams{
		Name:     createName,
		Deadline: deadline,
		Budget:   createBudget,
		Owner:    createOwner,
		Members:  cmdutil.ParseCommaSeparatedList(createMembers),
	}
	if createCPUs > 0 || createMemoryMB > 0 {
		params.Limits = &orchestrator.Limits{CPUs: createCPUs, MemoryMB: createMemoryMB}
	}

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		tenant, err := srv.Orchestrator().Create(ctx, params)
		if err != nil {
			return fmt.Errorf("failed to create tenant: %w", err)
		}

		return cmdutil.PrintResource(os.Stdout, tenant, tenantDetails(tenant))
	})
}

// tenantDetails renders one tenant as a key-value table.
func tenantDetails(t *registry.Tenant) output.TableRenderer {
	table := output.NewTableData("FIELD", "VALUE")
	table.AddRow("ID", t.ID)
	table.AddRow("Name", t.Name)
	table.AddRow("Status", string(t.Status))
	table.AddRow("Owner", t.Owner)
	table.AddRow("Deadline", t.Deadline.Format(time.RFC3339))
	table.AddRow("Budget", cmdutil.FormatCredits(t.Budget))
	table.AddRow("Spent", cmdutil.FormatCredits(t.BudgetSpent))
	table.AddRow("Archive", cmdutil.EmptyOr(t.ArchiveLocation, "-"))
	return table
}
