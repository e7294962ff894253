package tenant

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var spendCmd = &cobra.Command{
	Use:   "spend <tenant-id> <amount>",
	Short: "Record budget spend for a tenant",
	Long: `Record budget spend against a tenant's ledger.

When cumulative spend reaches the budget ceiling, the tenant is
automatically paused.

Examples:
  tenantctl tenant spend tenant-batch-42-1a2b3c4d 12.5`,
	Args: cobra.ExactArgs(2),
	RunE: runSpend,
}

func runSpend(cmd *cobra.Command, args []string) error {
	id := args[0]
	amount, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[1], err)
	}

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		if err := srv.Orchestrator().RecordSpend(ctx, id, amount); err != nil {
			return fmt.Errorf("failed to record spend: %w", err)
		}

		cmdutil.PrintSuccess(fmt.Sprintf("Recorded %s credits against tenant '%s'", cmdutil.FormatCredits(amount), id))
		return nil
	})
}
