package lock

import (
	"context"
	"fmt"
	"os"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/internal/cli/output"
	"github.com/mkarlsen/tenantd/internal/cli/timeutil"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <path>",
	Short: "Inspect a lock path",
	Long: `Inspect one lock path: holder and remaining TTL.

Examples:
  tenantctl lock inspect tenants/tenant-batch-42-1a2b3c4d`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		info, err := srv.Locks().Inspect(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to inspect lock: %w", err)
		}
		if info == nil {
			fmt.Printf("Lock '%s' is not held.\n", path)
			return nil
		}

		table := output.NewTableData("FIELD", "VALUE")
		table.AddRow("Path", info.Path)
		table.AddRow("Holder", info.Holder)
		table.AddRow("TTL remaining", timeutil.FormatDuration(info.Remaining))

		return cmdutil.PrintResource(os.Stdout, info, table)
	})
}
