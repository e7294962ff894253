package checkpoint

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

var saveCmd = &cobra.Command{
	Use:   "save <tenant-id>",
	Short: "Take a checkpoint of a tenant's state",
	Long: `Take a checkpoint of a tenant's runtime state and write it to blob
storage.

Examples:
  tenantctl checkpoint save tenant-batch-42-1a2b3c4d`,
	Args: cobra.ExactArgs(1),
	RunE: runSave,
}

func runSave(cmd *cobra.Command, args []string) error {
	id := args[0]

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		ref, err := srv.Checkpoints().Save(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}

		table := output.NewTableData("FIELD", "VALUE")
		table.AddRow("Tenant", ref.TenantID)
		table.AddRow("Location", ref.Location)
		table.AddRow("Taken at", timeutil.FormatTime(ref.TakenAt))

		return cmdutil.PrintResource(os.Stdout, ref, table)
	})
}
