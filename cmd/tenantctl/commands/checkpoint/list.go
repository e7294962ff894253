package checkpoint

import (
	"context"
	"fmt"
	"os"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <tenant-id>",
	Short: "List a tenant's checkpoints",
	Long: `List a tenant's checkpoint locations, newest first.

Examples:
  # List checkpoints as table
  tenantctl checkpoint list tenant-batch-42-1a2b3c4d

  # List as JSON
  tenantctl checkpoint list tenant-batch-42-1a2b3c4d -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

// CheckpointList is a list of checkpoint locations for table rendering.
type CheckpointList []string

// Headers implements TableRenderer.
func (cl CheckpointList) Headers() []string {
	return []string{"#", "LOCATION"}
}

// Rows implements TableRenderer.
func (cl CheckpointList) Rows() [][]string {
	rows := make([][]string, 0, len(cl))
	for i, loc := range cl {
		rows = append(rows, []string{fmt.Sprintf("%d", i), loc})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	id := args[0]

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		locations, err := srv.Checkpoints().List(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to list checkpoints: %w", err)
		}

		return cmdutil.PrintOutput(os.Stdout, locations, len(locations) == 0, "No checkpoints found.", CheckpointList(locations))
	})
}
