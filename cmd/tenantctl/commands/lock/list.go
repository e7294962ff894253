package lock

import (
	"context"
	"fmt"
	"os"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/internal/cli/timeutil"
	"github.com/mkarlsen/tenantd/pkg/lock"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all currently held locks",
	Long: `List all currently held locks with their holders and remaining TTL.

Examples:
  # List locks as table
  tenantctl lock list

  # List as JSON
  tenantctl lock list -o json`,
	RunE: runList,
}

// LockList is a list of locks for table rendering.
type LockList []lock.Info

// Headers implements TableRenderer.
func (ll LockList) Headers() []string {
	return []string{"PATH", "HOLDER", "TTL REMAINING"}
}

// Rows implements TableRenderer.
func (ll LockList) Rows() [][]string {
	rows := make([][]string, 0, len(ll))
	for _, l := range ll {
		rows = append(rows, []string{l.Path, l.Holder, timeutil.FormatDuration(l.Remaining)})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		locks, err := srv.Locks().ListAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to list locks: %w", err)
		}

		return cmdutil.PrintOutput(os.Stdout, locks, len(locks) == 0, "No locks held.", LockList(locks))
	})
}
