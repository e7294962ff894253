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

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit <tenant-id>",
	Short: "Show a tenant's audit log",
	Long: `Show the newest entries of a tenant's append-only audit log.

Examples:
  # Show the last 20 events
  tenantctl tenant audit tenant-batch-42-1a2b3c4d

  # Show the last 100 events as JSON
  tenantctl tenant audit tenant-batch-42-1a2b3c4d --limit 100 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum number of events to show")
}

// AuditList is a list of audit events for table rendering, newest first.
type AuditList []*registry.AuditEvent

// Headers implements TableRenderer.
func (al AuditList) Headers() []string {
	return []string{"TIME", "KIND", "ACTOR", "DETAIL"}
}

// Rows implements TableRenderer.
func (al AuditList) Rows() [][]string {
	rows := make([][]string, 0, len(al))
	for _, e := range al {
		rows = append(rows, []string{
			timeutil.FormatTime(e.CreatedAt),
			e.Kind,
			cmdutil.EmptyOr(e.Actor, "-"),
			cmdutil.EmptyOr(e.Detail, "-"),
		})
	}
	return rows
}

func runAudit(cmd *cobra.Command, args []string) error {
	id := args[0]

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		events, err := srv.Registry().ListAudit(ctx, id, auditLimit)
		if err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}

		return cmdutil.PrintOutput(os.Stdout, events, len(events) == 0, "No audit events found.", AuditList(events))
	})
}
