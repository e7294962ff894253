// Package checkpoint implements checkpoint management commands for tenantctl.
package checkpoint

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for checkpoint management.
var Cmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Checkpoint management",
	Long: `Manage tenant checkpoints in blob storage.

Checkpoints are point-in-time snapshots of a tenant's runtime state. The
server takes them automatically on pause and on the sweeper's schedule;
these commands take, list, and restore them by hand.

Examples:
  # Take a checkpoint now
  tenantctl checkpoint save tenant-batch-42-1a2b3c4d

  # List a tenant's checkpoints (newest first)
  tenantctl checkpoint list tenant-batch-42-1a2b3c4d

  # Restore state from a specific checkpoint
  tenantctl checkpoint restore tenant-batch-42-1a2b3c4d checkpoints/tenant-batch-42-1a2b3c4d/20260831T120000Z.json`,
}

func init() {
	Cmd.AddCommand(saveCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(restoreCmd)
}
