// Package lock implements lock inspection commands for tenantctl.
package lock

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for lock management.
var Cmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock inspection and recovery",
	Long: `Inspect and recover TTL-based locks.

Locks protect tenant resources from concurrent lifecycle operations. They
expire on their own when a holder dies, so manual intervention is rarely
needed; these commands exist for debugging and operator recovery.

Examples:
  # List all currently held locks
  tenantctl lock list

  # Inspect one lock path
  tenantctl lock inspect tenants/tenant-batch-42-1a2b3c4d

  # Release a lock held by a specific holder
  tenantctl lock release tenants/tenant-batch-42-1a2b3c4d --holder worker-7

  # Force-release every lock (dangerous)
  tenantctl lock clear`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(inspectCmd)
	Cmd.AddCommand(releaseCmd)
	Cmd.AddCommand(clearCmd)
}
