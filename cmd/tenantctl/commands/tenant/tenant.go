// Package tenant implements tenant lifecycle commands for tenantctl.
package tenant

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for tenant management.
var Cmd = &cobra.Command{
	Use:   "tenant",
	Short: "Tenant lifecycle management",
	Long: `Manage tenants and their lifecycle.

Tenant commands create tenants, move them through the lifecycle
(pause, resume, restore, archive, delete), and inspect status and budgets.

Examples:
  # Create a tenant with a one-day deadline and 100 credits of budget
  tenantctl tenant create --name batch-42 --owner alice --deadline 24h --budget 100

  # List all tenants
  tenantctl tenant list

  # Pause an active tenant (flushes and checkpoints its state)
  tenantctl tenant pause tenant-batch-42-1a2b3c4d

  # Resume a paused tenant
  tenantctl tenant resume tenant-batch-42-1a2b3c4d

  # Archive a tenant (final archive written to blob storage)
  tenantctl tenant archive tenant-batch-42-1a2b3c4d

  # Record budget spend
  tenantctl tenant spend tenant-batch-42-1a2b3c4d 12.5`,
}

func init() {
	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(budgetCmd)
	Cmd.AddCommand(spendCmd)
	Cmd.AddCommand(pauseCmd)
	Cmd.AddCommand(resumeCmd)
	Cmd.AddCommand(restoreCmd)
	Cmd.AddCommand(archiveCmd)
	Cmd.AddCommand(deleteCmd)
	Cmd.AddCommand(membersCmd)
	Cmd.AddCommand(auditCmd)
}
