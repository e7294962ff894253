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

var (
	membersAdd    string
	membersRemove string
)

var membersCmd = &cobra.Command{
	Use:   "members <tenant-id>",
	Short: "List or change tenant members",
	Long: `List a tenant's members, or add and remove one.

Examples:
  # List members
  tenantctl tenant members tenant-batch-42-1a2b3c4d

  # Add a member
  tenantctl tenant members tenant-batch-42-1a2b3c4d --add bob

  # Remove a member
  tenantctl tenant members tenant-batch-42-1a2b3c4d --remove bob`,
	Args: cobra.ExactArgs(1),
	RunE: runMembers,
}

func init() {
	membersCmd.Flags().StringVar(&membersAdd, "add", "", "Add a user to the tenant")
	membersCmd.Flags().StringVar(&membersRemove, "remove", "", "Remove a user from the tenant")
	membersCmd.MarkFlagsMutuallyExclusive("add", "remove")
}

// MemberList is a list of tenant members for table rendering.
type MemberList []*registry.TenantMember

// Headers implements TableRenderer.
func (ml MemberList) Headers() []string {
	return []string{"USER", "ROLE", "ADDED"}
}

// Rows implements TableRenderer.
func (ml MemberList) Rows() [][]string {
	rows := make([][]string, 0, len(ml))
	for _, m := range ml {
		rows = append(rows, []string{m.User, m.Role, timeutil.FormatTime(m.AddedAt)})
	}
	return rows
}

func runMembers(cmd *cobra.Command, args []string) error {
	id := args[0]

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		switch {
		case membersAdd != "":
			member := &registry.TenantMember{TenantID: id, User: membersAdd}
			if _, err := srv.Registry().AddMember(ctx, member); err != nil {
				return fmt.Errorf("failed to add member: %w", err)
			}
			cmdutil.PrintSuccess(fmt.Sprintf("Added '%s' to tenant '%s'", membersAdd, id))
			return nil

		case membersRemove != "":
			if err := srv.Registry().RemoveMember(ctx, id, membersRemove); err != nil {
				return fmt.Errorf("failed to remove member: %w", err)
			}
			cmdutil.PrintSuccess(fmt.Sprintf("Removed '%s' from tenant '%s'", membersRemove, id))
			return nil

		default:
			members, err := srv.Registry().ListMembers(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to list members: %w", err)
			}
			return cmdutil.PrintOutput(os.Stdout, members, len(members) == 0, "No members found.", MemberList(members))
		}
	})
}
