package lock

import (
	"context"
	"fmt"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/internal/cli/prompt"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Force-release every lock",
	Long: `Force-release every lock, regardless of holder.

This is an operator recovery tool: releasing a lock out from under a live
holder breaks mutual exclusion for whatever that holder was doing. Only use
it when you are sure the holders are gone. You will be asked to type a
confirmation word unless --yes is specified.

Examples:
  tenantctl lock clear`,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "Skip confirmation prompt")
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		confirmed, err := prompt.ConfirmDanger("Force-release ALL locks", "clear")
		if err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("\nAborted.")
				return nil
			}
			return err
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return nil
		}
	}

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		n, err := srv.Locks().ForceReleaseAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear locks: %w", err)
		}

		cmdutil.PrintSuccess(fmt.Sprintf("Released %d lock(s)", n))
		return nil
	})
}
