package lock

import (
	"context"
	"fmt"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	"github.com/mkarlsen/tenantd/pkg/server"
	"github.com/spf13/cobra"
)

var releaseHolder string

var releaseCmd = &cobra.Command{
	Use:   "release <path>",
	Short: "Release a lock held by a specific holder",
	Long: `Release a lock held by a specific holder.

The release only succeeds when the named holder still owns the lock; a lock
that expired and was re-acquired by someone else is left alone.

Examples:
  tenantctl lock release tenants/tenant-batch-42-1a2b3c4d --holder worker-7`,
	Args: cobra.ExactArgs(1),
	RunE: runRelease,
}

func init() {
	releaseCmd.Flags().StringVar(&releaseHolder, "holder", "", "Holder identity that owns the lock (required)")
	_ = releaseCmd.MarkFlagRequired("holder")
}

func runRelease(cmd *cobra.Command, args []string) error {
	path := args[0]

	return cmdutil.WithServer(func(ctx context.Context, srv *server.Server) error {
		released, err := srv.Locks().Release(ctx, path, releaseHolder)
		if err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
		}
		if !released {
			fmt.Printf("Lock '%s' is not held by '%s'; nothing released.\n", path, releaseHolder)
			return nil
		}

		cmdutil.PrintSuccess(fmt.Sprintf("Lock '%s' released", path))
		return nil
	})
}
