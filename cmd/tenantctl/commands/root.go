// Package commands implements the CLI commands for the tenantctl client.
package commands

import (
	"os"

	"github.com/mkarlsen/tenantd/cmd/tenantctl/cmdutil"
	checkpointcmd "github.com/mkarlsen/tenantd/cmd/tenantctl/commands/checkpoint"
	lockcmd "github.com/mkarlsen/tenantd/cmd/tenantctl/commands/lock"
	tenantcmd "github.com/mkarlsen/tenantd/cmd/tenantctl/commands/tenant"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tenantctl",
	Short: "tenantctl - Tenant lifecycle management client",
	Long: `tenantctl is the command-line client for managing tenants.

Use this tool to create and drive tenants through their lifecycle, inspect
budgets and locks, and manage checkpoints. It operates directly against the
shared registry, Redis, and blob storage described by the tenantd
configuration file.

Use "tenantctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Sync flags to cmdutil.Flags for subcommands
		cmdutil.Flags.Config, _ = cmd.Flags().GetString("config")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
		cmdutil.Flags.Verbose, _ = cmd.Flags().GetBool("verbose")
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().String("config", "", "config file (default: $XDG_CONFIG_HOME/tenantd/config.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(tenantcmd.Cmd)
	rootCmd.AddCommand(lockcmd.Cmd)
	rootCmd.AddCommand(checkpointcmd.Cmd)

	// Hide the default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
