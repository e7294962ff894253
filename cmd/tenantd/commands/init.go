package commands

import (
	"fmt"

	"github.com/mkarlsen/tenantd/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample tenantd configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/tenantd/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  tenantd init

  # Initialize with custom path
  tenantd init --config /etc/tenantd/config.yaml

  # Force overwrite existing config
  tenantd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		// Use custom path
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		// Use default path
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("     (at minimum, set blob.bucket to an S3 bucket you can write to)")
	fmt.Println("  2. Start the server with: tenantd start")
	fmt.Printf("  3. Or specify custom config: tenantd start --config %s\n", configPath)

	return nil
}
