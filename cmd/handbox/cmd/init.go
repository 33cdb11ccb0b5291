package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkarolys/handbox/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long:  "Create ~/.handbox/config.json with default settings if it does not exist yet.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if config.Exists("") {
		fmt.Printf("Config already exists at %s\n", config.GetConfigPath())
		return nil
	}

	if err := config.InitConfig(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Wrote default config to %s\n", config.GetConfigPath())
	fmt.Println()
	fmt.Println("You can now:")
	fmt.Println("  - Start the daemon:   handbox serve")
	fmt.Println("  - Run a command:      handbox run echo hello")
	fmt.Println("  - View the status:    handbox status")
	return nil
}
