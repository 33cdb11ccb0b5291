package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkarolys/handbox/internal/action"
	"github.com/mkarolys/handbox/internal/config"
	"github.com/mkarolys/handbox/internal/sandbox"
)

var cleanupConfigPath string

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove all managed sandboxes",
	Long:  "Find every sandbox created by handbox, including ones left behind by a previous daemon, and force-remove them.",
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupConfigPath, "config", "", "path to config file (default ~/.handbox/config.json)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cleanupConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sandboxCfg, err := cfg.SandboxProfile()
	if err != nil {
		return fmt.Errorf("invalid sandbox configuration: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	exec := action.NewExecutor(sandboxCfg, logger)
	rt, err := exec.Runtime()
	if err != nil {
		return fmt.Errorf("failed to start sandbox runtime: %w", err)
	}
	defer rt.Close()

	if docker, ok := rt.(*sandbox.DockerRuntime); ok {
		adopted, err := docker.AdoptExisting(cmd.Context())
		if err != nil {
			return err
		}
		if adopted > 0 {
			fmt.Printf("Found %d sandbox(es) from previous runs.\n", adopted)
		}
	}

	count := len(rt.Containers())
	if count == 0 {
		fmt.Println("No sandboxes to remove.")
		return nil
	}

	if err := rt.CleanupAll(cmd.Context()); err != nil {
		return fmt.Errorf("cleanup incomplete: %w", err)
	}

	fmt.Printf("Removed %d sandbox(es).\n", count)
	return nil
}
