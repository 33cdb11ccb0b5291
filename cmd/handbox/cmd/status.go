package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkarolys/handbox/internal/action"
	"github.com/mkarolys/handbox/internal/config"
	"github.com/mkarolys/handbox/internal/sandbox"
	"github.com/mkarolys/handbox/internal/tui"
)

var statusConfigPath string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and sandbox status",
	Long:  "Display the current handbox configuration and the sandboxes tracked by the runtime.",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusConfigPath, "config", "", "path to config file (default ~/.handbox/config.json)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(statusConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var containers []sandbox.ContainerInfo
	var runtimeErr error

	sandboxCfg, err := cfg.SandboxProfile()
	if err != nil {
		runtimeErr = err
	} else {
		exec := action.NewExecutor(sandboxCfg, nil)
		rt, err := exec.Runtime()
		if err != nil {
			runtimeErr = err
		} else {
			if docker, ok := rt.(*sandbox.DockerRuntime); ok {
				_, runtimeErr = docker.AdoptExisting(cmd.Context())
			}
			containers = rt.Containers()
			rt.Close()
		}
	}

	return tui.ShowStatus(cfg, containers, runtimeErr)
}
