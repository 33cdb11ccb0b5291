package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkarolys/handbox/internal/action"
	"github.com/mkarolys/handbox/internal/config"
)

var (
	runConfigPath string
	runCode       string
	runLanguage   string
	runContainer  string
	runTimeout    int
	runSandbox    string
)

var runCmd = &cobra.Command{
	Use:   "run [command...]",
	Short: "Execute a single action in a sandbox",
	Long:  "Run one command or code snippet in a sandbox and print the result as JSON. Without --keep the sandbox is removed afterwards.",
	RunE:  runRun,
}

var runKeep bool

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "path to config file (default ~/.handbox/config.json)")
	runCmd.Flags().StringVar(&runCode, "code", "", "code snippet to execute instead of a command")
	runCmd.Flags().StringVar(&runLanguage, "language", "python", "language for --code")
	runCmd.Flags().StringVar(&runContainer, "container", "", "reuse an existing sandbox by id")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "action timeout in seconds (0 uses the configured default)")
	runCmd.Flags().StringVar(&runSandbox, "sandbox", "", "override the sandbox type (docker, local)")
	runCmd.Flags().BoolVar(&runKeep, "keep", false, "keep the sandbox after the action finishes")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(runConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if runSandbox != "" {
		cfg.Sandbox.Type = runSandbox
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	sandboxCfg, err := cfg.SandboxProfile()
	if err != nil {
		return fmt.Errorf("invalid sandbox configuration: %w", err)
	}

	req, err := buildRunRequest(args)
	if err != nil {
		return err
	}
	if runTimeout > 0 {
		req.Timeout = time.Duration(runTimeout) * time.Second
	}

	exec := action.NewExecutor(sandboxCfg, logger)
	resp := exec.Execute(cmd.Context(), req, "")

	if !runKeep {
		if rt, rtErr := exec.Runtime(); rtErr == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if tempID := resp.Metadata[action.TempContainerKey]; tempID != "" {
				rt.RemoveContainer(ctx, tempID, true)
			}
			rt.Close()
		}
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if resp.Status != action.StatusCompleted {
		return fmt.Errorf("action %s", resp.Status)
	}
	return nil
}

func buildRunRequest(args []string) (action.Request, error) {
	if runCode != "" {
		return action.Request{
			Type: action.TypeRunCode,
			Params: action.RunCodeParams{
				Code:        runCode,
				Language:    runLanguage,
				ContainerID: runContainer,
			},
		}, nil
	}
	if len(args) == 0 {
		return action.Request{}, fmt.Errorf("nothing to run: pass a command or --code")
	}
	return action.Request{
		Type: action.TypeExecuteCommand,
		Params: action.ExecuteCommandParams{
			Command:     strings.Join(args, " "),
			ContainerID: runContainer,
		},
	}, nil
}
