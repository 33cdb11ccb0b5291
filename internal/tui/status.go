// Package tui renders terminal status output for the handbox CLI.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mkarolys/handbox/internal/config"
	"github.com/mkarolys/handbox/internal/sandbox"
)

// Status display styles.
var (
	statusTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205")).
				MarginBottom(1).
				Padding(0, 1)

	statusBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Width(60)

	statusSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				MarginTop(1)

	statusLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Width(20)

	statusValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("255"))

	statusEnabledStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("82")).
				Bold(true)

	statusDisabledStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))

	statusWarningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214"))

	statusErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196")).
				Bold(true)
)

// ShowStatus displays the daemon configuration and the tracked sandboxes.
// containers may be nil when the runtime is unavailable; runtimeErr then
// carries the reason.
func ShowStatus(cfg *config.Config, containers []sandbox.ContainerInfo, runtimeErr error) error {
	var sb strings.Builder

	title := statusTitleStyle.Render("handbox Status")
	sb.WriteString(title)
	sb.WriteString("\n\n")

	sb.WriteString(statusSectionStyle.Render("Server"))
	sb.WriteString("\n")
	sb.WriteString(renderStatusRow("Listen", statusValueStyle.Render(cfg.Server.Addr())))

	sb.WriteString(statusSectionStyle.Render("Sandbox"))
	sb.WriteString("\n")
	sb.WriteString(renderSandboxStatus(cfg))

	sb.WriteString(statusSectionStyle.Render("LLM"))
	sb.WriteString("\n")
	sb.WriteString(renderLLMStatus(cfg))

	sb.WriteString(statusSectionStyle.Render("Sessions"))
	sb.WriteString("\n")
	sb.WriteString(renderStatusRow("Max conversations", statusValueStyle.Render(fmt.Sprintf("%d", cfg.Session.MaxConversations))))
	sb.WriteString(renderStatusRow("Idle timeout", statusValueStyle.Render(fmt.Sprintf("%d min", cfg.Session.IdleTimeoutMinutes))))

	sb.WriteString(statusSectionStyle.Render("Sandboxes"))
	sb.WriteString("\n")
	sb.WriteString(renderContainers(containers, runtimeErr))

	content := statusBoxStyle.Render(sb.String())
	fmt.Println(content)

	return nil
}

// renderSandboxStatus renders the sandbox backend configuration.
func renderSandboxStatus(cfg *config.Config) string {
	var sb strings.Builder

	sb.WriteString(renderStatusRow("Backend", statusEnabledStyle.Render(strings.ToUpper(cfg.Sandbox.Type))))
	if cfg.Sandbox.Image != "" {
		sb.WriteString(renderStatusRow("Image", statusValueStyle.Render(cfg.Sandbox.Image)))
	}
	sb.WriteString(renderStatusRow("Limits", statusValueStyle.Render(
		fmt.Sprintf("cpu=%s mem=%s disk=%s", cfg.Sandbox.CPU, cfg.Sandbox.Memory, cfg.Sandbox.Disk))))
	sb.WriteString(renderStatusRow("Timeout", statusValueStyle.Render(fmt.Sprintf("%ds", cfg.Sandbox.TimeoutSeconds))))

	if cfg.Sandbox.Cleanup {
		sb.WriteString(renderStatusRow("Cleanup", statusEnabledStyle.Render("on shutdown")))
	} else {
		sb.WriteString(renderStatusRow("Cleanup", statusDisabledStyle.Render("manual")))
	}

	return sb.String()
}

// renderLLMStatus renders the completion provider configuration.
func renderLLMStatus(cfg *config.Config) string {
	var sb strings.Builder

	if cfg.LLM.APIKey == "" {
		sb.WriteString(renderStatusRow("Status", statusWarningStyle.Render("No API key (direct mode)")))
		return sb.String()
	}

	sb.WriteString(renderStatusRow("Model", statusEnabledStyle.Render(cfg.LLM.Model)))
	sb.WriteString(renderStatusRow("API Key", statusValueStyle.Render(maskAPIKey(cfg.LLM.APIKey))))
	if cfg.LLM.APIBase != "" {
		sb.WriteString(renderStatusRow("API Base", statusValueStyle.Render(cfg.LLM.APIBase)))
	}

	return sb.String()
}

// renderContainers renders the tracked sandbox list.
func renderContainers(containers []sandbox.ContainerInfo, runtimeErr error) string {
	var sb strings.Builder

	if runtimeErr != nil {
		sb.WriteString(renderStatusRow("Status", statusErrorStyle.Render("runtime unavailable")))
		sb.WriteString(renderStatusRow("", statusWarningStyle.Render(runtimeErr.Error())))
		return sb.String()
	}

	if len(containers) == 0 {
		sb.WriteString(renderStatusRow("Tracked", statusDisabledStyle.Render("none")))
		return sb.String()
	}

	for _, info := range containers {
		name := info.Name
		if name == "" {
			name = info.ID
		}
		sb.WriteString(renderStatusRow(name, statusValueStyle.Render(info.Status)))
	}

	return sb.String()
}

// renderStatusRow renders a label-value row indented inside a section.
func renderStatusRow(label, value string) string {
	if label == "" {
		return fmt.Sprintf("  %s\n", value)
	}
	return fmt.Sprintf("  %s %s\n",
		statusLabelStyle.Render(label+":"),
		value,
	)
}

// maskAPIKey masks an API key for display.
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
