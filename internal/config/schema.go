// Package config defines the file-based configuration for the handbox
// daemon and its loader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mkarolys/handbox/internal/sandbox"
)

// Config is the root configuration structure for handbox.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Sandbox SandboxConfig `json:"sandbox"`
	LLM     LLMConfig     `json:"llm"`
	Session SessionConfig `json:"session"`
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SandboxConfig selects the default sandbox profile for submitted actions.
type SandboxConfig struct {
	// Type is the isolation backend: docker, local, kubernetes, or remote.
	Type string `json:"type"`
	// Image is the container image for docker sandboxes.
	Image string `json:"image"`
	// NetworkMode selects container network attachment.
	NetworkMode string `json:"networkMode"`
	// WorkDir is the working directory inside a sandbox.
	WorkDir string `json:"workDir"`
	// CPU is the CPU cap as a decimal string, e.g. "1" or "0.5".
	CPU string `json:"cpu"`
	// Memory is the memory cap with a K/M/G/T suffix or raw bytes.
	Memory string `json:"memory"`
	// Disk is the disk cap with a K/M/G/T suffix or raw bytes.
	Disk string `json:"disk"`
	// TimeoutSeconds is the default per-action deadline.
	TimeoutSeconds int `json:"timeoutSeconds"`
	// MaxProcesses caps the process count inside a sandbox.
	MaxProcesses int64 `json:"maxProcesses"`
	// Cleanup removes sandboxes on daemon shutdown.
	Cleanup bool `json:"cleanup"`
	// Monitoring enables resource usage collection on status checks.
	Monitoring bool `json:"monitoring"`
}

// LLMConfig holds the completion provider settings.
type LLMConfig struct {
	APIKey      string  `json:"apiKey"`
	APIBase     string  `json:"apiBase,omitempty"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

// SessionConfig holds conversation-manager settings.
type SessionConfig struct {
	// MaxConversations caps how many conversations are kept in memory.
	MaxConversations int `json:"maxConversations"`
	// IdleTimeoutMinutes is how long an untouched conversation survives
	// before the janitor evicts it.
	IdleTimeoutMinutes int `json:"idleTimeoutMinutes"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level"`
	// Format is "console" or "json".
	Format string `json:"format"`
}

// DefaultConfig returns the built-in defaults used when no config file
// exists.
func DefaultConfig() *Config {
	limits := sandbox.DefaultLimits()
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8700,
		},
		Sandbox: SandboxConfig{
			Type:           string(sandbox.TypeDocker),
			Image:          "python:3.12-slim",
			NetworkMode:    "bridge",
			WorkDir:        "/workspace",
			CPU:            limits.CPU,
			Memory:         limits.Memory,
			Disk:           limits.Disk,
			TimeoutSeconds: int(limits.Timeout.Seconds()),
			MaxProcesses:   limits.MaxProcesses,
			Cleanup:        true,
			Monitoring:     true,
		},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			MaxTokens:   4096,
			Temperature: 0.2,
		},
		Session: SessionConfig{
			MaxConversations:   100,
			IdleTimeoutMinutes: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// SandboxProfile converts the file-level sandbox section into a validated
// sandbox.Config.
func (c *Config) SandboxProfile() (sandbox.Config, error) {
	cfg := sandbox.DefaultConfig()
	cfg.Type = sandbox.Type(strings.ToLower(c.Sandbox.Type))
	cfg.Docker.Image = c.Sandbox.Image
	if c.Sandbox.NetworkMode != "" {
		cfg.Docker.NetworkMode = c.Sandbox.NetworkMode
	}
	if c.Sandbox.WorkDir != "" {
		cfg.WorkDir = c.Sandbox.WorkDir
	}
	cfg.Cleanup = c.Sandbox.Cleanup
	cfg.Monitoring = c.Sandbox.Monitoring

	limits := sandbox.DefaultLimits()
	if c.Sandbox.CPU != "" {
		limits.CPU = c.Sandbox.CPU
	}
	if c.Sandbox.Memory != "" {
		limits.Memory = c.Sandbox.Memory
	}
	if c.Sandbox.Disk != "" {
		limits.Disk = c.Sandbox.Disk
	}
	if c.Sandbox.TimeoutSeconds > 0 {
		limits.Timeout = time.Duration(c.Sandbox.TimeoutSeconds) * time.Second
	}
	if c.Sandbox.MaxProcesses > 0 {
		limits.MaxProcesses = c.Sandbox.MaxProcesses
	}
	cfg.Limits = limits

	if err := cfg.Validate(); err != nil {
		return sandbox.Config{}, err
	}
	return cfg, nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
