package sandbox

import (
	"fmt"
	"time"
)

// Default sandbox configuration values.
const (
	DefaultImage       = "python:3.12-slim"
	DefaultNetworkMode = "bridge"
	DefaultWorkDir     = "/workspace"
)

// Type identifies the isolation backend for a sandbox.
type Type string

// Supported sandbox types. TypeKubernetes and TypeRemote are accepted as
// configuration values but have no runtime implementation on a single host;
// NewRuntime rejects them.
const (
	TypeDocker     Type = "docker"
	TypeLocal      Type = "local"
	TypeKubernetes Type = "kubernetes"
	TypeRemote     Type = "remote"
)

// Valid reports whether t is one of the closed set of sandbox types.
func (t Type) Valid() bool {
	switch t {
	case TypeDocker, TypeLocal, TypeKubernetes, TypeRemote:
		return true
	}
	return false
}

// DockerConfig holds the Docker-specific part of a sandbox profile.
type DockerConfig struct {
	// Image is the container image to run.
	Image string `json:"image"`

	// NetworkMode is the Docker network mode ("bridge", "none", "host").
	NetworkMode string `json:"networkMode"`

	// Privileged runs the container in privileged mode.
	Privileged bool `json:"privileged"`

	// Volumes maps host paths to container paths for bind mounts.
	Volumes map[string]string `json:"volumes,omitempty"`

	// Environment is injected into the container as KEY=VALUE pairs.
	Environment map[string]string `json:"environment,omitempty"`

	// Entrypoint overrides the image entrypoint when non-empty.
	Entrypoint string `json:"entrypoint,omitempty"`

	// Command overrides the keep-alive command when non-empty.
	Command string `json:"command,omitempty"`
}

// KubernetesConfig holds the cluster-specific part of a sandbox profile.
// It is carried as configuration data only; no cluster runtime is
// implemented on a single host.
type KubernetesConfig struct {
	Namespace      string            `json:"namespace"`
	ServiceAccount string            `json:"serviceAccount"`
	NodeSelector   map[string]string `json:"nodeSelector,omitempty"`
}

// Config is a named, reusable sandbox profile. Config values are treated
// as immutable once validated and may be freely shared across concurrent
// operations.
type Config struct {
	// Type selects the isolation backend.
	Type Type `json:"type"`

	// Limits are the hard resource caps for sandboxes built from this profile.
	Limits ResourceLimits `json:"limits"`

	// Docker configures the docker backend.
	Docker DockerConfig `json:"docker"`

	// Kubernetes configures the cluster backend.
	Kubernetes KubernetesConfig `json:"kubernetes"`

	// WorkDir is the working directory inside the sandbox.
	WorkDir string `json:"workDir"`

	// Cleanup removes sandboxes after use.
	Cleanup bool `json:"cleanup"`

	// Monitoring enables lifecycle event publication.
	Monitoring bool `json:"monitoring"`

	// Metadata carries free-form profile annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DefaultConfig returns a docker-backed profile with stock limits.
func DefaultConfig() Config {
	return Config{
		Type:   TypeDocker,
		Limits: DefaultLimits(),
		Docker: DockerConfig{
			Image:       DefaultImage,
			NetworkMode: DefaultNetworkMode,
		},
		Kubernetes: KubernetesConfig{
			Namespace:      "default",
			ServiceAccount: "default",
		},
		WorkDir:    DefaultWorkDir,
		Cleanup:    true,
		Monitoring: true,
	}
}

// LocalConfig returns a bare-process profile for hosts without a container
// engine. Commands run under the command guard with the configured timeout.
func LocalConfig() Config {
	cfg := DefaultConfig()
	cfg.Type = TypeLocal
	cfg.Limits.Memory = "512M"
	cfg.Limits.Disk = "5G"
	cfg.Limits.Timeout = 120 * time.Second
	return cfg
}

// WithType returns a copy of the config with the specified sandbox type.
func (c Config) WithType(t Type) Config {
	c.Type = t
	return c
}

// WithLimits returns a copy of the config with the specified resource limits.
func (c Config) WithLimits(l ResourceLimits) Config {
	c.Limits = l
	return c
}

// WithImage returns a copy of the config with the specified container image.
func (c Config) WithImage(image string) Config {
	c.Docker.Image = image
	return c
}

// WithNetworkMode returns a copy of the config with the specified network mode.
func (c Config) WithNetworkMode(mode string) Config {
	c.Docker.NetworkMode = mode
	return c
}

// WithWorkDir returns a copy of the config with the specified working directory.
func (c Config) WithWorkDir(dir string) Config {
	c.WorkDir = dir
	return c
}

// WithCleanup returns a copy of the config with the cleanup flag set.
func (c Config) WithCleanup(cleanup bool) Config {
	c.Cleanup = cleanup
	return c
}

// WithMonitoring returns a copy of the config with the monitoring flag set.
func (c Config) WithMonitoring(monitoring bool) Config {
	c.Monitoring = monitoring
	return c
}

// Validate checks the profile. An unknown sandbox type or malformed limits
// are hard errors; nothing is defaulted here.
func (c Config) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("sandbox: unsupported sandbox type %q", c.Type)
	}
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if c.WorkDir == "" {
		return fmt.Errorf("sandbox: working directory must not be empty")
	}
	if c.Type == TypeDocker && c.Docker.Image == "" {
		return fmt.Errorf("sandbox: docker image must not be empty")
	}
	return nil
}
