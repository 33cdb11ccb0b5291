package sandbox

// RuntimeOptions is the per-invocation description of a single sandbox:
// the profile's defaults flattened together with any caller overrides.
// A zero field means "no override"; OptionsFromConfig fills every field.
type RuntimeOptions struct {
	// Image is the container image to run.
	Image string `json:"image"`

	// WorkDir is the working directory inside the sandbox.
	WorkDir string `json:"workDir"`

	// NetworkMode selects the network attachment.
	NetworkMode string `json:"networkMode"`

	// Privileged runs the sandbox with elevated privileges.
	Privileged bool `json:"privileged"`

	// Volumes maps host paths to container paths.
	Volumes map[string]string `json:"volumes,omitempty"`

	// Environment is injected as KEY=VALUE pairs.
	Environment map[string]string `json:"environment,omitempty"`

	// Entrypoint overrides the image entrypoint when non-empty.
	Entrypoint string `json:"entrypoint,omitempty"`

	// Command overrides the keep-alive command when non-empty.
	Command string `json:"command,omitempty"`

	// Limits are the resource caps for this sandbox.
	Limits ResourceLimits `json:"limits"`
}

// OptionsFromConfig derives runtime options from a validated profile.
func OptionsFromConfig(cfg Config) RuntimeOptions {
	return RuntimeOptions{
		Image:       cfg.Docker.Image,
		WorkDir:     cfg.WorkDir,
		NetworkMode: cfg.Docker.NetworkMode,
		Privileged:  cfg.Docker.Privileged,
		Volumes:     cfg.Docker.Volumes,
		Environment: cfg.Docker.Environment,
		Entrypoint:  cfg.Docker.Entrypoint,
		Command:     cfg.Docker.Command,
		Limits:      cfg.Limits,
	}
}

// DefaultOptions returns runtime options derived from DefaultConfig.
func DefaultOptions() RuntimeOptions {
	return OptionsFromConfig(DefaultConfig())
}

// Merge returns a copy of o with every non-zero field of override applied
// on top. Zero fields keep the base value, so a caller can override just
// the image or just the limits without restating the whole profile.
func (o RuntimeOptions) Merge(override RuntimeOptions) RuntimeOptions {
	if override.Image != "" {
		o.Image = override.Image
	}
	if override.WorkDir != "" {
		o.WorkDir = override.WorkDir
	}
	if override.NetworkMode != "" {
		o.NetworkMode = override.NetworkMode
	}
	if override.Privileged {
		o.Privileged = true
	}
	if len(override.Volumes) > 0 {
		o.Volumes = override.Volumes
	}
	if len(override.Environment) > 0 {
		o.Environment = override.Environment
	}
	if override.Entrypoint != "" {
		o.Entrypoint = override.Entrypoint
	}
	if override.Command != "" {
		o.Command = override.Command
	}
	if override.Limits.CPU != "" {
		o.Limits.CPU = override.Limits.CPU
	}
	if override.Limits.Memory != "" {
		o.Limits.Memory = override.Limits.Memory
	}
	if override.Limits.Disk != "" {
		o.Limits.Disk = override.Limits.Disk
	}
	if override.Limits.Timeout > 0 {
		o.Limits.Timeout = override.Limits.Timeout
	}
	if override.Limits.MaxProcesses > 0 {
		o.Limits.MaxProcesses = override.Limits.MaxProcesses
	}
	return o
}

// Validate checks the options the same way Config.Validate checks a profile.
func (o RuntimeOptions) Validate() error {
	cfg := DefaultConfig()
	cfg.Docker.Image = o.Image
	cfg.WorkDir = o.WorkDir
	cfg.Limits = o.Limits
	return cfg.Validate()
}
