package sandbox

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Default resource limit values.
const (
	DefaultCPU          = "1"
	DefaultMemory       = "1G"
	DefaultDisk         = "10G"
	DefaultLimitTimeout = 300 * time.Second
	DefaultMaxProcesses = 64
)

// cpuPeriod is the scheduler period used when translating the CPU limit
// into a quota, matching the Docker default of 100ms.
const cpuPeriod = 100000

// ResourceLimits describes the hard caps applied to a sandbox.
// A ResourceLimits value is immutable once validated and may be shared
// across goroutines without synchronization.
type ResourceLimits struct {
	// CPU is the CPU limit as a positive decimal string, e.g. "1" or "0.5".
	CPU string `json:"cpu"`

	// Memory is the memory limit as a magnitude with a K/M/G/T suffix,
	// case-insensitive (e.g. "512M", "512m"), or a raw byte count
	// (e.g. "536870912").
	Memory string `json:"memory"`

	// Disk is the disk limit in the same format as Memory.
	Disk string `json:"disk"`

	// Timeout is the maximum wall-clock duration for a single execution.
	Timeout time.Duration `json:"timeout"`

	// MaxProcesses caps the number of processes inside the sandbox.
	MaxProcesses int64 `json:"maxProcesses"`
}

// DefaultLimits returns the stock resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		CPU:          DefaultCPU,
		Memory:       DefaultMemory,
		Disk:         DefaultDisk,
		Timeout:      DefaultLimitTimeout,
		MaxProcesses: DefaultMaxProcesses,
	}
}

// Validate checks every field and returns an error describing the first
// malformed value. Invalid limits are a hard construction error; they are
// never silently replaced with defaults.
func (l ResourceLimits) Validate() error {
	if _, err := parseCPU(l.CPU); err != nil {
		return err
	}
	if _, err := parseSize("memory", l.Memory); err != nil {
		return err
	}
	if _, err := parseSize("disk", l.Disk); err != nil {
		return err
	}
	if l.Timeout <= 0 {
		return fmt.Errorf("limits: timeout must be positive, got %v", l.Timeout)
	}
	if l.MaxProcesses <= 0 {
		return fmt.Errorf("limits: max processes must be positive, got %d", l.MaxProcesses)
	}
	return nil
}

// MemoryBytes returns the memory limit in bytes.
func (l ResourceLimits) MemoryBytes() (int64, error) {
	return parseSize("memory", l.Memory)
}

// DiskBytes returns the disk limit in bytes.
func (l ResourceLimits) DiskBytes() (int64, error) {
	return parseSize("disk", l.Disk)
}

// CPUQuota translates the decimal CPU string into a quota/period pair for
// the container engine. "1" yields one full CPU, "0.5" half of one.
func (l ResourceLimits) CPUQuota() (quota, period int64, err error) {
	cpus, err := parseCPU(l.CPU)
	if err != nil {
		return 0, 0, err
	}
	return int64(cpus * cpuPeriod), cpuPeriod, nil
}

// parseCPU parses a positive decimal CPU count such as "2" or "0.25".
func parseCPU(v string) (float64, error) {
	cpus, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("limits: cpu must be a decimal string like \"1\" or \"0.5\", got %q", v)
	}
	if cpus <= 0 {
		return 0, fmt.Errorf("limits: cpu must be positive, got %q", v)
	}
	return cpus, nil
}

// sizeMultipliers maps the accepted unit suffixes to their byte multiplier.
var sizeMultipliers = map[byte]int64{
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// parseSize parses a size limit: either a raw byte count ("1048576") or a
// magnitude followed by a K/M/G/T suffix in either case ("512M", "512m").
func parseSize(field, v string) (int64, error) {
	if v == "" {
		return 0, fmt.Errorf("limits: %s must not be empty", field)
	}

	// Raw byte count
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("limits: %s must be positive, got %q", field, v)
		}
		return n, nil
	}

	suffix := v[len(v)-1]
	if 'a' <= suffix && suffix <= 'z' {
		suffix -= 'a' - 'A'
	}
	mult, ok := sizeMultipliers[suffix]
	if !ok {
		return 0, fmt.Errorf("limits: %s must end in K, M, G or T or be a raw byte count, got %q", field, v)
	}

	magnitude := strings.TrimSpace(v[:len(v)-1])
	n, err := strconv.ParseFloat(magnitude, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limits: %s has invalid magnitude %q", field, v)
	}

	return int64(n * float64(mult)), nil
}
