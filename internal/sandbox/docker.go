package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// containerNamePrefix is the prefix for generated container names.
const containerNamePrefix = "handbox"

// managedLabel marks containers created by this runtime so a later process
// can find them again.
const managedLabel = "handbox.managed"

// stopGracePeriod is how long the engine waits before killing a container
// on stop.
const stopGracePeriod = 10 // seconds

// DockerRuntime drives sandboxes through the Docker Engine API. It owns
// the table of containers it created; registration happens only after a
// successful create+start, and removal from the table only after the
// engine delete succeeds.
type DockerRuntime struct {
	cli    *client.Client
	log    *zap.Logger
	config Config

	mu         sync.Mutex
	containers map[string]*ContainerInfo
}

// NewDockerRuntime creates a runtime talking to the local Docker daemon.
// The daemon is not contacted until the first operation; use Ping to probe
// availability eagerly.
func NewDockerRuntime(cfg Config, logger *zap.Logger) (*DockerRuntime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: create docker client: %w", err)
	}

	return &DockerRuntime{
		cli:        cli,
		log:        logger,
		config:     cfg,
		containers: make(map[string]*ContainerInfo),
	}, nil
}

// Ping checks that the Docker daemon is reachable.
func (r *DockerRuntime) Ping(ctx context.Context) error {
	_, err := r.cli.Ping(ctx)
	return err
}

// CreateContainer builds a container from the options, applies the resource
// limits, starts it and registers it. On any engine failure nothing is
// registered and the partially created container is force-removed.
func (r *DockerRuntime) CreateContainer(ctx context.Context, opts RuntimeOptions) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}

	if err := r.ensureImage(ctx, opts.Image); err != nil {
		return "", err
	}

	containerCfg, hostCfg, err := r.buildContainerConfig(opts)
	if err != nil {
		return "", err
	}

	name := generateContainerName()

	resp, err := r.cli.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if err != nil {
		return "", fmt.Errorf("sandbox: create container: %w", err)
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = r.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("sandbox: start container: %w", err)
	}

	info := &ContainerInfo{
		ID:        resp.ID,
		Name:      name,
		Options:   opts,
		Status:    "running",
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.containers[resp.ID] = info
	r.mu.Unlock()

	r.log.Info("container created",
		zap.String("id", shortID(resp.ID)),
		zap.String("name", name),
		zap.String("image", opts.Image))
	return resp.ID, nil
}

// ensureImage pulls the image when it is not present locally.
func (r *DockerRuntime) ensureImage(ctx context.Context, ref string) error {
	if _, _, err := r.cli.ImageInspectWithRaw(ctx, ref); err == nil {
		return nil
	}

	reader, err := r.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("sandbox: pull image %s: %w", ref, err)
	}
	defer reader.Close()

	// Drain the progress stream to completion.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("sandbox: pull image %s: %w", ref, err)
	}
	return nil
}

// buildContainerConfig translates runtime options into the engine's
// container and host configuration.
func (r *DockerRuntime) buildContainerConfig(opts RuntimeOptions) (*container.Config, *container.HostConfig, error) {
	memBytes, err := opts.Limits.MemoryBytes()
	if err != nil {
		return nil, nil, err
	}
	cpuQuota, period, err := opts.Limits.CPUQuota()
	if err != nil {
		return nil, nil, err
	}

	containerCfg := &container.Config{
		Image:      opts.Image,
		WorkingDir: opts.WorkDir,
		Tty:        false,
		Env:        envSlice(opts.Environment),
		Labels:     map[string]string{managedLabel: "1"},
		// The sandbox stays alive between exec calls.
		Cmd: []string{"sleep", "infinity"},
	}
	if opts.Entrypoint != "" {
		containerCfg.Entrypoint = []string{opts.Entrypoint}
	}
	if opts.Command != "" {
		containerCfg.Cmd = []string{"sh", "-c", opts.Command}
	}

	pids := opts.Limits.MaxProcesses
	hostCfg := &container.HostConfig{
		NetworkMode: container.NetworkMode(opts.NetworkMode),
		Privileged:  opts.Privileged,
		Resources: container.Resources{
			Memory: memBytes,
			// Swap equals memory so the sandbox cannot spill over.
			MemorySwap: memBytes,
			CPUQuota:   cpuQuota,
			CPUPeriod:  period,
			PidsLimit:  &pids,
		},
	}
	for host, inside := range opts.Volumes {
		hostCfg.Binds = append(hostCfg.Binds, host+":"+inside)
	}

	return containerCfg, hostCfg, nil
}

// ExecuteCommand runs a shell command through the engine's exec facility
// under the given deadline. Timeouts and command failures come back as a
// structured ExecResult rather than an error, so callers can tell a
// sandbox-internal failure from a missing container.
func (r *DockerRuntime) ExecuteCommand(ctx context.Context, containerID, command string, timeout time.Duration) (ExecResult, error) {
	info, err := r.lookup(containerID)
	if err != nil {
		return ExecResult{}, err
	}

	if reason := GuardCommand(command); reason != "" {
		return ExecResult{Success: false, Output: "command blocked: " + reason, ExitCode: -1, Err: "blocked"}, nil
	}

	if timeout <= 0 {
		timeout = r.config.Limits.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execResp, err := r.cli.ContainerExecCreate(execCtx, containerID, container.ExecOptions{
		Cmd:          []string{"sh", "-c", command},
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   info.Options.WorkDir,
	})
	if err != nil {
		return execFailure(err), nil
	}

	attach, err := r.cli.ContainerExecAttach(execCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return execFailure(err), nil
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		done <- copyErr
	}()

	select {
	case copyErr := <-done:
		if copyErr != nil {
			return execFailure(copyErr), nil
		}
	case <-execCtx.Done():
		// The exec's own wait is abandoned; the process inside the
		// container may still be running. The container stays tracked
		// and is reaped by cleanup.
		r.log.Warn("command timed out",
			zap.String("id", shortID(containerID)),
			zap.Duration("timeout", timeout))
		return ExecResult{
			Success:  false,
			Output:   combineOutput(stdout.String(), stderr.String()),
			ExitCode: -1,
			Err:      "timeout",
		}, nil
	}

	inspect, err := r.cli.ContainerExecInspect(execCtx, execResp.ID)
	if err != nil {
		return execFailure(err), nil
	}

	return ExecResult{
		Success:  inspect.ExitCode == 0,
		Output:   combineOutput(stdout.String(), stderr.String()),
		ExitCode: inspect.ExitCode,
	}, nil
}

// CopyToContainer copies one host file into the container at containerPath.
func (r *DockerRuntime) CopyToContainer(ctx context.Context, containerID, hostPath, containerPath string) error {
	if _, err := r.lookup(containerID); err != nil {
		return err
	}

	archive, err := tarFile(hostPath, filepath.Base(containerPath))
	if err != nil {
		return fmt.Errorf("sandbox: archive %s: %w", hostPath, err)
	}

	dstDir := filepath.Dir(containerPath)
	if err := r.cli.CopyToContainer(ctx, containerID, dstDir, archive, container.CopyToContainerOptions{}); err != nil {
		r.log.Error("copy to container failed",
			zap.String("id", shortID(containerID)),
			zap.String("path", containerPath),
			zap.Error(err))
		return fmt.Errorf("sandbox: copy to container: %w", err)
	}
	return nil
}

// CopyFromContainer copies one container file to hostPath on the host.
func (r *DockerRuntime) CopyFromContainer(ctx context.Context, containerID, containerPath, hostPath string) error {
	if _, err := r.lookup(containerID); err != nil {
		return err
	}

	reader, _, err := r.cli.CopyFromContainer(ctx, containerID, containerPath)
	if err != nil {
		r.log.Error("copy from container failed",
			zap.String("id", shortID(containerID)),
			zap.String("path", containerPath),
			zap.Error(err))
		return fmt.Errorf("sandbox: copy from container: %w", err)
	}
	defer reader.Close()

	if err := untarFile(reader, hostPath); err != nil {
		return fmt.Errorf("sandbox: extract %s: %w", containerPath, err)
	}
	return nil
}

// Status inspects the live engine state of a tracked container, augmented
// with usage figures when the engine reports them. Inspection errors are
// reported inside the status ("unknown") rather than as a call failure.
func (r *DockerRuntime) Status(ctx context.Context, containerID string) (ContainerStatus, error) {
	info, err := r.lookup(containerID)
	if err != nil {
		return ContainerStatus{}, err
	}

	status := ContainerStatus{
		ID:        info.ID,
		Name:      info.Name,
		CreatedAt: info.CreatedAt,
	}

	inspect, err := r.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		r.log.Error("container inspect failed",
			zap.String("id", shortID(containerID)), zap.Error(err))
		status.Status = "unknown"
		status.Err = err.Error()
		return status, nil
	}
	status.Status = inspect.State.Status

	// Usage figures are best effort.
	if cpu, mem, ok := r.usage(ctx, containerID); ok {
		status.CPUUsage = cpu
		status.MemoryUsage = mem
	}

	return status, nil
}

// usage reads a one-shot stats sample from the engine.
func (r *DockerRuntime) usage(ctx context.Context, containerID string) (cpu, mem uint64, ok bool) {
	statsReader, err := r.cli.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return 0, 0, false
	}
	defer statsReader.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(statsReader.Body).Decode(&stats); err != nil {
		return 0, 0, false
	}
	return stats.CPUStats.CPUUsage.TotalUsage, stats.MemoryStats.Usage, true
}

// StopContainer stops a running container and records the new state.
// Stopping an already stopped container is a no-op for the engine and safe
// to call before RemoveContainer.
func (r *DockerRuntime) StopContainer(ctx context.Context, containerID string) error {
	info, err := r.lookup(containerID)
	if err != nil {
		return err
	}

	grace := stopGracePeriod
	if err := r.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &grace}); err != nil {
		return fmt.Errorf("sandbox: stop container: %w", err)
	}

	r.mu.Lock()
	info.Status = "stopped"
	r.mu.Unlock()

	r.log.Info("container stopped", zap.String("id", shortID(containerID)))
	return nil
}

// RemoveContainer stops the container when still running, deletes it from
// the engine and only then drops it from the table.
func (r *DockerRuntime) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	if _, err := r.lookup(containerID); err != nil {
		return err
	}

	status, err := r.Status(ctx, containerID)
	if err == nil && status.Status == "running" && !force {
		if err := r.StopContainer(ctx, containerID); err != nil {
			return err
		}
	}

	if err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force}); err != nil {
		return fmt.Errorf("sandbox: remove container: %w", err)
	}

	r.mu.Lock()
	delete(r.containers, containerID)
	r.mu.Unlock()

	r.log.Info("container removed", zap.String("id", shortID(containerID)))
	return nil
}

// AdoptExisting registers containers created by a previous process, found
// through the managed label. Already tracked containers are skipped. It
// returns how many containers were adopted.
func (r *DockerRuntime) AdoptExisting(ctx context.Context) (int, error) {
	f := filters.NewArgs(filters.Arg("label", managedLabel+"=1"))
	list, err := r.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return 0, fmt.Errorf("sandbox: list containers: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	adopted := 0
	for _, c := range list {
		if _, ok := r.containers[c.ID]; ok {
			continue
		}
		name := strings.TrimPrefix(strings.Join(c.Names, ""), "/")
		opts := OptionsFromConfig(r.config)
		opts.Image = c.Image
		r.containers[c.ID] = &ContainerInfo{
			ID:        c.ID,
			Name:      name,
			Options:   opts,
			Status:    c.State,
			CreatedAt: time.Unix(c.Created, 0),
		}
		adopted++
	}
	return adopted, nil
}

// Containers returns a snapshot of the tracked containers.
func (r *DockerRuntime) Containers() []ContainerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ContainerInfo, 0, len(r.containers))
	for _, info := range r.containers {
		out = append(out, *info)
	}
	return out
}

// CleanupAll force-removes every tracked container. Failures are logged
// and collected; the pass always visits every container.
func (r *DockerRuntime) CleanupAll(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.containers))
	for id := range r.containers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := r.RemoveContainer(ctx, id, true); err != nil {
			r.log.Error("cleanup failed",
				zap.String("id", shortID(id)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the engine client. Tracked containers are left as-is.
func (r *DockerRuntime) Close() error {
	return r.cli.Close()
}

// lookup returns the tracked record for a container id.
func (r *DockerRuntime) lookup(containerID string) (*ContainerInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.containers[containerID]
	if !ok {
		return nil, ErrContainerNotFound{ID: containerID}
	}
	return info, nil
}

// generateContainerName builds a unique human-readable container name.
func generateContainerName() string {
	return containerNamePrefix + "-" + uuid.NewString()[:12]
}

// shortID trims an engine id for logging.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// envSlice flattens an environment map into KEY=VALUE form.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// execFailure wraps an engine-level exec error into a structured result.
func execFailure(err error) ExecResult {
	return ExecResult{Success: false, Output: err.Error(), ExitCode: -1, Err: err.Error()}
}

// combineOutput joins stdout and stderr the way a terminal would show them.
func combineOutput(stdout, stderr string) string {
	if stderr == "" {
		return stdout
	}
	if stdout == "" {
		return stderr
	}
	if !strings.HasSuffix(stdout, "\n") {
		stdout += "\n"
	}
	return stdout + stderr
}

// tarFile packs a single host file into an in-memory tar archive under the
// given name.
func tarFile(hostPath, name string) (io.Reader, error) {
	data, err := os.ReadFile(hostPath)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(hostPath)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:    name,
		Mode:    int64(fi.Mode().Perm()),
		Size:    int64(len(data)),
		ModTime: fi.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(data); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// untarFile extracts the first regular file from a tar stream to hostPath.
// When hostPath is an existing directory the archived name is kept.
func untarFile(r io.Reader, hostPath string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("archive contained no regular file")
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		dst := hostPath
		if fi, err := os.Stat(hostPath); err == nil && fi.IsDir() {
			dst = filepath.Join(hostPath, filepath.Base(hdr.Name))
		}
		out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	}
}
