package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxLocalOutput caps the captured output of a local command.
const maxLocalOutput = 1 << 20 // 1MB

// LocalRuntime implements ContainerRuntime without a container engine.
// A "container" is a private workspace directory; commands run through
// os/exec inside it, still subject to the command guard and the timeout.
// It backs the "local" sandbox type and keeps the whole action path
// exercisable on hosts without Docker.
type LocalRuntime struct {
	log     *zap.Logger
	config  Config
	baseDir string

	mu         sync.Mutex
	containers map[string]*localContainer
}

// localContainer is the runtime's record of one workspace.
type localContainer struct {
	info ContainerInfo
	dir  string
}

// NewLocalRuntime creates a local runtime rooted in a fresh temporary
// directory.
func NewLocalRuntime(cfg Config, logger *zap.Logger) (*LocalRuntime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	baseDir, err := os.MkdirTemp("", containerNamePrefix+"-local-")
	if err != nil {
		return nil, fmt.Errorf("sandbox: create local workspace root: %w", err)
	}

	return &LocalRuntime{
		log:        logger,
		config:     cfg,
		baseDir:    baseDir,
		containers: make(map[string]*localContainer),
	}, nil
}

// CreateContainer allocates a workspace directory and registers it.
func (r *LocalRuntime) CreateContainer(_ context.Context, opts RuntimeOptions) (string, error) {
	if err := opts.Limits.Validate(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	name := generateContainerName()
	dir := filepath.Join(r.baseDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("sandbox: create workspace: %w", err)
	}

	lc := &localContainer{
		info: ContainerInfo{
			ID:        id,
			Name:      name,
			Options:   opts,
			Status:    "running",
			CreatedAt: time.Now(),
		},
		dir: dir,
	}

	r.mu.Lock()
	r.containers[id] = lc
	r.mu.Unlock()

	r.log.Info("local workspace created",
		zap.String("id", shortID(id)), zap.String("dir", dir))
	return id, nil
}

// ExecuteCommand runs the command in the workspace directory. The command
// string is split with shlex and executed without a shell, so shell
// metacharacters are data, not syntax. Timeouts kill the spawned process
// and come back as a structured failure.
func (r *LocalRuntime) ExecuteCommand(ctx context.Context, containerID, command string, timeout time.Duration) (ExecResult, error) {
	lc, err := r.lookup(containerID)
	if err != nil {
		return ExecResult{}, err
	}
	if lc.info.Status != "running" {
		return ExecResult{Success: false, Output: "workspace is stopped", ExitCode: -1, Err: "stopped"}, nil
	}

	if reason := GuardCommand(command); reason != "" {
		return ExecResult{Success: false, Output: "command blocked: " + reason, ExitCode: -1, Err: "blocked"}, nil
	}

	argv, err := shlex.Split(command)
	if err != nil || len(argv) == 0 {
		return ExecResult{Success: false, Output: "cannot parse command", ExitCode: -1, Err: "parse"}, nil
	}

	if timeout <= 0 {
		timeout = r.config.Limits.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	cmd.Dir = lc.dir
	cmd.Env = append(os.Environ(), envSlice(lc.info.Options.Environment)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: maxLocalOutput}
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxLocalOutput}

	runErr := cmd.Run()
	output := combineOutput(stdout.String(), stderr.String())

	if execCtx.Err() == context.DeadlineExceeded {
		return ExecResult{Success: false, Output: output, ExitCode: -1, Err: "timeout"}, nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return ExecResult{Success: false, Output: output, ExitCode: exitErr.ExitCode()}, nil
		}
		return ExecResult{Success: false, Output: runErr.Error(), ExitCode: -1, Err: runErr.Error()}, nil
	}

	return ExecResult{Success: true, Output: output, ExitCode: 0}, nil
}

// CopyToContainer copies a host file into the workspace.
func (r *LocalRuntime) CopyToContainer(_ context.Context, containerID, hostPath, containerPath string) error {
	lc, err := r.lookup(containerID)
	if err != nil {
		return err
	}
	dst, err := lc.resolve(containerPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("sandbox: copy to workspace: %w", err)
	}
	return copyFile(hostPath, dst)
}

// CopyFromContainer copies a workspace file to the host.
func (r *LocalRuntime) CopyFromContainer(_ context.Context, containerID, containerPath, hostPath string) error {
	lc, err := r.lookup(containerID)
	if err != nil {
		return err
	}
	src, err := lc.resolve(containerPath)
	if err != nil {
		return err
	}
	return copyFile(src, hostPath)
}

// Status reports the workspace state. There is no external engine to ask,
// so the tracked status is authoritative.
func (r *LocalRuntime) Status(_ context.Context, containerID string) (ContainerStatus, error) {
	lc, err := r.lookup(containerID)
	if err != nil {
		return ContainerStatus{}, err
	}
	return ContainerStatus{
		ID:        lc.info.ID,
		Name:      lc.info.Name,
		Status:    lc.info.Status,
		CreatedAt: lc.info.CreatedAt,
	}, nil
}

// StopContainer marks the workspace stopped. Idempotent.
func (r *LocalRuntime) StopContainer(_ context.Context, containerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lc, ok := r.containers[containerID]
	if !ok {
		return ErrContainerNotFound{ID: containerID}
	}
	lc.info.Status = "stopped"
	return nil
}

// RemoveContainer deletes the workspace directory and drops the record.
// The record is dropped only after the directory delete succeeds.
func (r *LocalRuntime) RemoveContainer(_ context.Context, containerID string, _ bool) error {
	lc, err := r.lookup(containerID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(lc.dir); err != nil {
		return fmt.Errorf("sandbox: remove workspace: %w", err)
	}

	r.mu.Lock()
	delete(r.containers, containerID)
	r.mu.Unlock()

	r.log.Info("local workspace removed", zap.String("id", shortID(containerID)))
	return nil
}

// Containers returns a snapshot of the tracked workspaces.
func (r *LocalRuntime) Containers() []ContainerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ContainerInfo, 0, len(r.containers))
	for _, lc := range r.containers {
		out = append(out, lc.info)
	}
	return out
}

// CleanupAll removes every tracked workspace, best effort.
func (r *LocalRuntime) CleanupAll(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.containers))
	for id := range r.containers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := r.RemoveContainer(ctx, id, true); err != nil {
			r.log.Error("workspace cleanup failed",
				zap.String("id", shortID(id)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close removes the workspace root.
func (r *LocalRuntime) Close() error {
	return os.RemoveAll(r.baseDir)
}

// lookup returns a copy of the record, taken under the mutex so readers
// never see a concurrent status write.
func (r *LocalRuntime) lookup(containerID string) (localContainer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lc, ok := r.containers[containerID]
	if !ok {
		return localContainer{}, ErrContainerNotFound{ID: containerID}
	}
	return *lc, nil
}

// resolve maps a sandbox-relative path into the workspace directory and
// rejects escapes.
func (lc *localContainer) resolve(p string) (string, error) {
	cleaned := filepath.Join(lc.dir, filepath.Clean("/"+p))
	if !strings.HasPrefix(cleaned, lc.dir+string(os.PathSeparator)) && cleaned != lc.dir {
		return "", fmt.Errorf("sandbox: path %q escapes the workspace", p)
	}
	return cleaned, nil
}

// copyFile copies src to dst preserving the source mode.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// limitedWriter caps how many bytes reach the underlying writer; the rest
// is dropped silently.
type limitedWriter struct {
	w     io.Writer
	limit int
	n     int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.n >= lw.limit {
		return len(p), nil
	}
	remain := lw.limit - lw.n
	if len(p) > remain {
		if _, err := lw.w.Write(p[:remain]); err != nil {
			return 0, err
		}
		lw.n = lw.limit
		return len(p), nil
	}
	if _, err := lw.w.Write(p); err != nil {
		return 0, err
	}
	lw.n += len(p)
	return len(p), nil
}
