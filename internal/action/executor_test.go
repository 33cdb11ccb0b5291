package action

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mkarolys/handbox/internal/sandbox"
)

// fakeRuntime is a scriptable ContainerRuntime that records every call.
type fakeRuntime struct {
	mu         sync.Mutex
	calls      []string
	commands   []string
	createOpts []sandbox.RuntimeOptions
	execResult sandbox.ExecResult
	execErr    error
	execDelay  time.Duration
	containers map[string]bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		execResult: sandbox.ExecResult{Success: true, Output: "ok", ExitCode: 0},
		containers: make(map[string]bool),
	}
}

func (f *fakeRuntime) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeRuntime) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRuntime) countOf(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeRuntime) lastCommand() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return ""
	}
	return f.commands[len(f.commands)-1]
}

func (f *fakeRuntime) CreateContainer(_ context.Context, opts sandbox.RuntimeOptions) (string, error) {
	f.record("create")
	id := uuid.NewString()
	f.mu.Lock()
	f.createOpts = append(f.createOpts, opts)
	f.containers[id] = true
	f.mu.Unlock()
	return id, nil
}

func (f *fakeRuntime) lastCreateOpts() sandbox.RuntimeOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.createOpts) == 0 {
		return sandbox.RuntimeOptions{}
	}
	return f.createOpts[len(f.createOpts)-1]
}

func (f *fakeRuntime) ExecuteCommand(ctx context.Context, containerID, command string, _ time.Duration) (sandbox.ExecResult, error) {
	f.record("exec")
	f.mu.Lock()
	f.commands = append(f.commands, command)
	known := f.containers[containerID]
	f.mu.Unlock()

	if !known {
		return sandbox.ExecResult{}, sandbox.ErrContainerNotFound{ID: containerID}
	}
	if f.execDelay > 0 {
		select {
		case <-time.After(f.execDelay):
		case <-ctx.Done():
			return sandbox.ExecResult{Success: false, ExitCode: -1, Err: "timeout"}, nil
		}
	}
	return f.execResult, f.execErr
}

func (f *fakeRuntime) CopyToContainer(_ context.Context, containerID, _, _ string) error {
	f.record("copyTo")
	if !f.has(containerID) {
		return sandbox.ErrContainerNotFound{ID: containerID}
	}
	return nil
}

func (f *fakeRuntime) CopyFromContainer(_ context.Context, containerID, _, _ string) error {
	f.record("copyFrom")
	if !f.has(containerID) {
		return sandbox.ErrContainerNotFound{ID: containerID}
	}
	return nil
}

func (f *fakeRuntime) Status(_ context.Context, containerID string) (sandbox.ContainerStatus, error) {
	f.record("status")
	if !f.has(containerID) {
		return sandbox.ContainerStatus{}, sandbox.ErrContainerNotFound{ID: containerID}
	}
	return sandbox.ContainerStatus{ID: containerID, Status: "running"}, nil
}

func (f *fakeRuntime) StopContainer(_ context.Context, _ string) error {
	f.record("stop")
	return nil
}

func (f *fakeRuntime) RemoveContainer(_ context.Context, containerID string, _ bool) error {
	f.record("remove")
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.containers[containerID] {
		return sandbox.ErrContainerNotFound{ID: containerID}
	}
	delete(f.containers, containerID)
	return nil
}

func (f *fakeRuntime) Containers() []sandbox.ContainerInfo {
	f.record("list")
	return nil
}

func (f *fakeRuntime) CleanupAll(_ context.Context) error {
	f.record("cleanup")
	return nil
}

func (f *fakeRuntime) Close() error { return nil }

func (f *fakeRuntime) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.containers[id]
}

func (f *fakeRuntime) addContainer(id string) {
	f.mu.Lock()
	f.containers[id] = true
	f.mu.Unlock()
}

func newTestExecutor(rt sandbox.ContainerRuntime) *Executor {
	return NewExecutorWithRuntime(rt, sandbox.LocalConfig(), nil)
}

func TestExecuteUnknownType(t *testing.T) {
	rt := newFakeRuntime()
	exec := newTestExecutor(rt)

	resp := exec.Execute(context.Background(), Request{Type: Type("bogus")}, "")
	if resp.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", resp.Status)
	}
	if resp.Error == "" {
		t.Error("failed response must carry an error")
	}
	if rt.callCount() != 0 {
		t.Errorf("runtime saw %d calls, want 0", rt.callCount())
	}
}

func TestExecuteMissingParam(t *testing.T) {
	rt := newFakeRuntime()
	exec := newTestExecutor(rt)

	resp := exec.Execute(context.Background(), Request{
		Type:   TypeExecuteCommand,
		Params: ExecuteCommandParams{},
	}, "")
	if resp.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", resp.Status)
	}
	if !strings.Contains(resp.Error, "missing required parameter") {
		t.Errorf("Error = %q, want missing-parameter message", resp.Error)
	}
	if rt.callCount() != 0 {
		t.Errorf("runtime saw %d calls, want 0", rt.callCount())
	}
}

func TestExecuteParamsTypeMismatch(t *testing.T) {
	rt := newFakeRuntime()
	exec := newTestExecutor(rt)

	resp := exec.Execute(context.Background(), Request{
		Type:   TypeExecuteCommand,
		Params: CheckStatusParams{ContainerID: "c1"},
	}, "")
	if resp.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", resp.Status)
	}
	if rt.callCount() != 0 {
		t.Errorf("runtime saw %d calls, want 0", rt.callCount())
	}
}

func TestExecuteCommandCompleted(t *testing.T) {
	rt := newFakeRuntime()
	rt.execResult = sandbox.ExecResult{Success: true, Output: "hello\n", ExitCode: 0}
	rt.addContainer("c1")
	exec := newTestExecutor(rt)

	resp := exec.Execute(context.Background(), Request{
		Type:    TypeExecuteCommand,
		Params:  ExecuteCommandParams{Command: "echo hello", ContainerID: "c1"},
		Timeout: 30 * time.Second,
	}, "my-action")
	if resp.Status != StatusCompleted {
		t.Fatalf("Status = %q (error %q), want completed", resp.Status, resp.Error)
	}
	if resp.ActionID != "my-action" {
		t.Errorf("ActionID = %q, want my-action", resp.ActionID)
	}
	if got := resp.Result["output"]; got != "hello\n" {
		t.Errorf("Result[output] = %v, want hello", got)
	}
	if got := resp.Result["returnCode"]; got != 0 {
		t.Errorf("Result[returnCode] = %v, want 0", got)
	}
	if resp.Error != "" {
		t.Errorf("Error = %q on completed response", resp.Error)
	}
	if _, ok := resp.Metadata[TempContainerKey]; ok {
		t.Error("temp_container set even though a container id was supplied")
	}
}

func TestExecuteGeneratesActionID(t *testing.T) {
	rt := newFakeRuntime()
	rt.addContainer("c1")
	exec := newTestExecutor(rt)

	resp := exec.Execute(context.Background(), Request{
		Type:   TypeExecuteCommand,
		Params: ExecuteCommandParams{Command: "true", ContainerID: "c1"},
	}, "")
	if resp.ActionID == "" {
		t.Fatal("ActionID not generated")
	}
}

func TestExecuteTempContainer(t *testing.T) {
	rt := newFakeRuntime()
	exec := newTestExecutor(rt)

	resp := exec.Execute(context.Background(), Request{
		Type:   TypeExecuteCommand,
		Params: ExecuteCommandParams{Command: "echo hi"},
	}, "")
	if resp.Status != StatusCompleted {
		t.Fatalf("Status = %q (error %q), want completed", resp.Status, resp.Error)
	}
	if rt.countOf("create") != 1 {
		t.Fatalf("create called %d times, want 1", rt.countOf("create"))
	}
	tempID := resp.Metadata[TempContainerKey]
	if tempID == "" {
		t.Fatal("temp_container metadata not recorded")
	}

	// Replaying with the returned id must not create another container.
	resp = exec.Execute(context.Background(), Request{
		Type:   TypeExecuteCommand,
		Params: ExecuteCommandParams{Command: "echo hi", ContainerID: tempID},
	}, "")
	if resp.Status != StatusCompleted {
		t.Fatalf("replay Status = %q (error %q), want completed", resp.Status, resp.Error)
	}
	if rt.countOf("create") != 1 {
		t.Errorf("create called %d times after replay, want 1", rt.countOf("create"))
	}
	if _, ok := resp.Metadata[TempContainerKey]; ok {
		t.Error("replay response carries temp_container metadata")
	}
}

func TestExecuteTimeout(t *testing.T) {
	rt := newFakeRuntime()
	rt.execDelay = 5 * time.Second
	rt.addContainer("c1")
	exec := newTestExecutor(rt)

	resp := exec.Execute(context.Background(), Request{
		Type:    TypeExecuteCommand,
		Params:  ExecuteCommandParams{Command: "sleep 5", ContainerID: "c1"},
		Timeout: 100 * time.Millisecond,
	}, "")
	if resp.Status != StatusTimedOut {
		t.Fatalf("Status = %q, want timed_out", resp.Status)
	}
	if resp.Error == "" {
		t.Error("timed_out response must carry an error")
	}
	if resp.ExecutionTime > 1.0 {
		t.Errorf("ExecutionTime = %.2fs, want about 0.1s", resp.ExecutionTime)
	}
}

func TestExecuteRunCode(t *testing.T) {
	rt := newFakeRuntime()
	rt.addContainer("c1")
	exec := newTestExecutor(rt)

	resp := exec.Execute(context.Background(), Request{
		Type:   TypeRunCode,
		Params: RunCodeParams{Code: "print('hi')", Language: "python", ContainerID: "c1"},
	}, "")
	if resp.Status != StatusCompleted {
		t.Fatalf("Status = %q (error %q), want completed", resp.Status, resp.Error)
	}
	cmd := rt.lastCommand()
	if !strings.HasPrefix(cmd, "python3 -c ") {
		t.Errorf("command = %q, want python3 -c invocation", cmd)
	}
	if !strings.Contains(cmd, "print(") {
		t.Errorf("command = %q missing the code", cmd)
	}
}

func TestExecuteRunCodeUnsupportedLanguage(t *testing.T) {
	rt := newFakeRuntime()
	rt.addContainer("c1")
	exec := newTestExecutor(rt)

	resp := exec.Execute(context.Background(), Request{
		Type:   TypeRunCode,
		Params: RunCodeParams{Code: "x", Language: "cobol", ContainerID: "c1"},
	}, "")
	if resp.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", resp.Status)
	}
	if !strings.Contains(resp.Error, "unsupported language") {
		t.Errorf("Error = %q, want unsupported-language message", resp.Error)
	}
	if rt.countOf("exec") != 0 {
		t.Errorf("exec called %d times, want 0", rt.countOf("exec"))
	}
}

func TestExecuteUnknownContainer(t *testing.T) {
	rt := newFakeRuntime()
	exec := newTestExecutor(rt)

	resp := exec.Execute(context.Background(), Request{
		Type:   TypeCheckStatus,
		Params: CheckStatusParams{ContainerID: "missing"},
	}, "")
	if resp.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", resp.Status)
	}
	if !strings.Contains(resp.Error, "not found") {
		t.Errorf("Error = %q, want not-found message", resp.Error)
	}
}

func TestExecuteFileActions(t *testing.T) {
	rt := newFakeRuntime()
	rt.addContainer("c1")
	exec := newTestExecutor(rt)

	cases := []struct {
		name string
		req  Request
		call string
	}{
		{"transfer", Request{Type: TypeTransferFile, Params: TransferFileParams{SourcePath: "a", DestinationPath: "b", ContainerID: "c1"}}, "copyTo"},
		{"put", Request{Type: TypePutFile, Params: PutFileParams{SourcePath: "a", DestinationPath: "b", ContainerID: "c1"}}, "copyTo"},
		{"get", Request{Type: TypeGetFile, Params: GetFileParams{ContainerPath: "a", HostPath: "b", ContainerID: "c1"}}, "copyFrom"},
		{"delete", Request{Type: TypeDeleteFile, Params: DeleteFileParams{FilePath: "/tmp/x", ContainerID: "c1"}}, "exec"},
		{"list", Request{Type: TypeListDirectory, Params: ListDirectoryParams{DirectoryPath: "/tmp", ContainerID: "c1"}}, "exec"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := rt.countOf(tc.call)
			resp := exec.Execute(context.Background(), tc.req, "")
			if resp.Status != StatusCompleted {
				t.Fatalf("Status = %q (error %q), want completed", resp.Status, resp.Error)
			}
			if rt.countOf(tc.call) != before+1 {
				t.Errorf("%s not reached for %s", tc.call, tc.name)
			}
		})
	}
}

// panicHandler is a custom handler that always panics.
type panicHandler struct{}

func (panicHandler) Name() string     { return "panic" }
func (panicHandler) ActionType() Type { return TypeCustom }
func (panicHandler) Handle(context.Context, *Invocation) (map[string]any, error) {
	panic("boom")
}

func TestExecuteRecoversHandlerPanic(t *testing.T) {
	rt := newFakeRuntime()
	exec := newTestExecutor(rt)
	if err := exec.RegisterHandler(panicHandler{}); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	resp := exec.Execute(context.Background(), Request{
		Type:   TypeCustom,
		Params: CustomParams{Name: "panic"},
	}, "")
	if resp.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", resp.Status)
	}
	if !strings.Contains(resp.Error, "panic") {
		t.Errorf("Error = %q, want panic message", resp.Error)
	}
}

func TestExecuteCustomNotFound(t *testing.T) {
	rt := newFakeRuntime()
	exec := newTestExecutor(rt)

	resp := exec.Execute(context.Background(), Request{
		Type:   TypeCustom,
		Params: CustomParams{Name: "nope"},
	}, "")
	if resp.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", resp.Status)
	}
	if !strings.Contains(resp.Error, "not found") {
		t.Errorf("Error = %q, want not-found message", resp.Error)
	}
}

// echoHandler is a custom handler returning its arguments.
type echoHandler struct{}

func (echoHandler) Name() string     { return "echo" }
func (echoHandler) ActionType() Type { return TypeCustom }
func (echoHandler) Handle(_ context.Context, inv *Invocation) (map[string]any, error) {
	p := inv.Params.(CustomParams)
	return map[string]any{"args": p.Args}, nil
}

func TestExecuteCustomHandler(t *testing.T) {
	rt := newFakeRuntime()
	exec := newTestExecutor(rt)
	if err := exec.RegisterHandler(echoHandler{}); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	if err := exec.RegisterHandler(echoHandler{}); err == nil {
		t.Error("duplicate registration should fail")
	}

	resp := exec.Execute(context.Background(), Request{
		Type:   TypeCustom,
		Params: CustomParams{Name: "echo", Args: map[string]any{"k": "v"}},
	}, "")
	if resp.Status != StatusCompleted {
		t.Fatalf("Status = %q (error %q), want completed", resp.Status, resp.Error)
	}
	if resp.Result["args"] == nil {
		t.Error("handler result not propagated")
	}
}

func TestExecuteMetadataPassThrough(t *testing.T) {
	rt := newFakeRuntime()
	rt.addContainer("c1")
	exec := newTestExecutor(rt)

	resp := exec.Execute(context.Background(), Request{
		Type:     TypeExecuteCommand,
		Params:   ExecuteCommandParams{Command: "true", ContainerID: "c1"},
		Metadata: map[string]string{"caller": "test"},
	}, "")
	if resp.Metadata["caller"] != "test" {
		t.Errorf("Metadata[caller] = %q, want test", resp.Metadata["caller"])
	}
}

func TestExecutePartialOptionsOverride(t *testing.T) {
	rt := newFakeRuntime()
	exec := newTestExecutor(rt)

	resp := exec.Execute(context.Background(), Request{
		Type:    TypeExecuteCommand,
		Params:  ExecuteCommandParams{Command: "echo hi"},
		Options: &sandbox.RuntimeOptions{Image: "alpine:3"},
	}, "")
	if resp.Status != StatusCompleted {
		t.Fatalf("Status = %q (error %q), want completed", resp.Status, resp.Error)
	}

	opts := rt.lastCreateOpts()
	if opts.Image != "alpine:3" {
		t.Errorf("create Image = %q, want alpine:3", opts.Image)
	}
	// The override left limits unset; the profile defaults must fill them.
	if err := opts.Limits.Validate(); err != nil {
		t.Errorf("create received unfilled limits: %v", err)
	}
	base := sandbox.OptionsFromConfig(sandbox.LocalConfig())
	if opts.WorkDir != base.WorkDir {
		t.Errorf("create WorkDir = %q, want profile default %q", opts.WorkDir, base.WorkDir)
	}
}

func TestExecutePartialOptionsOverrideLocal(t *testing.T) {
	lrt, err := sandbox.NewLocalRuntime(sandbox.LocalConfig(), nil)
	if err != nil {
		t.Fatalf("NewLocalRuntime: %v", err)
	}
	t.Cleanup(func() {
		lrt.CleanupAll(context.Background())
		lrt.Close()
	})
	exec := newTestExecutor(lrt)

	resp := exec.Execute(context.Background(), Request{
		Type:    TypeExecuteCommand,
		Params:  ExecuteCommandParams{Command: "echo merged"},
		Options: &sandbox.RuntimeOptions{Image: "alpine:3"},
	}, "")
	if resp.Status != StatusCompleted {
		t.Fatalf("Status = %q (error %q), want completed", resp.Status, resp.Error)
	}
	if output, _ := resp.Result["output"].(string); !strings.Contains(output, "merged") {
		t.Errorf("output = %q, want echoed text", output)
	}
}
