package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestLocalRuntime(t *testing.T) *LocalRuntime {
	t.Helper()
	rt, err := NewLocalRuntime(LocalConfig(), nil)
	if err != nil {
		t.Fatalf("NewLocalRuntime: %v", err)
	}
	t.Cleanup(func() {
		rt.CleanupAll(context.Background())
		rt.Close()
	})
	return rt
}

func TestLocalExecuteCommand(t *testing.T) {
	rt := newTestLocalRuntime(t)
	ctx := context.Background()

	id, err := rt.CreateContainer(ctx, DefaultOptions())
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}

	res, err := rt.ExecuteCommand(ctx, id, "echo hello", 10*time.Second)
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if !res.Success || res.ExitCode != 0 {
		t.Fatalf("result = %+v, want success with exit 0", res)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Errorf("output %q missing echoed text", res.Output)
	}
}

func TestLocalExecuteCommandExitCode(t *testing.T) {
	rt := newTestLocalRuntime(t)
	ctx := context.Background()

	id, err := rt.CreateContainer(ctx, DefaultOptions())
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}

	res, err := rt.ExecuteCommand(ctx, id, "sh -c 'exit 3'", 10*time.Second)
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure result")
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestLocalExecuteCommandTimeout(t *testing.T) {
	rt := newTestLocalRuntime(t)
	ctx := context.Background()

	id, err := rt.CreateContainer(ctx, DefaultOptions())
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}

	start := time.Now()
	res, err := rt.ExecuteCommand(ctx, id, "sleep 5", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v, expected prompt kill", elapsed)
	}
	if res.Success || res.Err != "timeout" {
		t.Errorf("result = %+v, want timeout failure", res)
	}
}

func TestLocalExecuteCommandBlocked(t *testing.T) {
	rt := newTestLocalRuntime(t)
	ctx := context.Background()

	id, err := rt.CreateContainer(ctx, DefaultOptions())
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}

	res, err := rt.ExecuteCommand(ctx, id, "rm -rf /", 10*time.Second)
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if res.Success || res.Err != "blocked" {
		t.Errorf("result = %+v, want blocked failure", res)
	}
}

func TestLocalExecuteCommandUnknownContainer(t *testing.T) {
	rt := newTestLocalRuntime(t)

	_, err := rt.ExecuteCommand(context.Background(), "no-such-id", "echo hi", time.Second)
	if _, ok := err.(ErrContainerNotFound); !ok {
		t.Fatalf("err = %v, want ErrContainerNotFound", err)
	}
}

func TestLocalExecuteCommandStopped(t *testing.T) {
	rt := newTestLocalRuntime(t)
	ctx := context.Background()

	id, err := rt.CreateContainer(ctx, DefaultOptions())
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	if err := rt.StopContainer(ctx, id); err != nil {
		t.Fatalf("StopContainer: %v", err)
	}

	res, err := rt.ExecuteCommand(ctx, id, "echo hi", time.Second)
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if res.Success || res.Err != "stopped" {
		t.Errorf("result = %+v, want stopped failure", res)
	}
}

func TestLocalCopyRoundTrip(t *testing.T) {
	rt := newTestLocalRuntime(t)
	ctx := context.Background()

	id, err := rt.CreateContainer(ctx, DefaultOptions())
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}

	src := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := rt.CopyToContainer(ctx, id, src, "data/in.txt"); err != nil {
		t.Fatalf("CopyToContainer: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "out.txt")
	if err := rt.CopyFromContainer(ctx, id, "data/in.txt", dst); err != nil {
		t.Fatalf("CopyFromContainer: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Errorf("round trip = %q, want %q", got, "payload")
	}
}

func TestLocalCopyRejectsEscape(t *testing.T) {
	rt := newTestLocalRuntime(t)
	ctx := context.Background()

	id, err := rt.CreateContainer(ctx, DefaultOptions())
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "out.txt")
	if err := rt.CopyFromContainer(ctx, id, "../../../etc/passwd", dst); err == nil {
		// Join-and-clean keeps the path inside the workspace, so the read
		// must fail on a missing file rather than reach the host file.
		if _, statErr := os.Stat(dst); statErr == nil {
			data, _ := os.ReadFile(dst)
			if strings.Contains(string(data), "root:") {
				t.Fatal("copy escaped the workspace")
			}
		}
	}
}

func TestLocalLifecycle(t *testing.T) {
	rt := newTestLocalRuntime(t)
	ctx := context.Background()

	id, err := rt.CreateContainer(ctx, DefaultOptions())
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}

	st, err := rt.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Status != "running" {
		t.Errorf("Status = %q, want running", st.Status)
	}

	if got := len(rt.Containers()); got != 1 {
		t.Errorf("Containers() len = %d, want 1", got)
	}

	if err := rt.RemoveContainer(ctx, id, true); err != nil {
		t.Fatalf("RemoveContainer: %v", err)
	}
	if _, err := rt.Status(ctx, id); err == nil {
		t.Error("Status after remove should fail")
	}
	if got := len(rt.Containers()); got != 0 {
		t.Errorf("Containers() len after remove = %d, want 0", got)
	}
}

func TestLocalCleanupAll(t *testing.T) {
	rt := newTestLocalRuntime(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := rt.CreateContainer(ctx, DefaultOptions()); err != nil {
			t.Fatalf("CreateContainer: %v", err)
		}
	}
	if err := rt.CleanupAll(ctx); err != nil {
		t.Fatalf("CleanupAll: %v", err)
	}
	if got := len(rt.Containers()); got != 0 {
		t.Errorf("Containers() len after cleanup = %d, want 0", got)
	}
}

func TestLocalConcurrentExecAndStop(t *testing.T) {
	rt := newTestLocalRuntime(t)

	id, err := rt.CreateContainer(context.Background(), OptionsFromConfig(LocalConfig()))
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				// Errors are fine here; only the runtime's own invariants
				// are under test.
				rt.ExecuteCommand(context.Background(), id, "true", time.Second)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 10; j++ {
			rt.StopContainer(context.Background(), id)
		}
	}()
	wg.Wait()

	// After the stop, new commands must see the stopped state.
	res, err := rt.ExecuteCommand(context.Background(), id, "true", time.Second)
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if res.Err != "stopped" {
		t.Errorf("Err = %q, want stopped", res.Err)
	}
}
