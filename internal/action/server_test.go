package action

import (
	"errors"
	"testing"
	"time"
)

// waitResult polls the server until the action leaves the running state.
func waitResult(t *testing.T, s *Server, actionID string) *Response {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := s.Result(actionID)
		if errors.Is(err, ErrActionRunning) {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err != nil {
			t.Fatalf("Result(%s): %v", actionID, err)
		}
		return resp
	}
	t.Fatalf("action %s did not finish", actionID)
	return nil
}

func TestServerSubmitAndConsumeResult(t *testing.T) {
	rt := newFakeRuntime()
	rt.addContainer("c1")
	s := NewServer(newTestExecutor(rt), nil)
	defer s.Close()

	id := s.Submit(Request{
		Type:    TypeExecuteCommand,
		Params:  ExecuteCommandParams{Command: "echo hello", ContainerID: "c1"},
		Timeout: 30 * time.Second,
	})
	if id == "" {
		t.Fatal("Submit returned empty id")
	}

	resp := waitResult(t, s, id)
	if resp.Status != StatusCompleted {
		t.Fatalf("Status = %q (error %q), want completed", resp.Status, resp.Error)
	}
	if resp.ActionID != id {
		t.Errorf("ActionID = %q, want %q", resp.ActionID, id)
	}

	// Consuming read: the second retrieval must miss.
	if _, err := s.Result(id); !errors.Is(err, ErrActionNotFound) {
		t.Errorf("second Result err = %v, want ErrActionNotFound", err)
	}
}

func TestServerResultUnknown(t *testing.T) {
	s := NewServer(newTestExecutor(newFakeRuntime()), nil)
	defer s.Close()

	if _, err := s.Result("no-such-action"); !errors.Is(err, ErrActionNotFound) {
		t.Fatalf("err = %v, want ErrActionNotFound", err)
	}
}

func TestServerResultWhileRunning(t *testing.T) {
	rt := newFakeRuntime()
	rt.execDelay = 10 * time.Second
	rt.addContainer("c1")
	s := NewServer(newTestExecutor(rt), nil)
	defer s.Close()

	id := s.Submit(Request{
		Type:    TypeExecuteCommand,
		Params:  ExecuteCommandParams{Command: "sleep 10", ContainerID: "c1"},
		Timeout: 30 * time.Second,
	})

	// Give the goroutine a moment to start; the poll must not block.
	time.Sleep(20 * time.Millisecond)
	if _, err := s.Result(id); !errors.Is(err, ErrActionRunning) {
		t.Fatalf("err = %v, want ErrActionRunning", err)
	}

	if got := s.Running(); len(got) != 1 || got[0] != id {
		t.Errorf("Running() = %v, want [%s]", got, id)
	}
}

func TestServerCancel(t *testing.T) {
	rt := newFakeRuntime()
	rt.execDelay = 10 * time.Second
	rt.addContainer("c1")
	s := NewServer(newTestExecutor(rt), nil)
	defer s.Close()

	id := s.Submit(Request{
		Type:    TypeExecuteCommand,
		Params:  ExecuteCommandParams{Command: "sleep 10", ContainerID: "c1"},
		Timeout: 30 * time.Second,
	})
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	if !s.Cancel(id) {
		t.Fatal("Cancel returned false for a running action")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Cancel took %v, want prompt acknowledgement", elapsed)
	}

	if s.Cancel(id) {
		t.Error("second Cancel returned true")
	}
	if _, err := s.Result(id); !errors.Is(err, ErrActionNotFound) {
		t.Errorf("Result after cancel err = %v, want ErrActionNotFound", err)
	}
}

func TestServerCancelUnknown(t *testing.T) {
	s := NewServer(newTestExecutor(newFakeRuntime()), nil)
	defer s.Close()

	if s.Cancel("no-such-action") {
		t.Fatal("Cancel of unknown id returned true")
	}
}

func TestServerCancelFinished(t *testing.T) {
	rt := newFakeRuntime()
	rt.addContainer("c1")
	s := NewServer(newTestExecutor(rt), nil)
	defer s.Close()

	id := s.Submit(Request{
		Type:   TypeExecuteCommand,
		Params: ExecuteCommandParams{Command: "true", ContainerID: "c1"},
	})

	// Wait for completion without consuming the result.
	deadline := time.Now().Add(5 * time.Second)
	for {
		s.mu.Lock()
		tk, ok := s.actions[id]
		s.mu.Unlock()
		if !ok {
			t.Fatal("action vanished before being consumed")
		}
		if tk.finished() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("action did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if s.Cancel(id) {
		t.Error("Cancel of a finished action returned true")
	}
	// The result stays claimable after the refused cancel.
	resp, err := s.Result(id)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if resp.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", resp.Status)
	}
}

func TestServerSubmitInvalidRequestStillResolves(t *testing.T) {
	s := NewServer(newTestExecutor(newFakeRuntime()), nil)
	defer s.Close()

	id := s.Submit(Request{Type: TypeExecuteCommand, Params: ExecuteCommandParams{}})
	resp := waitResult(t, s, id)
	if resp.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", resp.Status)
	}
	if resp.Error == "" {
		t.Error("failed response must carry an error")
	}
}
