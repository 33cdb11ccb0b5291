package action

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrActionNotFound is returned for an actionID absent from the in-flight
// table. A consumed result also reports not found on the second read.
var ErrActionNotFound = errors.New("action not found")

// ErrActionRunning is returned when a result is polled before the action
// reaches a terminal state.
var ErrActionRunning = errors.New("action still running")

// task supervises one in-flight action: its cancellation hook, the
// channel closed on completion, and the terminal response slot.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
	resp   *Response // set before done is closed
}

// finished reports whether the task reached a terminal state, without
// blocking.
func (t *task) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Server decouples action submission from waiting. Each submitted request
// runs as its own cancellable goroutine; results are retrieved with a
// non-blocking consuming read.
type Server struct {
	log  *zap.Logger
	exec *Executor

	mu      sync.Mutex
	actions map[string]*task
	wg      sync.WaitGroup
}

// NewServer creates a server around an executor.
func NewServer(exec *Executor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		log:     logger,
		exec:    exec,
		actions: make(map[string]*task),
	}
}

// Submit validates the request shape, starts it in the background, and
// returns the generated actionID immediately. Requests that fail
// validation still get an id; the failure shows up in the eventual
// response.
func (s *Server) Submit(req Request) string {
	actionID := uuid.NewString()

	// Task lifetime is owned by the server, not the submitting caller.
	taskCtx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.actions[actionID] = t
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		t.resp = s.exec.Execute(taskCtx, req, actionID)
		close(t.done)
	}()

	s.log.Debug("action submitted",
		zap.String("action_id", actionID), zap.String("action", string(req.Type)))
	return actionID
}

// Result is a non-blocking consuming read. An unknown id returns
// ErrActionNotFound; an unfinished action returns ErrActionRunning and
// leaves the entry in place; a finished action is removed from the table
// and its terminal response returned exactly once.
func (s *Server) Result(actionID string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.actions[actionID]
	if !ok {
		return nil, ErrActionNotFound
	}
	if !t.finished() {
		return nil, ErrActionRunning
	}

	delete(s.actions, actionID)
	return t.resp, nil
}

// Cancel requests cooperative cancellation of a running action, waits for
// it to acknowledge, removes the entry, and returns true. Unknown or
// already-finished actions return false untouched; a finished action's
// result stays claimable through Result.
func (s *Server) Cancel(actionID string) bool {
	s.mu.Lock()
	t, ok := s.actions[actionID]
	if !ok || t.finished() {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	t.cancel()
	<-t.done

	s.mu.Lock()
	delete(s.actions, actionID)
	s.mu.Unlock()

	s.log.Info("action cancelled", zap.String("action_id", actionID))
	return true
}

// Running returns a snapshot of every tracked actionID, finished results
// not yet claimed included.
func (s *Server) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.actions))
	for id := range s.actions {
		ids = append(ids, id)
	}
	return ids
}

// Close cancels every in-flight action and waits for their goroutines to
// drain. Unclaimed results are discarded.
func (s *Server) Close() {
	s.mu.Lock()
	for _, t := range s.actions {
		t.cancel()
	}
	s.actions = make(map[string]*task)
	s.mu.Unlock()

	s.wg.Wait()
}
