package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkarolys/handbox/internal/sandbox"
)

// Executor translates one Request into exactly one Response. It applies
// the request deadline, catches handler errors and panics, measures
// wall-clock duration, and never lets a failure escape as anything but a
// terminal Response.
type Executor struct {
	log      *zap.Logger
	config   sandbox.Config
	registry *Registry

	runtimeOnce sync.Once
	runtime     sandbox.ContainerRuntime
	runtimeErr  error
}

// NewExecutor creates an executor that builds its container runtime from
// cfg on first use. Built-in handlers are registered up front.
func NewExecutor(cfg sandbox.Config, logger *zap.Logger) *Executor {
	return newExecutor(cfg, logger)
}

// NewExecutorWithRuntime creates an executor bound to an existing
// runtime. The executor does not close a runtime it was given.
func NewExecutorWithRuntime(rt sandbox.ContainerRuntime, cfg sandbox.Config, logger *zap.Logger) *Executor {
	e := newExecutor(cfg, logger)
	e.runtime = rt
	e.runtimeOnce.Do(func() {})
	return e
}

func newExecutor(cfg sandbox.Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := NewRegistry()
	for _, h := range builtinHandlers() {
		reg.MustRegister(h)
	}
	return &Executor{
		log:      logger,
		config:   cfg,
		registry: reg,
	}
}

// RegisterHandler adds a custom handler to the executor's registry.
func (e *Executor) RegisterHandler(h CustomHandler) error {
	return e.registry.Register(h)
}

// Runtime returns the executor's container runtime, constructing it from
// the configuration on first call. The construction happens at most once;
// a construction failure is sticky.
func (e *Executor) Runtime() (sandbox.ContainerRuntime, error) {
	e.runtimeOnce.Do(func() {
		e.runtime, e.runtimeErr = sandbox.NewRuntime(e.config, e.log)
	})
	return e.runtime, e.runtimeErr
}

// Execute runs one request to a terminal response. An empty actionID is
// replaced with a generated one. The response status is exactly one of
// completed, failed, timed_out, or cancelled.
func (e *Executor) Execute(ctx context.Context, req Request, actionID string) *Response {
	if actionID == "" {
		actionID = uuid.NewString()
	}

	resp := &Response{
		ActionID: actionID,
		Status:   StatusRunning,
	}

	var inv *Invocation
	start := time.Now()
	finish := func(status Status, result map[string]any, errText string) *Response {
		resp.Status = status
		resp.Result = result
		resp.Error = errText
		resp.ExecutionTime = time.Since(start).Seconds()

		meta := make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			meta[k] = v
		}
		if inv != nil {
			for k, v := range inv.metadataSnapshot() {
				meta[k] = v
			}
		}
		if len(meta) > 0 {
			resp.Metadata = meta
		}
		return resp
	}

	if err := req.Validate(); err != nil {
		return finish(StatusFailed, nil, err.Error())
	}

	handler, ok := e.registry.Lookup(req.Type)
	if !ok {
		return finish(StatusFailed, nil, ErrUnsupportedType{Type: req.Type}.Error())
	}

	rt, err := e.Runtime()
	if err != nil {
		return finish(StatusFailed, nil, fmt.Sprintf("acquire runtime: %v", err))
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.config.Limits.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := sandbox.OptionsFromConfig(e.config)
	if req.Options != nil {
		opts = opts.Merge(*req.Options)
	}

	inv = &Invocation{
		Params:  req.Params,
		Runtime: rt,
		Options: opts,
		Timeout: timeout,
	}

	type outcome struct {
		result map[string]any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("action handler panicked",
					zap.String("action", string(req.Type)), zap.Any("panic", r))
				done <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		result, err := handler.Handle(execCtx, inv)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			e.log.Warn("action failed",
				zap.String("action_id", actionID),
				zap.String("action", string(req.Type)),
				zap.Error(out.err))
			return finish(StatusFailed, nil, out.err.Error())
		}
		e.log.Info("action completed",
			zap.String("action_id", actionID),
			zap.String("action", string(req.Type)),
			zap.Duration("elapsed", time.Since(start)))
		return finish(StatusCompleted, out.result, "")

	case <-execCtx.Done():
		// The context cancellation propagates into the handler's runtime
		// calls; the goroutine drains into the buffered channel and exits.
		if ctx.Err() == context.Canceled {
			return finish(StatusCancelled, nil, "action cancelled")
		}
		return finish(StatusTimedOut, nil, fmt.Sprintf("action timed out after %s", timeout))
	}
}
