package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mkarolys/handbox/internal/sandbox"
)

// TempContainerKey is the response metadata key carrying the id of a
// container the executor created on the caller's behalf.
const TempContainerKey = "temp_container"

// ErrUnsupportedType is returned when a request names an action type with
// no registered handler.
type ErrUnsupportedType struct {
	Type Type
}

func (e ErrUnsupportedType) Error() string {
	return fmt.Sprintf("unsupported action type %q", e.Type)
}

// ErrHandlerExists is returned when registering a handler over an
// already-taken slot.
type ErrHandlerExists struct {
	Type Type
	Name string
}

func (e ErrHandlerExists) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("custom handler %q already registered", e.Name)
	}
	return fmt.Sprintf("handler for action type %q already registered", e.Type)
}

// ErrCustomNotFound is returned when a custom action names an unregistered
// handler.
type ErrCustomNotFound struct {
	Name string
}

func (e ErrCustomNotFound) Error() string {
	return fmt.Sprintf("custom handler %q not found", e.Name)
}

// Invocation is what a Handler receives: the validated parameters, the
// runtime to act through, and the options for any container it may
// create. Metadata writes are synchronized because the executor may read
// them from another goroutine after a timeout.
type Invocation struct {
	Params  Params
	Runtime sandbox.ContainerRuntime
	Options sandbox.RuntimeOptions
	Timeout time.Duration

	mu       sync.Mutex
	metadata map[string]string
}

// SetMetadata records a key on the eventual response.
func (inv *Invocation) SetMetadata(key, value string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.metadata == nil {
		inv.metadata = make(map[string]string)
	}
	inv.metadata[key] = value
}

// metadataSnapshot copies the recorded metadata.
func (inv *Invocation) metadataSnapshot() map[string]string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if len(inv.metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(inv.metadata))
	for k, v := range inv.metadata {
		out[k] = v
	}
	return out
}

// Handler executes one kind of action. Implementations receive validated
// parameters and return a structured result payload; errors become a
// failed response at the executor boundary.
type Handler interface {
	// ActionType returns the action type this handler serves.
	ActionType() Type
	// Handle performs the action.
	Handle(ctx context.Context, inv *Invocation) (map[string]any, error)
}

// CustomHandler is a Handler for the custom action type, addressed by
// name rather than by type.
type CustomHandler interface {
	Handler
	// Name is the custom action name callers put in CustomParams.Name.
	Name() string
}

// Registry holds the handler for each action type plus named custom
// handlers. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Type]Handler
	custom   map[string]CustomHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Type]Handler),
		custom:   make(map[string]CustomHandler),
	}
}

// Register adds a handler. A handler whose type is TypeCustom must
// implement CustomHandler; it is stored under its name.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("action: cannot register nil handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h.ActionType() == TypeCustom {
		ch, ok := h.(CustomHandler)
		if !ok {
			return fmt.Errorf("action: custom handler must implement CustomHandler")
		}
		if ch.Name() == "" {
			return fmt.Errorf("action: custom handler has empty name")
		}
		if _, exists := r.custom[ch.Name()]; exists {
			return ErrHandlerExists{Type: TypeCustom, Name: ch.Name()}
		}
		r.custom[ch.Name()] = ch
		return nil
	}

	if _, exists := r.handlers[h.ActionType()]; exists {
		return ErrHandlerExists{Type: h.ActionType()}
	}
	r.handlers[h.ActionType()] = h
	return nil
}

// MustRegister registers a handler, panicking on error. For wiring at
// construction time.
func (r *Registry) MustRegister(h Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// Lookup resolves the handler for a type. For TypeCustom the dispatch
// happens later, by name, so Lookup returns a dispatching handler.
func (r *Registry) Lookup(t Type) (Handler, bool) {
	if t == TypeCustom {
		return customDispatch{registry: r}, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Custom resolves a named custom handler.
func (r *Registry) Custom(name string) (CustomHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.custom[name]
	return h, ok
}

// customDispatch routes a custom action to the named handler.
type customDispatch struct {
	registry *Registry
}

func (customDispatch) ActionType() Type { return TypeCustom }

func (d customDispatch) Handle(ctx context.Context, inv *Invocation) (map[string]any, error) {
	p := inv.Params.(CustomParams)
	h, ok := d.registry.Custom(p.Name)
	if !ok {
		return nil, ErrCustomNotFound{Name: p.Name}
	}
	return h.Handle(ctx, inv)
}

// ensureContainer returns the container to run in, creating a temporary
// one when the caller did not supply an id. A created id is recorded in
// the invocation metadata under TempContainerKey.
func ensureContainer(ctx context.Context, inv *Invocation, containerID string) (string, error) {
	if containerID != "" {
		return containerID, nil
	}
	id, err := inv.Runtime.CreateContainer(ctx, inv.Options)
	if err != nil {
		return "", fmt.Errorf("create temporary container: %w", err)
	}
	inv.SetMetadata(TempContainerKey, id)
	return id, nil
}

// execResultPayload converts an exec result into the uniform result map.
func execResultPayload(res sandbox.ExecResult) map[string]any {
	out := map[string]any{
		"success":    res.Success,
		"output":     res.Output,
		"returnCode": res.ExitCode,
	}
	if res.Err != "" {
		out["error"] = res.Err
	}
	return out
}

// executeCommandHandler serves execute_command.
type executeCommandHandler struct{}

func (executeCommandHandler) ActionType() Type { return TypeExecuteCommand }

func (executeCommandHandler) Handle(ctx context.Context, inv *Invocation) (map[string]any, error) {
	p := inv.Params.(ExecuteCommandParams)
	id, err := ensureContainer(ctx, inv, p.ContainerID)
	if err != nil {
		return nil, err
	}
	res, err := inv.Runtime.ExecuteCommand(ctx, id, p.Command, inv.Timeout)
	if err != nil {
		return nil, err
	}
	return execResultPayload(res), nil
}

// runCodeHandler serves run_code by wrapping the snippet in an
// interpreter invocation and delegating to command execution.
type runCodeHandler struct{}

func (runCodeHandler) ActionType() Type { return TypeRunCode }

func (runCodeHandler) Handle(ctx context.Context, inv *Invocation) (map[string]any, error) {
	p := inv.Params.(RunCodeParams)
	command, err := codeCommand(p.Language, p.Code)
	if err != nil {
		return nil, err
	}
	id, err := ensureContainer(ctx, inv, p.ContainerID)
	if err != nil {
		return nil, err
	}
	res, err := inv.Runtime.ExecuteCommand(ctx, id, command, inv.Timeout)
	if err != nil {
		return nil, err
	}
	payload := execResultPayload(res)
	payload["language"] = p.Language
	return payload, nil
}

// transferFileHandler serves transfer_file and put_file. Copy failures
// come back as a success=false payload rather than a failed action, so
// one bad copy does not abort a caller's workflow.
type transferFileHandler struct {
	actionType Type
}

func (h transferFileHandler) ActionType() Type { return h.actionType }

func (h transferFileHandler) Handle(ctx context.Context, inv *Invocation) (map[string]any, error) {
	var src, dst, id string
	switch p := inv.Params.(type) {
	case TransferFileParams:
		src, dst, id = p.SourcePath, p.DestinationPath, p.ContainerID
	case PutFileParams:
		src, dst, id = p.SourcePath, p.DestinationPath, p.ContainerID
	}

	if err := inv.Runtime.CopyToContainer(ctx, id, src, dst); err != nil {
		if isNotFound(err) {
			return nil, err
		}
		return map[string]any{"success": false, "error": err.Error()}, nil
	}
	return map[string]any{
		"success":     true,
		"source":      src,
		"destination": dst,
	}, nil
}

// getFileHandler serves get_file.
type getFileHandler struct{}

func (getFileHandler) ActionType() Type { return TypeGetFile }

func (getFileHandler) Handle(ctx context.Context, inv *Invocation) (map[string]any, error) {
	p := inv.Params.(GetFileParams)
	if err := inv.Runtime.CopyFromContainer(ctx, p.ContainerID, p.ContainerPath, p.HostPath); err != nil {
		if isNotFound(err) {
			return nil, err
		}
		return map[string]any{"success": false, "error": err.Error()}, nil
	}
	return map[string]any{
		"success":     true,
		"source":      p.ContainerPath,
		"destination": p.HostPath,
	}, nil
}

// deleteFileHandler serves delete_file via command execution.
type deleteFileHandler struct{}

func (deleteFileHandler) ActionType() Type { return TypeDeleteFile }

func (deleteFileHandler) Handle(ctx context.Context, inv *Invocation) (map[string]any, error) {
	p := inv.Params.(DeleteFileParams)
	res, err := inv.Runtime.ExecuteCommand(ctx, p.ContainerID, "rm -rf "+shellQuote(p.FilePath), inv.Timeout)
	if err != nil {
		return nil, err
	}
	payload := execResultPayload(res)
	payload["path"] = p.FilePath
	return payload, nil
}

// listDirectoryHandler serves list_directory via command execution.
type listDirectoryHandler struct{}

func (listDirectoryHandler) ActionType() Type { return TypeListDirectory }

func (listDirectoryHandler) Handle(ctx context.Context, inv *Invocation) (map[string]any, error) {
	p := inv.Params.(ListDirectoryParams)
	res, err := inv.Runtime.ExecuteCommand(ctx, p.ContainerID, "ls -la "+shellQuote(p.DirectoryPath), inv.Timeout)
	if err != nil {
		return nil, err
	}
	payload := execResultPayload(res)
	payload["path"] = p.DirectoryPath
	return payload, nil
}

// checkStatusHandler serves check_status through runtime inspection.
type checkStatusHandler struct{}

func (checkStatusHandler) ActionType() Type { return TypeCheckStatus }

func (checkStatusHandler) Handle(ctx context.Context, inv *Invocation) (map[string]any, error) {
	p := inv.Params.(CheckStatusParams)
	st, err := inv.Runtime.Status(ctx, p.ContainerID)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"container_id": st.ID,
		"name":         st.Name,
		"status":       st.Status,
		"created_at":   st.CreatedAt,
	}
	if st.CPUUsage > 0 {
		out["cpu_usage"] = st.CPUUsage
	}
	if st.MemoryUsage > 0 {
		out["memory_usage"] = st.MemoryUsage
	}
	if st.Err != "" {
		out["error"] = st.Err
	}
	return out, nil
}

// isNotFound reports whether err is an unknown-container failure, which
// must fail the action instead of degrading to a success=false payload.
func isNotFound(err error) bool {
	var nf sandbox.ErrContainerNotFound
	return errors.As(err, &nf)
}

// builtinHandlers returns one handler per built-in action type.
func builtinHandlers() []Handler {
	return []Handler{
		executeCommandHandler{},
		runCodeHandler{},
		transferFileHandler{actionType: TypeTransferFile},
		transferFileHandler{actionType: TypePutFile},
		getFileHandler{},
		deleteFileHandler{},
		listDirectoryHandler{},
		checkStatusHandler{},
	}
}
