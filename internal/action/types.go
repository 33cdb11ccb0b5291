// Package action defines the unit-of-work model for sandboxed execution:
// typed action requests, the executor that runs them against a container
// runtime, and the server that tracks them as cancellable background tasks.
package action

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkarolys/handbox/internal/sandbox"
)

// Type identifies what an action does. The set is closed; anything outside
// it goes through TypeCustom and a registered handler.
type Type string

const (
	TypeExecuteCommand Type = "execute_command"
	TypeRunCode        Type = "run_code"
	TypeTransferFile   Type = "transfer_file"
	TypeGetFile        Type = "get_file"
	TypePutFile        Type = "put_file"
	TypeDeleteFile     Type = "delete_file"
	TypeListDirectory  Type = "list_directory"
	TypeCheckStatus    Type = "check_status"
	TypeCustom         Type = "custom"
)

// Valid reports whether t is a known action type.
func (t Type) Valid() bool {
	switch t {
	case TypeExecuteCommand, TypeRunCode, TypeTransferFile, TypeGetFile,
		TypePutFile, TypeDeleteFile, TypeListDirectory, TypeCheckStatus,
		TypeCustom:
		return true
	}
	return false
}

// Status is the lifecycle state of an action. Transitions are
// pending → running → one of the four terminal states; terminal states
// never revert.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}

// Params is the typed parameter set of one action. Each action type has
// its own variant carrying exactly the fields it needs; Validate runs
// before any runtime call so a malformed request never touches a sandbox.
type Params interface {
	// ActionType returns the action type this parameter set belongs to.
	ActionType() Type
	// Validate checks required fields.
	Validate() error
}

// ErrMissingParam reports a required parameter that was not supplied.
type ErrMissingParam struct {
	Type  Type
	Field string
}

func (e ErrMissingParam) Error() string {
	return fmt.Sprintf("action %q: missing required parameter %q", e.Type, e.Field)
}

// ExecuteCommandParams runs a shell command inside a container. An empty
// ContainerID asks the executor to create a temporary container.
type ExecuteCommandParams struct {
	Command     string `json:"command"`
	ContainerID string `json:"container_id,omitempty"`
}

func (ExecuteCommandParams) ActionType() Type { return TypeExecuteCommand }

func (p ExecuteCommandParams) Validate() error {
	if p.Command == "" {
		return ErrMissingParam{Type: TypeExecuteCommand, Field: "command"}
	}
	return nil
}

// RunCodeParams executes a source snippet through the interpreter
// registered for Language.
type RunCodeParams struct {
	Code        string `json:"code"`
	Language    string `json:"language"`
	ContainerID string `json:"container_id,omitempty"`
}

func (RunCodeParams) ActionType() Type { return TypeRunCode }

func (p RunCodeParams) Validate() error {
	if p.Code == "" {
		return ErrMissingParam{Type: TypeRunCode, Field: "code"}
	}
	if p.Language == "" {
		return ErrMissingParam{Type: TypeRunCode, Field: "language"}
	}
	return nil
}

// TransferFileParams copies a host file into a container. It backs both
// the transfer_file and put_file action types.
type TransferFileParams struct {
	SourcePath      string `json:"source_path"`
	DestinationPath string `json:"destination_path"`
	ContainerID     string `json:"container_id"`
}

func (TransferFileParams) ActionType() Type { return TypeTransferFile }

func (p TransferFileParams) Validate() error {
	switch {
	case p.SourcePath == "":
		return ErrMissingParam{Type: TypeTransferFile, Field: "source_path"}
	case p.DestinationPath == "":
		return ErrMissingParam{Type: TypeTransferFile, Field: "destination_path"}
	case p.ContainerID == "":
		return ErrMissingParam{Type: TypeTransferFile, Field: "container_id"}
	}
	return nil
}

// PutFileParams is TransferFileParams under the put_file action type.
type PutFileParams TransferFileParams

func (PutFileParams) ActionType() Type { return TypePutFile }

func (p PutFileParams) Validate() error {
	switch {
	case p.SourcePath == "":
		return ErrMissingParam{Type: TypePutFile, Field: "source_path"}
	case p.DestinationPath == "":
		return ErrMissingParam{Type: TypePutFile, Field: "destination_path"}
	case p.ContainerID == "":
		return ErrMissingParam{Type: TypePutFile, Field: "container_id"}
	}
	return nil
}

// GetFileParams copies a container file to the host.
type GetFileParams struct {
	ContainerPath string `json:"container_path"`
	HostPath      string `json:"host_path"`
	ContainerID   string `json:"container_id"`
}

func (GetFileParams) ActionType() Type { return TypeGetFile }

func (p GetFileParams) Validate() error {
	switch {
	case p.ContainerPath == "":
		return ErrMissingParam{Type: TypeGetFile, Field: "container_path"}
	case p.HostPath == "":
		return ErrMissingParam{Type: TypeGetFile, Field: "host_path"}
	case p.ContainerID == "":
		return ErrMissingParam{Type: TypeGetFile, Field: "container_id"}
	}
	return nil
}

// DeleteFileParams removes a path inside a container.
type DeleteFileParams struct {
	FilePath    string `json:"file_path"`
	ContainerID string `json:"container_id"`
}

func (DeleteFileParams) ActionType() Type { return TypeDeleteFile }

func (p DeleteFileParams) Validate() error {
	switch {
	case p.FilePath == "":
		return ErrMissingParam{Type: TypeDeleteFile, Field: "file_path"}
	case p.ContainerID == "":
		return ErrMissingParam{Type: TypeDeleteFile, Field: "container_id"}
	}
	return nil
}

// ListDirectoryParams lists a directory inside a container.
type ListDirectoryParams struct {
	DirectoryPath string `json:"directory_path"`
	ContainerID   string `json:"container_id"`
}

func (ListDirectoryParams) ActionType() Type { return TypeListDirectory }

func (p ListDirectoryParams) Validate() error {
	switch {
	case p.DirectoryPath == "":
		return ErrMissingParam{Type: TypeListDirectory, Field: "directory_path"}
	case p.ContainerID == "":
		return ErrMissingParam{Type: TypeListDirectory, Field: "container_id"}
	}
	return nil
}

// CheckStatusParams inspects a container.
type CheckStatusParams struct {
	ContainerID string `json:"container_id"`
}

func (CheckStatusParams) ActionType() Type { return TypeCheckStatus }

func (p CheckStatusParams) Validate() error {
	if p.ContainerID == "" {
		return ErrMissingParam{Type: TypeCheckStatus, Field: "container_id"}
	}
	return nil
}

// CustomParams dispatches to a caller-registered handler by name with
// free-form arguments. The named handler decides what Args must contain.
type CustomParams struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

func (CustomParams) ActionType() Type { return TypeCustom }

func (p CustomParams) Validate() error {
	if p.Name == "" {
		return ErrMissingParam{Type: TypeCustom, Field: "name"}
	}
	return nil
}

// Request is one unit of work to perform. Params carries the typed
// per-action fields; Options, when set, overrides the executor's default
// sandbox options for any container created on this request's behalf.
type Request struct {
	Type     Type
	Params   Params
	Options  *sandbox.RuntimeOptions
	Timeout  time.Duration
	Metadata map[string]string
}

// Validate checks the request shape before execution.
func (r Request) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("action: unknown action type %q", r.Type)
	}
	if r.Params == nil {
		return fmt.Errorf("action %q: missing parameters", r.Type)
	}
	if r.Params.ActionType() != r.Type {
		return fmt.Errorf("action %q: parameters are for %q", r.Type, r.Params.ActionType())
	}
	return r.Params.Validate()
}

// requestEnvelope is the wire shape of a Request. Parameters stay raw
// until the action type is known.
type requestEnvelope struct {
	Type           Type                    `json:"action_type"`
	Parameters     json.RawMessage         `json:"parameters"`
	Options        *sandbox.RuntimeOptions `json:"runtime_options,omitempty"`
	TimeoutSeconds float64                 `json:"timeout_seconds,omitempty"`
	Metadata       map[string]string       `json:"metadata,omitempty"`
}

// UnmarshalJSON decodes the type-discriminated wire form, picking the
// Params variant from action_type.
func (r *Request) UnmarshalJSON(data []byte) error {
	var env requestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	params, err := decodeParams(env.Type, env.Parameters)
	if err != nil {
		return err
	}

	r.Type = env.Type
	r.Params = params
	r.Options = env.Options
	r.Timeout = time.Duration(env.TimeoutSeconds * float64(time.Second))
	r.Metadata = env.Metadata
	return nil
}

// MarshalJSON encodes the request back into the wire form.
func (r Request) MarshalJSON() ([]byte, error) {
	var raw json.RawMessage
	if r.Params != nil {
		b, err := json.Marshal(r.Params)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(requestEnvelope{
		Type:           r.Type,
		Parameters:     raw,
		Options:        r.Options,
		TimeoutSeconds: r.Timeout.Seconds(),
		Metadata:       r.Metadata,
	})
}

// decodeParams instantiates the Params variant for t from raw JSON.
func decodeParams(t Type, raw json.RawMessage) (Params, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	var params Params
	switch t {
	case TypeExecuteCommand:
		params = &ExecuteCommandParams{}
	case TypeRunCode:
		params = &RunCodeParams{}
	case TypeTransferFile:
		params = &TransferFileParams{}
	case TypePutFile:
		params = &PutFileParams{}
	case TypeGetFile:
		params = &GetFileParams{}
	case TypeDeleteFile:
		params = &DeleteFileParams{}
	case TypeListDirectory:
		params = &ListDirectoryParams{}
	case TypeCheckStatus:
		params = &CheckStatusParams{}
	case TypeCustom:
		params = &CustomParams{}
	default:
		return nil, fmt.Errorf("action: unknown action type %q", t)
	}

	if err := json.Unmarshal(raw, params); err != nil {
		return nil, fmt.Errorf("action %q: decode parameters: %w", t, err)
	}
	return deref(params), nil
}

// deref unwraps the pointer variants produced by decodeParams so the rest
// of the package works with value Params.
func deref(p Params) Params {
	switch v := p.(type) {
	case *ExecuteCommandParams:
		return *v
	case *RunCodeParams:
		return *v
	case *TransferFileParams:
		return *v
	case *PutFileParams:
		return *v
	case *GetFileParams:
		return *v
	case *DeleteFileParams:
		return *v
	case *ListDirectoryParams:
		return *v
	case *CheckStatusParams:
		return *v
	case *CustomParams:
		return *v
	}
	return p
}

// Response is the outcome of one Request. Exactly one of Result and Error
// is meaningful once Status is terminal; Error is always non-empty for a
// terminal status other than completed.
type Response struct {
	ActionID      string            `json:"action_id"`
	Status        Status            `json:"status"`
	Result        map[string]any    `json:"result,omitempty"`
	Error         string            `json:"error,omitempty"`
	ExecutionTime float64           `json:"execution_time_seconds"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}
