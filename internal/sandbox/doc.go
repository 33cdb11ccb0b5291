// Package sandbox provides isolated, resource-bounded execution
// environments and the runtime that drives them.
//
// # Profiles and limits
//
// A Config is a reusable sandbox profile: which backend to use (docker,
// local, kubernetes, remote), the ResourceLimits to enforce, and the
// backend-specific settings. Configs and limits are validated on
// construction — a malformed CPU string or memory suffix is a hard error,
// never a silent default — and are immutable value objects afterwards.
// RuntimeOptions flattens a profile into the per-invocation description
// of one concrete sandbox.
//
// # Runtimes
//
// ContainerRuntime is the capability interface for sandbox lifecycles.
// DockerRuntime drives the Docker Engine API: create/start, exec with
// demultiplexed output, file copy via tar streams, inspect, stop, remove.
// LocalRuntime runs commands as host processes inside private workspace
// directories, which keeps the full action path working on hosts without
// a container engine.
//
// Each runtime owns its table of known containers behind a single mutex.
// Only registration and removal are serialized; concurrent command
// execution against one container is allowed and not ordered. Exec-level
// failures and timeouts are returned as structured ExecResult values so
// one failed command does not abort a caller's workflow, while
// lifecycle-critical failures (create, start, remove) propagate as errors.
//
// # Command guard
//
// GuardCommand screens every command against a blocklist of destructive
// patterns (recursive root deletion, raw disk writes, fork bombs, system
// shutdown) before it reaches any backend.
package sandbox
