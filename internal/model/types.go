// Package model defines the domain types for the compose-backup CLI.
//
// Every value in this package lives for a single run. Nothing is persisted
// except the backup files themselves, so these types are rebuilt from
// `docker compose` and `docker inspect` output each time the tool starts.
package model

import (
	"fmt"
	"strings"
)

// MountType is the kind of a container mount as reported by `docker inspect`.
// Only volume and bind mounts can be archived; everything else (tmpfs,
// npipe, cluster) is skipped.
type MountType string

const (
	// MountVolume is an engine-managed named volume.
	MountVolume MountType = "volume"

	// MountBind is a host filesystem path bound into the container.
	MountBind MountType = "bind"
)

// String returns the string representation of MountType.
func (t MountType) String() string {
	return string(t)
}

// IsArchivable reports whether mounts of this type have a standalone
// archival form.
func (t MountType) IsArchivable() bool {
	return t == MountVolume || t == MountBind
}

// ServiceConfig is one service entry of the normalized compose configuration.
// It is produced once from `docker compose config --format json` and never
// modified afterwards.
type ServiceConfig struct {
	// Name is the service key in the compose file.
	Name string `json:"name"`

	// Image is the declared container image. Empty for build-only services.
	Image string `json:"image,omitempty"`

	// Environment holds the declared environment variables. Compose accepts
	// both a mapping and a KEY=VALUE list; both are normalized into this map.
	Environment map[string]string `json:"environment,omitempty"`
}

// Mount describes a single mount of a running container. It is only used
// to derive a deduplication key and an archive filename.
type Mount struct {
	// Type is the mount kind ("volume", "bind", "tmpfs", ...).
	Type MountType `json:"type"`

	// Destination is the path inside the container.
	Destination string `json:"destination"`

	// Source is the host path for bind mounts, or the engine path of the
	// volume's data directory for named volumes.
	Source string `json:"source,omitempty"`

	// Name is the volume name. Empty for bind mounts.
	Name string `json:"name,omitempty"`
}

// Key returns the run-wide deduplication key for the mount, in the form
// "volume::<name>" or "bind::<source>". It returns an empty string for
// mounts that cannot be archived.
func (m Mount) Key() string {
	if !m.Type.IsArchivable() {
		return ""
	}
	if m.Type == MountVolume {
		if m.Name == "" {
			return ""
		}
		return "volume::" + m.Name
	}
	if m.Source == "" {
		return ""
	}
	return "bind::" + m.Source
}

// ContainerInfo holds runtime information about a running container as
// reported by `docker ps` or the Engine API container list.
type ContainerInfo struct {
	// ContainerID is the Docker container identifier. Empty when the
	// listing did not include it.
	ContainerID string `json:"containerId,omitempty"`

	// ContainerName is the human-readable Docker container name.
	ContainerName string `json:"containerName"`

	// Labels is the full set of Docker labels on the container, including
	// the com.docker.compose.* labels set by Compose.
	Labels map[string]string `json:"labels,omitempty"`
}

// Credentials is a database login resolved from a container's environment.
type Credentials struct {
	User     string
	Password string
}

// ContainerMapping maps each target service to the containers currently
// backing it. Services keep the order in which they were registered, so
// downstream processing and the summary follow the compose file order.
type ContainerMapping struct {
	order      []string
	containers map[string][]string
}

// NewContainerMapping creates a mapping with an empty container list for
// each of the given services.
func NewContainerMapping(services []string) *ContainerMapping {
	m := &ContainerMapping{
		order:      make([]string, 0, len(services)),
		containers: make(map[string][]string, len(services)),
	}
	for _, svc := range services {
		if _, ok := m.containers[svc]; ok {
			continue
		}
		m.order = append(m.order, svc)
		m.containers[svc] = nil
	}
	return m
}

// Has reports whether svc is one of the mapping's target services.
func (m *ContainerMapping) Has(svc string) bool {
	_, ok := m.containers[svc]
	return ok
}

// Add appends a container to a target service. Unknown services and empty
// container names are ignored.
func (m *ContainerMapping) Add(svc, container string) {
	if container == "" || !m.Has(svc) {
		return
	}
	m.containers[svc] = append(m.containers[svc], container)
}

// Services returns the target services in registration order.
func (m *ContainerMapping) Services() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Containers returns the containers resolved for svc.
func (m *ContainerMapping) Containers(svc string) []string {
	return m.containers[svc]
}

// Unresolved returns the target services that have no container yet,
// in registration order.
func (m *ContainerMapping) Unresolved() []string {
	var out []string
	for _, svc := range m.order {
		if len(m.containers[svc]) == 0 {
			out = append(out, svc)
		}
	}
	return out
}

// DedupSet records the databases or mounts already backed up during the
// current run. It is never shared across invocations.
type DedupSet map[string]struct{}

// NewDedupSet creates an empty DedupSet.
func NewDedupSet() DedupSet {
	return make(DedupSet)
}

// Has reports whether key was already recorded.
func (s DedupSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Add records key.
func (s DedupSet) Add(key string) {
	s[key] = struct{}{}
}

// Layout selects where database dumps are written.
type Layout string

const (
	// LayoutFull writes dumps under <out>/db and archives under <out>/volumes.
	LayoutFull Layout = "full"

	// LayoutFlat writes dumps directly under <out>.
	LayoutFlat Layout = "flat"
)

// String returns the string representation of Layout.
func (l Layout) String() string {
	return string(l)
}

// Engine selects how containers are inspected: by shelling out to the
// docker CLI or through the Docker Engine API.
type Engine string

const (
	// EngineCLI inspects containers with `docker inspect` / `docker ps`.
	EngineCLI Engine = "cli"

	// EngineAPI inspects containers with the Docker SDK.
	EngineAPI Engine = "api"
)

// String returns the string representation of Engine.
func (e Engine) String() string {
	return string(e)
}

// IsValid checks whether the Engine value is one of the predefined backends.
func (e Engine) IsValid() bool {
	switch e {
	case EngineCLI, EngineAPI:
		return true
	default:
		return false
	}
}

// ParseEngine converts a string to an Engine.
// Returns an error if the string does not match any valid backend.
func ParseEngine(s string) (Engine, error) {
	engine := Engine(strings.ToLower(strings.TrimSpace(s)))
	if !engine.IsValid() {
		return "", fmt.Errorf("invalid engine: %q (valid: cli, api)", s)
	}
	return engine, nil
}

// ExitCode defines the process exit codes of the CLI.
type ExitCode int

const (
	// ExitSuccess indicates the run completed. Individual databases or
	// mounts may still have failed; those are logged, not escalated.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred
	// (invalid flag values, unreadable config file).
	ExitGeneralError ExitCode = 1

	// ExitPrecondition indicates a fatal precondition failure: missing
	// compose file, unloadable compose config, or no matching services.
	ExitPrecondition ExitCode = 2
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
