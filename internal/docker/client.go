package docker

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/docker/docker/client"

	"github.com/shinji-kodama/compose-backup/internal/model"
)

// defaultPingTimeout is the maximum duration to wait for a Docker daemon
// response during a Ping operation. Docker Desktop on macOS can be slower
// than native Linux Docker to answer, so the value leaves room for that
// while still failing fast enough for the CLI fallback to feel immediate.
const defaultPingTimeout = 5 * time.Second

// windowsPipe is the named pipe Docker Desktop listens on under Windows.
const windowsPipe = "npipe:////./pipe/docker_engine"

// Client wraps the Docker Engine SDK client used by --engine api. It
// handles Docker socket detection across platforms and verifies daemon
// connectivity before any container is inspected.
//
// Only reads go through the Engine API (inspect and list). Dumps and
// helper containers always go through the docker CLI, so a Client is
// optional and every failure to build one falls back to the CLI.
//
// Usage:
//
//	c, err := docker.Connect(ctx)
//	if err != nil { /* use the docker CLI instead */ }
//	defer c.Close()
type Client struct {
	// inner is the Docker SDK client. It is created once by NewClient
	// and shared by every APIInspector built from this Client.
	inner *client.Client
}

// NewClient creates a new Docker client with automatic socket detection.
//
// The detection strategy follows this priority order:
//  1. DOCKER_HOST environment variable (if set, used as-is)
//  2. Platform-specific default socket paths:
//     - Linux: /var/run/docker.sock
//     - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//     - Windows: npipe:////./pipe/docker_engine
//
// NewClient does not contact the daemon; call Ping (or use Connect) for
// that. Returns a *model.CLIError with ExitGeneralError when no socket is
// found or the SDK rejects the host.
func NewClient() (*Client, error) {
	// Step 1: an explicit DOCKER_HOST wins. This covers remote engines,
	// rootless Docker and Podman's Docker-compatible socket, the same
	// setups the docker CLI itself honors through DOCKER_HOST.
	if dockerHost := os.Getenv("DOCKER_HOST"); dockerHost != "" {
		return newClientWithHost(dockerHost)
	}

	// Step 2: look for the platform's default socket.
	host, err := detectDockerHost()
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitGeneralError,
			"Docker socket not found",
			err,
		)
	}

	return newClientWithHost(host)
}

// newClientWithHost creates a Docker client connected to the specified host.
//
// client.WithHost sets the daemon address (unix://, tcp:// or npipe://).
// client.WithAPIVersionNegotiation lets the SDK downgrade its API version
// on the first request, so inspect and list keep working against daemons
// older than the SDK.
func newClientWithHost(host string) (*Client, error) {
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("failed to create Docker client for host %q", host),
			err,
		)
	}

	return &Client{inner: c}, nil
}

// detectDockerHost determines the Docker socket path for the current platform.
//
// Unix sockets are checked for existence only; whether the daemon behind
// them answers is Ping's job. A stale socket file therefore yields a
// client whose Ping fails, which Connect reports like any other
// unreachable daemon.
func detectDockerHost() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return detectUnixSocket([]string{
			"/var/run/docker.sock",
		})

	case "darwin":
		// Docker Desktop links /var/run/docker.sock only when the
		// "allow the default socket" setting is on; otherwise the socket
		// lives under the user's home directory.
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return detectUnixSocket([]string{
				"/var/run/docker.sock",
			})
		}
		return detectUnixSocket([]string{
			"/var/run/docker.sock",
			homeDir + "/.docker/run/docker.sock",
		})

	case "windows":
		// Named pipes cannot be checked with os.Stat and the standard
		// library has no pipe dialer. The SDK dials the pipe itself, so
		// the default address is returned and Ping decides.
		return windowsPipe, nil

	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// detectUnixSocket returns the Docker host URI for the first socket path
// that exists on the filesystem. Paths are checked in order, so callers
// list the most common location first.
func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf(
		"Docker socket not found at any of: %v (is Docker running?)",
		paths,
	)
}

// Connect creates a Client and checks that the daemon answers. The
// client is closed again when Ping fails, so callers only need to Close
// a Client they received without error.
func Connect(ctx context.Context) (*Client, error) {
	c, err := NewClient()
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Ping verifies that the Docker daemon is reachable and responsive.
//
// It waits up to defaultPingTimeout even if ctx has a later deadline.
// A failed Ping is never fatal for a backup: the caller logs it and
// continues with the docker CLI.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if _, err := c.inner.Ping(pingCtx); err != nil {
		return model.WrapCLIError(
			model.ExitGeneralError,
			"Docker daemon is not responding (is Docker running?)",
			err,
		)
	}
	return nil
}

// Close releases all resources held by the Docker client.
// Close is safe to call multiple times.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}

// Inner returns the underlying Docker SDK client. APIInspector uses it
// for ContainerInspect and ContainerList.
func (c *Client) Inner() *client.Client {
	return c.inner
}
