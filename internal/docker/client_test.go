package docker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/compose-backup/internal/model"
)

func TestDetectUnixSocket(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "docker.sock")
	require.NoError(t, os.WriteFile(present, nil, 0o600))

	host, err := detectUnixSocket([]string{filepath.Join(dir, "missing.sock"), present})
	require.NoError(t, err)
	assert.Equal(t, "unix://"+present, host)

	_, err = detectUnixSocket([]string{filepath.Join(dir, "missing.sock")})
	assert.Error(t, err)
}

func TestNewClient_DockerHost(t *testing.T) {
	t.Setenv("DOCKER_HOST", "tcp://127.0.0.1:2375")

	c, err := NewClient()
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "tcp://127.0.0.1:2375", c.Inner().DaemonHost())
}

func TestNewClient_InvalidHost(t *testing.T) {
	t.Setenv("DOCKER_HOST", "not a url")

	_, err := NewClient()
	assert.Error(t, err)
}

func TestConnect_Unreachable(t *testing.T) {
	t.Setenv("DOCKER_HOST", "unix://"+filepath.Join(t.TempDir(), "docker.sock"))

	c, err := Connect(context.Background())
	assert.Nil(t, c)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Contains(t, cliErr.Message, "not responding")
}
