// container.go implements the Engine API backend. It reads the same
// container details as the CLI backend, but through the Docker SDK instead
// of `docker inspect` and `docker ps`.
package docker

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/shinji-kodama/compose-backup/internal/compose"
	"github.com/shinji-kodama/compose-backup/internal/logging"
	"github.com/shinji-kodama/compose-backup/internal/model"
)

// engineAPI is the subset of the Docker SDK client used by APIInspector.
// *client.Client satisfies it.
type engineAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
}

// APIInspector implements Inspector and compose.ContainerLister with the
// Docker Engine API.
type APIInspector struct {
	api engineAPI
	log *logging.Logger
}

// NewAPIInspector creates an APIInspector on top of a connected Client.
func NewAPIInspector(cli *Client, log *logging.Logger) *APIInspector {
	return newAPIInspector(cli.Inner(), log)
}

func newAPIInspector(api engineAPI, log *logging.Logger) *APIInspector {
	if log == nil {
		log = logging.NewNop()
	}
	return &APIInspector{api: api, log: log}
}

// Env implements Inspector.
func (i *APIInspector) Env(ctx context.Context, name string) map[string]string {
	resp, err := i.api.ContainerInspect(ctx, name)
	if err != nil {
		i.log.Debug("inspect %s: %v", name, err)
		return map[string]string{}
	}
	if resp.Config == nil {
		return map[string]string{}
	}
	return ParseEnvList(resp.Config.Env)
}

// Mounts implements Inspector.
func (i *APIInspector) Mounts(ctx context.Context, name string) []model.Mount {
	resp, err := i.api.ContainerInspect(ctx, name)
	if err != nil {
		i.log.Debug("inspect %s: %v", name, err)
		return nil
	}

	mounts := make([]model.Mount, 0, len(resp.Mounts))
	for _, mp := range resp.Mounts {
		if mp.Destination == "" {
			continue
		}
		mounts = append(mounts, model.Mount{
			Type:        model.MountType(strings.ToLower(string(mp.Type))),
			Destination: mp.Destination,
			Source:      mp.Source,
			Name:        mp.Name,
		})
	}
	return mounts
}

// RunningContainers implements compose.ContainerLister. Only running
// containers carrying a com.docker.compose.service label are returned;
// the daemon applies the filter server-side.
func (i *APIInspector) RunningContainers(ctx context.Context) ([]model.ContainerInfo, error) {
	summaries, err := i.api.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", compose.LabelService)),
	})
	if err != nil {
		return nil, err
	}

	result := make([]model.ContainerInfo, 0, len(summaries))
	for _, s := range summaries {
		result = append(result, summaryToInfo(s))
	}
	return result, nil
}

// summaryToInfo converts a Docker API container summary to ContainerInfo.
// The API returns names with a leading "/" that `docker ps` does not show.
func summaryToInfo(s container.Summary) model.ContainerInfo {
	name := ""
	if len(s.Names) > 0 {
		name = strings.TrimPrefix(s.Names[0], "/")
	}
	return model.ContainerInfo{
		ContainerID:   s.ID,
		ContainerName: name,
		Labels:        s.Labels,
	}
}
