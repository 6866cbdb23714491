package compose

import (
	"context"

	"github.com/shinji-kodama/compose-backup/internal/logging"
	"github.com/shinji-kodama/compose-backup/internal/model"
)

// ContainerLister lists the running containers on the Docker host together
// with their labels. It backs the label-based fallback of the Resolver.
type ContainerLister interface {
	RunningContainers(ctx context.Context) ([]model.ContainerInfo, error)
}

// Resolver maps Compose services to the containers that currently run them.
type Resolver struct {
	inspector *Inspector
	lister    ContainerLister
	log       *logging.Logger
}

// NewResolver creates a Resolver. lister may be nil to disable the
// label-based fallback.
func NewResolver(inspector *Inspector, lister ContainerLister, log *logging.Logger) *Resolver {
	if log == nil {
		log = logging.NewNop()
	}
	return &Resolver{inspector: inspector, lister: lister, log: log}
}

// Resolve maps each of services to its running containers.
//
// The primary source is `docker compose ps`, which may report several
// containers per service (replicas). Services it does not cover are then
// matched against every running container's com.docker.compose.service
// label. That fallback assigns at most one container per service: the
// first container whose label matches wins and the service is resolved.
//
// Every requested service is present in the result; an empty list means
// no container was found, which the caller reports as a warning.
func (r *Resolver) Resolve(ctx context.Context, composeFile string, services []string) *model.ContainerMapping {
	mapping := model.NewContainerMapping(services)

	for _, p := range r.inspector.Processes(ctx, composeFile) {
		mapping.Add(p.Service, p.Name)
	}

	remaining := mapping.Unresolved()
	if len(remaining) == 0 || r.lister == nil {
		return mapping
	}

	containers, err := r.lister.RunningContainers(ctx)
	if err != nil {
		r.log.Debug("label fallback unavailable: %v", err)
		return mapping
	}
	assignByLabel(mapping, remaining, containers)
	return mapping
}

// assignByLabel walks containers in listing order and gives each one to the
// first still-unresolved service whose name equals the container's
// com.docker.compose.service label.
func assignByLabel(mapping *model.ContainerMapping, remaining []string, containers []model.ContainerInfo) {
	open := make([]string, len(remaining))
	copy(open, remaining)

	for _, c := range containers {
		if len(open) == 0 {
			return
		}
		if c.ContainerName == "" {
			continue
		}
		svcLabel, ok := c.Labels[LabelService]
		if !ok {
			continue
		}
		for idx, svc := range open {
			if svcLabel == svc {
				mapping.Add(svc, c.ContainerName)
				open = append(open[:idx], open[idx+1:]...)
				break
			}
		}
	}
}
