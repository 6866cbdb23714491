package docker

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shinji-kodama/compose-backup/internal/model"
	"github.com/shinji-kodama/compose-backup/internal/runner"
)

// Inspector reads the runtime details of a container that a backup needs.
// Implementations return empty results instead of errors.
type Inspector interface {
	// Env returns the container's environment variables.
	Env(ctx context.Context, container string) map[string]string

	// Mounts returns the container's mounts. Mounts without a destination
	// are dropped.
	Mounts(ctx context.Context, container string) []model.Mount
}

// CLIInspector implements Inspector with `docker inspect`.
type CLIInspector struct {
	run runner.Runner
}

// NewCLIInspector creates a CLIInspector that shells out through run.
func NewCLIInspector(run runner.Runner) *CLIInspector {
	return &CLIInspector{run: run}
}

// Env implements Inspector.
func (i *CLIInspector) Env(ctx context.Context, container string) map[string]string {
	res := i.run.Run(ctx, "docker", "inspect", "--format", "{{json .Config.Env}}", container)
	if !res.OK() {
		return map[string]string{}
	}
	var items []string
	if err := json.Unmarshal(res.Stdout, &items); err != nil {
		return map[string]string{}
	}
	return ParseEnvList(items)
}

// Mounts implements Inspector.
func (i *CLIInspector) Mounts(ctx context.Context, container string) []model.Mount {
	res := i.run.Run(ctx, "docker", "inspect", "--format", "{{json .Mounts}}", container)
	if !res.OK() {
		return nil
	}
	return ParseMountsJSON(res.Stdout)
}

// ParseEnvList converts Docker's "KEY=VALUE" environment list into a map.
// Entries without "=" are ignored; values may contain further "=" signs.
func ParseEnvList(items []string) map[string]string {
	env := make(map[string]string, len(items))
	for _, item := range items {
		k, v, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		env[k] = v
	}
	return env
}

// ParseMountsJSON decodes the `{{json .Mounts}}` inspect template output.
//
// Keys are accepted in Docker's capitalization ("Type", "Destination") as
// well as lower case, and "Target" is accepted as an alias of
// "Destination". Output that is not a JSON array yields nil.
func ParseMountsJSON(data []byte) []model.Mount {
	var raw []map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	mounts := make([]model.Mount, 0, len(raw))
	for _, m := range raw {
		mount := model.Mount{
			Type:        model.MountType(strings.ToLower(firstString(m, "Type", "type"))),
			Destination: firstString(m, "Destination", "Target", "destination", "target"),
			Source:      firstString(m, "Source", "source"),
			Name:        firstString(m, "Name", "name"),
		}
		if mount.Destination == "" {
			continue
		}
		mounts = append(mounts, mount)
	}
	return mounts
}

// firstString returns the first non-empty string value among keys.
func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
