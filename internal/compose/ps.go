package compose

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/shinji-kodama/compose-backup/internal/model"
	"github.com/shinji-kodama/compose-backup/internal/runner"
)

// Process is one entry of `docker compose ps`.
type Process struct {
	// Service is the Compose service the container belongs to.
	Service string

	// Name is the container name.
	Name string
}

// Processes lists the containers Compose reports for composeFile.
//
// Any failure (docker missing, project not running, unexpected output)
// yields nil: the resolver then falls back to label matching.
func (i *Inspector) Processes(ctx context.Context, composeFile string) []Process {
	res := i.run.Run(ctx, "docker", buildComposeArgs(composeFile, "ps", "--format", "json")...)
	if !res.OK() {
		return nil
	}
	procs, err := ParseProcesses(res.Stdout)
	if err != nil {
		return nil
	}
	return procs
}

// ParseProcesses decodes `docker compose ps --format json` output.
//
// Compose releases before 2.21 print a single JSON array; later releases
// print one JSON object per line. Both forms are accepted. Field names are
// read in either capitalization ("Service"/"service", "Name"/"name").
func ParseProcesses(data []byte) ([]Process, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var entries []map[string]interface{}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, err
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		for {
			var entry map[string]interface{}
			err := dec.Decode(&entry)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
	}

	procs := make([]Process, 0, len(entries))
	for _, e := range entries {
		procs = append(procs, Process{
			Service: firstString(e, "Service", "service"),
			Name:    firstString(e, "Name", "name"),
		})
	}
	return procs, nil
}

// PSLister lists running containers with `docker ps`. It is the CLI
// implementation of ContainerLister.
type PSLister struct {
	run runner.Runner
}

// NewPSLister creates a PSLister that shells out through run.
func NewPSLister(run runner.Runner) *PSLister {
	return &PSLister{run: run}
}

// RunningContainers implements ContainerLister. A failing `docker ps` is
// reported as an error so the resolver can log why the fallback found
// nothing.
func (l *PSLister) RunningContainers(ctx context.Context) ([]model.ContainerInfo, error) {
	res := l.run.Run(ctx, "docker", "ps", "--format", "{{json .}}")
	if !res.OK() {
		return nil, errors.New("docker ps failed: " + string(bytes.TrimSpace(res.Stderr)))
	}
	return ParsePSLines(res.Stdout), nil
}

// ParsePSLines decodes `docker ps --format '{{json .}}'` output, one JSON
// object per line. Lines that are not valid JSON are skipped.
func ParsePSLines(data []byte) []model.ContainerInfo {
	var out []model.ContainerInfo
	scanner := bufio.NewScanner(bytes.NewReader(data))
	// Label strings of large Compose projects easily exceed the default
	// 64 KiB token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal(line, &obj); err != nil {
			continue
		}
		out = append(out, model.ContainerInfo{
			ContainerID:   firstString(obj, "ID", "Id"),
			ContainerName: firstString(obj, "Names", "Name"),
			Labels:        ParseLabelString(firstString(obj, "Labels")),
		})
	}
	return out
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
