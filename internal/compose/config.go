package compose

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/compose-backup/internal/model"
	"github.com/shinji-kodama/compose-backup/internal/runner"
)

// Inspector queries a Compose project through the docker CLI.
type Inspector struct {
	run runner.Runner
}

// NewInspector creates an Inspector that shells out through run.
func NewInspector(run runner.Runner) *Inspector {
	return &Inspector{run: run}
}

// buildComposeArgs constructs the common "compose -f <file>" prefix
// followed by the given subcommand arguments.
func buildComposeArgs(composeFile string, args ...string) []string {
	out := make([]string, 0, len(args)+3)
	out = append(out, "compose", "-f", composeFile)
	return append(out, args...)
}

// Config loads the normalized service configuration of composeFile.
//
// Services are returned in the order they appear in Compose's output.
// A failing command or output that cannot be decoded is an error; the
// caller treats it as fatal because nothing else can proceed without it.
func (i *Inspector) Config(ctx context.Context, composeFile string) ([]model.ServiceConfig, error) {
	res := i.run.Run(ctx, "docker", buildComposeArgs(composeFile, "config", "--format", "json")...)
	if !res.OK() {
		return nil, fmt.Errorf("docker compose config exited with code %d: %s",
			res.Code, strings.TrimSpace(string(res.Stderr)))
	}
	return ParseConfig(res.Stdout)
}

// ParseConfig decodes the JSON printed by `docker compose config --format json`.
//
// JSON objects have no key order once decoded into a Go map, but service
// order drives processing and summary order. JSON is a subset of YAML, so
// the document is decoded into a yaml.v3 node tree, which keeps the
// mapping keys in document order. The input is re-encoded first because
// JSON escapes such as \/ and surrogate pairs are not valid YAML.
func ParseConfig(data []byte) ([]model.ServiceConfig, error) {
	normalized, err := normalizeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse compose config: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse compose config: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("failed to parse compose config: empty document")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("failed to parse compose config: top level is not an object")
	}

	servicesNode := mappingValue(root, "services")
	if servicesNode == nil || servicesNode.Kind != yaml.MappingNode {
		// A project without services is valid; classification finds nothing.
		return nil, nil
	}

	services := make([]model.ServiceConfig, 0, len(servicesNode.Content)/2)
	for idx := 0; idx+1 < len(servicesNode.Content); idx += 2 {
		name := servicesNode.Content[idx].Value
		svc, err := decodeService(name, servicesNode.Content[idx+1])
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, nil
}

// normalizeJSON validates data as a single JSON value and re-encodes it
// token by token. Key order is kept; strings come out in encoding/json's
// escaping, which YAML's double-quoted scalars accept.
func normalizeJSON(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	type frame struct {
		object bool
		n      int
	}
	var (
		out   bytes.Buffer
		stack []frame
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if d, ok := tok.(json.Delim); ok && (d == '}' || d == ']') {
			out.WriteRune(rune(d))
			stack = stack[:len(stack)-1]
			continue
		}

		if len(stack) == 0 {
			if out.Len() > 0 {
				return nil, errors.New("unexpected data after top-level value")
			}
		} else {
			top := &stack[len(stack)-1]
			switch {
			case top.object && top.n%2 == 1:
				out.WriteByte(':')
			case top.n > 0:
				out.WriteByte(',')
			}
			top.n++
		}

		switch v := tok.(type) {
		case json.Delim:
			out.WriteRune(rune(v))
			stack = append(stack, frame{object: v == '{'})
		case string:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			out.Write(b)
		case json.Number:
			out.WriteString(v.String())
		case bool:
			out.WriteString(strconv.FormatBool(v))
		case nil:
			out.WriteString("null")
		}
	}
	if len(stack) > 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return out.Bytes(), nil
}

// rawService is the subset of a normalized service definition that
// classification needs.
type rawService struct {
	Image       string    `yaml:"image"`
	Environment yaml.Node `yaml:"environment"`
}

func decodeService(name string, node *yaml.Node) (model.ServiceConfig, error) {
	svc := model.ServiceConfig{Name: name}
	if node.Kind != yaml.MappingNode {
		// "services: {db: null}" is tolerated as an empty definition.
		return svc, nil
	}

	var raw rawService
	if err := node.Decode(&raw); err != nil {
		return svc, fmt.Errorf("failed to parse service %q: %w", name, err)
	}
	svc.Image = raw.Image

	env, err := decodeEnvironment(&raw.Environment)
	if err != nil {
		return svc, fmt.Errorf("failed to parse environment of service %q: %w", name, err)
	}
	svc.Environment = env
	return svc, nil
}

// decodeEnvironment normalizes both environment syntaxes Compose accepts:
//
//	environment: {MYSQL_USER: app}
//	environment: ["MYSQL_USER=app"]
//
// List entries without "=" are kept as keys with an empty value.
func decodeEnvironment(node *yaml.Node) (map[string]string, error) {
	switch node.Kind {
	case 0:
		return nil, nil

	case yaml.MappingNode:
		env := make(map[string]string, len(node.Content)/2)
		for idx := 0; idx+1 < len(node.Content); idx += 2 {
			value := node.Content[idx+1]
			if value.Tag == "!!null" {
				env[node.Content[idx].Value] = ""
				continue
			}
			env[node.Content[idx].Value] = value.Value
		}
		return env, nil

	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return nil, err
		}
		env := make(map[string]string, len(items))
		for _, item := range items {
			k, v, _ := strings.Cut(item, "=")
			env[k] = v
		}
		return env, nil

	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("unexpected environment value at line %d", node.Line)
}

// mappingValue returns the value node for key in a mapping node, or nil.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for idx := 0; idx+1 < len(m.Content); idx += 2 {
		if m.Content[idx].Value == key {
			return m.Content[idx+1]
		}
	}
	return nil
}
