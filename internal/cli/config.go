// Package cli - config.go merges flags, environment variables and an
// optional config file into the Settings of one invocation.
//
// Precedence follows viper: an explicitly set flag wins over an
// environment variable (COMPOSE_BACKUP_<KEY>), which wins over the config
// file, which wins over the flag default.
package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"

	"github.com/shinji-kodama/compose-backup/internal/logging"
	"github.com/shinji-kodama/compose-backup/internal/model"
)

// EnvPrefix is the prefix of environment variables read as settings.
const EnvPrefix = "COMPOSE_BACKUP"

// Setting keys. Config files use these names; environment variables use
// their upper-case form behind EnvPrefix.
const (
	keyCompose       = "compose"
	keyOut           = "out"
	keyService       = "service"
	keyDockerDir     = "docker_dir"
	keyDatabasesOnly = "databases_only"
	keyEngine        = "engine"
	keyJSON          = "json"
	keyVerbose       = "verbose"
	keyLogFormat     = "log_format"
	keyNoColor       = "no_color"
)

// flagKeys maps each bound flag to its setting key.
var flagKeys = map[string]string{
	"compose":        keyCompose,
	"out":            keyOut,
	"service":        keyService,
	"docker-dir":     keyDockerDir,
	"databases-only": keyDatabasesOnly,
	"engine":         keyEngine,
	"json":           keyJSON,
	"verbose":        keyVerbose,
	"log-format":     keyLogFormat,
	"no-color":       keyNoColor,
}

// Settings is the resolved configuration of one invocation.
type Settings struct {
	ComposeFile   string
	OutDir        string
	Services      []string
	DockerDir     string
	DatabasesOnly bool
	Engine        model.Engine
	JSON          bool
	Verbose       bool
	LogFormat     logging.Format
	NoColor       bool
}

// newViper creates a viper instance reading COMPOSE_BACKUP_* variables.
// A fresh instance per command keeps tests independent of each other.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// bindFlags binds every known flag of cmd (local and inherited) to v.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", flag, err)
		}
	}
	return nil
}

// readConfigFile merges path into v. YAML files are read as is; JSON and
// JSONC files have comments and trailing commas stripped first.
func readConfigFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		v.SetConfigType("yaml")
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
		v.SetConfigType("json")
	default:
		return fmt.Errorf("unsupported config file type %q (use .yaml, .yml, .json or .jsonc)", filepath.Ext(path))
	}

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadSettings resolves the Settings of cmd. Invalid values are reported
// as *model.CLIError with ExitGeneralError.
func loadSettings(cmd *cobra.Command, configFile string) (*Settings, error) {
	v := newViper()
	if err := bindFlags(v, cmd); err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "invalid flags", err)
	}
	if configFile != "" {
		if err := readConfigFile(v, configFile); err != nil {
			return nil, model.WrapCLIError(model.ExitGeneralError, "invalid config file", err)
		}
	}

	engine, err := model.ParseEngine(v.GetString(keyEngine))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "invalid --engine", err)
	}
	format, err := logging.ParseFormat(v.GetString(keyLogFormat))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "invalid --log-format", err)
	}

	return &Settings{
		ComposeFile:   v.GetString(keyCompose),
		OutDir:        v.GetString(keyOut),
		Services:      splitServices(v.GetStringSlice(keyService)),
		DockerDir:     v.GetString(keyDockerDir),
		DatabasesOnly: v.GetBool(keyDatabasesOnly),
		Engine:        engine,
		JSON:          v.GetBool(keyJSON),
		Verbose:       v.GetBool(keyVerbose),
		LogFormat:     format,
		NoColor:       v.GetBool(keyNoColor),
	}, nil
}

// splitServices accepts both repeated values and comma or space separated
// lists (as found in environment variables), dropping blanks and
// duplicates.
func splitServices(values []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, value := range values {
		for _, name := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
