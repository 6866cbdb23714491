// Package cli implements the cobra-based CLI of compose-backup.
//
// The root command performs a backup. The services subcommand (services.go)
// shows what a backup would touch without writing anything. Settings are
// resolved in config.go.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/compose-backup/internal/backup"
	"github.com/shinji-kodama/compose-backup/internal/compose"
	"github.com/shinji-kodama/compose-backup/internal/docker"
	"github.com/shinji-kodama/compose-backup/internal/logging"
	"github.com/shinji-kodama/compose-backup/internal/model"
	"github.com/shinji-kodama/compose-backup/internal/runner"
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// globalFlags holds the flags shared by every command.
type globalFlags struct {
	configFile string
}

// rootFlags holds the flags of the backup itself.
type rootFlags struct {
	outDir        string
	dockerDir     string
	databasesOnly bool
}

// commandEnv carries what commands need from outside: the program runner.
// Tests replace it with a runner.Fake.
type commandEnv struct {
	// newRunner builds the Runner for a run. It receives the run's logger
	// so command traces show up with --verbose.
	newRunner func(log *logging.Logger) runner.Runner
}

func defaultEnv() *commandEnv {
	return &commandEnv{
		newRunner: func(log *logging.Logger) runner.Runner { return runner.NewExec(log) },
	}
}

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultEnv())
}

func newRootCommand(env *commandEnv) *cobra.Command {
	global := &globalFlags{}
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "compose-backup",
		Short: "Back up MySQL/MariaDB databases and volumes of a Docker Compose stack",
		Long: `compose-backup finds the MySQL and MariaDB services of a Docker Compose
file, locates their running containers and writes:

  - one SQL dump per user database (mysqldump via docker exec)
  - one tarball per volume or bind mount of those containers
  - a copy of the compose file and, optionally, a host directory

Databases and mounts shared between containers are backed up once.

Examples:
  compose-backup
  compose-backup -f stack/docker-compose.yml -o /srv/backups/$(date +%F)
  compose-backup -s db -s replica --databases-only
  compose-backup --docker-dir /opt/docker --json`,

		Args: cobra.NoArgs,

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// Execute formats them (text or JSON based on --json).
		SilenceErrors: true,

		// Version is displayed when --version flag is used.
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(cmd, env, global)
		},
	}

	// PersistentFlags are inherited by the services subcommand.
	pf := rootCmd.PersistentFlags()
	pf.StringP("compose", "f", backup.DefaultComposeFile, "Path to docker-compose.yml")
	pf.StringArrayP("service", "s", nil, "Limit backup to specific service(s) (repeatable)")
	pf.String("engine", model.EngineCLI.String(), "Container inspection backend: cli, api")
	pf.StringVar(&global.configFile, "config", "", "Config file (.yaml, .yml, .json, .jsonc)")
	pf.Bool("json", false, "Output in JSON format")
	pf.BoolP("verbose", "v", false, "Enable verbose output")
	pf.String("log-format", string(logging.FormatText), "Log format: text, json")
	pf.Bool("no-color", false, "Disable colored tags")

	rootCmd.Flags().StringVarP(&flags.outDir, "out", "o", backup.DefaultOutDir, "Output directory for backups")
	rootCmd.Flags().StringVarP(&flags.dockerDir, "docker-dir", "d", "", "Optional Docker directory to backup (e.g., /opt/docker)")
	rootCmd.Flags().BoolVar(&flags.databasesOnly, "databases-only", false,
		"Dump databases only, directly into the output directory")

	rootCmd.AddCommand(newServicesCommand(env, global))

	return rootCmd
}

// runBackup is the main orchestration function of the root command.
func runBackup(cmd *cobra.Command, env *commandEnv, global *globalFlags) error {
	settings, err := loadSettings(cmd, global.configFile)
	if err != nil {
		return err
	}
	syncJSONFlag(cmd, settings)

	// With --json stdout carries only the summary object; progress goes to
	// stderr.
	logOut := cmd.OutOrStdout()
	if settings.JSON {
		logOut = cmd.ErrOrStderr()
	}
	log := newLogger(settings, logOut)

	pipeline, cleanup := newPipeline(cmd.Context(), settings, env, log)
	defer cleanup()

	opts := backup.FullOptions(settings.ComposeFile, settings.OutDir)
	if settings.DatabasesOnly {
		opts = backup.DatabasesOnlyOptions(settings.ComposeFile, settings.OutDir)
	} else {
		opts.DockerDir = settings.DockerDir
	}
	opts.Services = settings.Services

	summary, err := pipeline.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}

	if settings.JSON {
		return summary.WriteJSON(cmd.OutOrStdout())
	}
	return summary.WriteText(cmd.OutOrStdout())
}

// syncJSONFlag stores the resolved --json setting (which may come from the
// environment or a config file) in the flag, where execute reads it when
// formatting errors.
func syncJSONFlag(cmd *cobra.Command, s *Settings) {
	if f := cmd.Root().PersistentFlags().Lookup("json"); f != nil {
		_ = f.Value.Set(strconv.FormatBool(s.JSON))
	}
}

// newLogger creates the logger of one run, tagged with a fresh run id.
func newLogger(s *Settings, out io.Writer) *logging.Logger {
	return logging.New(logging.Config{
		Output:  out,
		Format:  s.LogFormat,
		Verbose: s.Verbose,
		NoColor: s.NoColor,
		RunID:   uuid.NewString(),
	})
}

// newPipeline wires a backup.Pipeline for the selected engine.
//
// The API engine needs a reachable daemon socket. When it cannot connect,
// the run continues with the CLI engine after a warning. The returned
// cleanup function releases the API client, if any.
func newPipeline(ctx context.Context, s *Settings, env *commandEnv, log *logging.Logger) (*backup.Pipeline, func()) {
	run := env.newRunner(log)
	cfg := backup.Config{Runner: run, Log: log}
	cleanup := func() {}

	if s.Engine == model.EngineAPI {
		if cli, err := docker.Connect(ctx); err != nil {
			log.Warn("Docker Engine API unavailable (%v); using the docker CLI instead.", err)
		} else {
			api := docker.NewAPIInspector(cli, log)
			cfg.Inspector = api
			cfg.Lister = api
			cleanup = func() { _ = cli.Close() }
			log.Debug("using Docker Engine API")
		}
	}
	if cfg.Lister == nil {
		cfg.Lister = compose.NewPSLister(run)
	}
	return backup.New(cfg), cleanup
}

// Execute runs the root command and exits with the resulting code.
// This is the main entry point called from main.go.
func Execute(rootCmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, rootCmd, os.Stderr)
	stop()
	os.Exit(int(code))
}

// execute runs rootCmd and translates its error into an exit code.
// CLIError types carry their own exit codes; other errors map to 1.
func execute(ctx context.Context, rootCmd *cobra.Command, stderr io.Writer) model.ExitCode {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return model.ExitSuccess
	}

	jsonErrors := false
	if f := rootCmd.PersistentFlags().Lookup("json"); f != nil {
		jsonErrors = f.Value.String() == "true"
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(stderr, jsonErrors, cliErr.Message, cliErr.Err)
		return cliErr.Code
	}
	printError(stderr, jsonErrors, err.Error(), nil)
	return model.ExitGeneralError
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json flag.
func printError(w io.Writer, asJSON bool, message string, underlying error) {
	if asJSON {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "[ERROR] %s (%v)\n", message, underlying)
	} else {
		fmt.Fprintf(w, "[ERROR] %s\n", message)
	}
}
