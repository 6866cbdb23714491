// Package cli - services.go implements the "compose-backup services" command.
//
// The services command is a dry run: it loads the compose file, selects the
// MySQL/MariaDB services (honoring --service) and resolves their running
// containers exactly like a backup would, then prints the result as a text
// table or JSON. Nothing is written and no database is contacted.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/compose-backup/internal/backup"
)

// newServicesCommand creates the "services" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func newServicesCommand(env *commandEnv, global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List the MySQL/MariaDB services and containers a backup would use",
		Long: `List the MySQL/MariaDB services of the compose file and the running
containers each one resolves to, without writing any backup.

Examples:
  compose-backup services
  compose-backup services -f stack/docker-compose.yml -s db
  compose-backup services --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runServices(cmd, env, global)
		},
	}
}

// runServices resolves the backup plan and prints it.
func runServices(cmd *cobra.Command, env *commandEnv, global *globalFlags) error {
	settings, err := loadSettings(cmd, global.configFile)
	if err != nil {
		return err
	}
	syncJSONFlag(cmd, settings)

	// Logs never mix with the table or JSON on stdout.
	log := newLogger(settings, cmd.ErrOrStderr())
	pipeline, cleanup := newPipeline(cmd.Context(), settings, env, log)
	defer cleanup()

	plan, err := pipeline.Plan(cmd.Context(), settings.ComposeFile, settings.Services)
	if err != nil {
		return err
	}

	if settings.JSON {
		return printServicesJSON(cmd.OutOrStdout(), plan)
	}
	printServicesText(cmd.OutOrStdout(), plan)
	return nil
}

// serviceJSON is the JSON output structure for a single service.
type serviceJSON struct {
	Name       string   `json:"name"`
	Containers []string `json:"containers"`
}

// printServicesJSON outputs the plan as {"services":[...]}.
func printServicesJSON(w io.Writer, plan *backup.Plan) error {
	type resultJSON struct {
		Services []serviceJSON `json:"services"`
	}

	result := resultJSON{Services: make([]serviceJSON, 0, len(plan.Services))}
	for _, svc := range plan.Services {
		containers := plan.Containers.Containers(svc)
		if containers == nil {
			// Empty slice so JSON shows [] instead of null.
			containers = []string{}
		}
		result.Services = append(result.Services, serviceJSON{Name: svc, Containers: containers})
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal services: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printServicesText outputs the plan as a table:
//
//	SERVICE              CONTAINERS
//	db                   shop-db-1,shop-db-2
//	replica              -
func printServicesText(w io.Writer, plan *backup.Plan) {
	fmt.Fprintf(w, "%-20s %s\n", "SERVICE", "CONTAINERS")
	for _, svc := range plan.Services {
		fmt.Fprintf(w, "%-20s %s\n", svc, FormatContainerList(plan.Containers.Containers(svc)))
	}
}

// FormatContainerList joins container names with commas. Returns "-" when
// the service has no running container.
func FormatContainerList(containers []string) string {
	if len(containers) == 0 {
		return "-"
	}
	return strings.Join(containers, ",")
}
