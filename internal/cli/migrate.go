package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"symptom-interview/internal/config"
	"symptom-interview/internal/observability"
	"symptom-interview/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the assessment store schema",
	Long: `Apply or roll back the embedded schema migrations for the configured
STORE_BACKEND (postgres or sqlite). The memory backend has no schema.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := migrationTarget()
		if err != nil {
			return err
		}
		return storage.MigrateUp(t, observability.InitLogger(serviceName, "development"))
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		t, err := migrationTarget()
		if err != nil {
			return err
		}
		return storage.MigrateDown(t, steps, observability.InitLogger(serviceName, "development"))
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := migrationTarget()
		if err != nil {
			return err
		}
		v, dirty, err := storage.Version(t)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s schema version %d", t.Backend, v)
		if dirty {
			fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().IntP("steps", "n", 1, "number of migrations to roll back")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

func migrationTarget() (storage.Target, error) {
	cfg, err := config.Load()
	if err != nil {
		return storage.Target{}, err
	}
	if cfg.Store.Backend == storage.BackendMemory {
		return storage.Target{}, fmt.Errorf("STORE_BACKEND=memory has no schema to migrate")
	}
	return storeTarget(cfg), nil
}
