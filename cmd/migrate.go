package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/feedback-cli/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long:  "Versioned PostgreSQL migrations via golang-migrate. SQLite databases only support up, which applies the embedded schema.",
}

// withMigrator runs fn against a golang-migrate migrator for the configured
// Postgres database.
func withMigrator(fn func(*store.Migrator) error) error {
	if err := cfg.Validate("store"); err != nil {
		return err
	}
	if cfg.Store.Driver != store.DriverPostgres {
		return eris.Errorf("migrate: %s databases only support \"migrate up\"", cfg.Store.Driver)
	}
	m, err := store.NewMigrator(cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck
	return fn(m)
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.Store.Driver == store.DriverSQLite {
			st, err := initStore(cmd.Context())
			if err != nil {
				return err
			}
			zap.L().Info("sqlite schema applied")
			return st.Close()
		}
		return withMigrator(func(m *store.Migrator) error {
			if err := m.Up(); err != nil {
				return err
			}
			zap.L().Info("all migrations applied successfully")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert all migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(func(m *store.Migrator) error { return m.Down() })
	},
}

var migrateStepsCmd = &cobra.Command{
	Use:   "steps <n>",
	Short: "Apply n migrations, or revert when n is negative",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return eris.Wrapf(err, "parse steps %q", args[0])
		}
		return withMigrator(func(m *store.Migrator) error { return m.Steps(n) })
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(func(m *store.Migrator) error {
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
			return err
		})
	},
}

var migrateForceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Set the schema version without running migrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return eris.Wrapf(err, "parse version %q", args[0])
		}
		return withMigrator(func(m *store.Migrator) error { return m.Force(v) })
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStepsCmd, migrateVersionCmd, migrateForceCmd)
	rootCmd.AddCommand(migrateCmd)
}
