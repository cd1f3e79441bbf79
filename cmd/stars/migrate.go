package main

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dsuszek/dev-task/migrations"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: a.withMigrate(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
				if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("up failed: %w", err)
				}
				a.logger.Info("migrations: up completed")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down [N]",
			Short: "Roll back N migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: a.withMigrate(func(cmd *cobra.Command, m *migrate.Migrate, args []string) error {
				steps := 1
				if len(args) > 0 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return fmt.Errorf("down: invalid steps argument %q", args[0])
					}
					steps = n
				}
				if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("down failed: %w", err)
				}
				a.logger.Info("migrations: down completed", zap.Int("steps", steps))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: a.withMigrate(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
				v, dirty, err := m.Version()
				if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
					return fmt.Errorf("version failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version: %d  dirty: %v\n", v, dirty)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force V",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: a.withMigrate(func(cmd *cobra.Command, m *migrate.Migrate, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("force: invalid version %q", args[0])
				}
				if err := m.Force(v); err != nil {
					return fmt.Errorf("force failed: %w", err)
				}
				a.logger.Info("migrations: forced", zap.Int("version", v))
				return nil
			}),
		},
		newDropCmd(a),
	)
	return cmd
}

func newDropCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop every table (development only)",
		Args:  cobra.NoArgs,
		RunE: a.withMigrate(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
			if !yes {
				fmt.Fprintln(cmd.ErrOrStderr(), "WARNING: drop will destroy all tables. Type 'yes' to confirm:")
				line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if strings.TrimSpace(line) != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}
			if err := m.Drop(); err != nil {
				return fmt.Errorf("drop failed: %w", err)
			}
			a.logger.Info("migrations: all tables dropped")
			return nil
		}),
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}

// withMigrate opens the database, builds a migrate instance over the embedded
// migrations and closes both when fn returns.
func (a *app) withMigrate(fn func(*cobra.Command, *migrate.Migrate, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		database, err := a.openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		m, err := migrations.New(database, a.logger)
		if err != nil {
			_ = database.Close()
			return err
		}
		// Closing m closes the pool too.
		defer m.Close()
		return fn(cmd, m, args)
	}
}
