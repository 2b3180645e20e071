package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/haoping-api/internal/platform/postgres"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

// migrationTableName is goose's version table.
const migrationTableName = "schema_migrations"

// slogGooseLogger forwards goose output to slog.
type slogGooseLogger struct {
	logger *slog.Logger
}

func (l *slogGooseLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

// Fatalf logs at error level and does not exit; the command returns the
// error instead.
func (l *slogGooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

var migrateCommands = []struct {
	use, short string
}{
	{"up", "Apply all pending migrations"},
	{"down", "Roll back the latest migration"},
	{"status", "Print the state of every migration"},
	{"version", "Print the current schema version"},
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	for _, sub := range migrateCommands {
		command := sub.use
		cmd.AddCommand(&cobra.Command{
			Use:   sub.use,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, args []string) error {
				return runMigrate(c, command)
			},
		})
	}
	return cmd
}

func runMigrate(cmd *cobra.Command, command string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log = log.With(slog.String("component", "migrations"), slog.String("command", command))

	ctx := cmd.Context()
	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("error closing database connection", slog.String("error", err.Error()))
		}
	}()

	start := time.Now()
	if err := migrate(ctx, db, command, log); err != nil {
		log.Error("migration failed",
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
		return err
	}
	log.Info("migration completed", slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}

// migrate runs one goose command against the embedded migrations.
func migrate(ctx context.Context, db *sql.DB, command string, log *slog.Logger) error {
	goose.SetLogger(&slogGooseLogger{logger: log})
	goose.SetBaseFS(postgres.Migrations)
	defer goose.SetBaseFS(nil)
	goose.SetTableName(migrationTableName)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	var err error
	switch command {
	case "up":
		err = goose.UpContext(ctx, db, postgres.MigrationsDir)
	case "down":
		err = goose.DownContext(ctx, db, postgres.MigrationsDir)
	case "status":
		err = goose.StatusContext(ctx, db, postgres.MigrationsDir)
	case "version":
		err = goose.VersionContext(ctx, db, postgres.MigrationsDir)
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
	if err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}
