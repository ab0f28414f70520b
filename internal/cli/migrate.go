package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"trivia-live-service/internal/config"
	"trivia-live-service/internal/infra/memory"
	pgmigrations "trivia-live-service/internal/infra/postgres/migrations"
	"trivia-live-service/internal/logging"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := logging.New("trivia-live", cfg.Log.Level, cfg.Log.Pretty)
			return runMigrations(cmd.Context(), cfg, logger, seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert the built-in sample question set")
	return cmd
}

func runMigrations(ctx context.Context, cfg config.Config, logger zerolog.Logger, seed bool) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if group.IsZero() {
		logger.Info().Msg("no new migrations")
	} else {
		logger.Info().Str("group", group.String()).Msg("migrations applied")
	}

	if seed {
		if err := pgmigrations.SeedQuestionSet(ctx, db, memory.SampleQuestionSet()); err != nil {
			return err
		}
		logger.Info().Str("question_set", memory.SampleSetID).Msg("sample question set seeded")
	}
	return nil
}
