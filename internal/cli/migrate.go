package cli

import (
	"context"
	"fmt"

	"fils-quiz-bot/internal/config"
	"fils-quiz-bot/internal/content"
	pgstore "fils-quiz-bot/internal/infra/postgres"
	pgmigrations "fils-quiz-bot/internal/infra/postgres/migrations"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewMigrateCmd applies database migrations and optionally publishes the quiz content.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var (
		down bool
		seed bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath, "")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runMigrations(cmd.Context(), cfg, logger, down, seed)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the last migration group")
	cmd.Flags().BoolVar(&seed, "seed", false, "publish the configured quiz content to the quizzes table")
	return cmd
}

func runMigrations(ctx context.Context, cfg config.Config, logger *zap.Logger, down, seed bool) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	db := pgstore.OpenDB(cfg.Postgres.URL)
	defer db.Close()

	if down {
		rolled, err := pgmigrations.Down(ctx, db)
		if err != nil {
			return err
		}
		logger.Info("migrations rolled back", zap.Strings("migrations", rolled))
		return nil
	}

	applied, err := pgmigrations.Up(ctx, db)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", zap.Strings("migrations", applied))

	if !seed {
		return nil
	}
	quiz, err := content.NewFileLoader(cfg.Quiz.ContentPath).LoadQuiz(ctx, cfg.Quiz.ID)
	if err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres pool: %w", err)
	}
	defer pool.Close()
	if err := pgstore.NewQuizLoader(pool).PublishQuiz(ctx, quiz); err != nil {
		return err
	}
	logger.Info("quiz published", zap.String("quiz_id", quiz.ID))
	return nil
}
