package cli

import (
	"context"
	"fmt"
	"log"
	"strings"

	"daily-quiz-bot/internal/config"
	"daily-quiz-bot/internal/infra/memory"
	pgstore "daily-quiz-bot/internal/infra/postgres"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
)

// NewImportQuestionsCmd loads catalog JSON files into Postgres.
func NewImportQuestionsCmd(configPath *string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "import-questions",
		Short: "Import <language>_<category>.json question files into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return importQuestions(cmd.Context(), *configPath, dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "catalog directory (defaults to catalog.dir)")
	return cmd
}

func importQuestions(ctx context.Context, configPath, dir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.Catalog.Dir
	}
	if dir == "" {
		return fmt.Errorf("catalog dir not configured")
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	catalog, err := memory.LoadCatalogDir(dir)
	if err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	loader := pgstore.NewQuestionLoader(pool)
	total := 0
	for _, key := range catalog.Keys() {
		lang, cat, _ := strings.Cut(key, "/")
		n, err := loader.UpsertQuestions(ctx, lang, cat, catalog.Pool(key))
		if err != nil {
			return fmt.Errorf("import %s: %w", key, err)
		}
		log.Printf("imported %d questions into %s", n, key)
		total += n
	}
	log.Printf("import complete: %d questions", total)
	return nil
}
