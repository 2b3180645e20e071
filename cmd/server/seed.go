package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/haoping-api/internal/platform/postgres"
	"github.com/phrazzld/haoping-api/internal/service"
	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load reference data",
	}

	categories := &cobra.Command{
		Use:   "categories",
		Short: "Upsert the category tree from a JSON or YAML file",
		Args:  cobra.NoArgs,
		RunE:  runSeedCategories,
	}
	categories.Flags().String("file", "categories.yaml", "category seed file")
	cmd.AddCommand(categories)
	return cmd
}

func runSeedCategories(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("file")

	ctx := cmd.Context()
	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := service.NewCategoryService(db, postgres.NewPostgresCategoryStore(db, log), log)
	if err != nil {
		return err
	}

	seeded, err := svc.Seed(ctx, path)
	if err != nil {
		return fmt.Errorf("seed categories from %s: %w", path, err)
	}
	log.Info("categories seeded", slog.String("file", path), slog.Int("count", len(seeded)))
	return nil
}
