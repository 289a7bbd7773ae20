package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/ilanhub/internal/catalog"
	"github.com/odvcencio/ilanhub/internal/config"
	"github.com/odvcencio/ilanhub/internal/eurotax"
	"github.com/odvcencio/ilanhub/internal/service"
)

var importEurotaxCmd = &cobra.Command{
	Use:   "import-eurotax <file>",
	Short: "Load a Eurotax CSV (optionally gzipped) into the vehicle tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		index, err := eurotax.LoadFile(args[0])
		if err != nil {
			return err
		}
		db, err := openMigratedDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := eurotax.ImportHierarchy(cmd.Context(), db, index)
		if err != nil {
			return err
		}
		slog.Info("eurotax import complete",
			"records", index.Len(),
			"brands", stats.Brands,
			"models", stats.Models,
			"versions", stats.Versions,
		)
		return nil
	},
}

var seedCategoriesCmd = &cobra.Command{
	Use:   "seed-categories <yaml>",
	Short: "Create or update the category tree from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		seeds, err := service.ParseCategorySeed(f)
		if err != nil {
			return err
		}

		db, err := openMigratedDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		// Seeding through the configured cache drops trees other instances
		// still hold.
		kv, err := openCache(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer kv.Close()

		categories := service.NewCategoryService(db, catalog.NewResolver(db, kv, cfg.Cache.CategoryCacheTTL()))
		stats, err := categories.Seed(cmd.Context(), seeds)
		if err != nil {
			return err
		}
		slog.Info("categories seeded", "created", stats.Created, "updated", stats.Updated)
		return nil
	},
}
