package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/ilanhub/internal/cache"
	"github.com/odvcencio/ilanhub/internal/config"
	"github.com/odvcencio/ilanhub/internal/database"
	"github.com/odvcencio/ilanhub/internal/mail"
	"github.com/odvcencio/ilanhub/internal/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "ilanhub",
	Short:         "Classifieds marketplace server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd, migrateCmd, importEurotaxCmd, seedCategoriesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		db, err := openMigratedDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		slog.Info("migrations complete")
		return nil
	},
}

func openDB(cfg *config.Config) (database.DB, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return database.OpenSQLite(cfg.Database.DSN)
	case "postgres":
		return database.OpenPostgres(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

func openMigratedDB(ctx context.Context, cfg *config.Config) (database.DB, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Driver {
	case "local":
		return storage.NewLocalBackend(cfg.Storage.Path)
	case "s3":
		s3 := cfg.Storage.S3
		return storage.NewS3Backend(ctx, storage.S3Config{
			Endpoint:  s3.Endpoint,
			Bucket:    s3.Bucket,
			Region:    s3.Region,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			UseSSL:    s3.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}

// openCache uses Redis when an address is configured so that several API
// instances share category trees and OTP throttles.
func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if cfg.Cache.RedisAddr == "" {
		return cache.NewMemory(), nil
	}
	return cache.NewRedis(ctx, cache.RedisConfig{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
		Prefix:   "ilanhub:",
	})
}

func mailSender(cfg *config.Config) (mail.Sender, error) {
	switch cfg.Mail.Driver {
	case "", "log":
		return mail.LogSender{}, nil
	case "smtp":
		return mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUser,
			Password: cfg.Mail.SMTPPassword,
			From:     cfg.Mail.From,
		})
	default:
		return nil, fmt.Errorf("unsupported mail driver: %s", cfg.Mail.Driver)
	}
}
