package main

import (
	"fmt"
	"os"

	"shopfront/internal/config"
	"shopfront/internal/database"
	"shopfront/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "storectl",
		Short:         "Operate the shopfront database",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("migrations-dir", "migrations", "directory holding goose migrations")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output")
	viper.BindPFlag("MIGRATIONS_DIR", cmd.PersistentFlags().Lookup("migrations-dir"))
	viper.BindPFlag("VERBOSE", cmd.PersistentFlags().Lookup("verbose"))

	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(usersCmd())
	cmd.AddCommand(ratingsCmd())

	return cmd
}

// env is what every subcommand needs: configuration, a logger and the database
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     database.Service
}

func openEnv() (*env, error) {
	// A missing .env is fine; the environment may carry everything
	_ = godotenv.Load()
	cfg := config.Load()

	level := zapcore.InfoLevel
	if viper.GetBool("VERBOSE") {
		level = zapcore.DebugLevel
	}
	log := logger.NewWithWriter(zapcore.Lock(os.Stderr), level)

	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &env{cfg: cfg, logger: log, db: db}, nil
}

func (e *env) Close() {
	if err := e.db.Close(); err != nil {
		e.logger.Error("Failed to close database connection", zap.Error(err))
	}
	e.logger.Sync()
}
