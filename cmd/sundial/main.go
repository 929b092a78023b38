// Command sundial runs the call orchestration gateway.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sundial-care/sundial/internal/dotenv"
	"github.com/sundial-care/sundial/internal/store"
	"github.com/sundial-care/sundial/pkg/core"
	"github.com/sundial-care/sundial/pkg/core/providers/gemini"
	"github.com/sundial-care/sundial/pkg/gateway/config"
	gatewayserver "github.com/sundial-care/sundial/pkg/gateway/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "sundial",
		Short:         "Companion call orchestration gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return dotenv.LoadFile(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading config")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			model, err := newModel(ctx, cfg)
			if err != nil {
				return fmt.Errorf("init analysis model: %w", err)
			}

			srv := gatewayserver.New(cfg, logger, st, model)
			return srv.Run(ctx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations (postgres only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.DBDriver != "postgres" {
				return fmt.Errorf("migrate applies to postgres; sqlite creates its schema on open")
			}
			return store.MigratePostgres(cmd.Context(), cfg.DBDSN)
		},
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.DBDSN)
	default:
		return store.NewSQLiteStore(cfg.DBDSN)
	}
}

func newModel(ctx context.Context, cfg config.Config) (core.AuxiliaryModel, error) {
	return gemini.New(ctx, cfg.GeminiAPIKey, gemini.WithModel(cfg.GeminiModel))
}
