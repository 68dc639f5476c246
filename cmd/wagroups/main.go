// wagroups serves the WhatsApp group management API: the chat agent, the
// tool endpoints it calls back into, the MCP bridge and the UAZAPI webhook.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wagroups/wagroups/internal/config"
	"github.com/wagroups/wagroups/internal/logging"
	"github.com/wagroups/wagroups/internal/store"
	"github.com/wagroups/wagroups/internal/wiring"
)

var configFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wagroups",
		Short:         "WhatsApp group management agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./config.yaml or ~/.wagroups/config.yaml)")
	root.AddCommand(serveCmd(), migrateCmd(), orgCmd(), apiKeyCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled message runner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, flush := logging.Setup(cfg.Log)
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := wiring.Build(ctx, cfg, nil, log)
			if err != nil {
				return err
			}
			defer app.Close()

			log.Info("wagroups starting",
				zap.String("addr", cfg.Server.Addr),
				zap.String("public_url", cfg.Server.PublicURL),
				zap.String("database", cfg.Database.Driver),
				zap.String("llm", cfg.LLM.Provider+"/"+cfg.LLM.Model),
				zap.Bool("scheduler", cfg.Scheduler.Enabled),
			)
			return app.Run(ctx)
		},
	}
}

// openStore loads configuration and opens the database, applying the schema.
func openStore(ctx context.Context) (*store.DB, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
}
