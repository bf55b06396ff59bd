package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/temario/internal/config"
	"github.com/jackzampolin/temario/internal/server"
)

var (
	serveHost     string
	servePort     string
	serveStore    string
	serveLogLevel string
	serveLogJSON  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the temario server",
	Long: `Start the temario HTTP server.

With the defra store this also starts the DefraDB container, and stops it
again when the server shuts down (via Ctrl+C or SIGTERM). Set defra.url in
the config to use a node temario does not manage.

The memory store keeps everything in process and loses it on exit.

The server provides:
  - /health       - Basic server health check
  - /ready        - Readiness check (includes store status)
  - /status       - Providers, key soft failures and job types
  - /api/...      - Area, topic and job endpoints
  - /swagger.json - OpenAPI document

Examples:
  temario serve                    # Start on default port 8080
  temario serve --port 3000        # Start on custom port
  temario serve --host 0.0.0.0     # Bind to all interfaces
  temario serve --store memory     # No DefraDB, nothing persisted`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger, err := newLogger(serveLogLevel, serveLogJSON)
		if err != nil {
			return err
		}

		h, err := getHome()
		if err != nil {
			return err
		}

		file := cfgFile
		if file == "" && h.ConfigExists() {
			file = h.ConfigPath()
		}
		mgr, err := config.NewManager(file)
		if err != nil {
			return err
		}
		if err := mgr.Get().Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		mgr.WatchConfig()
		if used := mgr.ConfigFileUsed(); used != "" {
			logger.Info("loaded config", "file", used)
		}

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			StoreBackend:  serveStore,
			ConfigManager: mgr,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func newLogger(level string, asJSON bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if asJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "Store backend: defra or memory (default from config)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	serveCmd.Flags().BoolVar(&serveLogJSON, "log-json", false, "Log as JSON")

	rootCmd.AddCommand(serveCmd)
}
