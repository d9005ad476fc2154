// Command forkwatch runs the ForkWatch server and its maintenance commands.
//
//	forkwatch [serve]          start the HTTP server (default)
//	forkwatch migrate up       apply pending schema migrations
//	forkwatch migrate status   list migrations and whether they are applied
//	forkwatch simulate-fork    post a synthetic fork to a running dev server
//
// Configuration comes from the environment, seeded from --env-file.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/forkwatch/internal/config"
	"github.com/sakif/forkwatch/internal/repository/sqlstore"
	"github.com/sakif/forkwatch/internal/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var envFile string

	loadConfig := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return nil, nil, err
		}
		return cfg, newLogger(cfg), nil
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			srv, err := server.New(cmd.Context(), cfg, logger, server.WithVersion(version))
			if err != nil {
				return err
			}
			// Start blocks until SIGINT/SIGTERM and closes the store on return.
			return srv.Start()
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrateUpCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := sqlstore.Open(cmd.Context(), sqlstore.Options{
				DSN:            cfg.DatabaseURL,
				ConnectTimeout: cfg.StoreConnectTimeout,
				OpTimeout:      cfg.StoreOpTimeout,
				SkipMigrations: true,
			})
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("migrations applied", slog.Int("count", n), slog.String("store", string(db.Dialect())))
			return nil
		},
	}

	migrateStatusCmd := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := sqlstore.Open(cmd.Context(), sqlstore.Options{
				DSN:            cfg.DatabaseURL,
				ConnectTimeout: cfg.StoreConnectTimeout,
				OpTimeout:      cfg.StoreOpTimeout,
				SkipMigrations: true,
			})
			if err != nil {
				return err
			}
			defer db.Close()

			states, err := db.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range states {
				mark := "pending"
				if s.Applied {
					mark = "applied"
				}
				fmt.Fprintf(out, "%05d  %-8s  %s\n", s.Version, mark, s.Path)
			}
			return nil
		},
	}

	var simURL, simRepo string
	simulateCmd := &cobra.Command{
		Use:   "simulate-fork",
		Short: "Send a synthetic fork event to a running development server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if simRepo == "" {
				return fmt.Errorf("--repo is required (owner/name)")
			}
			body, _ := json.Marshal(map[string]string{"repoUrl": simRepo})
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodPost,
				strings.TrimRight(simURL, "/")+"/api/test/simulate-fork", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			b, _ := io.ReadAll(resp.Body)
			if resp.StatusCode/100 != 2 {
				return fmt.Errorf("simulate-fork failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
			}
			var v any
			if json.Unmarshal(b, &v) == nil {
				b, _ = json.MarshalIndent(v, "", "  ")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	simulateCmd.Flags().StringVar(&simURL, "url", "http://localhost:8080", "Base URL of the server")
	simulateCmd.Flags().StringVar(&simRepo, "repo", "", "Tracked repository, owner/name")

	root := &cobra.Command{
		Use:           "forkwatch",
		Short:         "Email notifications for new forks of your GitHub repositories",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCmd.RunE,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
	root.AddCommand(serveCmd, migrateCmd, simulateCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "forkwatch:", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger: JSON in production, text otherwise,
// unless LOG_FORMAT says differently.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h).With(slog.String("service", "forkwatch"))
}
