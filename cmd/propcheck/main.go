package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"propcheck/internal/config"
	"propcheck/internal/db"
	"propcheck/internal/domain"
	"propcheck/internal/logger"
	"propcheck/internal/migrate"
	"propcheck/internal/pipeline"
	"propcheck/internal/pool"
	"propcheck/internal/repo"
	"propcheck/internal/server"
	"propcheck/internal/terminal"
	"propcheck/internal/webhook"
)

var rootCmd = &cobra.Command{
	Use:   "propcheck",
	Short: "Prop firm challenge evaluation service",
	Long: `PropCheck evaluates funded-trading challenge accounts against firm rules.
It reconstructs the equity curve from terminal deal history, checks minimum
trade duration, maximum drawdown and the profit target, and reports a
passed/failed verdict with per-rule violations. Results are persisted as jobs
and optionally delivered to a signed callback URL.`,
}

func main() {
	cobra.OnInitialize(func() { viper.AutomaticEnv() })
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel)

			conn, err := db.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}

			var presets map[string]domain.Rules
			if cfg.Rules.PresetsFile != "" {
				presets, err = config.LoadPresets(cfg.Rules.PresetsFile)
				if err != nil {
					return err
				}
				log.Info().Int("presets", len(presets)).Str("file", cfg.Rules.PresetsFile).Msg("rule presets loaded")
			}

			sessions := pool.New(cfg.Terminal.PoolSize, func(id int) domain.SessionProvider {
				return terminal.NewClient(cfg.Terminal.BridgeURL, cfg.Terminal.Timeout,
					log.With().Int("session", id).Logger())
			}, log)

			dispatcher := webhook.NewDispatcher(r, log)
			dispatcher.AllowPrivate = cfg.Webhook.AllowPrivate
			pipe := pipeline.New(pipeline.Options{
				Repo:       r,
				Pool:       sessions,
				Dispatcher: dispatcher,
				Log:        log,
				QueueSize:  cfg.Pipeline.QueueSize,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			pipe.Start(ctx, cfg.Pipeline.Workers)

			handler, err := server.New(server.Config{
				Repo:     r,
				Pipeline: pipe,
				Pool:     sessions,
				Presets:  presets,
				Auth: server.AuthConfig{
					JWTSecret:          cfg.Auth.JWTSecret,
					RateLimitPerMinute: cfg.Auth.RateLimitPerMinute,
					Logger:             log,
				},
				Log: log,
			})
			if err != nil {
				return err
			}

			srv := &http.Server{Addr: cfg.Addr(), Handler: handler}
			go func() {
				<-ctx.Done()
				log.Info().Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
				pipe.Stop()
			}()

			log.Info().Str("addr", cfg.Addr()).Int("workers", cfg.Pipeline.Workers).
				Int("pool", sessions.Capacity()).Msg("propcheck api listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	return cmd
}

func keysCmd() *cobra.Command {
	keys := &cobra.Command{Use: "keys", Short: "Manage tenant API keys"}
	keys.AddCommand(keysCreateCmd())
	keys.AddCommand(keysListCmd())
	keys.AddCommand(keysRevokeCmd())
	return keys
}

func keysCreateCmd() *cobra.Command {
	var name, company, email string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				plainKey, key, err := r.CreateAPIKey(ctx, name, company, email)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{
						"api_key":        plainKey,
						"webhook_secret": key.WebhookSecret,
						"owner_email":    key.OwnerEmail,
					})
				}
				fmt.Println("API key (store it now, it is not retrievable later):")
				fmt.Println("  " + plainKey)
				fmt.Println("Webhook secret:")
				fmt.Println("  " + key.WebhookSecret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	cmd.Flags().StringVar(&company, "company", "", "company")
	cmd.Flags().StringVar(&email, "email", "", "owner email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func keysListCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, email)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Company", "Owner", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.Company, k.OwnerEmail, k.CreatedAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "filter by owner email")
	return cmd
}

func keysRevokeCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.RevokeAPIKey(ctx, id); err != nil {
					return err
				}
				fmt.Printf("key %d revoked\n", id)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "key id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func jobsCmd() *cobra.Command {
	jobs := &cobra.Command{Use: "jobs", Short: "Inspect evaluation jobs"}
	jobs.AddCommand(jobsListCmd())
	jobs.AddCommand(jobsShowCmd())
	return jobs
}

func jobsListCmd() *cobra.Command {
	var email string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				jobs, err := r.ListJobsForOwner(ctx, email, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Job", "User", "Challenge", "Status", "Created", "Completed"})
				for _, j := range jobs {
					completed := ""
					if j.CompletedAt != nil {
						completed = j.CompletedAt.Format(time.RFC3339)
					}
					tw.AppendRow(table.Row{j.ID, j.UserID, j.ChallengeID, j.Status, j.CreatedAt.Format(time.RFC3339), completed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "owner email")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func jobsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <job_id>",
		Short: "Show one job with its stored result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				job, err := r.GetJob(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(job)
			})
		},
	}
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			conn, err := db.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the register endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("PROPCHECK_JWT_SECRET is not set")
			}
			now := time.Now()
			claims := jwt.RegisteredClaims{
				Subject:   subject,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			}
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Auth.JWTSecret))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (owner email)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// --- helpers ---

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	conn, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
