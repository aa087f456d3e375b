package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	jwttoken "labelcheck/internal/jwt_token"
	"labelcheck/internal/platform/config"
	"labelcheck/internal/platform/logger"
	"labelcheck/internal/platform/postgres"
	"labelcheck/pkg/domain"
)

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.Default()
	var cfgPath, envPath string

	// resolve applies .env, the config file and the environment beneath
	// whatever flags were given.
	resolve := func(cmd *cobra.Command) error {
		if err := config.LoadDotEnv(envPath); err != nil {
			return err
		}
		return config.Resolve(&cfg, cmd.Flags(), cfgPath)
	}

	root := &cobra.Command{
		Use:           "labelcheck",
		Short:         "Label compliance application state engine",
		Version:       version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := resolve(cmd); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "labelcheck.toml", "path to a TOML config file")
	root.PersistentFlags().StringVar(&envPath, "env-file", ".env", "path to a .env file")
	config.BindFlags(root.PersistentFlags(), &cfg)

	var actorID, role string
	var ttl time.Duration
	token := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed actor token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := resolve(cmd); err != nil {
				return err
			}
			parsed, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			signed, err := jwttoken.New(cfg.Auth.JWTSigningKey).Issue(domain.Actor{ID: actorID, Role: parsed}, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}
	token.Flags().StringVar(&actorID, "actor", "", "actor id placed in the subject claim")
	token.Flags().StringVar(&role, "role", string(domain.RoleOfficer), "actor role (officer, manager)")
	token.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = token.MarkFlagRequired("actor")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the bootstrap schema to the configured database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := resolve(cmd); err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("database-url is required")
			}
			db, err := postgres.Open(cmd.Context(), postgresConfig(cfg.Database))
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.Bootstrap(cmd.Context(), db); err != nil {
				return err
			}
			log := logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat)
			log.Info("schema applied", "database", config.RedactedURL(cfg.Database.URL))
			return nil
		},
	}

	root.AddCommand(token, migrate)
	return root
}

// serve runs the server until SIGINT or SIGTERM.
func serve(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat)
	log.Info("starting labelcheck",
		"version", version(),
		"addr", cfg.Server.Addr,
		"database", config.RedactedURL(cfg.Database.URL),
		"redis", config.RedactedURL(cfg.Redis.URL),
		"kafka_brokers", cfg.Kafka.Brokers,
		"auth_disabled", cfg.Auth.Disabled,
	)
	if cfg.Auth.Disabled {
		log.Warn("token authentication disabled; actor headers are trusted")
	}

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.run(ctx)
}
