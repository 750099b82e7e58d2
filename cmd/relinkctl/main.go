// Command relinkctl выполняет служебные операции ReLink: миграции, согласование, очистку постов и выдачу токенов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"relink/internal/app"
	"relink/internal/infra/config"
	"relink/internal/infra/db"
	httpinfra "relink/internal/infra/http"
	applog "relink/internal/infra/log"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relinkctl",
		Short:         "Служебные операции ReLink",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCmd(), reconcileCmd(), purgeCmd(), resetPostsCmd(), tokenCmd())
	return root
}

// withApp собирает сервисы по окружению и вызывает fn.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Миграции схемы Postgres",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Применить все миграции",
		RunE: func(*cobra.Command, []string) error {
			return withApp(func(_ context.Context, a *app.App) error {
				if a.Pool == nil {
					return errors.New("migrations require STORAGE_DRIVER=postgres")
				}
				return a.Migrate()
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Откатить миграции",
		RunE: func(*cobra.Command, []string) error {
			return withApp(func(_ context.Context, a *app.App) error {
				if a.Pool == nil {
					return errors.New("migrations require STORAGE_DRIVER=postgres")
				}
				return db.MigrateDown(a.Pool, steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "сколько миграций откатить (0 = все)")
	cmd.AddCommand(down)
	return cmd
}

func reconcileCmd() *cobra.Command {
	var pointersOnly bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Починить указатели текущих постов и списки связей",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				pointers, err := a.Reconcile.ReconcilePointers(ctx)
				if err != nil {
					return err
				}
				result := map[string]any{"pointers": pointers}
				if !pointersOnly {
					conns, err := a.Reconcile.ReconcileConnections(ctx)
					if err != nil {
						return err
					}
					result["connections"] = conns
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().BoolVar(&pointersOnly, "pointers-only", false, "не пересобирать списки связей")
	return cmd
}

func purgeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Удалить все посты и сбросить кэш ленты",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to purge without --yes")
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				posts, err := a.Posts.PurgeAllPosts(ctx)
				if err != nil {
					return err
				}
				keys, err := a.Invalidator.InvalidateAll(ctx)
				if err != nil {
					a.Log.Warn().Err(err).Msg("relinkctl: кэш ленты не очищен")
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{"posts": posts, "cache_keys": keys})
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "подтвердить удаление")
	return cmd
}

func resetPostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-posts <user-id>",
		Short: "Удалить все посты пользователя",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				n, err := a.Posts.ResetUserPosts(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"user_id": args[0], "posts": n})
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		email string
		name  string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Выпустить JWT для пользователя",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.Auth.JWTSecret == "" {
				return errors.New("AUTH_JWT_SECRET is not set")
			}
			token, err := httpinfra.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer,
				httpinfra.Identity{UserID: args[0], Email: email, Name: name}, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email в токене")
	cmd.Flags().StringVar(&name, "name", "", "имя в токене")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "срок жизни токена")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
