package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"parking-spot-backend/config"
	"parking-spot-backend/internal/model"
	"parking-spot-backend/internal/mw"
	"parking-spot-backend/internal/store"
)

// NewUserCmd creates the user command group
func NewUserCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage claimants",
	}
	cmd.AddCommand(newUserAddCmd(configPath))
	return cmd
}

func newUserAddCmd(configPath *string) *cobra.Command {
	var rating int

	cmd := &cobra.Command{
		Use:   "add <handle> <display name>",
		Short: "Register a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *configPath, func(ctx context.Context, _ *config.Config, s store.Store) error {
				u := &model.User{
					Handle:      args[0],
					DisplayName: args[1],
					Rating:      rating,
					Active:      true,
				}
				if err := s.CreateUser(ctx, u); err != nil {
					return fmt.Errorf("failed to add user %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added user %s (%s)\n", u.Handle, u.ID)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&rating, "rating", 0, "Starting rating, lower is served first")

	return cmd
}

// NewTokenCmd creates the token command
func NewTokenCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "token <handle>",
		Short: "Issue an API bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *configPath, func(ctx context.Context, cfg *config.Config, s store.Store) error {
				u, err := s.GetUserByHandle(ctx, args[0])
				if err != nil {
					return err
				}
				ttl := time.Duration(cfg.Server.TokenTTLHours) * time.Hour
				token, err := mw.IssueToken(cfg.Server.JWTSecret, u.ID, ttl, time.Now())
				if err != nil {
					return fmt.Errorf("failed to issue token: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
}

// withStore gives fn a store without starting timers or notification
// workers.
func withStore(ctx context.Context, configPath string, fn func(ctx context.Context, cfg *config.Config, s store.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	gormDB, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	return fn(ctx, cfg, store.NewGormStore(gormDB, cfg.Database.QueryTimeout))
}
