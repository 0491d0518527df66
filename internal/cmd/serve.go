package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"parking-spot-backend/internal/api"
	"parking-spot-backend/internal/housekeeping"
)

// NewServeCmd creates the serve command
func NewServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the confirmation timers and housekeeping",
		Long: `Starts the HTTP API. Confirmation timers of holds that were open when the
process last stopped are re-armed at their stored deadlines before the server
accepts requests.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configPath)
		},
	}
}

func serve(configPath string) error {
	logger := newLogger()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Println("configuration loaded successfully")

	if cfg.Server.JWTSecret == "" {
		return errors.New("server.jwt_secret must be configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	restored, err := a.engine.RestoreTimers(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore confirmation timers: %w", err)
	}
	logger.Printf("restored %d confirmation timers", restored)

	// Run the housekeeping loop in the background
	keeper := housekeeping.NewService(cfg.Allocation, a.engine)
	keeperCtx, stopKeeper := context.WithCancel(ctx)
	defer stopKeeper()
	housekeepingDone := make(chan struct{})
	go func() {
		keeper.Run(keeperCtx)
		close(housekeepingDone)
	}()

	router := api.NewRouter(cfg.Server, a.store, a.engine, a.webpush)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		logger.Println("Shutdown signal received, stopping services...")
	case err := <-serverErr:
		logger.Printf("HTTP server ListenAndServe: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server Shutdown: %v", err)
	}
	stopKeeper()
	<-housekeepingDone

	logger.Println("Server gracefully stopped")
	return nil
}
