package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/funcdeck/funcdeck/server"
)

// NewServeCmd creates the "serve" subcommand running the development backend.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the development backend HTTP server",
		RunE:  runServe,
	}

	cmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
	cmd.Flags().String("db", "", "Path to SQLite database (default: in-memory store)")
	cmd.Flags().String("cors-origin", "*", "Allowed CORS origin")
	cmd.Flags().Int64("max-body", 1<<20, "Max request body size in bytes")
	cmd.Flags().Duration("exec-delay", 150*time.Millisecond, "Artificial execution delay of the echo executor")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	listen := settings.Listen
	if flagListen, _ := cmd.Flags().GetString("listen"); flagListen != "" {
		listen = flagListen
	}
	dbPath := settings.DBPath
	if flagDB, _ := cmd.Flags().GetString("db"); flagDB != "" {
		dbPath = flagDB
	}
	corsOrigin, _ := cmd.Flags().GetString("cors-origin")
	maxBody, _ := cmd.Flags().GetInt64("max-body")
	execDelay, _ := cmd.Flags().GetDuration("exec-delay")
	logger := slog.Default()

	store, closeStore, err := resolveServeStore(dbPath)
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	defer closeStore()

	srv := server.NewServer(server.Config{
		Store:      store,
		Executor:   server.EchoExecutor{Delay: execDelay},
		CORSOrigin: corsOrigin,
		MaxBody:    maxBody,
		Logger:     logger,
	})

	janitor, err := server.NewHistoryJanitor(server.HistoryJanitorConfig{
		Store:     store,
		Schedule:  settings.PruneSchedule,
		Retention: settings.Retention,
		Logger:    logger,
	})
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	if err := janitor.Start(); err != nil {
		return exitError(exitRuntime, "starting history janitor: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = janitor.Stop(stopCtx)
	}()

	httpServer := &http.Server{
		Addr:         listen,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "funcdeck backend listening on %s\n", listen)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		srv.Drain()
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}

// resolveServeStore picks SQLite when a database path is configured and the
// in-memory store otherwise.
func resolveServeStore(dbPath string) (server.Store, func(), error) {
	if dbPath == "" {
		return server.NewMemoryStore(), func() {}, nil
	}
	store, err := server.NewSQLiteStore(server.SQLiteStoreConfig{DSN: dbPath})
	if err != nil {
		return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}
