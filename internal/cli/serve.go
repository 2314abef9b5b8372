package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/OlympusDAO/olympus-v3-sub011/internal/config"
	"github.com/OlympusDAO/olympus-v3-sub011/internal/escrow"
	"github.com/OlympusDAO/olympus-v3-sub011/internal/scheduler"
	"github.com/OlympusDAO/olympus-v3-sub011/internal/server"
	"github.com/OlympusDAO/olympus-v3-sub011/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Resolve database path
	dbPath := cfg.Database.Path
	if dbPath == "" {
		if dbPath, err = store.DefaultDBPath(); err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	engine := escrow.New(db, nil)

	sched := scheduler.New(db, engine)
	if err := sched.Register(cfg.Checkpoint.Cron); err != nil {
		return err
	}
	if cfg.Checkpoint.OnStart {
		sched.CheckpointAll()
	}
	sched.Start()
	defer sched.Stop()

	var auth server.Authorizer
	if len(cfg.Auth.Tokens) > 0 {
		auth = server.NewTokenAuthorizer(cfg.Auth.Tokens)
	} else {
		fmt.Fprintln(os.Stderr, "warning: no auth tokens configured, mutating API is open")
	}

	srv := server.New(db, engine, auth, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "vepower serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "  checkpoint cron: %s\n", cfg.Checkpoint.Cron)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
