// Command steward serves a built-in budget controller over HTTP so that
// simulations can call it with wastesim run --remote.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/talgya/wastewise/internal/config"
	"github.com/talgya/wastewise/internal/policy"
)

func main() {
	var (
		addr       string
		name       string
		global     string
		configPath string
		memoryPath string
		history    int
	)

	cmd := &cobra.Command{
		Use:          "steward",
		Short:        "Serve a budget controller over the remote decision contract",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging()

			cal, err := config.Load(configPath)
			if err != nil {
				return err
			}
			vec, err := policy.ParseVector(global)
			if err != nil {
				return err
			}
			ctrl, err := policy.New(name, vec, cal)
			if err != nil {
				return err
			}
			mem := policy.LoadMemory(memoryPath, history)

			srv := &http.Server{
				Addr:              addr,
				Handler:           policy.NewHandler(ctrl, name, mem),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serve(cmd.Context(), srv, mem)
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", envOrDefault("STEWARD_ADDR", ":8090"), "listen address")
	f.StringVarP(&name, "policy", "p", envOrDefault("STEWARD_POLICY", policy.TriageName), "built-in controller to serve")
	f.StringVar(&global, "global", "", "desire vector for the global and triage controllers")
	f.StringVarP(&configPath, "config", "c", "", "scenario YAML file for triage parameters")
	f.StringVar(&memoryPath, "memory", envOrDefault("STEWARD_MEMORY", "data/steward_memory.json"), "served-decision history file (empty keeps it in memory)")
	f.IntVar(&history, "history", envIntOrDefault("STEWARD_HISTORY", 200), "decisions kept in history")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context, srv *http.Server, mem *policy.Memory) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("steward listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}

	if err := mem.Save(); err != nil {
		slog.Error("saving decision history", "error", err)
	}
	fmt.Println("Steward stopped.")
	return nil
}

func setupLogging() {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
