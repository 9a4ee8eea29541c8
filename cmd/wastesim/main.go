// Command wastesim runs the waste-segregation compliance simulation:
// single runs with persistence and a live API, policy comparisons,
// config validation and run listings.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/talgya/wastewise/internal/config"
)

func main() {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "wastesim",
		Short:         "Agent-based simulation of household waste-segregation compliance",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(logLevel)
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOrDefault("WASTEWISE_LOG_LEVEL", "info"), "debug, info, warn or error")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(compareCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(runsCmd())

	if err := rootCmd.Execute(); err != nil {
		slog.Error("wastesim failed", "error", err)
		os.Exit(1)
	}
}

func validateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a scenario file against the config schema",
		RunE: func(*cobra.Command, []string) error {
			if err := config.ValidateFile(path); err != nil {
				return err
			}
			cal, err := config.Load(path)
			if err != nil {
				return err
			}
			households := 0
			for _, z := range cal.Zones {
				households += z.Households
			}
			fmt.Printf("%s: ok (%d zones, %d households, %d quarters)\n",
				path, len(cal.Zones), households, cal.Simulation.Quarters)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "scenario YAML file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// setupLogging writes text logs to terminals and JSON logs everywhere else.
func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if isTerminal(os.Stderr) {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
