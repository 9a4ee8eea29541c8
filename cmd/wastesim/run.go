package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ncruces/go-strftime"
	"github.com/spf13/cobra"
	"gopkg.in/cheggaaa/pb.v1"
	"gopkg.in/yaml.v3"

	"github.com/talgya/wastewise/internal/api"
	"github.com/talgya/wastewise/internal/config"
	"github.com/talgya/wastewise/internal/engine"
	"github.com/talgya/wastewise/internal/persistence"
	"github.com/talgya/wastewise/internal/policy"
)

type runOptions struct {
	configPath string
	policy     string
	global     string
	remote     string
	softmax    bool
	seed       int64
	dbPath     string
	samples    string
	serve      string
	interval   time.Duration
}

func runCmd() *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation to its horizon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulation(cmd.Context(), o, cmd.Flags().Changed("seed"))
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "scenario YAML file (defaults when empty)")
	f.StringVarP(&o.policy, "policy", "p", policy.StatusQuo, "built-in controller")
	f.StringVar(&o.global, "global", "", "global desire vector for the global and triage controllers, e.g. 1,0,0")
	f.StringVar(&o.remote, "remote", "", "base URL of a remote controller (overrides --policy)")
	f.BoolVar(&o.softmax, "softmax", false, "pass the remote controller's output through softmax")
	f.Int64Var(&o.seed, "seed", 0, "override the scenario seed")
	f.StringVar(&o.dbPath, "db", envOrDefault("WASTEWISE_DB", "data/wastewise.db"), "SQLite run store (empty disables)")
	f.StringVar(&o.samples, "samples", "data/samples-%Y%m%d-%H%M%S.jsonl.zst", "per-tick sample log, strftime pattern (empty disables)")
	f.StringVar(&o.serve, "serve", "", "serve the HTTP API on this address, e.g. :8080")
	f.DurationVar(&o.interval, "interval", 0, "wall-clock pacing per tick (0 runs flat out)")
	return cmd
}

// buildController resolves the run's controller from flags.
func buildController(o *runOptions, cal *config.Config) (engine.Controller, string, error) {
	if o.remote != "" {
		var ctrl engine.Controller = policy.NewRemote(o.remote)
		if o.softmax {
			ctrl = policy.Normalized{Inner: ctrl}
		}
		return ctrl, "remote", nil
	}
	global, err := policy.ParseVector(o.global)
	if err != nil {
		return nil, "", err
	}
	ctrl, err := policy.New(o.policy, global, cal)
	if err != nil {
		return nil, "", err
	}
	return ctrl, o.policy, nil
}

func runSimulation(ctx context.Context, o *runOptions, seedSet bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cal, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if seedSet {
		cal.Simulation.Seed = o.seed
		cal.Recompute()
	}

	ctrl, name, err := buildController(o, cal)
	if err != nil {
		return err
	}
	if o.remote != "" {
		if err := waitForRemote(ctx, o.remote, 2*time.Minute); err != nil {
			return err
		}
	}
	sim, err := engine.New(cal, ctrl, name)
	if err != nil {
		return err
	}

	sim.OnQuarter = append(sim.OnQuarter, logQuarter)

	// ── Run store ─────────────────────────────────────────────────────
	var (
		db  *persistence.DB
		rec *persistence.Recorder
	)
	if o.dbPath != "" {
		db, err = persistence.Open(o.dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		sim.RunID = persistence.NewRunID()
		cfgYAML, err := yaml.Marshal(cal)
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		st := sim.Status()
		if err := db.CreateRun(persistence.Run{
			ID:         sim.RunID,
			Controller: name,
			Seed:       cal.Simulation.Seed,
			Zones:      len(cal.Zones),
			Households: st.Households,
			Config:     string(cfgYAML),
		}); err != nil {
			return err
		}
		if err := db.SaveMeta("last_run", sim.RunID); err != nil {
			slog.Warn("saving last run marker", "error", err)
		}
		rec = persistence.NewRecorder(db, sim.RunID, cal.Simulation.TicksPerQuarter)
		sim.OnSample = append(sim.OnSample, rec.Sample)
		sim.OnQuarter = append(sim.OnQuarter, rec.Quarter)
		sim.OnRejected = append(sim.OnRejected, rec.Rejected)
		slog.Info("run store opened", "path", o.dbPath, "run", sim.RunID)
	}

	// ── Sample log ────────────────────────────────────────────────────
	var samples *persistence.SampleLog
	if o.samples != "" {
		path := strftime.Format(o.samples, time.Now())
		samples, err = persistence.CreateSampleLog(path)
		if err != nil {
			return err
		}
		sim.OnSample = append(sim.OnSample, func(ts engine.TickSample) {
			if err := samples.Write(ts); err != nil {
				slog.Error("writing tick sample", "tick", ts.Tick, "error", err)
			}
		})
		slog.Info("sample log opened", "path", path)

		cfgPath := configSidecar(path)
		if err := cal.WriteYAML(cfgPath); err != nil {
			slog.Warn("writing effective config", "path", cfgPath, "error", err)
		}
	}

	eng := engine.NewEngine(o.interval)

	// ── HTTP API ──────────────────────────────────────────────────────
	if o.serve != "" {
		adminKey := os.Getenv("WASTEWISE_ADMIN_KEY")
		if adminKey == "" {
			slog.Warn("WASTEWISE_ADMIN_KEY not set, admin POST endpoints will be disabled")
		}
		srv := api.NewServer(sim, eng, adminKey).Start(o.serve)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Progress bar only when nobody is reading structured logs.
	if o.serve == "" && isTerminal(os.Stderr) {
		bar := pb.New(int(cal.Derived.HorizonTicks))
		bar.Output = os.Stderr
		bar.ShowSpeed = true
		bar.Start()
		sim.OnSample = append(sim.OnSample, func(engine.TickSample) { bar.Increment() })
		defer bar.Finish()
	}

	runErr := eng.Run(ctx, sim)

	if rec != nil {
		if err := rec.Flush(); err != nil {
			slog.Error("final sample flush failed", "error", err)
		}
	}
	if samples != nil {
		if err := samples.Close(); err != nil {
			slog.Error("closing sample log", "error", err)
		}
	}
	if db != nil {
		if err := db.FinishRun(sim.RunID, sim.Status()); err != nil {
			slog.Error("finishing run", "error", err)
		}
	}

	printSummary(os.Stdout, sim)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if o.serve != "" && runErr == nil {
		slog.Info("run complete, API still serving (Ctrl+C to stop)", "addr", o.serve)
		<-ctx.Done()
	}
	return nil
}

// waitForRemote polls the remote controller's health endpoint with
// exponential backoff until it answers or the deadline passes.
func waitForRemote(ctx context.Context, baseURL string, within time.Duration) error {
	backoff := 500 * time.Millisecond
	maxBackoff := 10 * time.Second
	deadline := time.Now().Add(within)
	client := &http.Client{Timeout: 5 * time.Second}

	for {
		resp, err := client.Get(baseURL + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("remote controller is ready", "url", baseURL)
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("remote controller %s not ready within %s", baseURL, within)
		}
		slog.Info("remote controller not ready, retrying", "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// configSidecar names the effective-config file written beside a sample log.
func configSidecar(samplePath string) string {
	return strings.TrimSuffix(samplePath, ".jsonl.zst") + ".yaml"
}

func logQuarter(reports []engine.ZoneReport, d engine.Decision) {
	slog.Info("quarter decided",
		"quarter", d.Quarter,
		"tick", d.Tick,
		"controller", d.Controller,
		"spent", humanize.Commaf(roundMoney(d.Spent)),
		"unallocated", humanize.Commaf(roundMoney(d.Unallocated)),
		"global_compliance", fmt.Sprintf("%.3f", d.Global),
		"reward", fmt.Sprintf("%.3f", d.Reward),
	)
	for _, r := range reports {
		slog.Debug("zone report",
			"zone", r.Zone,
			"funds", humanize.Commaf(roundMoney(r.TotalFunds)),
			"compliance", fmt.Sprintf("%.3f", r.Compliance),
			"enforcers", r.ActiveEnforcers,
		)
	}
}

func printSummary(w io.Writer, sim *engine.Simulation) {
	st := sim.Status()
	fmt.Fprintf(w, "\nRun %s: %s after %d ticks (%d quarters)\n",
		orDash(st.RunID), engine.SimDate(st.Tick, sim.Cal.Simulation.TicksPerQuarter), st.Tick, st.Quarter)
	fmt.Fprintf(w, "  global compliance  %.1f%%\n", st.Global*100)
	fmt.Fprintf(w, "  political capital  %.3f\n", st.Capital)
	fmt.Fprintf(w, "  budget balance     %s of %s\n",
		humanize.Commaf(roundMoney(st.Budget.Balance)), humanize.Commaf(roundMoney(st.Budget.Annual)))
	fmt.Fprintf(w, "  spent              IEC %s, enforcement %s, incentives %s\n",
		humanize.Commaf(roundMoney(st.Budget.IECCost)),
		humanize.Commaf(roundMoney(st.Budget.EnforcementCost)),
		humanize.Commaf(roundMoney(st.Budget.IncentiveCost)))
	fmt.Fprintf(w, "  fines logged       %s (%s fines), %s redemptions\n\n",
		humanize.Commaf(roundMoney(st.TotalFines)), humanize.Comma(int64(st.FineCount)), humanize.Comma(int64(st.Redemptions)))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ZONE\tHOUSEHOLDS\tCOMPLIANCE\tFUNDS\tIEC\tENF\tINCENTIVE\tENFORCERS")
	for _, z := range sim.ZoneSnapshots() {
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\t%s\t%.2f\t%.2f\t%s\t%d\n",
			z.Name, z.Households, z.Compliance*100, humanize.Commaf(roundMoney(z.Funds.Total())),
			z.IECIntensity, z.EnforcementIntensity, humanize.Commaf(roundMoney(z.IncentiveValue)), z.ActiveEnforcers)
	}
	tw.Flush()
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
