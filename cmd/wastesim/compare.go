package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/cheggaaa/pb.v1"

	"github.com/talgya/wastewise/internal/config"
	"github.com/talgya/wastewise/internal/engine"
	"github.com/talgya/wastewise/internal/policy"
)

type compareOptions struct {
	configPath string
	policies   string
	global     string
	quarters   int
	seed       int64
}

// comparison is one controller's trajectory of end-of-quarter global compliance.
type comparison struct {
	Policy   string
	Quarters []float64
	Capital  float64
	Balance  float64
	Mean     float64
	Std      float64
}

func compareCmd() *cobra.Command {
	o := &compareOptions{}
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run several controllers on the same seed and compare compliance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := comparePolicies(cmd.Context(), o)
			if err != nil {
				return err
			}
			printComparison(os.Stdout, results)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "scenario YAML file (defaults when empty)")
	f.StringVar(&o.policies, "policies", strings.Join([]string{policy.StatusQuo, policy.PureEnforcement, policy.PureIncentives, policy.TriageName}, ","), "comma-separated controllers")
	f.StringVar(&o.global, "global", "", "desire vector for the global and triage controllers")
	f.IntVar(&o.quarters, "quarters", 12, "quarters to simulate")
	f.Int64Var(&o.seed, "seed", 42, "seed shared by every run")
	return cmd
}

func comparePolicies(ctx context.Context, o *compareOptions) ([]comparison, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	global, err := policy.ParseVector(o.global)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, n := range strings.Split(o.policies, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no policies given")
	}

	var bar *pb.ProgressBar
	results := make([]comparison, 0, len(names))
	for _, name := range names {
		cal, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cal.Simulation.Seed = o.seed
		if o.quarters > 0 {
			cal.Simulation.Quarters = o.quarters
		}
		cal.Recompute()

		ctrl, err := policy.New(name, global, cal)
		if err != nil {
			return nil, err
		}
		sim, err := engine.New(cal, ctrl, name)
		if err != nil {
			return nil, err
		}

		if bar == nil && isTerminal(os.Stderr) {
			bar = pb.New(len(names) * cal.Derived.HorizonTicks)
			bar.Output = os.Stderr
			bar.Start()
			defer bar.Finish()
		}

		tpq := uint64(cal.Simulation.TicksPerQuarter)
		res := comparison{Policy: name}
		sim.OnSample = append(sim.OnSample, func(ts engine.TickSample) {
			if (ts.Tick+1)%tpq == 0 {
				res.Quarters = append(res.Quarters, ts.Global)
			}
			if bar != nil {
				bar.Increment()
			}
		})

		if err := sim.Run(ctx); err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		st := sim.Status()
		res.Capital = st.Capital
		res.Balance = st.Budget.Balance
		res.Mean, res.Std = summarize(res.Quarters)
		results = append(results, res)
		slog.Info("policy evaluated", "policy", name, "mean_compliance", fmt.Sprintf("%.3f", res.Mean))
	}
	return results, nil
}

// summarize returns mean and sample standard deviation, with a zero
// deviation for fewer than two quarters.
func summarize(xs []float64) (mean, std float64) {
	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}

// printComparison writes one row per quarter and one column per policy,
// followed by mean and standard deviation rows.
func printComparison(w io.Writer, results []comparison) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "QUARTER\t")
	rows := 0
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t", r.Policy)
		if len(r.Quarters) > rows {
			rows = len(r.Quarters)
		}
	}
	fmt.Fprintln(tw)

	for q := 0; q < rows; q++ {
		fmt.Fprintf(tw, "%d\t", q+1)
		for _, r := range results {
			if q < len(r.Quarters) {
				fmt.Fprintf(tw, "%.3f\t", r.Quarters[q])
			} else {
				fmt.Fprint(tw, "-\t")
			}
		}
		fmt.Fprintln(tw)
	}

	line := func(label string, v func(comparison) string) {
		fmt.Fprintf(tw, "%s\t", label)
		for _, r := range results {
			fmt.Fprintf(tw, "%s\t", v(r))
		}
		fmt.Fprintln(tw)
	}
	line("mean", func(r comparison) string { return fmt.Sprintf("%.3f", r.Mean) })
	line("std", func(r comparison) string { return fmt.Sprintf("%.3f", r.Std) })
	line("capital", func(r comparison) string { return fmt.Sprintf("%.3f", r.Capital) })
	line("balance", func(r comparison) string { return fmt.Sprintf("%.0f", r.Balance) })
	tw.Flush()
}
