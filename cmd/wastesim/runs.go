package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/wastewise/internal/persistence"
)

func runsCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
		show   string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, or show one run's quarter reports",
		RunE: func(*cobra.Command, []string) error {
			db, err := persistence.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if show != "" {
				id, err := resolveRunID(db, show)
				if err != nil {
					return err
				}
				return showRun(os.Stdout, db, id)
			}
			runs, err := db.Runs(limit)
			if err != nil {
				return err
			}
			printRuns(os.Stdout, runs)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", envOrDefault("WASTEWISE_DB", "data/wastewise.db"), "SQLite run store")
	cmd.Flags().IntVar(&limit, "limit", 20, "most recent runs to list")
	cmd.Flags().StringVar(&show, "show", "", `run ID to print quarter by quarter ("last" for the latest wastesim run)`)
	return cmd
}

// resolveRunID maps "last" to the run recorded by the most recent wastesim run.
func resolveRunID(db *persistence.DB, id string) (string, error) {
	if id != "last" {
		return id, nil
	}
	last, err := db.GetMeta("last_run")
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no run recorded yet")
	}
	if err != nil {
		return "", fmt.Errorf("reading last run: %w", err)
	}
	return last, nil
}

func printRuns(w io.Writer, runs []persistence.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs stored")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCONTROLLER\tSEED\tZONES\tHOUSEHOLDS\tSTARTED\tTICKS\tCOMPLIANCE\tCAPITAL\tBALANCE")
	for _, r := range runs {
		ticks := "running"
		if r.FinishedAt != nil {
			ticks = humanize.Comma(int64(r.Ticks))
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%.1f%%\t%.3f\t%s\n",
			r.ID, r.Controller, r.Seed, r.Zones, r.Households, r.StartedAt, ticks,
			r.Global*100, r.Capital, humanize.Commaf(roundMoney(r.Balance)))
	}
	tw.Flush()
}

func showRun(w io.Writer, db *persistence.DB, runID string) error {
	rows, err := db.QuarterReports(runID)
	if err != nil {
		return err
	}
	decisions, err := db.Decisions(runID)
	if err != nil {
		return err
	}
	if len(rows) == 0 && len(decisions) == 0 {
		return fmt.Errorf("run %s: nothing stored", runID)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUARTER\tZONE\tFUNDS\tIEC\tENF\tINCENTIVE\tCOMPLIANCE\tENFORCERS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%.2f\t%s\t%.1f%%\t%d\n",
			r.Quarter, r.Zone, humanize.Commaf(roundMoney(r.TotalFunds)),
			r.IECIntensity, r.EnfIntensity, humanize.Commaf(roundMoney(r.IncentiveValue)),
			r.Compliance*100, r.ActiveEnforcers)
	}
	tw.Flush()

	fmt.Fprintln(w)
	for _, d := range decisions {
		status := "applied"
		if d.Error != "" {
			status = "rejected: " + d.Error
		}
		fmt.Fprintf(w, "Q%d tick %d %s desire=%v spent=%s %s\n",
			d.Quarter, d.Tick, d.Controller, d.Desire, humanize.Commaf(roundMoney(d.Spent)), status)
	}
	return nil
}
