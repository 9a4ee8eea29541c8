package persistence

import (
	"path/filepath"
	"testing"

	"github.com/talgya/wastewise/internal/engine"
	"github.com/talgya/wastewise/internal/social"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "wastewise.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if err := db.SaveMeta("k", "v"); err != nil {
		t.Fatalf("SaveMeta: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	id := NewRunID()
	if err := db.CreateRun(Run{ID: id, Controller: "status_quo", Seed: 42, Zones: 2, Households: 130}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	st := engine.Status{Tick: 360, Global: 0.61, Capital: 0.9, Budget: engine.Budget{Balance: 1234}}
	if err := db.FinishRun(id, st); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := db.Runs(10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != id || runs[0].Ticks != 360 || runs[0].FinishedAt == nil {
		t.Fatalf("runs: %+v", runs)
	}
	if runs[0].Balance != 1234 || runs[0].Global != 0.61 {
		t.Fatalf("final status not stored: %+v", runs[0])
	}
}

func TestSaveQuarterAndDecisions(t *testing.T) {
	db := openTestDB(t)
	id := NewRunID()
	reports := []engine.ZoneReport{
		{Quarter: 1, Tick: 0, ZoneID: 1, Zone: "North", TotalFunds: 1000, Funds: social.Funds{IEC: 200, Enforcement: 500, Incentive: 300}, Compliance: 0.4, ActiveEnforcers: 2},
		{Quarter: 1, Tick: 0, ZoneID: 2, Zone: "South", TotalFunds: 500, Compliance: 0.8},
	}
	d := engine.Decision{Quarter: 1, Tick: 0, Controller: "triage", Desire: []float64{1, 0, 0}, Scale: 375000, Spent: 375000, Reward: 2.1}
	if err := db.SaveQuarter(id, reports, d); err != nil {
		t.Fatalf("SaveQuarter: %v", err)
	}

	rows, err := db.QuarterReports(id)
	if err != nil {
		t.Fatalf("QuarterReports: %v", err)
	}
	if len(rows) != 2 || rows[0].Zone != "North" || rows[0].EnfFunds != 500 || rows[0].ActiveEnforcers != 2 {
		t.Fatalf("rows: %+v", rows)
	}

	ds, err := db.Decisions(id)
	if err != nil {
		t.Fatalf("Decisions: %v", err)
	}
	if len(ds) != 1 || ds[0].Controller != "triage" || len(ds[0].Desire) != 3 || ds[0].Desire[0] != 1 {
		t.Fatalf("decisions: %+v", ds)
	}
}

func TestRecorderFlushesInBatches(t *testing.T) {
	db := openTestDB(t)
	id := NewRunID()
	rec := NewRecorder(db, id, 4)
	for i := 0; i < 10; i++ {
		rec.Sample(engine.TickSample{Tick: uint64(i), Zones: []float64{0.5}})
	}
	if n, _ := db.SampleCount(id); n != 8 {
		t.Fatalf("after batches: %d samples stored, want 8", n)
	}
	if err := rec.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n, _ := db.SampleCount(id); n != 10 {
		t.Fatalf("after flush: %d samples stored, want 10", n)
	}
}

func TestRecorderStoresRejectedDecision(t *testing.T) {
	db := openTestDB(t)
	id := NewRunID()
	rec := NewRecorder(db, id, 90)
	rec.Rejected(engine.Decision{Quarter: 3, Tick: 180, Controller: "remote", Desire: []float64{1, 1}, Error: "decision vector has wrong length"})

	ds, err := db.Decisions(id)
	if err != nil {
		t.Fatalf("Decisions: %v", err)
	}
	if len(ds) != 1 || ds[0].Error != "decision vector has wrong length" || ds[0].Quarter != 3 {
		t.Fatalf("decisions: %+v", ds)
	}
	if rows, _ := db.QuarterReports(id); len(rows) != 0 {
		t.Fatalf("rejected decision wrote %d reports", len(rows))
	}
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveMeta("last_run", "abc"); err != nil {
		t.Fatalf("SaveMeta: %v", err)
	}
	if err := db.SaveMeta("last_run", "def"); err != nil {
		t.Fatalf("SaveMeta: %v", err)
	}
	if v, err := db.GetMeta("last_run"); err != nil || v != "def" {
		t.Fatalf("GetMeta: %q %v", v, err)
	}
	if _, err := db.GetMeta("missing"); err == nil {
		t.Fatalf("missing key should error")
	}
}

func TestSampleLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples", "run.jsonl.zst")
	l, err := CreateSampleLog(path)
	if err != nil {
		t.Fatalf("CreateSampleLog: %v", err)
	}
	for i := 0; i < 250; i++ {
		if err := l.Write(engine.TickSample{Tick: uint64(i), Global: float64(i) / 250, Zones: []float64{0.1, 0.2}}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if l.Count() != 250 {
		t.Fatalf("count %d", l.Count())
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Write(engine.TickSample{}); err == nil {
		t.Fatalf("write after close should fail")
	}

	got, err := ReadSampleLog(path)
	if err != nil {
		t.Fatalf("ReadSampleLog: %v", err)
	}
	if len(got) != 250 || got[249].Tick != 249 || got[100].Global != 0.4 {
		t.Fatalf("read back %d samples, last %+v", len(got), got[len(got)-1])
	}
}
