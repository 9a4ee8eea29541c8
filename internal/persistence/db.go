// Package persistence stores runs, quarterly reports, decisions and tick
// samples in SQLite, and writes compressed per-tick sample logs.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/wastewise/internal/engine"
)

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Run is one row of the runs table.
type Run struct {
	ID         string  `db:"id" json:"id"`
	Controller string  `db:"controller" json:"controller"`
	Seed       int64   `db:"seed" json:"seed"`
	Zones      int     `db:"zones" json:"zones"`
	Households int     `db:"households" json:"households"`
	StartedAt  string  `db:"started_at" json:"started_at"`
	FinishedAt *string `db:"finished_at" json:"finished_at,omitempty"`
	Ticks      uint64  `db:"ticks" json:"ticks"`
	Global     float64 `db:"global_compliance" json:"global_compliance"`
	Capital    float64 `db:"political_capital" json:"political_capital"`
	Balance    float64 `db:"balance" json:"balance"`
	Config     string  `db:"config_yaml" json:"-"`
}

// QuarterRow is one zone's report at one decision point.
type QuarterRow struct {
	RunID           string  `db:"run_id" json:"run_id"`
	Quarter         int     `db:"quarter" json:"quarter"`
	Tick            uint64  `db:"tick" json:"tick"`
	ZoneID          uint64  `db:"zone_id" json:"zone_id"`
	Zone            string  `db:"zone" json:"zone"`
	TotalFunds      float64 `db:"total_funds" json:"total_funds"`
	LGUFunds        float64 `db:"lgu_funds" json:"lgu_funds"`
	LocalFunds      float64 `db:"local_funds" json:"local_funds"`
	IECFunds        float64 `db:"iec_funds" json:"iec_funds"`
	EnfFunds        float64 `db:"enf_funds" json:"enf_funds"`
	IncFunds        float64 `db:"inc_funds" json:"inc_funds"`
	IECIntensity    float64 `db:"iec_intensity" json:"iec_intensity"`
	EnfIntensity    float64 `db:"enf_intensity" json:"enf_intensity"`
	IncentiveValue  float64 `db:"incentive_value" json:"incentive_value"`
	AvgAttitude     float64 `db:"avg_attitude" json:"avg_attitude"`
	AvgNorm         float64 `db:"avg_norm" json:"avg_norm"`
	AvgControl      float64 `db:"avg_control" json:"avg_control"`
	AvgUtility      float64 `db:"avg_utility" json:"avg_utility"`
	Compliance      float64 `db:"compliance" json:"compliance"`
	ActiveEnforcers int     `db:"active_enforcers" json:"active_enforcers"`
	Capital         float64 `db:"political_capital" json:"political_capital"`
}

// Open opens or creates a SQLite database at the given path, creating its
// directory if needed.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		controller TEXT NOT NULL,
		seed INTEGER NOT NULL,
		zones INTEGER NOT NULL,
		households INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		ticks INTEGER NOT NULL DEFAULT 0,
		global_compliance REAL NOT NULL DEFAULT 0,
		political_capital REAL NOT NULL DEFAULT 0,
		balance REAL NOT NULL DEFAULT 0,
		config_yaml TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS quarter_reports (
		run_id TEXT NOT NULL,
		quarter INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		zone_id INTEGER NOT NULL,
		zone TEXT NOT NULL,
		total_funds REAL NOT NULL,
		lgu_funds REAL NOT NULL,
		local_funds REAL NOT NULL,
		iec_funds REAL NOT NULL,
		enf_funds REAL NOT NULL,
		inc_funds REAL NOT NULL,
		iec_intensity REAL NOT NULL,
		enf_intensity REAL NOT NULL,
		incentive_value REAL NOT NULL,
		avg_attitude REAL NOT NULL,
		avg_norm REAL NOT NULL,
		avg_control REAL NOT NULL,
		avg_utility REAL NOT NULL,
		compliance REAL NOT NULL,
		active_enforcers INTEGER NOT NULL,
		political_capital REAL NOT NULL,
		PRIMARY KEY (run_id, quarter, zone_id)
	);

	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		quarter INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		controller TEXT NOT NULL,
		desire_json TEXT NOT NULL,
		scale REAL NOT NULL,
		spent REAL NOT NULL,
		unallocated REAL NOT NULL,
		global_compliance REAL NOT NULL,
		reward REAL NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS tick_samples (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		quarter INTEGER NOT NULL,
		global_compliance REAL NOT NULL,
		zones_json TEXT NOT NULL,
		political_capital REAL NOT NULL,
		balance REAL NOT NULL,
		total_fines REAL NOT NULL,
		enforcers INTEGER NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_run ON decisions(run_id, quarter);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// CreateRun inserts a run row at the start of a simulation.
func (db *DB) CreateRun(r Run) error {
	if r.StartedAt == "" {
		r.StartedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := db.conn.NamedExec(`INSERT INTO runs
		(id, controller, seed, zones, households, started_at, config_yaml)
		VALUES (:id, :controller, :seed, :zones, :households, :started_at, :config_yaml)`, r)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// FinishRun records a run's final status.
func (db *DB) FinishRun(id string, st engine.Status) error {
	_, err := db.conn.Exec(`UPDATE runs SET finished_at = ?, ticks = ?,
		global_compliance = ?, political_capital = ?, balance = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), st.Tick, st.Global, st.Capital, st.Budget.Balance, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return nil
}

// SaveQuarter writes one decision point: the zone reports and the decision.
func (db *DB) SaveQuarter(runID string, reports []engine.ZoneReport, d engine.Decision) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO quarter_reports
		(run_id, quarter, tick, zone_id, zone, total_funds, lgu_funds, local_funds,
		 iec_funds, enf_funds, inc_funds, iec_intensity, enf_intensity, incentive_value,
		 avg_attitude, avg_norm, avg_control, avg_utility, compliance, active_enforcers, political_capital)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range reports {
		_, err := stmt.Exec(
			runID, r.Quarter, r.Tick, r.ZoneID, r.Zone,
			r.TotalFunds, r.LGUFunds, r.LocalFunds,
			r.Funds.IEC, r.Funds.Enforcement, r.Funds.Incentive,
			r.IECIntensity, r.EnforcementIntensity, r.IncentiveValue,
			r.AvgAttitude, r.AvgNorm, r.AvgControl, r.AvgUtility,
			r.Compliance, r.ActiveEnforcers, r.Capital,
		)
		if err != nil {
			return fmt.Errorf("insert report q%d zone %d: %w", r.Quarter, r.ZoneID, err)
		}
	}

	if err := insertDecision(tx, runID, d); err != nil {
		return err
	}

	return tx.Commit()
}

// SaveDecision stores a decision on its own, as for one the allocator rejected.
func (db *DB) SaveDecision(runID string, d engine.Decision) error {
	return insertDecision(db.conn, runID, d)
}

func insertDecision(ex sqlx.Execer, runID string, d engine.Decision) error {
	desire, _ := json.Marshal(d.Desire)
	_, err := ex.Exec(`INSERT INTO decisions
		(run_id, quarter, tick, controller, desire_json, scale, spent, unallocated, global_compliance, reward, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, d.Quarter, d.Tick, d.Controller, string(desire),
		d.Scale, d.Spent, d.Unallocated, d.Global, d.Reward, d.Error,
	)
	if err != nil {
		return fmt.Errorf("insert decision q%d: %w", d.Quarter, err)
	}
	return nil
}

// SaveSamples appends tick samples.
func (db *DB) SaveSamples(runID string, samples []engine.TickSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, s := range samples {
		zones, _ := json.Marshal(s.Zones)
		_, err := tx.Exec(`INSERT OR REPLACE INTO tick_samples
			(run_id, tick, quarter, global_compliance, zones_json, political_capital, balance, total_fines, enforcers)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, s.Tick, s.Quarter, s.Global, string(zones), s.Capital, s.Balance, s.TotalFines, s.Enforcers,
		)
		if err != nil {
			return fmt.Errorf("insert sample %d: %w", s.Tick, err)
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs, `SELECT id, controller, seed, zones, households, started_at,
		finished_at, ticks, global_compliance, political_capital, balance, config_yaml
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	return runs, err
}

// QuarterReports returns a run's reports ordered by quarter then zone.
func (db *DB) QuarterReports(runID string) ([]QuarterRow, error) {
	var rows []QuarterRow
	err := db.conn.Select(&rows, `SELECT * FROM quarter_reports
		WHERE run_id = ? ORDER BY quarter, zone_id`, runID)
	return rows, err
}

// Decisions returns a run's decisions in order.
func (db *DB) Decisions(runID string) ([]engine.Decision, error) {
	var rows []struct {
		Quarter     int     `db:"quarter"`
		Tick        uint64  `db:"tick"`
		Controller  string  `db:"controller"`
		Desire      string  `db:"desire_json"`
		Scale       float64 `db:"scale"`
		Spent       float64 `db:"spent"`
		Unallocated float64 `db:"unallocated"`
		Global      float64 `db:"global_compliance"`
		Reward      float64 `db:"reward"`
		Error       string  `db:"error"`
	}
	err := db.conn.Select(&rows, `SELECT quarter, tick, controller, desire_json, scale, spent,
		unallocated, global_compliance, reward, error FROM decisions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	out := make([]engine.Decision, len(rows))
	for i, r := range rows {
		out[i] = engine.Decision{
			Quarter: r.Quarter, Tick: r.Tick, Controller: r.Controller,
			Scale: r.Scale, Spent: r.Spent, Unallocated: r.Unallocated,
			Global: r.Global, Reward: r.Reward, Error: r.Error,
		}
		if err := json.Unmarshal([]byte(r.Desire), &out[i].Desire); err != nil {
			return nil, fmt.Errorf("decode desire for q%d: %w", r.Quarter, err)
		}
	}
	return out, nil
}

// SampleCount returns how many tick samples a run has stored.
func (db *DB) SampleCount(runID string) (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM tick_samples WHERE run_id = ?", runID)
	return n, err
}

// Recorder buffers a simulation's output and flushes it to the database.
type Recorder struct {
	db      *DB
	runID   string
	batch   int
	pending []engine.TickSample
}

// NewRecorder attaches to a run. Samples are written every batch ticks.
func NewRecorder(db *DB, runID string, batch int) *Recorder {
	if batch <= 0 {
		batch = 90
	}
	return &Recorder{db: db, runID: runID, batch: batch}
}

// Sample buffers one tick sample, flushing when the batch is full.
func (r *Recorder) Sample(s engine.TickSample) {
	r.pending = append(r.pending, s)
	if len(r.pending) >= r.batch {
		if err := r.Flush(); err != nil {
			slog.Error("saving tick samples", "run", r.runID, "error", err)
		}
	}
}

// Quarter stores a decision point immediately.
func (r *Recorder) Quarter(reports []engine.ZoneReport, d engine.Decision) {
	if err := r.db.SaveQuarter(r.runID, reports, d); err != nil {
		slog.Error("saving quarter report", "run", r.runID, "quarter", d.Quarter, "error", err)
	}
}

// Rejected stores a decision the simulation refused to apply.
func (r *Recorder) Rejected(d engine.Decision) {
	if err := r.db.SaveDecision(r.runID, d); err != nil {
		slog.Error("saving rejected decision", "run", r.runID, "quarter", d.Quarter, "error", err)
	}
}

// Flush writes any buffered samples.
func (r *Recorder) Flush() error {
	if err := r.db.SaveSamples(r.runID, r.pending); err != nil {
		return err
	}
	r.pending = r.pending[:0]
	return nil
}
