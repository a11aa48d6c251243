package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/TrevorS/dipdeck"
)

// ErrNotFound is returned when no run matches an id.
var ErrNotFound = errors.New("run not found")

// Run is a stored DipDECK result.
type Run struct {
	ID              string
	DataPath        string
	NSamples        int
	InitialClusters int
	NClusters       int
	Epochs          int
	// Config is an opaque snapshot of the settings the run used.
	Config          json.RawMessage
	Labels          []int
	Representatives []int
	Centers         [][]float64
	DipMatrix       [][]float64
	Merges          []dipdeck.MergeEvent
	// Purity against ground-truth labels, nil when none were available.
	Purity    *float64
	CreatedAt string
}

// RunSummary is a row of the run listing.
type RunSummary struct {
	ID              string
	DataPath        string
	NSamples        int
	InitialClusters int
	NClusters       int
	Epochs          int
	Purity          *float64
	CreatedAt       string
}

// NewRun converts a result into a Run ready to be saved.
func NewRun(res *dipdeck.Result, dataPath string) *Run {
	return &Run{
		DataPath:        dataPath,
		NSamples:        len(res.Labels),
		InitialClusters: res.Initial.NClusters,
		NClusters:       res.NClusters,
		Epochs:          res.Epochs,
		Labels:          res.Labels,
		Representatives: res.Representatives,
		Centers:         rows(res.Centers),
		DipMatrix:       rows(res.DipMatrix),
		Merges:          res.Merges,
	}
}

func rows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

// SaveRun stores a run and its merge history, assigning a new id when
// run.ID is empty. It returns the id.
func (db *DB) SaveRun(run *Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	labels, err := json.Marshal(run.Labels)
	if err != nil {
		return "", err
	}
	reps, err := json.Marshal(run.Representatives)
	if err != nil {
		return "", err
	}
	centers, err := json.Marshal(run.Centers)
	if err != nil {
		return "", err
	}
	dips, err := json.Marshal(run.DipMatrix)
	if err != nil {
		return "", err
	}
	var cfg *string
	if len(run.Config) > 0 {
		s := string(run.Config)
		cfg = &s
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO runs (id, data_path, n_samples, initial_clusters, n_clusters, epochs, config,
			labels, representatives, centers, dip_matrix, purity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DataPath, run.NSamples, run.InitialClusters, run.NClusters, run.Epochs, cfg,
		string(labels), string(reps), string(centers), string(dips), run.Purity,
	); err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	for seq, m := range run.Merges {
		if _, err := tx.Exec(
			`INSERT INTO merges (run_id, seq, kind, epoch, cluster_a, cluster_b, p_value, size, n_clusters)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, seq, string(m.Kind), m.Epoch, m.A, m.B, m.PValue, m.Size, m.NClusters,
		); err != nil {
			return "", fmt.Errorf("inserting merge %d: %w", seq, err)
		}
	}

	return run.ID, tx.Commit()
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (db *DB) ListRuns(limit int) ([]RunSummary, error) {
	query := `SELECT id, data_path, n_samples, initial_clusters, n_clusters, epochs, purity, created_at
		FROM runs ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rs, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var runs []RunSummary
	for rs.Next() {
		var (
			s        RunSummary
			dataPath sql.NullString
			purity   sql.NullFloat64
		)
		if err := rs.Scan(&s.ID, &dataPath, &s.NSamples, &s.InitialClusters, &s.NClusters, &s.Epochs, &purity, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.DataPath = dataPath.String
		if purity.Valid {
			s.Purity = &purity.Float64
		}
		runs = append(runs, s)
	}
	return runs, rs.Err()
}

// GetRun returns the run whose id equals or uniquely starts with id.
func (db *DB) GetRun(id string) (*Run, error) {
	rs, err := db.conn.Query(
		`SELECT id, data_path, n_samples, initial_clusters, n_clusters, epochs, config,
			labels, representatives, centers, dip_matrix, purity, created_at
		FROM runs WHERE id = ? OR id LIKE ? || '%' LIMIT 2`, id, id,
	)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var found []*Run
	for rs.Next() {
		var (
			r                              Run
			dataPath, cfg                  sql.NullString
			labels, reps, centers, dipsRaw string
			purity                         sql.NullFloat64
		)
		if err := rs.Scan(&r.ID, &dataPath, &r.NSamples, &r.InitialClusters, &r.NClusters, &r.Epochs, &cfg,
			&labels, &reps, &centers, &dipsRaw, &purity, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.DataPath = dataPath.String
		if cfg.Valid {
			r.Config = json.RawMessage(cfg.String)
		}
		if purity.Valid {
			r.Purity = &purity.Float64
		}
		for _, f := range []struct {
			raw  string
			into any
		}{{labels, &r.Labels}, {reps, &r.Representatives}, {centers, &r.Centers}, {dipsRaw, &r.DipMatrix}} {
			if err := json.Unmarshal([]byte(f.raw), f.into); err != nil {
				return nil, fmt.Errorf("decoding run %s: %w", r.ID, err)
			}
		}
		if r.ID == id {
			found = []*Run{&r}
			break
		}
		found = append(found, &r)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
	rs.Close()

	run := found[0]
	run.Merges, err = db.merges(run.ID)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (db *DB) merges(runID string) ([]dipdeck.MergeEvent, error) {
	rs, err := db.conn.Query(
		`SELECT kind, epoch, cluster_a, cluster_b, p_value, size, n_clusters
		FROM merges WHERE run_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var merges []dipdeck.MergeEvent
	for rs.Next() {
		var (
			m    dipdeck.MergeEvent
			kind string
		)
		if err := rs.Scan(&kind, &m.Epoch, &m.A, &m.B, &m.PValue, &m.Size, &m.NClusters); err != nil {
			return nil, err
		}
		m.Kind = dipdeck.MergeKind(kind)
		merges = append(merges, m)
	}
	return merges, rs.Err()
}

// DeleteRun removes a run and its merge history.
func (db *DB) DeleteRun(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// foreign_keys is a per-connection pragma, so cascades are not relied on.
	if _, err := tx.Exec(`DELETE FROM merges WHERE run_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}
