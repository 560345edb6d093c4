package store

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"sirsim/internal/runner"
	"sirsim/internal/sweep"
)

// Store is a SQLite-backed table of run summaries.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. ":memory:" opens a
// private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Save records one run.
func (s *Store) Save(ctx context.Context, rs runner.RunStats) error {
	var seed sql.NullInt64
	if rs.Config.Seed != nil {
		seed = sql.NullInt64{Int64: *rs.Config.Seed, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (generation, engine, run_number, ticks, total_ns, avg_step_ns, max_step_ns, min_step_ns,
    final_s, final_i, final_r, truncated, width, height, initial_infected, p_inf, p_rec, seed, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rs.Generation, rs.Engine, rs.RunNumber, rs.Ticks,
		int64(rs.TotalTime), int64(rs.AvgStep), int64(rs.MaxStep), int64(rs.MinStep),
		rs.Final.S, rs.Final.I, rs.Final.R, rs.Truncated,
		rs.Config.Width, rs.Config.Height, rs.Config.InitialInfected,
		rs.Config.InfectionProbability, rs.Config.RecoveryProbability, seed,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Engine     string
	Generation string
	Limit      int
}

// List returns recorded runs in insertion order.
func (s *Store) List(ctx context.Context, f Filter) ([]runner.RunStats, error) {
	query := `
SELECT generation, engine, run_number, ticks, total_ns, avg_step_ns, max_step_ns, min_step_ns,
    final_s, final_i, final_r, truncated, width, height, initial_infected, p_inf, p_rec, seed
FROM runs
WHERE (? = '' OR engine = ?) AND (? = '' OR generation = ?)
ORDER BY id`
	args := []any{f.Engine, f.Engine, f.Generation, f.Generation}
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []runner.RunStats
	for rows.Next() {
		var (
			rs                     runner.RunStats
			total, avg, maxS, minS int64
			seed                   sql.NullInt64
		)
		if err := rows.Scan(&rs.Generation, &rs.Engine, &rs.RunNumber, &rs.Ticks,
			&total, &avg, &maxS, &minS,
			&rs.Final.S, &rs.Final.I, &rs.Final.R, &rs.Truncated,
			&rs.Config.Width, &rs.Config.Height, &rs.Config.InitialInfected,
			&rs.Config.InfectionProbability, &rs.Config.RecoveryProbability, &seed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rs.TotalTime, rs.AvgStep = time.Duration(total), time.Duration(avg)
		rs.MaxStep, rs.MinStep = time.Duration(maxS), time.Duration(minS)
		if seed.Valid {
			rs.Config = rs.Config.WithSeed(seed.Int64)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Summary aggregates the runs of one engine.
type Summary struct {
	Engine    string
	Runs      int
	Truncated int
	// MeanTicks and StdTicks (sample standard deviation) cover only the runs
	// that reached extinction; a truncated run has no extinction tick.
	MeanTicks float64
	StdTicks  float64
	MeanStep  time.Duration
	MinStep   time.Duration
	MaxStep   time.Duration
}

// Summaries aggregates all recorded runs per engine, ordered by engine.
func (s *Store) Summaries(ctx context.Context) ([]Summary, error) {
	runs, err := s.List(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to summarise runs: %w", err)
	}

	type group struct {
		sum   Summary
		ticks []float64
		total time.Duration
		steps int
	}
	groups := map[string]*group{}
	for _, rs := range runs {
		g, ok := groups[rs.Engine]
		if !ok {
			g = &group{sum: Summary{Engine: rs.Engine, MinStep: rs.MinStep}}
			groups[rs.Engine] = g
		}
		g.sum.Runs++
		g.sum.MinStep = min(g.sum.MinStep, rs.MinStep)
		g.sum.MaxStep = max(g.sum.MaxStep, rs.MaxStep)
		g.total += rs.TotalTime
		g.steps += rs.Ticks
		if rs.Truncated {
			g.sum.Truncated++
			continue
		}
		g.ticks = append(g.ticks, float64(rs.Ticks))
	}

	out := make([]Summary, 0, len(groups))
	for _, engine := range slices.Sorted(maps.Keys(groups)) {
		g := groups[engine]
		g.sum.MeanTicks, g.sum.StdTicks = sweep.MeanStd(g.ticks)
		if g.steps > 0 {
			g.sum.MeanStep = g.total / time.Duration(g.steps)
		}
		out = append(out, g.sum)
	}
	return out, nil
}
