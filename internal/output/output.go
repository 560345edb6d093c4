// Package output lays out run results on disk. Every invocation gets the
// next free gen<N> directory under a base directory, holding a config.yaml
// snapshot and one CSV of per-tick statistics per engine run:
//
//	<base>/gen<N>/config.yaml
//	<base>/gen<N>/<engine>/run_<k>.csv
package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"sirsim/internal/core"
	"sirsim/internal/runner"
)

// Header is the column layout of a per-tick CSV.
var Header = []string{"Tick", "NewlyInfected", "NewlyRecovered", "TotalSusceptible", "TotalInfected", "TotalRecovered", "StepTimeNanos"}

const configFile = "config.yaml"

var genPattern = regexp.MustCompile(`^gen(\d+)$`)

// Manager owns one generation directory.
type Manager struct {
	dir        string
	generation string
}

// NewGeneration creates <base>/gen<N> for the smallest N above every
// existing generation and saves cfg in it.
func NewGeneration(base string, cfg core.Configuration) (*Manager, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	next, err := nextGeneration(base)
	if err != nil {
		return nil, err
	}
	name := "gen" + strconv.Itoa(next)
	m := &Manager{dir: filepath.Join(base, name), generation: name}
	if err := os.Mkdir(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating generation directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding configuration: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, configFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("saving configuration: %w", err)
	}
	return m, nil
}

func nextGeneration(base string) (int, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return 0, fmt.Errorf("reading output directory: %w", err)
	}
	highest := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if m := genPattern.FindStringSubmatch(e.Name()); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
				highest = n
			}
		}
	}
	return highest + 1, nil
}

// Dir returns the generation directory.
func (m *Manager) Dir() string { return m.dir }

// Generation returns the generation name, e.g. "gen3".
func (m *Manager) Generation() string { return m.generation }

// RunPath returns the CSV path of run k of engine.
func (m *Manager) RunPath(engine string, run int) string {
	return filepath.Join(m.dir, engine, fmt.Sprintf("run_%d.csv", run))
}

// CreateRun opens the CSV for run k of engine.
func (m *Manager) CreateRun(engine string, run int) (*StatsWriter, error) {
	path := m.RunPath(engine, run)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating engine directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating run log: %w", err)
	}
	w, err := NewStatsWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// StatsWriter writes StepStats as CSV rows. It implements runner.Sink.
type StatsWriter struct {
	w      *csv.Writer
	closer io.Closer
}

var _ runner.Sink = (*StatsWriter)(nil)

// NewStatsWriter writes the header to w.
func NewStatsWriter(w io.Writer) (*StatsWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return nil, err
	}
	return &StatsWriter{w: cw}, nil
}

// Record writes one row.
func (s *StatsWriter) Record(st core.StepStats) error {
	return s.w.Write([]string{
		strconv.Itoa(st.Tick),
		strconv.Itoa(st.NewlyInfected),
		strconv.Itoa(st.NewlyRecovered),
		strconv.Itoa(st.TotalSusceptible),
		strconv.Itoa(st.TotalInfected),
		strconv.Itoa(st.TotalRecovered),
		strconv.FormatInt(st.StepDuration.Nanoseconds(), 10),
	})
}

// Close flushes buffered rows and closes the underlying file, if any.
func (s *StatsWriter) Close() error {
	s.w.Flush()
	err := s.w.Error()
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
	}
	return err
}

// ReadStats parses a per-tick CSV written by StatsWriter.
func ReadStats(r io.Reader) ([]core.StepStats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([]core.StepStats, 0, len(rows)-1)
	for i, row := range rows[1:] {
		var n [6]int
		for j := range n {
			if n[j], err = strconv.Atoi(row[j]); err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i+2, Header[j], err)
			}
		}
		ns, err := strconv.ParseInt(row[6], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d column %s: %w", i+2, Header[6], err)
		}
		out = append(out, core.StepStats{
			Tick:             n[0],
			NewlyInfected:    n[1],
			NewlyRecovered:   n[2],
			TotalSusceptible: n[3],
			TotalInfected:    n[4],
			TotalRecovered:   n[5],
			StepDuration:     time.Duration(ns),
		})
	}
	return out, nil
}
