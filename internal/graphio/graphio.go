// Package graphio loads, saves and generates contact graphs.
//
// Two edge-list formats are read. CSV files hold one "from;to" pair per
// line. Text files hold whitespace-separated pairs; blank lines and lines
// starting with '#' are skipped and extra columns are ignored. The format
// is taken from a ".csv" extension or, failing that, from whether the first
// content line contains a ';'.
package graphio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sirsim/internal/core"
)

// Format is an edge-list encoding.
type Format int

const (
	// FormatText is whitespace-separated pairs with '#' comments.
	FormatText Format = iota
	// FormatCSV is ';'-separated pairs.
	FormatCSV
)

// ErrMalformed reports an edge list line that cannot be parsed.
var ErrMalformed = errors.New("malformed edge list")

// Load reads the edge list at path.
func Load(path string) (*core.ContactGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph file: %w", err)
	}
	format := Detect(data)
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		format = FormatCSV
	}
	edges, err := Read(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	g, err := core.NewContactGraph(nil, edges)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Detect sniffs the format from the first line that is neither blank nor
// a comment.
func Detect(data []byte) Format {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, ";") {
			return FormatCSV
		}
		return FormatText
	}
	return FormatText
}

// Read parses edges in the given format.
func Read(r io.Reader, format Format) ([]core.Edge, error) {
	if format == FormatCSV {
		return readCSV(r)
	}
	return readText(r)
}

func readCSV(r io.Reader) ([]core.Edge, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var edges []core.Edge
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return edges, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		line, _ := cr.FieldPos(0)
		if len(rec) < 2 {
			return nil, fmt.Errorf("%w: line %d: expected two fields, got %d", ErrMalformed, line, len(rec))
		}
		e, err := parseEdge(rec[0], rec[1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		edges = append(edges, e)
	}
}

func readText(r io.Reader) ([]core.Edge, error) {
	var edges []core.Edge
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: line %d: expected two fields, got %d", ErrMalformed, line, len(fields))
		}
		e, err := parseEdge(fields[0], fields[1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		edges = append(edges, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return edges, nil
}

func parseEdge(a, b string) (core.Edge, error) {
	from, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return core.Edge{}, err
	}
	to, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return core.Edge{}, err
	}
	return core.Edge{From: from, To: to}, nil
}

// Save writes g to path as a ';'-separated edge list, creating parent
// directories. Isolated nodes are not representable and are dropped.
func Save(path string, g *core.ContactGraph) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating graph directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating graph file: %w", err)
	}
	if err := Write(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write encodes the edges of g as ';'-separated pairs.
func Write(w io.Writer, g *core.ContactGraph) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	for _, e := range g.Edges() {
		if err := cw.Write([]string{strconv.Itoa(e.From), strconv.Itoa(e.To)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
