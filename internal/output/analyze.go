package output

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"sirsim/internal/core"
	"sirsim/internal/runner"
)

var runPattern = regexp.MustCompile(`^run_(\d+)\.csv$`)

// Scan rebuilds run summaries from every generation under base. Generations
// or files that cannot be read are reported through skip and left out.
func Scan(base string, skip func(path string, err error)) ([]runner.RunStats, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("reading output directory: %w", err)
	}
	if skip == nil {
		skip = func(string, error) {}
	}

	var out []runner.RunStats
	for _, gen := range entries {
		if !gen.IsDir() || !genPattern.MatchString(gen.Name()) {
			continue
		}
		genDir := filepath.Join(base, gen.Name())
		cfg, err := loadConfig(filepath.Join(genDir, configFile))
		if err != nil {
			skip(genDir, err)
			continue
		}
		runs, err := scanGeneration(genDir, gen.Name(), cfg, skip)
		if err != nil {
			skip(genDir, err)
			continue
		}
		out = append(out, runs...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Generation != b.Generation {
			return generationNumber(a.Generation) < generationNumber(b.Generation)
		}
		if a.Engine != b.Engine {
			return a.Engine < b.Engine
		}
		return a.RunNumber < b.RunNumber
	})
	return out, nil
}

func scanGeneration(dir, generation string, cfg core.Configuration, skip func(string, error)) ([]runner.RunStats, error) {
	engines, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []runner.RunStats
	for _, eng := range engines {
		if !eng.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, eng.Name()))
		if err != nil {
			skip(filepath.Join(dir, eng.Name()), err)
			continue
		}
		for _, f := range files {
			m := runPattern.FindStringSubmatch(f.Name())
			if m == nil {
				continue
			}
			path := filepath.Join(dir, eng.Name(), f.Name())
			steps, err := readStatsFile(path)
			if err != nil {
				skip(path, err)
				continue
			}
			if len(steps) == 0 {
				continue
			}
			run, _ := strconv.Atoi(m[1])
			rs := runner.RunStats{Generation: generation, Engine: eng.Name(), RunNumber: run, Config: cfg}
			for _, st := range steps {
				rs.Accumulate(st)
			}
			out = append(out, rs)
		}
	}
	return out, nil
}

func readStatsFile(path string) ([]core.StepStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadStats(f)
}

func loadConfig(path string) (core.Configuration, error) {
	var cfg core.Configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", configFile, err)
	}
	return cfg, nil
}

func generationNumber(name string) int {
	if m := genPattern.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}
