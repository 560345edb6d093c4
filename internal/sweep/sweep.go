// Package sweep runs many seeded replicates of every selected engine on a
// worker pool and compares their ticks-to-extinction distributions against
// a baseline engine.
package sweep

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"sirsim/internal/core"
	"sirsim/internal/ctxlog"
	"sirsim/internal/runner"
)

// SpaceFunc builds the initial population for one seeded replicate.
type SpaceFunc func(cfg core.Configuration) (core.Space, error)

// GridSpace builds a seeded grid from cfg.
func GridSpace(cfg core.Configuration) (core.Space, error) {
	return core.BuildGrid(cfg)
}

// Options configure a sweep.
type Options struct {
	Config  core.Configuration
	Engines []string
	// Baseline is the engine others are compared to; it defaults to the
	// first of Engines.
	Baseline string
	Seeds    []int64
	Engine   core.Options
	// Workers bounds concurrently running replicates; 0 means one per CPU.
	Workers  int
	MaxTicks int
	// Space defaults to GridSpace.
	Space SpaceFunc
}

// Seeds returns n consecutive seeds starting at first.
func Seeds(first int64, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = first + int64(i)
	}
	return out
}

type job struct {
	engine string
	seed   int64
}

// Result is the outcome of one replicate.
type Result struct {
	Engine    string
	Seed      int64
	Ticks     int
	Truncated bool
	Final     core.Tally
	Elapsed   time.Duration
}

// EngineStats summarises the replicates of one engine.
type EngineStats struct {
	Engine    string
	N         int
	Truncated int
	Mean      float64
	Std       float64
	// T is Welch's t statistic of this engine's mean against the baseline.
	T        float64
	Baseline bool
}

// Report is the outcome of a sweep.
type Report struct {
	Results []Result
	Stats   []EngineStats
	Elapsed time.Duration
}

// Run executes every (engine, seed) replicate. The first failing replicate
// cancels the rest and its error is returned.
func Run(ctx context.Context, opts Options) (Report, error) {
	if len(opts.Engines) == 0 || len(opts.Seeds) == 0 {
		return Report{}, fmt.Errorf("%w: a sweep needs at least one engine and one seed", core.ErrInvalidConfig)
	}
	if opts.Baseline == "" {
		opts.Baseline = opts.Engines[0]
	}
	if opts.Space == nil {
		opts.Space = GridSpace
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	log := ctxlog.FromContext(ctx)
	log.Info("Sweep started.", "engines", opts.Engines, "seeds", len(opts.Seeds), "workers", workers)

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan job)
	results := make(chan Result)

	g.Go(func() error {
		defer close(jobs)
		for _, seed := range opts.Seeds {
			for _, name := range opts.Engines {
				select {
				case jobs <- job{engine: name, seed: seed}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		return nil
	})

	workerGroup, wctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		workerGroup.Go(func() error {
			for j := range jobs {
				res, err := replicate(wctx, opts, j)
				if err != nil {
					return err
				}
				select {
				case results <- res:
				case <-wctx.Done():
					return wctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(results)
		return workerGroup.Wait()
	})

	start := time.Now()
	var all []Result
	for res := range results {
		all = append(all, res)
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Engine != all[j].Engine {
			return all[i].Engine < all[j].Engine
		}
		return all[i].Seed < all[j].Seed
	})
	rep := Report{Results: all, Stats: Summarise(all, opts.Engines, opts.Baseline), Elapsed: time.Since(start)}
	log.Info("Sweep complete.", "replicates", len(all), "elapsed", rep.Elapsed.Round(time.Millisecond))
	return rep, nil
}

func replicate(ctx context.Context, opts Options, j job) (Result, error) {
	cfg := opts.Config.WithSeed(j.seed)
	space, err := opts.Space(cfg)
	if err != nil {
		return Result{}, err
	}
	e, err := core.NewEngine(j.engine, space, cfg, opts.Engine)
	if err != nil {
		return Result{}, err
	}
	stats, err := runner.Run(ctx, e, runner.Options{MaxTicks: opts.MaxTicks, Config: cfg})
	if err != nil {
		return Result{}, fmt.Errorf("%s seed %d: %w", j.engine, j.seed, err)
	}
	return Result{
		Engine:    j.engine,
		Seed:      j.seed,
		Ticks:     stats.Ticks,
		Truncated: stats.Truncated,
		Final:     stats.Final,
		Elapsed:   stats.TotalTime,
	}, nil
}

// Summarise groups results per engine, in the order of engines, and
// computes each engine's t statistic against baseline.
func Summarise(results []Result, engines []string, baseline string) []EngineStats {
	ticks := map[string][]float64{}
	truncated := map[string]int{}
	for _, r := range results {
		ticks[r.Engine] = append(ticks[r.Engine], float64(r.Ticks))
		if r.Truncated {
			truncated[r.Engine]++
		}
	}

	base := ticks[baseline]
	out := make([]EngineStats, 0, len(engines))
	for _, name := range engines {
		xs := ticks[name]
		mean, std := MeanStd(xs)
		out = append(out, EngineStats{
			Engine:    name,
			N:         len(xs),
			Truncated: truncated[name],
			Mean:      mean,
			Std:       std,
			T:         WelchT(xs, base),
			Baseline:  name == baseline,
		})
	}
	return out
}

// MeanStd returns the mean and sample standard deviation of xs.
func MeanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

// WelchT is Welch's unequal-variance t statistic for the difference of
// the means of a and b. Identical degenerate samples give zero.
func WelchT(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ma, sa := MeanStd(a)
	mb, sb := MeanStd(b)
	se := math.Sqrt(sa*sa/float64(len(a)) + sb*sb/float64(len(b)))
	if se == 0 {
		if ma == mb {
			return 0
		}
		return math.Copysign(math.Inf(1), ma-mb)
	}
	return (ma - mb) / se
}
