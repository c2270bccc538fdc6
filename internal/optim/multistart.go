package optim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/robustflow/internal/diagnostics"
	"github.com/san-kum/robustflow/internal/experiment"
)

// ErrNoConvergedTrial is returned when every trial of a search failed.
var ErrNoConvergedTrial = errors.New("optim: no trial converged")

// BuildFunc constructs the experiment for one (initial state, bound) pair.
type BuildFunc func(start []float64, bound float64) (*experiment.Experiment, error)

// Trial is one grid point and what became of it.
type Trial struct {
	Index  int
	Start  []float64
	Bound  float64
	Report *diagnostics.Report
	Err    error
}

func (t *Trial) Converged() bool { return t.Err == nil && t.Report != nil }

type SearchResult struct {
	Best   *Trial
	Trials []*Trial // grid order
	Failed int
}

// MultiStart runs the flow from every combination of initial state and bound
// and keeps the trial closest to the reference solution.
type MultiStart struct {
	starts  [][]float64
	bounds  []float64
	workers int
	logger  *slog.Logger
}

func NewMultiStart(starts [][]float64, bounds []float64) *MultiStart {
	return &MultiStart{
		starts:  starts,
		bounds:  bounds,
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
	}
}

// SetWorkers bounds the number of concurrent trials; n <= 0 restores GOMAXPROCS.
func (m *MultiStart) SetWorkers(n int) {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	m.workers = n
}

func (m *MultiStart) SetLogger(l *slog.Logger) { m.logger = l }

// Grid lists the trials bound-major: every start for the first bound, then
// every start for the next.
func (m *MultiStart) Grid() []*Trial {
	trials := make([]*Trial, 0, len(m.starts)*len(m.bounds))
	for _, b := range m.bounds {
		for _, s := range m.starts {
			trials = append(trials, &Trial{
				Index: len(trials),
				Start: append([]float64(nil), s...),
				Bound: b,
			})
		}
	}
	return trials
}

// Search runs all trials and selects the one with the smallest distance to
// the reference x*. Ties go to the earlier trial in grid order. Failed
// trials are kept in the result but never selected.
func (m *MultiStart) Search(ctx context.Context, build BuildFunc) (*SearchResult, error) {
	trials := m.Grid()
	if len(trials) == 0 {
		return nil, fmt.Errorf("empty search grid: %w", ErrNoConvergedTrial)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, tr := range trials {
		tr := tr
		g.Go(func() error {
			m.runTrial(gctx, tr, build)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search interrupted: %w", err)
	}

	res := &SearchResult{Trials: trials}
	bestErr := math.Inf(1)
	for _, tr := range trials {
		if !tr.Converged() {
			res.Failed++
			continue
		}
		if tr.Report.XError < bestErr {
			bestErr = tr.Report.XError
			res.Best = tr
		}
	}
	if res.Best == nil {
		return res, fmt.Errorf("%d trials: %w", len(trials), ErrNoConvergedTrial)
	}

	m.logger.Info("multi-start search complete",
		slog.Int("trials", len(trials)),
		slog.Int("failed", res.Failed),
		slog.Int("best", res.Best.Index),
		slog.Float64("bound", res.Best.Bound),
		slog.Float64("x_error", res.Best.Report.XError))
	return res, nil
}

func (m *MultiStart) runTrial(ctx context.Context, tr *Trial, build BuildFunc) {
	exp, err := build(tr.Start, tr.Bound)
	if err == nil {
		var out *experiment.Outcome
		if out, err = exp.Run(ctx); err == nil {
			tr.Report = out.Report
		}
	}
	if err != nil {
		tr.Err = err
		m.logger.Warn("trial failed",
			slog.Int("trial", tr.Index),
			slog.Float64("bound", tr.Bound),
			slog.Any("error", err))
	}
}
