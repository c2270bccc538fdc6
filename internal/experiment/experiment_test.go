package experiment_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/robustflow/internal/config"
	"github.com/san-kum/robustflow/internal/diagnostics"
	"github.com/san-kum/robustflow/internal/dynamo"
	"github.com/san-kum/robustflow/internal/experiment"
	"github.com/san-kum/robustflow/internal/optim"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func run(cfg *config.Config) (*experiment.Experiment, *experiment.Outcome, error) {
	exp, err := experiment.New(cfg, experiment.NewRegistry(), experiment.WithLogger(quiet))
	Expect(err).NotTo(HaveOccurred())
	out, err := exp.Run(context.Background())
	return exp, out, err
}

var _ = Describe("Registry", func() {
	reg := experiment.NewRegistry()

	It("lists problems and integrators in order", func() {
		Expect(reg.ListProblems()).To(Equal([]string{"exponential", "quadratic"}))
		Expect(reg.ListIntegrators()).To(Equal([]string{"euler", "rk4", "rk45"}))
	})

	It("rejects unknown names", func() {
		cfg := config.DefaultConfig()
		cfg.Problem = "rosenbrock"
		_, err := experiment.New(cfg, reg)
		Expect(errors.Is(err, experiment.ErrUnknownProblem)).To(BeTrue())

		cfg = config.DefaultConfig()
		cfg.Integrator = "leapfrog"
		cfg.Horizon.Dt = 0.01
		_, err = experiment.New(cfg, reg)
		Expect(errors.Is(err, experiment.ErrUnknownIntegrator)).To(BeTrue())
	})

	It("ships search grids that match each preset's state layout", func() {
		for _, name := range config.ListPresets() {
			cfg := config.GetPreset(name)
			exp, err := experiment.New(cfg, reg, experiment.WithLogger(quiet))
			Expect(err).NotTo(HaveOccurred())
			for _, start := range cfg.Search.Starts {
				Expect(start).To(HaveLen(exp.Flow().StateDim()), name)
			}
		}
	})

	It("publishes derived trajectory metrics", func() {
		cfg := config.GetPreset("quadratic")
		cfg.Horizon.End = 5
		cfg.Horizon.Samples = 50
		_, out, err := run(cfg)
		Expect(err).NotTo(HaveOccurred())
		m := out.Result.Metrics
		Expect(m).To(HaveKey("complementarity_peak"))
		Expect(m["complementarity_peak"]).To(BeNumerically(">=", m["complementarity"]))
		Expect(m["residual_reduction"]).To(BeNumerically("<", 1))
	})

	It("rejects invalid configuration before building", func() {
		cfg := config.DefaultConfig()
		cfg.Horizon.Samples = 0
		_, err := experiment.New(cfg, reg)
		Expect(errors.Is(err, config.ErrInvalidConfig)).To(BeTrue())
	})
})

var _ = Describe("Quadratic robust problem", func() {
	It("converges to the reference saddle point", func() {
		exp, out, err := run(config.GetPreset("quadratic"))
		Expect(err).NotTo(HaveOccurred())

		Expect(out.Result.States).To(HaveLen(2000))
		Expect(out.Result.Times[0]).To(Equal(0.0))
		Expect(out.Result.Times[1999]).To(Equal(50.0))
		Expect(out.Result.States[0]).To(Equal(dynamo.State(make([]float64, 10))))

		r := out.Report
		Expect(r.XError).To(BeNumerically("<", 1e-2))
		Expect(r.Cost).To(BeNumerically("~", -28.5452, 1e-2))
		Expect(r.Constraint).To(BeNumerically("<=", exp.Bound()+1e-6))
		Expect(r.Verdict).To(Equal(diagnostics.Pass))
		Expect(r.Lambda).To(BeNumerically(">=", 0))
		for _, v := range r.V {
			Expect(v).To(BeNumerically(">=", 0))
		}
		Expect(out.Result.Metrics).To(HaveKey("complementarity"))
		Expect(out.Result.Metrics["stability"]).To(Equal(1.0))
	})

	It("agrees with a fixed-step RK4 run", func() {
		cfg := config.GetPreset("quadratic")
		cfg.Integrator = "rk4"
		cfg.Horizon.Dt = 0.005
		_, out, err := run(cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Report.XError).To(BeNumerically("<", 1e-2))
	})

	It("is deterministic", func() {
		_, a, err := run(config.GetPreset("quadratic"))
		Expect(err).NotTo(HaveOccurred())
		_, b, err := run(config.GetPreset("quadratic"))
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Result.Final()).To(Equal(b.Result.Final()))
		Expect(a.Report).To(Equal(b.Report))
	})
})

var _ = Describe("Exponential robust problem", func() {
	It("calibrates the bound from the reference", func() {
		exp, err := experiment.New(config.GetPreset("exponential"), experiment.NewRegistry(), experiment.WithLogger(quiet))
		Expect(err).NotTo(HaveOccurred())
		Expect(exp.Bound()).To(BeNumerically("~", 5.0, 1e-2))

		x0, err := exp.InitialState()
		Expect(err).NotTo(HaveOccurred())
		Expect(x0).To(Equal(dynamo.State{1, 1, 1, 1, 1, 1, 1}))
	})

	It("converges from the all-ones start", func() {
		cfg := config.GetPreset("exponential")
		_, out, err := run(cfg)
		Expect(err).NotTo(HaveOccurred())

		r := out.Report
		Expect(r.UKnown).To(BeTrue())
		Expect(dynamo.State(r.X).IsValid()).To(BeTrue())
		Expect(r.XError).To(BeNumerically("<", 5e-2))
		Expect(r.Verdict).To(Equal(diagnostics.Pass))
		Expect(r.ConstraintActive).To(BeTrue())
	})

	It("stays finite and bounded with safeguards", func() {
		_, out, err := run(config.GetPreset("exponential-hardened"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Result.States).To(HaveLen(2000))
		for _, s := range out.Result.States {
			Expect(s.IsValid()).To(BeTrue())
		}
		Expect(out.Report.X).To(HaveLen(2))
		Expect(out.Report.XError).To(BeNumerically("<", 0.1))
		Expect(out.Report.Verdict).To(Equal(diagnostics.Pass))
	})
})

var _ = Describe("Multi-start search", func() {
	It("returns the best of all twenty trials", func() {
		base := config.GetPreset("exponential-hardened")
		m := optim.NewMultiStart(base.Search.Starts, base.Search.Bounds)
		m.SetLogger(quiet)

		res, err := m.Search(context.Background(), experiment.TrialBuilder(base, experiment.NewRegistry(), experiment.WithLogger(quiet)))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Trials).To(HaveLen(20))
		Expect(res.Best).NotTo(BeNil())

		best := math.Inf(1)
		for _, tr := range res.Trials {
			if tr.Converged() && tr.Report.XError < best {
				best = tr.Report.XError
			}
		}
		Expect(res.Best.Report.XError).To(Equal(best))
		Expect(best).To(BeNumerically("<", 0.1))
	})
})
