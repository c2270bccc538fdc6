package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/san-kum/robustflow/internal/config"
	"github.com/san-kum/robustflow/internal/diagnostics"
	"github.com/san-kum/robustflow/internal/dynamo"
	"github.com/san-kum/robustflow/internal/experiment"
	"github.com/san-kum/robustflow/internal/flow"
	"github.com/san-kum/robustflow/internal/optim"
	"github.com/san-kum/robustflow/internal/storage"
	"github.com/san-kum/robustflow/internal/viz"
)

// errVerdictFailed makes --strict runs exit non-zero on a failed verdict.
var errVerdictFailed = errors.New("verdict: fail")

var (
	configFile string
	logLevel   string
	duration   float64
	samples    int
	integrator string
	epsilon    float64
	bound      float64
	workers    int
	jsonOutput bool
	strict     bool
	plotHeight int
	theme      string
	saveDir    string
	runsDir    string

	logger = slog.Default()
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "robustflow",
		Short:        "primal-dual-adversarial flows for robust optimization",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(logLevel, os.Stderr)
			if err != nil {
				return err
			}
			logger = l
			slog.SetDefault(l)
			viz.SetTheme(theme)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml), applied over the preset")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", "default", "color theme")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "integrate one trajectory and report convergence",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFlow,
	}
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	runCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when the verdict is fail")
	runCmd.Flags().StringVar(&saveDir, "save", "", "archive the run report under this directory")

	searchCmd := &cobra.Command{
		Use:   "search [preset]",
		Short: "multi-start search over initial states and bounds",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSearch,
	}
	addRunFlags(searchCmd)
	searchCmd.Flags().IntVar(&workers, "workers", 0, "concurrent trials (0 = GOMAXPROCS)")
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the trials as JSON")

	plotCmd := &cobra.Command{
		Use:   "plot [preset]",
		Short: "integrate and chart the x, λ, u and v trajectories",
		Args:  cobra.MaximumNArgs(1),
		RunE:  plotFlow,
	}
	addRunFlags(plotCmd)
	plotCmd.Flags().IntVar(&plotHeight, "height", 8, "chart height")

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "list archived run reports",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}
	runsCmd.Flags().StringVar(&runsDir, "dir", "runs", "archive directory")

	watchCmd := &cobra.Command{
		Use:   "watch [preset]",
		Short: "integrate with a live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  watchFlow,
	}
	addRunFlags(watchCmd)

	compareCmd := &cobra.Command{
		Use:   "compare [preset] [integrator1] [integrator2] ...",
		Short: "compare integrators on the same preset",
		Args:  cobra.MinimumNArgs(2),
		RunE:  compareIntegrators,
	}
	addRunFlags(compareCmd)

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPROBLEM\tHORIZON\tSAMPLES\tEPSILON\tSAFEGUARDS")
			for _, name := range config.ListPresets() {
				p := config.GetPreset(name)
				fmt.Fprintf(w, "%s\t%s\t[%g, %g]\t%d\t%g\t%t\n", name, p.Problem,
					p.Horizon.Start, p.Horizon.End, p.Horizon.Samples, p.Epsilon, p.Safeguards.Enabled)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			reg := experiment.NewRegistry()
			fmt.Printf("\nproblems:    %s\nintegrators: %s\n",
				strings.Join(reg.ListProblems(), ", "), strings.Join(reg.ListIntegrators(), ", "))
			return nil
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "write and check YAML config files",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "dump [preset] <file>",
		Short: "write a preset as YAML, a starting point for --config",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  dumpConfig,
	}, &cobra.Command{
		Use:   "check <file>",
		Short: "load a config file over the defaults and validate it",
		Args:  cobra.ExactArgs(1),
		RunE:  checkConfig,
	})

	rootCmd.AddCommand(runCmd, searchCmd, plotCmd, watchCmd, compareCmd, presetsCmd, runsCmd, configCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&duration, "time", config.DefaultEnd, "end of the integration horizon")
	cmd.Flags().IntVar(&samples, "samples", config.DefaultSamples, "number of reported samples")
	cmd.Flags().StringVar(&integrator, "integrator", "rk45", "integrator (rk45|rk4|euler)")
	cmd.Flags().Float64Var(&epsilon, "epsilon", 0, "multiplier bias ε")
	cmd.Flags().Float64Var(&bound, "bound", 5, "robust constraint bound b (disables calibration)")
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// loadConfig resolves preset, then config file, then explicitly set flags.
func loadConfig(cmd *cobra.Command, args []string, fallback string) (*config.Config, error) {
	name := fallback
	if len(args) > 0 {
		name = args[0]
	}
	cfg := config.GetPreset(name)
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset: %s (available: %s)", name, strings.Join(config.ListPresets(), ", "))
	}

	if configFile != "" {
		if err := config.LoadInto(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("time") {
		cfg.Horizon.End = duration
	}
	if flags.Changed("samples") {
		cfg.Horizon.Samples = samples
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("epsilon") {
		cfg.Epsilon = epsilon
	}
	if flags.Changed("bound") {
		cfg.Bound = bound
		cfg.CalibrateBound = false
	}
	if flags.Lookup("workers") != nil && flags.Changed("workers") {
		cfg.Search.Workers = workers
	}
	return cfg, cfg.Validate()
}

func buildExperiment(cmd *cobra.Command, args []string, l *slog.Logger) (*experiment.Experiment, error) {
	cfg, err := loadConfig(cmd, args, "quadratic")
	if err != nil {
		return nil, err
	}
	return experiment.New(cfg, experiment.NewRegistry(), experiment.WithLogger(l))
}

func runFlow(cmd *cobra.Command, args []string) error {
	exp, err := buildExperiment(cmd, args, logger)
	if err != nil {
		return err
	}

	start := time.Now()
	out, err := exp.Run(cmd.Context())
	elapsed := time.Since(start)
	if saveDir != "" && out != nil && out.Result != nil {
		st := storage.New(saveDir)
		if initErr := st.Init(); initErr != nil {
			return initErr
		}
		runID, saveErr := st.Save(exp.Config(), exp.Flow().Layout(), exp.Bound(), out.Result, out.Report)
		if saveErr != nil {
			return fmt.Errorf("failed to archive run: %w", saveErr)
		}
		logger.Info("run archived", slog.String("id", runID), slog.String("dir", saveDir))
	}
	if err != nil {
		var simErr *dynamo.SimulationError
		if errors.As(err, &simErr) {
			fmt.Fprintf(os.Stderr, "integration failed at t=%.4f after %d steps\n", simErr.Time, simErr.Step)
		}
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Report      *diagnostics.Report `json:"report"`
			Metrics     map[string]float64  `json:"metrics"`
			Steps       int                 `json:"steps"`
			Rejected    int                 `json:"rejected"`
			Evaluations int                 `json:"evaluations"`
			ElapsedMS   float64             `json:"elapsed_ms"`
		}{out.Report, out.Result.Metrics, out.Result.StepsTaken, out.Result.Rejected,
			out.Result.Evaluations, float64(elapsed.Microseconds()) / 1000}); err != nil {
			return err
		}
	} else {
		fmt.Println(viz.RenderReport(out.Report, out.Result))
		fmt.Printf("completed in %v\n", elapsed.Round(time.Millisecond))
	}

	if strict && out.Report.Verdict == diagnostics.Fail {
		return errVerdictFailed
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args, "exponential-hardened")
	if err != nil {
		return err
	}
	reg := experiment.NewRegistry()

	prob, err := reg.GetProblem(cfg)
	if err != nil {
		return err
	}
	dim := flow.LayoutFor(prob.Dims()).Len()
	for i, s := range cfg.Search.Starts {
		if len(s) != dim {
			return fmt.Errorf("search.starts[%d] has %d values, %s states have %d: %w",
				i, len(s), cfg.Problem, dim, config.ErrInvalidConfig)
		}
	}

	m := optim.NewMultiStart(cfg.Search.Starts, cfg.Search.Bounds)
	m.SetWorkers(cfg.Search.Workers)
	m.SetLogger(logger)

	start := time.Now()
	res, err := m.Search(cmd.Context(), experiment.TrialBuilder(cfg, reg, experiment.WithLogger(logger)))
	if res == nil {
		return err
	}

	if jsonOutput {
		type trialJSON struct {
			Index  int                 `json:"index"`
			Start  []float64           `json:"start"`
			Bound  float64             `json:"bound"`
			Report *diagnostics.Report `json:"report,omitempty"`
			Error  string              `json:"error,omitempty"`
		}
		trials := make([]trialJSON, len(res.Trials))
		for i, tr := range res.Trials {
			trials[i] = trialJSON{Index: tr.Index, Start: tr.Start, Bound: tr.Bound, Report: tr.Report}
			if tr.Err != nil {
				trials[i].Error = tr.Err.Error()
			}
		}
		best := -1
		if res.Best != nil {
			best = res.Best.Index
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(map[string]any{"best": best, "failed": res.Failed, "trials": trials}); encErr != nil {
			return encErr
		}
		return err
	}

	fmt.Println(viz.RenderSearch(res))
	if res.Best != nil {
		fmt.Println(viz.RenderReport(res.Best.Report, nil))
	}
	fmt.Printf("%d trials in %v\n", len(res.Trials), time.Since(start).Round(time.Millisecond))
	return err
}

func plotFlow(cmd *cobra.Command, args []string) error {
	opts := viz.DefaultPlotOptions()
	opts.Height = plotHeight

	exp, err := buildExperiment(cmd, args, logger)
	if err != nil {
		return err
	}
	out, err := exp.Run(cmd.Context())
	if out != nil && out.Result != nil {
		fmt.Print(viz.PlotTrajectory(out.Result, exp.Flow().Layout(), opts))
	}
	if err != nil {
		return err
	}
	fmt.Printf("verdict: %s (‖x - x*‖ = %.3e)\n", out.Report.Verdict, out.Report.XError)
	return nil
}

func watchFlow(cmd *cobra.Command, args []string) error {
	// log output would tear the full-screen view
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	exp, err := buildExperiment(cmd, args, quiet)
	if err != nil {
		return err
	}

	p := tea.NewProgram(viz.NewWatch(exp))
	every := max(exp.Config().Horizon.Samples/500, 1)
	exp.GetSimulator().AddObserver(viz.NewObserver(p.Send, every))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- runWatched(ctx, exp, p.Send)
	}()

	_, tuiErr := p.Run()
	cancel()
	return errors.Join(tuiErr, <-done)
}

// runWatched integrates exp and reports the outcome to the view. Quitting the
// view cancels the run, which is not an error.
func runWatched(ctx context.Context, exp *experiment.Experiment, send func(tea.Msg)) error {
	out, err := exp.Run(ctx)
	send(viz.DoneMsg{Outcome: out, Err: err})
	if errors.Is(err, dynamo.ErrContextCanceled) {
		return nil
	}
	return err
}

func compareIntegrators(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd, args[:1], "quadratic")
	if err != nil {
		return err
	}
	fmt.Printf("comparing integrators for %s (t ∈ [%g, %g], %d samples)\n\n",
		args[0], base.Horizon.Start, base.Horizon.End, base.Horizon.Samples)
	return compareRuns(cmd.Context(), base, args[1:], os.Stdout, logger)
}

// compareRuns runs base once per integrator and tabulates the outcomes. Every
// row is printed; failed runs are returned joined after the table.
func compareRuns(ctx context.Context, base *config.Config, integrators []string, out io.Writer, l *slog.Logger) error {
	reg := experiment.NewRegistry()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTEGRATOR\tSTEPS\tREJECTED\tEVALS\t‖x - x*‖\tVERDICT\tTIME")

	var errs []error
	for _, name := range integrators {
		cfg := base.Clone()
		cfg.Integrator = name
		exp, err := experiment.New(cfg, reg, experiment.WithLogger(l))
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", name, err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		start := time.Now()
		res, err := exp.Run(ctx)
		elapsed := time.Since(start)
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", name, err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.3e\t%s\t%v\n", name, res.Result.StepsTaken, res.Result.Rejected,
			res.Result.Evaluations, res.Report.XError, res.Report.Verdict, elapsed.Round(time.Millisecond))
	}
	if err := w.Flush(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(runsDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Printf("no runs in %s\n", runsDir)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROBLEM\tINTEGRATOR\tBOUND\tSTEPS\t‖x - x*‖\tVERDICT")
	for _, r := range runs {
		xErr, verdict := "-", "failed"
		if r.Report != nil {
			xErr = fmt.Sprintf("%.3e", r.Report.XError)
			verdict = string(r.Report.Verdict)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%d\t%s\t%s\n", r.ID, r.Problem, r.Integrator, r.Bound, r.Steps, xErr, verdict)
	}
	return w.Flush()
}

func dumpConfig(cmd *cobra.Command, args []string) error {
	name, path := "quadratic", args[len(args)-1]
	if len(args) == 2 {
		name = args[0]
	}
	cfg := config.GetPreset(name)
	if cfg == nil {
		return fmt.Errorf("unknown preset: %s (available: %s)", name, strings.Join(config.ListPresets(), ", "))
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s preset to %s\n", name, path)
	return nil
}

func checkConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Printf("%s: ok (problem %s, integrator %s, t ∈ [%g, %g], %d samples)\n", args[0],
		cfg.Problem, cfg.Integrator, cfg.Horizon.Start, cfg.Horizon.End, cfg.Horizon.Samples)
	return nil
}
