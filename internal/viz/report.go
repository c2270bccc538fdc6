package viz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/san-kum/robustflow/internal/diagnostics"
	"github.com/san-kum/robustflow/internal/dynamo"
	"github.com/san-kum/robustflow/internal/optim"
)

// RenderReport formats a diagnostics report and the trajectory metrics.
func RenderReport(r *diagnostics.Report, result *dynamo.Result) string {
	var s strings.Builder
	row := func(label, value string) {
		s.WriteString(labelStyle().Render(label) + valueStyle().Render(value) + "\n")
	}

	s.WriteString(titleStyle().Render(strings.ToUpper(r.Problem)) + "\n")
	row("x", formatVec(r.X))
	row("λ", fmt.Sprintf("%.6f", r.Lambda))
	row("u", formatVec(r.U))
	row("v", formatVec(r.V))
	s.WriteString("\n")

	row("cost", fmt.Sprintf("%.6f  (reference %.4f, error %.2e)", r.Cost, r.ReferenceCost, r.CostError))
	row("‖x - x*‖", fmt.Sprintf("%.3e", r.XError))
	if r.UKnown {
		row("‖u - u*‖", fmt.Sprintf("%.3e", r.UError))
	}
	row("g(x, u)", fmt.Sprintf("%.6f  (b = %.6f, %s, %s)", r.Constraint, r.Bound,
		yesNo(r.Feasible, "feasible", "infeasible"), yesNo(r.ConstraintActive, "active", "slack")))
	row("h(u)", formatVec(r.H))
	row("active sets", formatSets(r.Active))
	row("regimes", formatRegimes(r))
	row("compl.", fmt.Sprintf("%.3e", r.Complementarity))

	if result != nil {
		s.WriteString("\n")
		names := make([]string, 0, len(result.Metrics))
		for name := range result.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			val := result.Metrics[name]
			if name == "stability" {
				row(name, ProgressBar(val, 20)+fmt.Sprintf(" %.0f%%", 100*val))
				continue
			}
			row(name, fmt.Sprintf("%.3e", val))
		}
		row("steps", fmt.Sprintf("%d accepted, %d rejected, %d evaluations",
			result.StepsTaken, result.Rejected, result.Evaluations))
	}

	s.WriteString("\n" + labelStyle().Render("verdict") + VerdictStyle(r.Verdict).Render(strings.ToUpper(string(r.Verdict))))
	return panelStyle().Render(s.String())
}

// RenderSearch lists every multi-start trial and marks the selected one.
func RenderSearch(res *optim.SearchResult) string {
	var s strings.Builder
	s.WriteString(titleStyle().Render("MULTI-START") + "\n")
	s.WriteString(hintStyle().Render(fmt.Sprintf("%-4s %-6s %-36s %-12s %s", "#", "bound", "start", "‖x - x*‖", "verdict")) + "\n")

	var errs []float64
	for _, tr := range res.Trials {
		mark := "  "
		if res.Best == tr {
			mark = "▶ "
		}
		line := fmt.Sprintf("%-4d %-6.2f %-36s ", tr.Index, tr.Bound, formatVec(tr.Start))
		if !tr.Converged() {
			s.WriteString(mark + line + VerdictStyle(diagnostics.Fail).Render("failed: "+shortError(tr.Err)) + "\n")
			continue
		}
		errs = append(errs, tr.Report.XError)
		s.WriteString(mark + line + fmt.Sprintf("%-12.3e ", tr.Report.XError) +
			VerdictStyle(tr.Report.Verdict).Render(string(tr.Report.Verdict)) + "\n")
	}

	s.WriteString("\n" + labelStyle().Render("errors") + Sparkline(errs, min(len(errs), 40)) + "\n")
	s.WriteString(labelStyle().Render("failed") + valueStyle().Render(fmt.Sprintf("%d of %d", res.Failed, len(res.Trials))))
	return panelStyle().Render(s.String())
}

func formatVec(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.4f", x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatSets(active []int) string {
	if len(active) == 0 {
		return "none"
	}
	parts := make([]string, len(active))
	for i, j := range active {
		parts[i] = fmt.Sprintf("%d", j)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatRegimes(r *diagnostics.Report) string {
	parts := make([]string, len(r.VRegimes))
	for i, reg := range r.VRegimes {
		parts[i] = reg.String()
	}
	return fmt.Sprintf("λ %s; v [%s]", r.LambdaRegime, strings.Join(parts, " "))
}

func yesNo(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

func shortError(err error) string {
	if err == nil {
		return "no report"
	}
	msg := err.Error()
	if len(msg) > 60 {
		msg = msg[:57] + "..."
	}
	return msg
}
