// Package viz renders flow results in the terminal.
//
//   - [RenderReport] and [RenderSearch]: lipgloss panels for a single run and a
//     multi-start search
//   - [PlotTrajectory]: asciigraph charts of the x, λ, u and v blocks
//   - [WatchModel]: a Bubble Tea view fed by an [Observer] on the simulator,
//     drawing the primal path on a braille [Canvas]
//
// # Key Bindings (watch)
//
//	Space - Pause/Resume the live view
//	[ ]   - Replay backwards/forwards
//	T     - Cycle color themes
//	?     - Show help overlay
//	Q     - Quit
package viz
