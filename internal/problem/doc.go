// Package problem defines robust optimization problems for the flow.
//
// Each problem implements [Problem], exposing the objective f(x), the robust
// constraint g(x, u) <= b, the uncertainty-set functions h_j(u) <= 0 and the
// gradients the dynamics need:
//
//   - [Quadratic]: quadratic objective, affine constraint (a + P u)ᵀx,
//     ellipsoidal sets uᵀQ_j u - 1 (Example A)
//   - [Exponential]: separable quadratic objective, constraint Σ u_i·exp(x_i²),
//     scalar sets exp(u_j²) + u_j·exp(1/u_j) - ρ_j (Example B)
//
// Problems are immutable once constructed and safe for concurrent use.
//
// # Reference equilibria
//
// Every problem carries a [Reference] with the literal expected solution. It
// is only ever read by diagnostics:
//
//	p := problem.NewExampleB(safemath.DefaultExpCap)
//	b, err := problem.CalibrateBound(p) // g(x*, u*)
package problem
