// Package dynamo provides core simulation primitives for the flow.
//
// The package defines the fundamental interfaces and types for numerical
// integration of ordinary differential equations dX/dt = f(X, t):
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE right-hand sides
//   - [Integrator], [AdaptiveIntegrator]: numerical stepper interfaces
//   - [Simulator]: drives a System over a sample grid
//
// # Example
//
//	sys := flow.New(problem.NewExampleA(), flow.Params{Bound: 5}, flow.Safeguards{})
//	sim := dynamo.New(sys, integrators.NewDormandPrince())
//	result, err := sim.Run(ctx, x0, dynamo.DefaultConfig())
//
// # Failure
//
// Run never silently continues past a bad step. Divergence, step collapse,
// an exhausted step budget and cancellation are reported as a
// [*SimulationError] wrapping one of the package's sentinel errors.
//
// # Thread Safety
//
// Simulator instances are NOT thread-safe. Parallel runs each need their own
// Simulator and Integrator.
package dynamo
