// Package operation drives a single remedial action to completion.
//
// An Operation wraps one invocation (Params) of an actor's operator and a
// transport-specific Strategy. Starting it runs the attempt pipeline:
//   - invoke the start callback once
//   - consult the optional Guard; a denial ends the pipeline with FailureGuard
//   - run attempts sequentially, each bounded by the configured timeout
//   - convert strategy errors into FailureException or FailureTimeout outcomes
//   - retry failures while the retry budget allows, waiting between attempts
//   - publish exactly one final Outcome through the complete callback and the
//     returned Future
//
// Strategies do the actual I/O (HTTP request/poll, publish and correlate)
// and never deal with retries, timeouts or callbacks themselves.
//
// The package also provides the combinators used to compose operations:
// AnyOf (first to complete), AllOf (highest-priority outcome of all) and
// Sequence (stop at the first non-success).
package operation
