// Package interp is an in-process runner for opgraph graphs. It executes the
// five elementary ops directly in Go and is the reference runner the
// graph-based sweep is tested against.
//
// # Execution model
//
// Every call to Execute builds a fresh run: one record per graph node holding
// an atomic count of inputs not yet produced. Nodes with nothing to wait for
// go onto a queue served by a fixed pool of workers; a worker evaluates the
// kernel, stores the output and queues every consumer whose count drops to
// zero. A failing kernel cancels the run and everything downstream of it is
// settled as unreached. Execute reports the failing kernels only.
//
// # Values
//
// Intermediate tensors live in a per-run value store keyed by value name.
// Kernels always allocate their outputs, so graph inputs are never written.
//
// # Precision
//
// Graphs with DType float32 round inputs, constants and the result of every
// arithmetic operation to float32, emulating an engine that computes in
// single precision. Float64 graphs compute exactly like the array solver.
package interp
