/*
Package opgraph describes computations as a directed acyclic graph of five
elementary tensor operations: Constant, Conv, Sub, Mul and Add.

A graph is authored as a plain Spec value and turned into an immutable *Graph
by New. New is the only way to obtain a *Graph, and it runs the self-check
first, so every *Graph in the program has already passed it:

 1. Value table: every graph input, initializer and node output gets a unique
    name. References to names that are never defined are rejected.

 2. Node rules: each op has a fixed arity. Constants carry a scalar value,
    Conv nodes carry four non-negative pads, and kernels are rank-4
    initializers with fully known dimensions.

 3. Topology: node dependencies are derived from value names and checked for
    cycles with a depth-first search. Declared inputs that no node consumes
    are rejected as dangling.

 4. Shapes: shapes are inferred op by op. Symbolic dimensions (b, c, h, w) are
    bound to concrete sizes when an op forces it, so a [b,c,h,w] input
    convolved with a 1x1x3x3 kernel binds c to 1. The inferred shape of every
    declared output must unify with its declaration.

All self-check failures wrap ErrInvalidGraph.

BuildRBSOR produces the sixteen-node graph of one full red-black relaxation
sweep for a fixed relaxation factor. Executing it is left to a runner; see
the runtime package.
*/
package opgraph
