package interp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/wcctgo/internal/ctxlog"
	"github.com/specialistvlad/wcctgo/internal/opgraph"
	"github.com/specialistvlad/wcctgo/internal/tensor"
)

type nodeState int32

const (
	statePending nodeState = iota
	stateRunning
	stateDone
	stateFailed
)

// errUnreached is recorded for nodes whose inputs were never produced.
var errUnreached = errors.New("not reached")

// runNode is the per-run execution record of one graph node.
type runNode struct {
	index      int
	node       opgraph.Node
	dependents []*runNode

	// err is written once by settle and read after the run's WaitGroup
	// completes.
	err error

	// waiting counts the inputs still to be produced.
	waiting atomic.Int32
	state   atomic.Int32
	settled sync.Once
}

type run struct {
	graph   *opgraph.Graph
	kernels registry
	values  *valueStore
	prec    precision
	workers int
	nodes   []*runNode
	wg      sync.WaitGroup
}

func newRun(g *opgraph.Graph, kernels registry, values *valueStore, p precision, workers int) *run {
	r := &run{graph: g, kernels: kernels, values: values, prec: p, workers: max(workers, 1)}
	r.nodes = make([]*runNode, g.NumNodes())
	for i := range r.nodes {
		r.nodes[i] = &runNode{index: i, node: g.Node(i)}
	}
	for i, rn := range r.nodes {
		rn.waiting.Store(int32(len(g.Dependencies(i))))
		for _, d := range g.Dependents(i) {
			rn.dependents = append(rn.dependents, r.nodes[d])
		}
	}
	return r
}

// settle records the outcome of rn exactly once and reports whether this
// call was the one that did. then runs under the same guard.
func (r *run) settle(rn *runNode, state nodeState, err error, then func()) bool {
	first := false
	rn.settled.Do(func() {
		first = true
		rn.state.Store(int32(state))
		rn.err = err
		if then != nil {
			then()
		}
		r.wg.Done()
	})
	return first
}

// execute evaluates the graph on the worker pool. A failing kernel cancels
// the run; the error returned names the nodes whose kernels failed, never the
// ones left unreached behind them.
func (r *run) execute(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	queue := make(chan *runNode, len(r.nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sources := 0
	for _, rn := range r.nodes {
		if rn.waiting.Load() == 0 {
			queue <- rn
			sources++
		}
	}
	logger.Debug("Interpreting graph.", "graph", r.graph.Name(), "nodes", len(r.nodes), "sources", sources, "workers", r.workers)

	r.wg.Add(len(r.nodes))
	for i := 0; i < r.workers; i++ {
		go r.worker(runCtx, queue, cancel, i)
	}
	r.wg.Wait()
	close(queue)

	var (
		culprits []string
		first    error
	)
	for _, rn := range r.nodes {
		if nodeState(rn.state.Load()) != stateFailed || !kernelFailure(rn.err) {
			continue
		}
		culprits = append(culprits, rn.node.Name)
		if first == nil {
			first = rn.err
		}
	}
	if first != nil {
		return fmt.Errorf("interp: execution failed for %s: %w", strings.Join(culprits, ", "), first)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interp: graph %q: %w", r.graph.Name(), err)
	}
	return nil
}

func kernelFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, errUnreached) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// abandon settles everything downstream of rn as unreached.
func (r *run) abandon(ctx context.Context, rn *runNode) {
	for _, next := range rn.dependents {
		err := fmt.Errorf("%w: input %q was not produced", errUnreached, rn.node.Output)
		if r.settle(next, stateFailed, err, nil) {
			ctxlog.FromContext(ctx).Debug("Node not reached.", "node", next.node.Name, "after", rn.node.Name)
			r.abandon(ctx, next)
		}
	}
}

func (r *run) worker(ctx context.Context, queue chan *runNode, cancel context.CancelFunc, id int) {
	logger := ctxlog.FromContext(ctx)

	for rn := range queue {
		if err := ctx.Err(); err != nil {
			r.settle(rn, stateFailed, err, nil)
			r.abandon(ctx, rn)
			continue
		}

		rn.state.Store(int32(stateRunning))
		out, err := r.evaluate(rn.node)
		if err != nil {
			logger.Debug("Kernel failed.", "worker", id, "node", rn.node.Name, "op", rn.node.Op, "error", err)
			r.settle(rn, stateFailed, err, nil)
			cancel()
			r.abandon(ctx, rn)
			continue
		}
		r.values.put(rn.node.Output, out)

		r.settle(rn, stateDone, nil, func() {
			for _, next := range rn.dependents {
				if next.waiting.Add(-1) == 0 {
					queue <- next
				}
			}
		})
	}
}

func (r *run) evaluate(n opgraph.Node) (*tensor.Tensor, error) {
	kernel, ok := r.kernels[n.Op]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOp, n.Op)
	}
	args := make([]*tensor.Tensor, len(n.Inputs))
	for i, name := range n.Inputs {
		t, ok := r.values.get(name)
		if !ok {
			return nil, fmt.Errorf("interp: node %q input %q has no value", n.Name, name)
		}
		args[i] = t
	}
	return kernel(n, args, r.prec)
}
