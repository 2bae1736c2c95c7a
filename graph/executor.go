//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/loomhq/loom/event"
	"github.com/loomhq/loom/telemetry/trace"
)

// AuthorGraphExecutor is the author tag of executor-emitted events.
const AuthorGraphExecutor = "graph-executor"

// Executor defaults.
const (
	defaultMaxSteps          = 25
	defaultMaxConcurrency    = 16
	defaultChannelBufferSize = 256
)

// Executor runs a compiled Graph as a sequence of supersteps. A single
// Executor may serve many concurrent runs; per-run state lives in the
// execution context, never on the Executor.
type Executor struct {
	graph             *Graph
	saver             CheckpointSaver
	maxSteps          int
	maxConcurrency    int
	nodeTimeout       time.Duration
	channelBufferSize int

	pool         *ants.Pool
	subExecutors map[string]*Executor
	closed       atomic.Bool
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*ExecutorOptions)

// ExecutorOptions contains configuration options for creating an Executor.
type ExecutorOptions struct {
	// Saver persists checkpoints. Runs cannot suspend without one.
	Saver CheckpointSaver
	// MaxSteps is the default superstep limit per run.
	MaxSteps int
	// MaxConcurrency bounds parallel node invocations within a superstep.
	MaxConcurrency int
	// NodeTimeout bounds a single node invocation. Zero means no timeout.
	NodeTimeout time.Duration
	// ChannelBufferSize is the buffer size of stream event channels.
	ChannelBufferSize int
}

// WithCheckpointSaver binds a checkpoint saver to the executor. The caller
// retains ownership; Close does not close the saver.
func WithCheckpointSaver(saver CheckpointSaver) ExecutorOption {
	return func(o *ExecutorOptions) {
		o.Saver = saver
	}
}

// WithMaxSteps sets the default superstep limit per run.
func WithMaxSteps(maxSteps int) ExecutorOption {
	return func(o *ExecutorOptions) {
		o.MaxSteps = maxSteps
	}
}

// WithMaxConcurrency bounds parallel node invocations within a superstep.
func WithMaxConcurrency(n int) ExecutorOption {
	return func(o *ExecutorOptions) {
		o.MaxConcurrency = n
	}
}

// WithNodeTimeout bounds each node invocation. Expiry surfaces as a node
// failure, not a silent skip.
func WithNodeTimeout(d time.Duration) ExecutorOption {
	return func(o *ExecutorOptions) {
		o.NodeTimeout = d
	}
}

// WithChannelBufferSize sets the buffer size of stream event channels.
func WithChannelBufferSize(size int) ExecutorOption {
	return func(o *ExecutorOptions) {
		o.ChannelBufferSize = size
	}
}

// NewExecutor creates an executor for a compiled graph. Subgraph nodes get
// their own nested executors with their own worker pools, so a parent
// superstep blocked on a subgraph cannot starve the child's workers.
func NewExecutor(g *Graph, opts ...ExecutorOption) (*Executor, error) {
	if g == nil {
		return nil, errors.New("graph is nil")
	}
	options := ExecutorOptions{
		MaxSteps:          defaultMaxSteps,
		MaxConcurrency:    defaultMaxConcurrency,
		ChannelBufferSize: defaultChannelBufferSize,
	}
	for _, opt := range opts {
		opt(&options)
	}
	pool, err := ants.NewPool(options.MaxConcurrency)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	e := &Executor{
		graph:             g,
		saver:             options.Saver,
		maxSteps:          options.MaxSteps,
		maxConcurrency:    options.MaxConcurrency,
		nodeTimeout:       options.NodeTimeout,
		channelBufferSize: options.ChannelBufferSize,
		pool:              pool,
		subExecutors:      make(map[string]*Executor),
	}
	for _, n := range g.nodes {
		if n.subgraph == nil {
			continue
		}
		sub, err := NewExecutor(n.subgraph,
			WithMaxSteps(options.MaxSteps),
			WithMaxConcurrency(options.MaxConcurrency),
			WithNodeTimeout(options.NodeTimeout),
			WithChannelBufferSize(options.ChannelBufferSize),
		)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("subgraph %s: %w", n.ID, err)
		}
		e.subExecutors[n.ID] = sub
	}
	return e, nil
}

// Graph returns the compiled graph the executor runs.
func (e *Executor) Graph() *Graph { return e.graph }

// Close releases the worker pools of the executor and its nested subgraph
// executors. The bound checkpoint saver is not closed.
func (e *Executor) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	for _, sub := range e.subExecutors {
		sub.Close()
	}
	e.pool.Release()
	return nil
}

// execContext carries the per-run state of one invocation.
type execContext struct {
	invocationID   string
	threadID       string
	eventChan      chan<- *event.Event
	modes          map[StreamMode]bool
	subgraphEvents bool
	path           []string
	resumeValues   map[string]any
	persistent     bool
	limit          int

	lastCheckpointID string
}

func (e *Executor) newRunOptions(opts []RunOption) *runOptions {
	ro := &runOptions{recursionLimit: e.maxSteps}
	for _, opt := range opts {
		opt(ro)
	}
	if ro.invocationID == "" {
		ro.invocationID = uuid.NewString()
	}
	if ro.threadID == "" && e.saver != nil {
		ro.threadID = uuid.NewString()
	}
	return ro
}

func (e *Executor) newExecContext(ro *runOptions) *execContext {
	modes := make(map[StreamMode]bool, len(ro.streamModes))
	for _, m := range ro.streamModes {
		modes[m] = true
	}
	return &execContext{
		invocationID:   ro.invocationID,
		threadID:       ro.threadID,
		modes:          modes,
		subgraphEvents: ro.subgraphEvents,
		persistent:     e.saver != nil,
		limit:          ro.recursionLimit,
	}
}

// Invoke runs the graph to completion and returns the final merged state.
// When a node suspends, Invoke returns a *InterruptError carrying the
// payload and the task identity needed to resume; the thread's latest
// checkpoint records the pending nodes.
func (e *Executor) Invoke(ctx context.Context, initial State, opts ...RunOption) (State, error) {
	ro := e.newRunOptions(opts)
	return e.execute(ctx, e.newExecContext(ro), initial, ro.command)
}

// Resume continues a suspended thread with the given command. It is
// shorthand for Invoke with WithCommand and no initial state.
func (e *Executor) Resume(ctx context.Context, cmd *Command, opts ...RunOption) (State, error) {
	return e.Invoke(ctx, nil, append(append([]RunOption{}, opts...), WithCommand(cmd))...)
}

// CurrentState returns the latest checkpoint of a thread, or nil when the
// thread has none.
func (e *Executor) CurrentState(ctx context.Context, threadID string) (*Checkpoint, error) {
	if e.saver == nil {
		return nil, fmt.Errorf("state inspection: %w", ErrPersistenceRequired)
	}
	return e.saver.Latest(ctx, threadID)
}

// StateHistory returns all checkpoints of a thread, newest first.
func (e *Executor) StateHistory(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	if e.saver == nil {
		return nil, fmt.Errorf("state inspection: %w", ErrPersistenceRequired)
	}
	return e.saver.List(ctx, threadID)
}

// Stream runs the graph and returns a lazy event channel. The channel is
// closed when the run terminates; a failed run ends with a terminal error
// event, an interrupted run with a graph.interrupt event.
func (e *Executor) Stream(ctx context.Context, initial State, opts ...RunOption) (<-chan *event.Event, error) {
	if e.closed.Load() {
		return nil, ErrExecutorClosed
	}
	ro := e.newRunOptions(opts)
	if len(ro.streamModes) == 0 {
		ro.streamModes = []StreamMode{StreamModeEvents}
	}
	ch := make(chan *event.Event, e.channelBufferSize)
	ec := e.newExecContext(ro)
	ec.eventChan = ch
	go func() {
		defer close(ch)
		final, err := e.execute(ctx, ec, initial, ro.command)
		switch {
		case err == nil:
			if ec.modes[StreamModeEvents] {
				e.emit(ctx, ec, event.New(ec.invocationID, AuthorGraphExecutor,
					event.WithType(event.TypeGraphEnd),
					event.WithMode(string(StreamModeEvents)),
					event.WithState(final),
				))
			}
		case IsInterruptError(err):
			ie, _ := AsInterruptError(err)
			if ec.modes[StreamModeEvents] {
				e.emit(ctx, ec, event.New(ec.invocationID, AuthorGraphExecutor,
					event.WithType(event.TypeGraphInterrupt),
					event.WithMode(string(StreamModeEvents)),
					event.WithNodeID(ie.NodeID),
					event.WithStep(ie.Step),
					event.WithInterrupt(ie.Value),
				))
			}
		default:
			// Run failure always surfaces, whatever modes were requested.
			// Only tag it as an events-mode event when that mode produced
			// the stream.
			opts := []event.Option{event.WithError(classifyError(err), err.Error())}
			if ec.modes[StreamModeEvents] {
				opts = append(opts, event.WithMode(string(StreamModeEvents)))
			}
			e.emit(ctx, ec, event.New(ec.invocationID, AuthorGraphExecutor, opts...))
		}
	}()
	return ch, nil
}

func classifyError(err error) string {
	var ne *NodeError
	switch {
	case errors.Is(err, ErrRecursionLimit):
		return ErrorTypeRecursionLimit
	case errors.As(err, &ne):
		return ErrorTypeNodeExecution
	default:
		return ErrorTypeGraphExecution
	}
}

// execute prepares the initial state and frontier, handling resume
// commands, then drives the superstep loop.
func (e *Executor) execute(ctx context.Context, ec *execContext, initial State, cmd *Command) (State, error) {
	if e.closed.Load() {
		return nil, ErrExecutorClosed
	}
	ctx, span := trace.Tracer.Start(ctx, "graph.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("loom.invocation_id", ec.invocationID),
		attribute.String("loom.thread_id", ec.threadID),
	)

	var (
		state    State
		frontier []string
		step     int
		err      error
	)
	if cmd != nil {
		state, frontier, step, err = e.prepareResume(ctx, ec, cmd)
	} else {
		state = e.graph.schema.ApplyDefaults(initial)
		frontier, err = e.initialFrontier(ctx, state)
		ec.resumeValues = make(map[string]any)
	}
	if err != nil {
		return nil, err
	}
	return e.runLoop(ctx, ec, state, frontier, step)
}

// prepareResume loads the pending interrupt checkpoint of the thread and
// seeds the resume values. The checkpoint history stays untouched when no
// interrupt is pending.
func (e *Executor) prepareResume(ctx context.Context, ec *execContext, cmd *Command) (State, []string, int, error) {
	if e.saver == nil || ec.threadID == "" {
		return nil, nil, 0, fmt.Errorf("thread %q: %w", ec.threadID, ErrNoPendingInterrupt)
	}
	ckpt, err := e.saver.Latest(ctx, ec.threadID)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("load checkpoint: %w", err)
	}
	if ckpt == nil || ckpt.Interrupt == nil {
		return nil, nil, 0, fmt.Errorf("thread %q: %w", ec.threadID, ErrNoPendingInterrupt)
	}

	state := ckpt.State.Clone()
	if cmd.Update != nil {
		state = e.graph.schema.ApplyUpdate(state, cmd.Update)
	}
	ec.resumeValues = make(map[string]any, len(ckpt.Interrupt.ResumeValues)+1)
	for k, v := range ckpt.Interrupt.ResumeValues {
		ec.resumeValues[k] = v
	}
	if cmd.Resume != nil {
		ec.resumeValues[ckpt.Interrupt.TaskID] = cmd.Resume
	}
	for k, v := range cmd.ResumeMap {
		ec.resumeValues[k] = v
	}

	frontier := append([]string(nil), ckpt.NextNodes...)
	if cmd.GoTo != "" {
		frontier = []string{cmd.GoTo}
	}
	ec.lastCheckpointID = ckpt.ID
	// Re-run the superstep that was interrupted.
	return state, frontier, ckpt.Meta.Step - 1, nil
}

// initialFrontier resolves the targets of Start's static and conditional
// edges against the initial state.
func (e *Executor) initialFrontier(ctx context.Context, state State) ([]string, error) {
	frontier := append([]string(nil), e.graph.EntryTargets()...)
	if ce, ok := e.graph.conditionalEdges[Start]; ok {
		targets, err := e.route(ctx, ce, state)
		if err != nil {
			return nil, err
		}
		frontier = append(frontier, targets...)
	}
	for _, id := range frontier {
		if id == End {
			continue
		}
		if _, ok := e.graph.index[id]; !ok {
			return nil, fmt.Errorf("entry target %s: %w", id, ErrUnknownNode)
		}
	}
	return dedupeSorted(frontier), nil
}

// runLoop drives supersteps until the frontier drains, the limit is hit,
// or a node fails or suspends. Superstep N's merged state is fully
// committed before superstep N+1's frontier is computed.
func (e *Executor) runLoop(ctx context.Context, ec *execContext, state State, frontier []string, step int) (State, error) {
	for {
		active := activeNodes(frontier)
		if len(active) == 0 {
			return state, nil
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}
		step++
		if step > ec.limit {
			return state, fmt.Errorf("maximum supersteps (%d) exceeded: %w", ec.limit, ErrRecursionLimit)
		}
		results, err := e.runSuperstep(ctx, ec, state, active, step)
		if err != nil {
			if ie, ok := AsInterruptError(err); ok {
				if perr := e.putInterruptCheckpoint(ctx, ec, state, active, step, ie); perr != nil {
					return state, perr
				}
			}
			return state, err
		}
		merged := e.mergeSuperstep(state, results)
		next, err := e.nextFrontier(ctx, merged, results)
		if err != nil {
			return state, err
		}
		if err := e.putLoopCheckpoint(ctx, ec, merged, next, step); err != nil {
			return state, err
		}
		e.emitUpdates(ctx, ec, results, step)
		e.emitValues(ctx, ec, merged, step)
		state = merged
		frontier = next
	}
}

// nodeResult is the outcome of one node invocation within a superstep.
type nodeResult struct {
	nodeID string
	update State
	// fullState marks a subgraph result: its final state replaces the
	// fields it carries instead of passing through the reducers, since
	// the subgraph already merged against the parent snapshot.
	fullState bool
	command   *Command
}

// runSuperstep invokes every frontier node concurrently against immutable
// snapshots of the same state. Results are positional, so their order is
// the sorted frontier order regardless of completion order.
func (e *Executor) runSuperstep(ctx context.Context, ec *execContext, state State, active []string, step int) ([]nodeResult, error) {
	ctx, span := trace.Tracer.Start(ctx, "graph.superstep")
	defer span.End()
	span.SetAttributes(
		attribute.Int("loom.step", step),
		attribute.Int("loom.frontier_size", len(active)),
	)

	results := make([]nodeResult, len(active))
	errs := make([]error, len(active))
	var wg sync.WaitGroup
	for i, nodeID := range active {
		node, ok := e.graph.Node(nodeID)
		if !ok {
			return nil, fmt.Errorf("frontier node %s: %w", nodeID, ErrUnknownNode)
		}
		i, node := i, node
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i], errs[i] = e.runNode(ctx, ec, node, state.Clone(), step)
		}
		if err := e.pool.Submit(task); err != nil {
			errs[i] = fmt.Errorf("submit node %s: %w", node.ID, err)
			wg.Done()
		}
	}
	wg.Wait()

	// Mid-superstep cancellation: in-flight invocations have finished,
	// their results are discarded without a commit.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// runNode executes a single node (or its subgraph) against a private
// state snapshot and normalizes the result.
func (e *Executor) runNode(ctx context.Context, ec *execContext, node *Node, snapshot State, step int) (nodeResult, error) {
	result := nodeResult{nodeID: node.ID}

	ctx, span := trace.Tracer.Start(ctx, "graph.node "+node.ID)
	defer span.End()
	span.SetAttributes(
		attribute.String("loom.node_id", node.ID),
		attribute.Int("loom.step", step),
	)

	e.emitNodeStart(ctx, ec, node.ID, step)

	cbCtx := &NodeCallbackContext{
		NodeID:             node.ID,
		NodeName:           node.Name,
		StepNumber:         step,
		InvocationID:       ec.invocationID,
		ExecutionStartTime: time.Now(),
	}

	res, err := e.invokeNode(ctx, ec, node, cbCtx, snapshot, step)
	if node.subgraph != nil && err == nil {
		result.fullState = true
	}
	if err != nil {
		if ie, ok := AsInterruptError(err); ok {
			return result, ie
		}
		if node.callbacks != nil {
			node.callbacks.RunOnNodeError(ctx, cbCtx, snapshot, err)
		}
		span.SetAttributes(attribute.String("loom.error", err.Error()))
		return result, &NodeError{NodeID: node.ID, Err: err}
	}

	switch v := res.(type) {
	case nil:
	case State:
		result.update = v
	case map[string]any:
		result.update = State(v)
	case *Command:
		result.command = v
		result.update = v.Update
	default:
		return result, &NodeError{NodeID: node.ID, Err: fmt.Errorf("invalid result type %T", res)}
	}
	e.emitNodeEnd(ctx, ec, node.ID, step)
	return result, nil
}

// invokeNode runs before/after callbacks around the node function or
// subgraph run.
func (e *Executor) invokeNode(ctx context.Context, ec *execContext, node *Node, cbCtx *NodeCallbackContext, snapshot State, step int) (any, error) {
	if node.callbacks != nil {
		custom, err := node.callbacks.RunBeforeNode(ctx, cbCtx, snapshot)
		if err != nil {
			return nil, err
		}
		if custom != nil {
			return custom, nil
		}
	}

	var res any
	var err error
	if node.subgraph != nil {
		res, err = e.runSubgraph(ctx, ec, node, snapshot)
	} else {
		nodeCtx := withInterruptTracker(ctx, &interruptTracker{
			nodeID:       node.ID,
			path:         ec.path,
			step:         step,
			persistent:   ec.persistent,
			resumeValues: ec.resumeValues,
		})
		cancel := func() {}
		if e.nodeTimeout > 0 {
			nodeCtx, cancel = context.WithTimeout(nodeCtx, e.nodeTimeout)
		}
		res, err = node.Function(nodeCtx, snapshot)
		cancel()
	}

	if node.callbacks != nil && !IsInterruptError(err) {
		custom, cbErr := node.callbacks.RunAfterNode(ctx, cbCtx, snapshot, res, err)
		if cbErr != nil {
			return nil, cbErr
		}
		if custom != nil {
			return custom, nil
		}
	}
	return res, err
}

// runSubgraph executes a nested compiled graph from the parent snapshot
// and returns its final state. Node events inside the subgraph surface on
// the parent stream with a nested path when subgraph events are enabled.
func (e *Executor) runSubgraph(ctx context.Context, ec *execContext, node *Node, snapshot State) (any, error) {
	sub, ok := e.subExecutors[node.ID]
	if !ok {
		return nil, fmt.Errorf("subgraph %s has no executor: %w", node.ID, ErrUnknownNode)
	}
	childEC := &execContext{
		invocationID:   ec.invocationID,
		threadID:       ec.threadID,
		path:           append(append([]string(nil), ec.path...), node.ID),
		resumeValues:   ec.resumeValues,
		persistent:     ec.persistent,
		limit:          ec.limit,
		subgraphEvents: ec.subgraphEvents,
		modes:          map[StreamMode]bool{},
	}
	if ec.subgraphEvents && ec.modes[StreamModeEvents] {
		childEC.eventChan = ec.eventChan
		childEC.modes[StreamModeEvents] = true
	}
	frontier, err := sub.initialFrontier(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	final, err := sub.runLoop(ctx, childEC, snapshot, frontier, 0)
	if err != nil {
		return nil, err
	}
	return final, nil
}

// mergeSuperstep folds the superstep's updates into the previous state.
// Results arrive in ascending node-ID order, which fixes the tie-break
// when two nodes update the same field.
func (e *Executor) mergeSuperstep(state State, results []nodeResult) State {
	merged := state
	for _, r := range results {
		if r.update == nil {
			continue
		}
		if r.fullState {
			merged = merged.Clone()
			for k, v := range r.update {
				merged[k] = v
			}
			continue
		}
		merged = e.graph.schema.ApplyUpdate(merged, r.update)
	}
	if len(results) == 0 {
		return state.Clone()
	}
	return merged
}

// nextFrontier computes the following superstep's frontier from the
// merged state: command GoTo targets, static edge targets and conditional
// router results of every node that ran. Nodes without any outgoing
// transition implicitly route to End.
func (e *Executor) nextFrontier(ctx context.Context, merged State, results []nodeResult) ([]string, error) {
	var next []string
	add := func(id string) error {
		if id != End {
			if _, ok := e.graph.index[id]; !ok {
				return fmt.Errorf("route target %s: %w", id, ErrUnknownNode)
			}
		}
		next = append(next, id)
		return nil
	}
	for _, r := range results {
		if r.command != nil && r.command.GoTo != "" {
			if err := add(r.command.GoTo); err != nil {
				return nil, err
			}
			continue
		}
		for _, t := range e.graph.StaticTargets(r.nodeID) {
			if err := add(t); err != nil {
				return nil, err
			}
		}
		if ce, ok := e.graph.conditionalEdges[r.nodeID]; ok {
			targets, err := e.route(ctx, ce, merged)
			if err != nil {
				return nil, err
			}
			for _, t := range targets {
				if err := add(t); err != nil {
					return nil, err
				}
			}
		}
		if !e.graph.hasOutgoing(r.nodeID) {
			_ = add(End)
		}
	}
	return dedupeSorted(next), nil
}

// route evaluates a conditional edge against the merged state.
func (e *Executor) route(ctx context.Context, ce *ConditionalEdge, state State) ([]string, error) {
	var raw []string
	switch {
	case ce.MultiCondition != nil:
		targets, err := ce.MultiCondition(ctx, state.Clone())
		if err != nil {
			return nil, fmt.Errorf("conditional edge from %s: %w", ce.From, err)
		}
		raw = targets
	case ce.Condition != nil:
		target, err := ce.Condition(ctx, state.Clone())
		if err != nil {
			return nil, fmt.Errorf("conditional edge from %s: %w", ce.From, err)
		}
		raw = []string{target}
	default:
		return nil, fmt.Errorf("conditional edge from %s has no condition", ce.From)
	}
	if ce.PathMap == nil {
		return raw, nil
	}
	targets := make([]string, 0, len(raw))
	for _, r := range raw {
		t, ok := ce.PathMap[r]
		if !ok {
			return nil, fmt.Errorf("condition result %q not found in path map: %w", r, ErrUnknownNode)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// putLoopCheckpoint appends the committed superstep to the thread's chain.
// Only the root run checkpoints; subgraph runs are covered by the parent's
// superstep boundary.
func (e *Executor) putLoopCheckpoint(ctx context.Context, ec *execContext, merged State, next []string, step int) error {
	if e.saver == nil || len(ec.path) > 0 {
		return nil
	}
	ckpt := &Checkpoint{
		ID:        NewCheckpointID(step),
		ThreadID:  ec.threadID,
		ParentID:  ec.lastCheckpointID,
		State:     merged.Clone(),
		Meta:      CheckpointMetadata{Source: CheckpointSourceLoop, Step: step},
		NextNodes: activeNodes(next),
		Timestamp: time.Now().UTC(),
	}
	if err := e.saver.Put(ctx, ckpt); err != nil {
		return fmt.Errorf("put checkpoint: %w", err)
	}
	ec.lastCheckpointID = ckpt.ID
	return nil
}

// putInterruptCheckpoint records a suspension. The superstep did not
// commit: the stored state is the pre-superstep state and every frontier
// node is pending re-invocation on resume.
func (e *Executor) putInterruptCheckpoint(ctx context.Context, ec *execContext, state State, active []string, step int, ie *InterruptError) error {
	if e.saver == nil || len(ec.path) > 0 {
		return nil
	}
	resumeValues := make(map[string]any, len(ec.resumeValues))
	for k, v := range ec.resumeValues {
		resumeValues[k] = v
	}
	ckpt := &Checkpoint{
		ID:        NewCheckpointID(step),
		ThreadID:  ec.threadID,
		ParentID:  ec.lastCheckpointID,
		State:     state.Clone(),
		Meta:      CheckpointMetadata{Source: CheckpointSourceInterrupt, Step: step},
		NextNodes: append([]string(nil), active...),
		Interrupt: &InterruptState{
			NodeID:       ie.NodeID,
			TaskID:       ie.TaskID,
			Value:        ie.Value,
			ResumeValues: resumeValues,
			Step:         step,
			Path:         append([]string(nil), ie.Path...),
		},
		Timestamp: time.Now().UTC(),
	}
	if err := e.saver.Put(ctx, ckpt); err != nil {
		return fmt.Errorf("put interrupt checkpoint: %w", err)
	}
	ec.lastCheckpointID = ckpt.ID
	return nil
}

// activeNodes returns the frontier without End, deduplicated and sorted.
func activeNodes(frontier []string) []string {
	out := make([]string, 0, len(frontier))
	for _, id := range frontier {
		if id != End {
			out = append(out, id)
		}
	}
	return dedupeSorted(out)
}

func dedupeSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
