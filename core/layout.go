package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/graphscape/internal/logging"
	"github.com/signalsfoundry/graphscape/model"
)

// LayoutState is the engine's lifecycle state.
type LayoutState int32

const (
	LayoutIdle LayoutState = iota
	LayoutComputing
	LayoutConverged
	LayoutAborted
	LayoutError
)

func (s LayoutState) String() string {
	switch s {
	case LayoutIdle:
		return "idle"
	case LayoutComputing:
		return "computing"
	case LayoutConverged:
		return "converged"
	case LayoutAborted:
		return "aborted"
	case LayoutError:
		return "error"
	}
	return "unknown"
}

// LayoutOptions are the tunable physics and scheduling constants. The zero
// value takes defaults; the qualitative behavior is fixed, the numbers are
// not.
type LayoutOptions struct {
	Repulsion      float64 // pairwise push, scaled by 1/d²
	Attraction     float64 // spring coefficient per unit strength and distance
	Damping        float64 // velocity scale per iteration, < 1
	ClusterGravity float64 // weak pull toward cluster centroid
	StepDecay      float64 // annealing: step *= decay each iteration
	InitialStep    float64
	MaxForce       float64 // cap on any single repulsion magnitude
	MaxSpringStep  float64 // cap on any single spring pull

	Epsilon       float64 // convergence displacement threshold
	MaxIterations int
	WallBudget    time.Duration // hard wall-clock limit per pass
	BatchSize     int           // iterations per batch between yield points

	GridThreshold int     // node count above which the spatial grid kicks in
	MinSeparation float64 // grid cell size is twice this
	InitialRadius float64 // 0 means derived from node count

	// IntermediateEvery publishes a non-converged snapshot after every
	// batch once the graph has at least this many nodes, so big layouts
	// settle progressively on screen. 0 takes the default.
	IntermediateEvery int

	// DebounceInterval coalesces rapid successive graph changes into one
	// restart.
	DebounceInterval time.Duration
}

func (o LayoutOptions) withDefaults() LayoutOptions {
	if o.Repulsion <= 0 {
		o.Repulsion = 5000
	}
	if o.Attraction <= 0 {
		o.Attraction = 0.015
	}
	if o.Damping <= 0 || o.Damping >= 1 {
		o.Damping = 0.85
	}
	if o.ClusterGravity < 0 {
		o.ClusterGravity = 0
	} else if o.ClusterGravity == 0 {
		o.ClusterGravity = 0.02
	}
	if o.StepDecay <= 0 || o.StepDecay > 1 {
		o.StepDecay = 0.995
	}
	if o.InitialStep <= 0 {
		o.InitialStep = 1
	}
	if o.MaxForce <= 0 {
		o.MaxForce = 500
	}
	if o.MaxSpringStep <= 0 {
		o.MaxSpringStep = 10
	}
	if o.Epsilon <= 0 {
		o.Epsilon = 0.01
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 600
	}
	if o.WallBudget <= 0 {
		o.WallBudget = 10 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 25
	}
	if o.GridThreshold <= 0 {
		o.GridThreshold = 256
	}
	if o.MinSeparation <= 0 {
		o.MinSeparation = 2
	}
	if o.IntermediateEvery <= 0 {
		o.IntermediateEvery = 200
	}
	if o.DebounceInterval <= 0 {
		o.DebounceInterval = 150 * time.Millisecond
	}
	return o
}

// LayoutInput is one unit of work: the graph revision to lay out. A newer
// input supersedes any in-flight pass; the superseded pass stops publishing.
type LayoutInput struct {
	GraphVersion uint64
	Nodes        []model.Node
	Edges        []model.Edge // working edges from FilterEdges

	// ClusterOf maps node id to cluster index for cluster gravity. May be
	// nil on the first pass, before any clustering has run.
	ClusterOf map[string]int
}

// LayoutMetricsRecorder receives layout pass telemetry. Implemented by the
// observability collector; nil disables recording.
type LayoutMetricsRecorder interface {
	LayoutPassDone(iterations int, converged bool, duration time.Duration)
	LayoutRecoveries(count int)
}

// LayoutEngine runs the force simulation on its own worker goroutine and
// publishes immutable snapshots through an atomic pointer. State transitions
// are Idle → Computing → {Converged, Aborted, Error}; Computing re-enters
// whenever the input graph changes materially.
type LayoutEngine struct {
	opts    LayoutOptions
	log     logging.Logger
	metrics LayoutMetricsRecorder

	requests chan LayoutInput

	snapshot atomic.Pointer[model.LayoutSnapshot]
	version  atomic.Uint64
	state    atomic.Int32

	listeners []func(*model.LayoutSnapshot)

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewLayoutEngine constructs an engine. metrics may be nil.
func NewLayoutEngine(opts LayoutOptions, log logging.Logger, metrics LayoutMetricsRecorder) *LayoutEngine {
	if log == nil {
		log = logging.Noop()
	}
	return &LayoutEngine{
		opts:     opts.withDefaults(),
		log:      log,
		metrics:  metrics,
		requests: make(chan LayoutInput, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnSnapshot registers a callback invoked on the worker goroutine after
// every publish. Register before Start; callbacks must not block.
func (e *LayoutEngine) OnSnapshot(fn func(*model.LayoutSnapshot)) {
	e.listeners = append(e.listeners, fn)
}

// Start launches the worker goroutine.
func (e *LayoutEngine) Start() {
	e.startOnce.Do(func() {
		go e.run()
	})
}

// Stop terminates the worker. Any in-flight pass is abandoned.
func (e *LayoutEngine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
	<-e.done
}

// Submit queues a layout request. It never blocks: a queued-but-unstarted
// request is replaced by the newer one.
func (e *LayoutEngine) Submit(in LayoutInput) {
	for {
		select {
		case e.requests <- in:
			return
		default:
			// Drain the stale queued request and retry with the newer one.
			select {
			case <-e.requests:
			default:
			}
		}
	}
}

// Snapshot returns the most recently published snapshot, or nil before the
// first pass completes a batch.
func (e *LayoutEngine) Snapshot() *model.LayoutSnapshot {
	return e.snapshot.Load()
}

// State returns the engine's current lifecycle state.
func (e *LayoutEngine) State() LayoutState {
	return LayoutState(e.state.Load())
}

func (e *LayoutEngine) run() {
	defer close(e.done)

	var (
		pending  *LayoutInput
		debounce *time.Timer
		fire     <-chan time.Time
	)

	for {
		select {
		case in := <-e.requests:
			// Coalesce: restart the debounce window on every arrival.
			pending = &in
			if debounce == nil {
				debounce = time.NewTimer(e.opts.DebounceInterval)
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(e.opts.DebounceInterval)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			in := pending
			pending = nil
			next := e.computePass(*in)
			for next != nil {
				// A pass superseded mid-flight chains straight into the
				// replacement without another debounce window.
				next = e.computePass(*next)
			}

		case <-e.stop:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

// computePass runs one full simulation pass. It returns a non-nil input when
// a newer request superseded this pass; the superseded pass publishes
// nothing further.
func (e *LayoutEngine) computePass(in LayoutInput) *LayoutInput {
	ctx, passID := logging.EnsurePassID(context.Background())
	log := e.log.With(logging.String("pass_id", passID))

	tracer := otel.Tracer("graphscape/core")
	ctx, span := tracer.Start(ctx, "layout.pass")
	span.SetAttributes(
		attribute.Int("nodes", len(in.Nodes)),
		attribute.Int("edges", len(in.Edges)),
		attribute.Int64("graph_version", int64(in.GraphVersion)),
	)
	defer span.End()

	e.state.Store(int32(LayoutComputing))
	started := time.Now()

	if len(in.Nodes) == 0 {
		// Empty graph: publish an empty converged snapshot so consumers
		// clear stale geometry.
		e.publish(in, nil, true, 0)
		e.state.Store(int32(LayoutConverged))
		return nil
	}

	sim := newSimState(e.opts, in.Nodes, in.Edges, in.ClusterOf, e.Snapshot())
	intermediate := len(in.Nodes) >= e.opts.IntermediateEvery

	iter := 0
	converged := false
	deadline := started.Add(e.opts.WallBudget)

	for iter < e.opts.MaxIterations {
		batchEnd := iter + e.opts.BatchSize
		if batchEnd > e.opts.MaxIterations {
			batchEnd = e.opts.MaxIterations
		}
		maxDisp := 0.0
		for ; iter < batchEnd; iter++ {
			maxDisp = sim.iterate()
			if maxDisp < e.opts.Epsilon {
				iter++
				converged = true
				break
			}
		}
		if converged {
			break
		}
		if time.Now().After(deadline) {
			// Timeout is not an error: the best current result ships,
			// flagged non-converged.
			log.Warn(ctx, "layout pass hit wall-clock budget",
				logging.Int("iterations", iter),
				logging.Float64("max_displacement", maxDisp))
			break
		}

		// Yield point between batches: newer work supersedes this pass.
		select {
		case next := <-e.requests:
			e.state.Store(int32(LayoutAborted))
			span.SetAttributes(attribute.Bool("superseded", true))
			log.Debug(ctx, "layout pass superseded", logging.Int("iterations", iter))
			return &next
		case <-e.stop:
			e.state.Store(int32(LayoutAborted))
			return nil
		default:
		}

		if intermediate {
			e.publish(in, sim.snapshotPositions(), false, iter)
		}
	}

	if sim.recoveries > 0 {
		log.Warn(ctx, "recovered non-finite positions",
			logging.Int("nodes", sim.recoveries))
		if e.metrics != nil {
			e.metrics.LayoutRecoveries(sim.recoveries)
		}
	}

	e.publish(in, sim.snapshotPositions(), converged, iter)
	e.state.Store(int32(LayoutConverged))

	duration := time.Since(started)
	span.SetAttributes(
		attribute.Int("iterations", iter),
		attribute.Bool("converged", converged),
	)
	if e.metrics != nil {
		e.metrics.LayoutPassDone(iter, converged, duration)
	}
	log.Info(ctx, "layout pass finished",
		logging.Int("iterations", iter),
		logging.Any("converged", converged),
		logging.String("duration", duration.String()))
	return nil
}

// publish builds the full snapshot off the consuming side and swaps a single
// pointer, so readers only ever observe complete snapshots with strictly
// increasing versions.
func (e *LayoutEngine) publish(in LayoutInput, positions map[string]model.Position, converged bool, iterations int) {
	if positions == nil {
		positions = map[string]model.Position{}
	}
	snap := &model.LayoutSnapshot{
		Version:      e.version.Add(1),
		GraphVersion: in.GraphVersion,
		Positions:    positions,
		Converged:    converged,
		Iterations:   iterations,
		ComputedAt:   time.Now(),
	}
	e.snapshot.Store(snap)
	for _, fn := range e.listeners {
		fn(snap)
	}
}
