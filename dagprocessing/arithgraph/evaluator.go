package arithgraph

import (
	"io/ioutil"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

type closureState uint8

const (
	csPending closureState = iota
	csInProgress
	csDone
)

// EvaluatorConfig encapsulates the settings for creating a new Evaluator.
type EvaluatorConfig struct {
	// The scheduler that ready tasks are emitted to.
	Scheduler *Scheduler
	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *EvaluatorConfig) validate() error {
	var err error
	if cfg.Scheduler == nil {
		err = multierror.Append(err, xerrors.Errorf("scheduler has not been provided"))
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Evaluator decides the order in which a graph's vertices are resolved. It
// walks the requested vertices to their unresolved transitive dependencies
// and repeatedly emits every vertex whose operands are resolved to the
// scheduler, blocking the caller until the whole closure is done.
//
// The evaluator mutex additionally guards every vertex value-slot write
// performed by workers; see Worker.solve. When both the evaluator and the
// scheduler mutex are held, the evaluator mutex is always acquired first.
type Evaluator struct {
	cfg EvaluatorConfig

	mu       sync.Mutex
	progress *sync.Cond

	// Vertices the client asked for.
	requested map[*Vertex]struct{}
	// Every unresolved transitive dependency of the requested set.
	closure map[*Vertex]closureState
}

// NewEvaluator returns an evaluator that dispatches through the scheduler
// specified in cfg.
func NewEvaluator(cfg EvaluatorConfig) (*Evaluator, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("evaluator config validation failed: %w", err)
	}
	e := &Evaluator{
		cfg:       cfg,
		requested: make(map[*Vertex]struct{}),
		closure:   make(map[*Vertex]closureState),
	}
	e.progress = sync.NewCond(&e.mu)
	return e, nil
}

// Scheduler returns the scheduler this evaluator dispatches to.
func (e *Evaluator) Scheduler() *Scheduler { return e.cfg.Scheduler }

// Request marks a vertex for evaluation by the next Exec call. Requests are
// idempotent; vertices that are already resolved are not recorded.
func (e *Evaluator) Request(v *Vertex) {
	e.cfg.Logger.WithField("vertex", v.Label()).Info("vertex required")
	if v.resolved() {
		return
	}
	e.requested[v] = struct{}{}
}

// Reset drops the accumulated request set and dependency closure. It must
// not be called while Exec is running.
func (e *Evaluator) Reset() {
	e.requested = make(map[*Vertex]struct{})
	e.closure = make(map[*Vertex]closureState)
}

// Exec blocks until every requested vertex has been resolved. It returns
// immediately when nothing is pending. At least one worker must be
// registered with the scheduler or Exec will block indefinitely; ensuring
// that is the caller's responsibility.
func (e *Evaluator) Exec() {
	e.prepare()
	e.schedule()
}

// prepare populates the closure with every non-resolved vertex reachable
// from the request set via operand edges. The traversal needs no locking:
// the operand topology is immutable once constructed and no tasks are in
// flight yet.
func (e *Evaluator) prepare() {
	for v := range e.requested {
		e.recurse(v)
	}
}

func (e *Evaluator) recurse(v *Vertex) {
	if v.resolved() {
		return
	}
	if _, seen := e.closure[v]; seen {
		return
	}
	e.closure[v] = csPending
	e.recurse(v.left())
	e.recurse(v.right())
}

// schedule is the readiness loop: emit a task for every closure vertex that
// is currently solvable, then wait for a completion to unlock more work.
// Any number of completions may have happened by the time we wake up, each
// potentially unlocking several successors, so the whole closure is
// re-scanned on every pass.
func (e *Evaluator) schedule() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for !e.allDoneLocked() {
		e.cfg.Logger.Debug("checking for work")
		for v, st := range e.closure {
			if st != csPending || !e.solvableLocked(v) {
				continue
			}
			e.closure[v] = csInProgress
			e.emitLocked(v)
		}
		if e.allDoneLocked() {
			break
		}
		e.cfg.Logger.Debug("waiting for tasks to complete")
		e.progress.Wait()
	}
	e.cfg.Logger.Debug("all done")
}

// emitLocked hands a task for v to the scheduler. Called with the evaluator
// mutex held; the scheduler mutex is acquired inside AddTask, preserving
// the evaluator-before-scheduler lock order.
func (e *Evaluator) emitLocked(v *Vertex) {
	e.cfg.Scheduler.AddTask(&Task{
		Vertex: v,
		Pre:    func() {},
		Done: func() {
			e.mu.Lock()
			e.closure[v] = csDone
			e.mu.Unlock()
			e.progress.Broadcast()
		},
		Fail: func() {
			e.mu.Lock()
			e.closure[v] = csPending
			e.mu.Unlock()
			e.progress.Signal()
		},
	})
}

func (e *Evaluator) allDoneLocked() bool {
	for _, st := range e.closure {
		if st != csDone {
			return false
		}
	}
	return true
}

// solvableLocked reports whether v can be handed to a worker right now:
// it must be a pending operation whose operands are both resolved with
// populated value slots.
func (e *Evaluator) solvableLocked(v *Vertex) bool {
	if v.state != statePendingSum && v.state != statePendingProd {
		return false
	}
	left, right := v.left(), v.right()
	return left.resolved() && right.resolved() && left.hasValue && right.hasValue
}
