package arithgraph

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Worker is a long-lived execution resource registered with exactly one
// scheduler. Each worker runs a goroutine that pulls tasks off the
// scheduler queue, resolves the task's vertex through its operator and
// reports the outcome via the task callbacks.
//
// A worker whose operator fails is considered contaminated: it fires the
// task's Fail hook, unregisters itself from the scheduler and terminates.
// The failed task re-enters the queue through the evaluator and is retried
// by a surviving worker.
type Worker struct {
	id   uuid.UUID
	name string

	sched  *Scheduler
	op     Operator
	logger *logrus.Entry

	// Closed when the worker goroutine exits, so the scheduler can join it.
	stopped chan struct{}
}

// NewWorker registers a worker backed by the provided operator with the
// scheduler and starts its processing goroutine.
func NewWorker(s *Scheduler, op Operator, name string) *Worker {
	w := &Worker{
		id:      uuid.New(),
		name:    name,
		sched:   s,
		op:      op,
		stopped: make(chan struct{}),
	}
	w.logger = s.logger.WithField("worker", name)
	s.RegisterWorker(w)
	go w.loop()
	return w
}

// NewLocalWorker registers a worker that computes sums and products
// in-process through the provided algebra.
func NewLocalWorker(s *Scheduler, alg Algebra, name string) *Worker {
	return NewWorker(s, localOperator{alg: alg}, name)
}

// CreateLocalWorkers registers n local workers with the scheduler and
// returns them.
func CreateLocalWorkers(s *Scheduler, alg Algebra, n int) []*Worker {
	workers := make([]*Worker, n)
	for i := 0; i < n; i++ {
		workers[i] = NewLocalWorker(s, alg, fmt.Sprintf("LocalWorker_%d", i+1))
	}
	return workers
}

// ID returns the unique identity assigned to this worker.
func (w *Worker) ID() uuid.UUID { return w.id }

// Name returns the worker's display name.
func (w *Worker) Name() string { return w.name }

func (w *Worker) loop() {
	defer close(w.stopped)
	defer func() { _ = w.op.Close() }()

	for {
		w.sched.mu.Lock()
		for len(w.sched.tasks) == 0 && !w.sched.shuttingDown {
			w.logger.Debug("waiting for work")
			w.sched.workAvailable.Wait()
		}
		if w.sched.shuttingDown {
			w.sched.mu.Unlock()
			return
		}
		task := w.sched.tasks[0]
		w.sched.tasks = w.sched.tasks[1:]
		w.sched.mu.Unlock()

		w.logger.WithField("vertex", task.Vertex.Label()).Debug("starting task")
		if task.Pre != nil {
			task.Pre()
		}
		if err := w.solve(task.Vertex); err != nil {
			if xerrors.Is(err, ErrPeerClosed) {
				w.logger.Info("connection terminated, exiting")
			} else {
				w.logger.WithFields(logrus.Fields{
					"vertex": task.Vertex.Label(),
					"error":  err,
				}).Error("task failed")
			}
			if task.Fail != nil {
				task.Fail()
			}
			w.sched.UnregisterWorker(w)
			return
		}
		if task.Done != nil {
			task.Done()
		}
		w.logger.WithField("vertex", task.Vertex.Label()).Debug("finished task")
	}
}

// solve computes the vertex value through the operator and publishes it.
// The operand reads are deliberately unsynchronized: only solve ever writes
// a vertex value, and the evaluator never dispatches a vertex whose
// operands are not already resolved; the queue handoff provides the
// necessary memory ordering. The write side takes the evaluator mutex so
// that a Done observed by the evaluator implies the value is visible.
func (w *Worker) solve(v *Vertex) error {
	var (
		result interface{}
		err    error
	)
	switch v.state {
	case stateLeaf, stateResolved:
		return nil
	case statePendingSum:
		result, err = w.op.Sum(v.left().value, v.right().value)
	case statePendingProd:
		result, err = w.op.Prod(v.left().value, v.right().value)
	}
	if err != nil {
		return xerrors.Errorf("solve %q: %w", v.label, err)
	}

	ev := v.g.cfg.Evaluator
	ev.mu.Lock()
	v.value = result
	v.hasValue = true
	v.state = stateResolved
	ev.mu.Unlock()
	return nil
}

// localOperator computes both operations in the worker's own goroutine.
type localOperator struct {
	alg Algebra
}

func (o localOperator) Sum(left, right interface{}) (interface{}, error) {
	return o.alg.Sum(left, right)
}

func (o localOperator) Prod(left, right interface{}) (interface{}, error) {
	return o.alg.Prod(left, right)
}

func (o localOperator) Close() error { return nil }
