package arithgraph

import (
	"io/ioutil"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Task is a single-use scheduling record: a vertex to resolve plus the
// callback hooks the evaluator uses to track its outcome. Pre is invoked
// before the vertex is solved, Done after a successful resolution and Fail
// when the worker could not produce a value.
type Task struct {
	Vertex *Vertex

	Pre  func()
	Done func()
	Fail func()
}

// SchedulerConfig encapsulates the settings for creating a new Scheduler.
type SchedulerConfig struct {
	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

// Scheduler brokers tasks between a single evaluator and a dynamic set of
// workers. It is a plain FIFO queue plus a worker registry; it performs no
// matching of its own. Workers pull tasks, which keeps the dispatcher
// trivial and workers symmetric.
type Scheduler struct {
	mu            sync.Mutex
	workAvailable *sync.Cond

	tasks        []*Task
	workers      map[uuid.UUID]*Worker
	shuttingDown bool

	logger *logrus.Entry
}

// NewScheduler returns a scheduler with no tasks and no workers.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	s := &Scheduler{
		workers: make(map[uuid.UUID]*Worker),
		logger:  cfg.Logger,
	}
	s.workAvailable = sync.NewCond(&s.mu)
	return s
}

// AddTask appends a task to the queue. If the queue was empty, every idle
// worker is woken up so the whole batch that typically follows can be
// drained in parallel.
func (s *Scheduler) AddTask(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		s.logger.WithField("vertex", t.Vertex.Label()).Warn("dropping task: scheduler is shutting down")
		return
	}
	s.tasks = append(s.tasks, t)
	s.logger.WithField("vertex", t.Vertex.Label()).Debug("queued task")
	if len(s.tasks) == 1 {
		s.workAvailable.Broadcast()
	}
}

// RegisterWorker adds a worker to the registry. The scheduler owns the
// worker from this point on: closing the scheduler terminates it.
func (s *Scheduler) RegisterWorker(w *Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.id] = w
	s.logger.WithFields(logrus.Fields{
		"worker":    w.name,
		"worker_id": w.id,
	}).Info("registered worker")
}

// UnregisterWorker removes a worker from the registry, passing its
// ownership back to the caller. In practice the caller is the worker's own
// shutdown path.
func (s *Scheduler) UnregisterWorker(w *Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workers, w.id)
	s.logger.WithFields(logrus.Fields{
		"worker":    w.name,
		"worker_id": w.id,
	}).Info("unregistered worker")
}

// Stats is a point-in-time snapshot of the scheduler state.
type Stats struct {
	// Number of tasks waiting to be picked up by a worker.
	QueueDepth int
	// Names of the currently registered workers.
	Workers []string
}

// Stats returns a snapshot of the queue depth and the registered workers.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{QueueDepth: len(s.tasks)}
	for _, w := range s.workers {
		st.Workers = append(st.Workers, w.name)
	}
	return st
}

// Close terminates every registered worker and blocks until their
// goroutines have exited. Queued tasks that no worker picked up are
// discarded.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil
	}
	s.shuttingDown = true
	remaining := make([]*Worker, 0, len(s.workers))
	for _, w := range s.workers {
		remaining = append(remaining, w)
	}
	s.mu.Unlock()

	s.logger.Info("cleaning up workers")
	s.workAvailable.Broadcast()
	for _, w := range remaining {
		// Closing the operator unblocks workers that are suspended on
		// transport I/O rather than on the work-available condition.
		_ = w.op.Close()
	}
	for _, w := range remaining {
		<-w.stopped
	}
	s.mu.Lock()
	s.workers = make(map[uuid.UUID]*Worker)
	s.tasks = nil
	s.mu.Unlock()
	s.logger.Info("done cleaning up workers")
	return nil
}
