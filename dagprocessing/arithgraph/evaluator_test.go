package arithgraph_test

import (
	"math/rand"
	"time"

	"Calc_Engine/algebra/gfn"
	"Calc_Engine/algebra/integers"
	"Calc_Engine/dagprocessing/arithgraph"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

type EvaluatorTestSuite struct {
	sched *arithgraph.Scheduler
	ev    *arithgraph.Evaluator
	g     *arithgraph.Graph
}

var _ = gc.Suite(new(EvaluatorTestSuite))

func (s *EvaluatorTestSuite) SetUpTest(c *gc.C) {
	s.sched, s.ev, s.g = newEngine(c, integers.Algebra{})
	arithgraph.CreateLocalWorkers(s.sched, integers.Algebra{}, 5)
}

func (s *EvaluatorTestSuite) TearDownTest(c *gc.C) {
	c.Assert(s.sched.Close(), gc.IsNil)
}

func newEngine(c *gc.C, alg arithgraph.Algebra) (*arithgraph.Scheduler, *arithgraph.Evaluator, *arithgraph.Graph) {
	sched := arithgraph.NewScheduler(arithgraph.SchedulerConfig{})
	ev, err := arithgraph.NewEvaluator(arithgraph.EvaluatorConfig{Scheduler: sched})
	c.Assert(err, gc.IsNil)
	g, err := arithgraph.NewGraph(arithgraph.GraphConfig{Algebra: alg, Evaluator: ev})
	c.Assert(err, gc.IsNil)
	return sched, ev, g
}

func execWithTimeout(c *gc.C, ev *arithgraph.Evaluator) {
	done := make(chan struct{})
	go func() {
		ev.Exec()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		c.Fatalf("timed out waiting for Exec to complete")
	}
}

func vertexValue(c *gc.C, v *arithgraph.Vertex) interface{} {
	val, ok := v.Value()
	c.Assert(ok, gc.Equals, true, gc.Commentf("vertex %q has not been resolved", v.Label()))
	return val
}

// Simple addition of two leaves; completes in one dispatch round.
func (s *EvaluatorTestSuite) TestSimpleAddition(c *gc.C) {
	a := s.g.Leaf(int64(1), "a")
	b := s.g.Leaf(int64(2), "b")
	sum, err := s.g.Sum(a, b)
	c.Assert(err, gc.IsNil)

	c.Assert(s.g.Eval(sum), gc.IsNil)
	execWithTimeout(c, s.ev)
	c.Assert(vertexValue(c, sum), gc.Equals, int64(3))
}

func (s *EvaluatorTestSuite) TestComplexExpression(c *gc.C) {
	a := s.g.Leaf(int64(2), "a")
	b := s.g.Leaf(int64(5), "b")
	aa, err := s.g.Prod(a, a)
	c.Assert(err, gc.IsNil)
	bb, err := s.g.Prod(b, b)
	c.Assert(err, gc.IsNil)
	x, err := s.g.Sum(aa, bb)
	c.Assert(err, gc.IsNil)
	y, err := s.g.Sum(x, s.g.Leaf(int64(1), "1"))
	c.Assert(err, gc.IsNil)

	c.Assert(s.g.Eval(x), gc.IsNil)
	c.Assert(s.g.Eval(y), gc.IsNil)
	execWithTimeout(c, s.ev)
	c.Assert(vertexValue(c, x), gc.Equals, int64(29))
	c.Assert(vertexValue(c, y), gc.Equals, int64(30))
}

// A shared subexpression is interned and evaluated exactly once.
func (s *EvaluatorTestSuite) TestCommonSubexpression(c *gc.C) {
	a := s.g.Leaf(int64(5), "a")
	s1, err := s.g.Prod(a, a)
	c.Assert(err, gc.IsNil)
	s2, err := s.g.Prod(a, a)
	c.Assert(err, gc.IsNil)
	c.Assert(s1, gc.Equals, s2)

	s3, err := s.g.Sum(s1, s2)
	c.Assert(err, gc.IsNil)
	c.Assert(s.g.Eval(s3), gc.IsNil)
	execWithTimeout(c, s.ev)
	c.Assert(vertexValue(c, s3), gc.Equals, int64(50))
}

func (s *EvaluatorTestSuite) TestEmptyRequestSetReturnsImmediately(c *gc.C) {
	sched, ev, _ := newEngine(c, integers.Algebra{})
	defer func() { c.Assert(sched.Close(), gc.IsNil) }()
	// No workers registered either; Exec must still return.
	execWithTimeout(c, ev)
}

func (s *EvaluatorTestSuite) TestRequestResolvedVertexIsNoOp(c *gc.C) {
	leaf := s.g.Leaf(int64(42), "")
	s.ev.Request(leaf)
	execWithTimeout(c, s.ev)
	c.Assert(vertexValue(c, leaf), gc.Equals, int64(42))
}

func (s *EvaluatorTestSuite) TestOnlyClosureIsResolved(c *gc.C) {
	a := s.g.Leaf(int64(1), "a")
	b := s.g.Leaf(int64(2), "b")
	sum, err := s.g.Sum(a, b)
	c.Assert(err, gc.IsNil)
	prod, err := s.g.Prod(a, b)
	c.Assert(err, gc.IsNil)

	c.Assert(s.g.Eval(sum), gc.IsNil)
	execWithTimeout(c, s.ev)
	c.Assert(vertexValue(c, sum), gc.Equals, int64(3))
	_, ok := prod.Value()
	c.Assert(ok, gc.Equals, false, gc.Commentf("vertex outside the request closure must stay unresolved"))
}

func (s *EvaluatorTestSuite) TestEvalAll(c *gc.C) {
	five := s.g.Leaf(int64(5), "5")
	n1, err := s.g.Prod(five, five)
	c.Assert(err, gc.IsNil)
	n4, err := s.g.Sum(n1, s.g.Leaf(int64(2), "2"))
	c.Assert(err, gc.IsNil)

	s.g.EvalAll()
	execWithTimeout(c, s.ev)
	c.Assert(vertexValue(c, n1), gc.Equals, int64(25))
	c.Assert(vertexValue(c, n4), gc.Equals, int64(27))
}

func (s *EvaluatorTestSuite) TestResetDropsRequests(c *gc.C) {
	a := s.g.Leaf(int64(1), "a")
	b := s.g.Leaf(int64(2), "b")
	sum, err := s.g.Sum(a, b)
	c.Assert(err, gc.IsNil)

	c.Assert(s.g.Eval(sum), gc.IsNil)
	s.ev.Reset()
	execWithTimeout(c, s.ev)
	_, ok := sum.Value()
	c.Assert(ok, gc.Equals, false)
}

// Compare-and-swap over GF(2): cas(1, 0, 1) selects the first branch.
func (s *EvaluatorTestSuite) TestCASOverGF2(c *gc.C) {
	gf2, err := gfn.New(2)
	c.Assert(err, gc.IsNil)
	sched, ev, g := newEngine(c, gf2)
	defer func() { c.Assert(sched.Close(), gc.IsNil) }()
	arithgraph.CreateLocalWorkers(sched, gf2, 3)

	zero := g.Leaf(uint64(0), "z")
	one := g.Leaf(uint64(1), "o")
	result, err := g.CAS(one, zero, one)
	c.Assert(err, gc.IsNil)

	c.Assert(g.Eval(result), gc.IsNil)
	execWithTimeout(c, ev)
	c.Assert(vertexValue(c, result), gc.Equals, uint64(0))
}

// A 26-leaf XOR tree over GF(2) evaluates to the parity of its inputs.
func (s *EvaluatorTestSuite) TestXorTree(c *gc.C) {
	gf2, err := gfn.New(2)
	c.Assert(err, gc.IsNil)
	sched, ev, g := newEngine(c, gf2)
	defer func() { c.Assert(sched.Close(), gc.IsNil) }()
	arithgraph.CreateLocalWorkers(sched, gf2, 4)

	rng := rand.New(rand.NewSource(26))
	var parity uint64
	level := make([]*arithgraph.Vertex, 26)
	for i := range level {
		bit := uint64(rng.Intn(2))
		parity ^= bit
		level[i] = g.Leaf(bit, "")
	}
	for len(level) > 1 {
		var next []*arithgraph.Vertex
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			x, err := g.Sum(level[i], level[i+1])
			c.Assert(err, gc.IsNil)
			next = append(next, x)
		}
		level = next
	}

	c.Assert(g.Eval(level[0]), gc.IsNil)
	execWithTimeout(c, ev)
	c.Assert(vertexValue(c, level[0]), gc.Equals, parity)
}

// flakyOperator fails every operation, forcing the owning worker to retire
// after its first task.
type flakyOperator struct{}

func (flakyOperator) Sum(_, _ interface{}) (interface{}, error) {
	return nil, xerrors.New("transient failure")
}

func (flakyOperator) Prod(_, _ interface{}) (interface{}, error) {
	return nil, xerrors.New("transient failure")
}

func (flakyOperator) Close() error { return nil }

// A failed task reverts to pending and is retried by a surviving worker;
// the failed worker retires itself.
func (s *EvaluatorTestSuite) TestFailedTaskIsRetried(c *gc.C) {
	sched, ev, g := newEngine(c, integers.Algebra{})
	defer func() { c.Assert(sched.Close(), gc.IsNil) }()
	arithgraph.NewWorker(sched, flakyOperator{}, "FlakyWorker")

	a := g.Leaf(int64(20), "a")
	b := g.Leaf(int64(22), "b")
	sum, err := g.Sum(a, b)
	c.Assert(err, gc.IsNil)
	c.Assert(g.Eval(sum), gc.IsNil)

	done := make(chan struct{})
	go func() {
		ev.Exec()
		close(done)
	}()

	// Give the flaky worker time to pick the task up and retire, then
	// bring up a healthy worker to finish the job.
	time.Sleep(100 * time.Millisecond)
	arithgraph.NewLocalWorker(sched, integers.Algebra{}, "RescueWorker")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		c.Fatalf("timed out waiting for Exec to complete after worker failure")
	}
	c.Assert(vertexValue(c, sum), gc.Equals, int64(42))

	stats := sched.Stats()
	c.Assert(stats.Workers, gc.DeepEquals, []string{"RescueWorker"},
		gc.Commentf("the flaky worker should have unregistered itself"))
}

// Randomized DAGs must agree with a sequential reference evaluation.
func (s *EvaluatorTestSuite) TestRandomDAGsMatchReference(c *gc.C) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 10; round++ {
		sched, ev, g := newEngine(c, integers.Algebra{})
		arithgraph.CreateLocalWorkers(sched, integers.Algebra{}, 4)

		expected := make(map[*arithgraph.Vertex]int64)
		var vertices []*arithgraph.Vertex
		for i := 0; i < 5+rng.Intn(6); i++ {
			val := int64(rng.Intn(201) - 100)
			v := g.Leaf(val, "")
			expected[v] = val
			vertices = append(vertices, v)
		}
		for i := 0; i < 25; i++ {
			left := vertices[rng.Intn(len(vertices))]
			right := vertices[rng.Intn(len(vertices))]
			kind := arithgraph.OpKind(rng.Intn(2))
			v, err := g.Op(kind, left, right)
			c.Assert(err, gc.IsNil)
			if _, seen := expected[v]; !seen {
				if kind == arithgraph.OpSum {
					expected[v] = expected[left] + expected[right]
				} else {
					expected[v] = expected[left] * expected[right]
				}
				vertices = append(vertices, v)
			}
		}

		g.EvalAll()
		execWithTimeout(c, ev)
		for v, want := range expected {
			c.Assert(vertexValue(c, v), gc.Equals, want,
				gc.Commentf("round %d: vertex %q", round, v.Label()))
		}
		c.Assert(sched.Close(), gc.IsNil)
	}
}

// A wide batch of independent tasks is drained by the whole worker pool.
func (s *EvaluatorTestSuite) TestParallelFanOut(c *gc.C) {
	var (
		leaves []*arithgraph.Vertex
		sums   []*arithgraph.Vertex
	)
	for i := 0; i < 64; i++ {
		leaves = append(leaves, s.g.Leaf(int64(i), ""))
	}
	for i := 0; i < len(leaves); i += 2 {
		v, err := s.g.Sum(leaves[i], leaves[i+1])
		c.Assert(err, gc.IsNil)
		sums = append(sums, v)
		c.Assert(s.g.Eval(v), gc.IsNil)
	}

	execWithTimeout(c, s.ev)
	for i, v := range sums {
		c.Assert(vertexValue(c, v), gc.Equals, int64(4*i+1))
	}
}
