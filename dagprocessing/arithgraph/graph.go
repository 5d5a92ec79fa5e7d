package arithgraph

import (
	"fmt"
	"io/ioutil"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// OpKind enumerates the binary operations an unresolved vertex can
// represent. The numeric values double as the operation byte of the network
// worker wire protocol.
type OpKind uint8

const (
	// OpSum resolves a vertex by adding its two operands.
	OpSum OpKind = iota
	// OpProd resolves a vertex by multiplying its two operands.
	OpProd
)

// String returns the operator glyph used when synthesizing vertex labels.
func (k OpKind) String() string {
	if k == OpProd {
		return "*"
	}
	return "+"
}

type vertexState uint8

const (
	stateLeaf vertexState = iota
	statePendingSum
	statePendingProd
	stateResolved
)

// Counter for auto-generated vertex labels. Shared across graph instances;
// the labels are purely informational.
var autoLabelCount uint64

// Vertex is a node of an expression DAG: either a constant (leaf), a pending
// binary operation over two sibling vertices, or a completed computation.
// Vertices are created through a Graph and remain owned by it for the
// graph's entire lifetime.
type Vertex struct {
	id int
	g  *Graph

	label string
	state vertexState

	// Operand indices into the owning graph's vertex arena. Only valid
	// while state is one of the pending operation states.
	leftID, rightID int

	value    interface{}
	hasValue bool
}

// Label returns the human-readable name assigned to this vertex.
func (v *Vertex) Label() string { return v.label }

// Value returns the vertex value slot. The boolean flag is false until the
// vertex has been resolved (leaves are born resolved).
func (v *Vertex) Value() (interface{}, bool) { return v.value, v.hasValue }

// Resolved returns true if the vertex value is available.
func (v *Vertex) Resolved() bool { return v.resolved() }

func (v *Vertex) resolved() bool {
	return v.state == stateLeaf || v.state == stateResolved
}

func (v *Vertex) left() *Vertex  { return v.g.vertices[v.leftID] }
func (v *Vertex) right() *Vertex { return v.g.vertices[v.rightID] }

type opKey struct {
	kind        OpKind
	left, right int
}

// GraphConfig encapsulates the settings for creating a new Graph.
type GraphConfig struct {
	// The algebra that vertex values belong to.
	Algebra Algebra
	// The evaluator that drives the resolution of this graph's vertices.
	Evaluator *Evaluator
	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *GraphConfig) validate() error {
	var err error
	if cfg.Algebra == nil {
		err = multierror.Append(err, xerrors.Errorf("algebra has not been provided"))
	}
	if cfg.Evaluator == nil {
		err = multierror.Append(err, xerrors.Errorf("evaluator has not been provided"))
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Graph owns the vertices of a single expression DAG. Operation vertices are
// interned: constructing the same operation over the same operand pair twice
// yields the same vertex, so common subexpressions are evaluated only once.
// Leaves are never interned; two leaves are equivalent only if they are the
// same vertex.
//
// Graphs are not safe for concurrent construction. Once built, the operand
// topology is immutable and may be read freely.
type Graph struct {
	cfg GraphConfig

	vertices []*Vertex
	interned map[opKey]*Vertex
}

// NewGraph returns an empty graph bound to the evaluator specified in cfg.
func NewGraph(cfg GraphConfig) (*Graph, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("graph config validation failed: %w", err)
	}
	return &Graph{
		cfg:      cfg,
		interned: make(map[opKey]*Vertex),
	}, nil
}

// Algebra returns the algebra this graph computes over.
func (g *Graph) Algebra() Algebra { return g.cfg.Algebra }

// Evaluator returns the evaluator bound to this graph.
func (g *Graph) Evaluator() *Evaluator { return g.cfg.Evaluator }

// Leaf creates a new constant vertex holding the provided value. Passing an
// empty label assigns an auto-generated one.
func (g *Graph) Leaf(value interface{}, label string) *Vertex {
	if label == "" {
		label = fmt.Sprintf("N%d", atomic.AddUint64(&autoLabelCount, 1)-1)
	}
	v := &Vertex{
		id:       len(g.vertices),
		g:        g,
		label:    label,
		state:    stateLeaf,
		value:    value,
		hasValue: true,
	}
	g.vertices = append(g.vertices, v)
	return v
}

// Sum returns the vertex representing left + right. An optional explicit
// label may be supplied for the new vertex.
func (g *Graph) Sum(left, right *Vertex, label ...string) (*Vertex, error) {
	return g.Op(OpSum, left, right, label...)
}

// Prod returns the vertex representing left * right. An optional explicit
// label may be supplied for the new vertex.
func (g *Graph) Prod(left, right *Vertex, label ...string) (*Vertex, error) {
	return g.Op(OpProd, left, right, label...)
}

// Op returns a vertex representing the specified operation over the two
// operands. If an equivalent vertex (same kind, same operand pair, in
// order) already exists in the graph it is returned instead of a new one;
// interning ignores labels, so the existing vertex keeps its own. Operands
// owned by a different graph are rejected with ErrCrossGraph before any
// state change. When no explicit label is supplied one is synthesized from
// the operand labels.
func (g *Graph) Op(kind OpKind, left, right *Vertex, label ...string) (*Vertex, error) {
	if left.g != g || right.g != g {
		return nil, xerrors.Errorf("create %q vertex: %w", kind, ErrCrossGraph)
	}
	key := opKey{kind: kind, left: left.id, right: right.id}
	if existing := g.interned[key]; existing != nil {
		g.cfg.Logger.WithField("vertex", existing.label).Debug("reusing interned vertex")
		return existing, nil
	}

	state := statePendingSum
	if kind == OpProd {
		state = statePendingProd
	}
	name := ""
	if len(label) != 0 {
		name = label[0]
	}
	if name == "" {
		name = synthesizeLabel(kind, left.label, right.label)
	}
	if name == "" {
		name = fmt.Sprintf("N%d", atomic.AddUint64(&autoLabelCount, 1)-1)
	}
	v := &Vertex{
		id:      len(g.vertices),
		g:       g,
		label:   name,
		state:   state,
		leftID:  left.id,
		rightID: right.id,
	}
	g.vertices = append(g.vertices, v)
	g.interned[key] = v
	return v, nil
}

// CAS returns the vertex for the compare-and-swap expression
// cond*ifTrue + (cond+1)*ifFalse. The construction only has the intended
// meaning for algebras where addition is XOR and multiplication is AND,
// i.e. GF(2) and anything embedding it. It is assembled through the public
// operation API and therefore benefits from interning.
func (g *Graph) CAS(cond, ifTrue, ifFalse *Vertex) (*Vertex, error) {
	one := g.Leaf(g.cfg.Algebra.One(), "1")
	t, err := g.Prod(cond, ifTrue)
	if err != nil {
		return nil, err
	}
	notCond, err := g.Sum(cond, one)
	if err != nil {
		return nil, err
	}
	f, err := g.Prod(notCond, ifFalse)
	if err != nil {
		return nil, err
	}
	return g.Sum(t, f)
}

// Eval marks the specified vertex for evaluation by the bound evaluator.
// The vertex must be owned by this graph.
func (g *Graph) Eval(v *Vertex) error {
	if v.g != g {
		return xerrors.Errorf("eval %q: %w", v.label, ErrUnknownVertex)
	}
	g.cfg.Evaluator.Request(v)
	return nil
}

// EvalAll marks every vertex in the graph for evaluation.
func (g *Graph) EvalAll() {
	for _, v := range g.vertices {
		g.cfg.Evaluator.Request(v)
	}
}

// synthesizeLabel builds a display label of the form "(L) op (R)",
// eliding the parentheses around single-character operand labels. An empty
// result signals the caller to fall back to an auto-generated name.
func synthesizeLabel(kind OpKind, left, right string) string {
	if left == "" || right == "" {
		return ""
	}
	wrap := func(s string) string {
		if len([]rune(s)) <= 1 {
			return s
		}
		return "(" + s + ")"
	}
	return wrap(left) + " " + kind.String() + " " + wrap(right)
}
