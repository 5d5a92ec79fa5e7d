// Package bitint builds multi-bit unsigned integers out of single-bit DAG
// vertices. It is pure client-side sugar over the arithgraph API: each bit
// becomes its own leaf in the graph, so bit-level circuits (XOR, AND,
// compare-and-swap) can be expressed with the ordinary sum and product
// operations of a GF(2)-like algebra.
package bitint

import (
	"fmt"
	"sync/atomic"

	"Calc_Engine/dagprocessing/arithgraph"
	"golang.org/x/xerrors"
)

// Counter for auto-generated integer labels.
var autoLabelCount uint64

// UInt is an unsigned integer decomposed into width single-bit vertices,
// least significant bit first.
type UInt struct {
	g     *arithgraph.Graph
	label string
	bits  []*arithgraph.Vertex
}

// New decomposes value into width bits and registers one leaf per bit with
// the graph. Bits beyond the requested width are discarded. The individual
// bit leaves are labeled "<label>b<i>"; an empty label assigns an
// auto-generated one.
func New(g *arithgraph.Graph, value uint64, width int, label string) (*UInt, error) {
	if width < 1 || width > 64 {
		return nil, xerrors.Errorf("bitint: width must be in [1,64], got %d", width)
	}
	if label == "" {
		label = fmt.Sprintf("I%d", atomic.AddUint64(&autoLabelCount, 1)-1)
	}
	alg := g.Algebra()
	u := &UInt{
		g:     g,
		label: label,
		bits:  make([]*arithgraph.Vertex, width),
	}
	for i := 0; i < width; i++ {
		bit := alg.Zero()
		if value%2 == 1 {
			bit = alg.One()
		}
		u.bits[i] = g.Leaf(bit, fmt.Sprintf("%sb%d", label, i))
		value /= 2
	}
	return u, nil
}

// Label returns the name assigned to this integer.
func (u *UInt) Label() string { return u.label }

// Bits returns the bit vertices, least significant first.
func (u *UInt) Bits() []*arithgraph.Vertex { return u.bits }

// Value recomposes the integer from the current bit vertex values. It fails
// if any bit has not been resolved yet or holds a value that is neither the
// algebra's zero nor its one element.
func (u *UInt) Value() (uint64, error) {
	alg := u.g.Algebra()
	var ret uint64
	for i := len(u.bits) - 1; i >= 0; i-- {
		val, ok := u.bits[i].Value()
		if !ok {
			return 0, xerrors.Errorf("bitint: bit %d of %q has not been resolved yet", i, u.label)
		}
		ret *= 2
		switch {
		case alg.Eq(val, alg.One()):
			ret++
		case alg.Eq(val, alg.Zero()):
		default:
			return 0, xerrors.Errorf("bitint: bit %d of %q holds a non-binary value", i, u.label)
		}
	}
	return ret, nil
}
