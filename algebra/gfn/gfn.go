// Package gfn models modular arithmetic over the ring of integers mod N.
// With N=2 it doubles as GF(2), where addition is XOR and multiplication is
// AND, which is what the compare-and-swap and bit-vector helpers expect.
package gfn

import (
	"encoding/binary"

	"Calc_Engine/dagprocessing/arithgraph"
	"golang.org/x/xerrors"
)

var _ arithgraph.Algebra = (*Algebra)(nil)

const encodedLen = 8

// Algebra implements arithgraph.Algebra over uint64 values reduced mod N.
type Algebra struct {
	modulus uint64
}

// New returns an algebra over the integers modulo the specified value.
func New(modulus uint64) (*Algebra, error) {
	if modulus < 2 {
		return nil, xerrors.Errorf("gfn: modulus must be at least 2, got %d", modulus)
	}
	return &Algebra{modulus: modulus}, nil
}

// Modulus returns the modulus this algebra reduces by.
func (a *Algebra) Modulus() uint64 { return a.modulus }

// Value reduces an integer into the algebra's value domain.
func (a *Algebra) Value(v uint64) uint64 { return v % a.modulus }

// Sum implements arithgraph.Algebra.
func (a *Algebra) Sum(x, y interface{}) (interface{}, error) {
	xv, yv, err := a.pair(x, y)
	if err != nil {
		return nil, err
	}
	return (xv + yv) % a.modulus, nil
}

// Prod implements arithgraph.Algebra.
func (a *Algebra) Prod(x, y interface{}) (interface{}, error) {
	xv, yv, err := a.pair(x, y)
	if err != nil {
		return nil, err
	}
	return (xv * yv) % a.modulus, nil
}

// Eq implements arithgraph.Algebra.
func (a *Algebra) Eq(x, y interface{}) bool {
	xv, yv, err := a.pair(x, y)
	return err == nil && xv == yv
}

// Zero implements arithgraph.Algebra.
func (a *Algebra) Zero() interface{} { return uint64(0) }

// One implements arithgraph.Algebra.
func (a *Algebra) One() interface{} { return uint64(1) % a.modulus }

// Marshal implements arithgraph.Algebra.
func (a *Algebra) Marshal(v interface{}) ([]byte, error) {
	val, err := a.value(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, encodedLen)
	binary.LittleEndian.PutUint64(buf, val)
	return buf, nil
}

// Unmarshal implements arithgraph.Algebra.
func (a *Algebra) Unmarshal(data []byte) (interface{}, error) {
	if len(data) != encodedLen {
		return nil, xerrors.Errorf("gfn: expected %d-byte value, got %d bytes", encodedLen, len(data))
	}
	return binary.LittleEndian.Uint64(data) % a.modulus, nil
}

// Not returns x + 1. Only meaningful as logical negation when N=2.
func (a *Algebra) Not(x interface{}) (interface{}, error) {
	return a.Sum(x, a.One())
}

// And returns x * y. Only meaningful as conjunction when N=2.
func (a *Algebra) And(x, y interface{}) (interface{}, error) {
	return a.Prod(x, y)
}

// Xor returns x + y. Only meaningful as exclusive-or when N=2.
func (a *Algebra) Xor(x, y interface{}) (interface{}, error) {
	return a.Sum(x, y)
}

// Or returns !(!x * !y). Only meaningful as disjunction when N=2.
func (a *Algebra) Or(x, y interface{}) (interface{}, error) {
	nx, err := a.Not(x)
	if err != nil {
		return nil, err
	}
	ny, err := a.Not(y)
	if err != nil {
		return nil, err
	}
	and, err := a.And(nx, ny)
	if err != nil {
		return nil, err
	}
	return a.Not(and)
}

func (a *Algebra) pair(x, y interface{}) (uint64, uint64, error) {
	xv, err := a.value(x)
	if err != nil {
		return 0, 0, err
	}
	yv, err := a.value(y)
	if err != nil {
		return 0, 0, err
	}
	return xv, yv, nil
}

func (a *Algebra) value(v interface{}) (uint64, error) {
	val, ok := v.(uint64)
	if !ok {
		return 0, xerrors.Errorf("gfn: expected uint64 value, got %T", v)
	}
	return val % a.modulus, nil
}
