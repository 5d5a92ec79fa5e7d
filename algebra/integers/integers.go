// Package integers provides a plain signed 64-bit integer algebra, mainly
// useful for exercising the evaluation engine without a cryptographic
// value type.
package integers

import (
	"encoding/binary"

	"Calc_Engine/dagprocessing/arithgraph"
	"golang.org/x/xerrors"
)

var _ arithgraph.Algebra = Algebra{}

const encodedLen = 8

// Algebra implements arithgraph.Algebra over int64 values with wrapping
// two's-complement semantics.
type Algebra struct{}

// Sum implements arithgraph.Algebra.
func (Algebra) Sum(x, y interface{}) (interface{}, error) {
	xv, yv, err := pair(x, y)
	if err != nil {
		return nil, err
	}
	return xv + yv, nil
}

// Prod implements arithgraph.Algebra.
func (Algebra) Prod(x, y interface{}) (interface{}, error) {
	xv, yv, err := pair(x, y)
	if err != nil {
		return nil, err
	}
	return xv * yv, nil
}

// Eq implements arithgraph.Algebra.
func (Algebra) Eq(x, y interface{}) bool {
	xv, yv, err := pair(x, y)
	return err == nil && xv == yv
}

// Zero implements arithgraph.Algebra.
func (Algebra) Zero() interface{} { return int64(0) }

// One implements arithgraph.Algebra.
func (Algebra) One() interface{} { return int64(1) }

// Marshal implements arithgraph.Algebra.
func (Algebra) Marshal(v interface{}) ([]byte, error) {
	val, ok := v.(int64)
	if !ok {
		return nil, xerrors.Errorf("integers: expected int64 value, got %T", v)
	}
	buf := make([]byte, encodedLen)
	binary.LittleEndian.PutUint64(buf, uint64(val))
	return buf, nil
}

// Unmarshal implements arithgraph.Algebra.
func (Algebra) Unmarshal(data []byte) (interface{}, error) {
	if len(data) != encodedLen {
		return nil, xerrors.Errorf("integers: expected %d-byte value, got %d bytes", encodedLen, len(data))
	}
	return int64(binary.LittleEndian.Uint64(data)), nil
}

func pair(x, y interface{}) (int64, int64, error) {
	xv, ok := x.(int64)
	if !ok {
		return 0, 0, xerrors.Errorf("integers: expected int64 value, got %T", x)
	}
	yv, ok := y.(int64)
	if !ok {
		return 0, 0, xerrors.Errorf("integers: expected int64 value, got %T", y)
	}
	return xv, yv, nil
}
