package arithgraph

// Algebra is implemented by pluggable value types that the engine can
// evaluate. The engine never interprets the semantics of the two binary
// operations; it only requires that they are pure and deterministic modulo
// the algebra's own semantics. The zero and one elements are needed by
// client-side helpers (e.g. compare-and-swap, bit decomposition) and the
// byte-level codec by the network worker protocol.
type Algebra interface {
	// Sum applies the algebra's addition to a pair of values.
	Sum(a, b interface{}) (interface{}, error)
	// Prod applies the algebra's multiplication to a pair of values.
	Prod(a, b interface{}) (interface{}, error)
	// Eq reports whether two values are equal.
	Eq(a, b interface{}) bool
	// Zero returns the algebra's additive identity.
	Zero() interface{}
	// One returns the algebra's multiplicative identity.
	One() interface{}
	// Marshal encodes a single value for transport over a byte stream.
	Marshal(v interface{}) ([]byte, error)
	// Unmarshal decodes a value previously encoded with Marshal.
	Unmarshal(data []byte) (interface{}, error)
}

// Operator is implemented by types that carry out the two binary operations
// on behalf of a Worker. A local operator computes in-process; a
// network-proxied operator forwards each invocation to a remote peer and
// blocks until the reply arrives.
//
// An Operator that loses its backing resource for good should fail with an
// error wrapping ErrPeerClosed so the owning worker can retire itself
// gracefully.
type Operator interface {
	Sum(left, right interface{}) (interface{}, error)
	Prod(left, right interface{}) (interface{}, error)
	// Close releases any resources held by the operator. It may be called
	// more than once (the scheduler uses it to unblock workers suspended
	// on transport I/O during shutdown) and must tolerate repeated calls.
	Close() error
}
