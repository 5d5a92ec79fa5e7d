package arithgraph

import "golang.org/x/xerrors"

var (
	// ErrCrossGraph is returned by operation constructors when the operand
	// vertices belong to different graphs.
	ErrCrossGraph = xerrors.New("operand vertices belong to different graphs")
	// ErrUnknownVertex is returned when a vertex is passed to a graph that
	// does not own it.
	ErrUnknownVertex = xerrors.New("vertex is not part of the graph")
	// ErrPeerClosed is reported by network-proxied operators to indicate
	// that the remote peer closed its stream cleanly. Workers treat it as a
	// graceful departure rather than a task failure.
	ErrPeerClosed = xerrors.New("peer closed the connection")
)
