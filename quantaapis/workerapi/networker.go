package workerapi

import (
	"io"
	"net"

	"Calc_Engine/dagprocessing/arithgraph"
	"golang.org/x/xerrors"
)

// NewNetWorker registers a network-proxied worker with the scheduler. The
// worker forwards each sum/product request over the provided connection and
// blocks until the peer replies; concurrency comes from registering many
// such workers, one per connection. The worker owns the connection and
// closes it when it retires.
func NewNetWorker(s *arithgraph.Scheduler, alg arithgraph.Algebra, conn net.Conn, name string) *arithgraph.Worker {
	return arithgraph.NewWorker(s, &netOperator{alg: alg, conn: conn}, name)
}

// netOperator implements arithgraph.Operator by exchanging one
// request/reply frame pair per operation. There is no multiplexing: a
// single request is in flight per connection at any time.
type netOperator struct {
	alg  arithgraph.Algebra
	conn net.Conn
}

func (o *netOperator) Sum(left, right interface{}) (interface{}, error) {
	return o.roundTrip(opSum, left, right)
}

func (o *netOperator) Prod(left, right interface{}) (interface{}, error) {
	return o.roundTrip(opProd, left, right)
}

func (o *netOperator) Close() error { return o.conn.Close() }

func (o *netOperator) roundTrip(op byte, left, right interface{}) (interface{}, error) {
	leftData, err := o.alg.Marshal(left)
	if err != nil {
		return nil, xerrors.Errorf("marshal left operand: %w", err)
	}
	rightData, err := o.alg.Marshal(right)
	if err != nil {
		return nil, xerrors.Errorf("marshal right operand: %w", err)
	}
	if err := writeRequest(o.conn, op, leftData, rightData); err != nil {
		return nil, o.streamError(err)
	}
	replyData, err := readReply(o.conn)
	if err != nil {
		return nil, o.streamError(err)
	}
	reply, err := o.alg.Unmarshal(replyData)
	if err != nil {
		return nil, xerrors.Errorf("unmarshal reply: %w", err)
	}
	return reply, nil
}

// streamError classifies a transport error. A clean close at a frame
// boundary means the remote worker has gone away for good and is mapped to
// ErrPeerClosed; everything else surfaces as an ordinary task failure.
func (o *netOperator) streamError(err error) error {
	if err == io.EOF {
		return xerrors.Errorf("remote worker stream: %w", arithgraph.ErrPeerClosed)
	}
	return xerrors.Errorf("remote worker stream: %w", err)
}
