package workerapi

import (
	"io"
	"io/ioutil"
	"net"

	"Calc_Engine/dagprocessing/arithgraph"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// RemoteWorkerConfig encapsulates the settings for creating a new
// RemoteWorker.
type RemoteWorkerConfig struct {
	// The connection to the scheduler-side listener.
	Conn net.Conn
	// The algebra used to decode operands and encode replies.
	Algebra arithgraph.Algebra
	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *RemoteWorkerConfig) validate() error {
	var err error
	if cfg.Conn == nil {
		err = multierror.Append(err, xerrors.Errorf("connection has not been provided"))
	}
	if cfg.Algebra == nil {
		err = multierror.Append(err, xerrors.Errorf("algebra has not been provided"))
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// RemoteWorker is the peer-side counterpart of a network-proxied worker: it
// drives a receive-compute-reply loop over a single connection to the
// scheduler host.
type RemoteWorker struct {
	cfg RemoteWorkerConfig
}

// NewRemoteWorker returns a remote worker serving requests over the
// connection specified in cfg.
func NewRemoteWorker(cfg RemoteWorkerConfig) (*RemoteWorker, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("remote worker: config validation failed: %w", err)
	}
	return &RemoteWorker{cfg: cfg}, nil
}

// Run serves requests until the peer closes its stream. A clean close at a
// frame boundary returns nil; any other stream, codec or algebra error is
// returned to the caller. Run never reconnects.
func (rw *RemoteWorker) Run() error {
	alg := rw.cfg.Algebra
	for {
		rw.cfg.Logger.Debug("waiting for request")
		op, leftData, rightData, err := readRequest(rw.cfg.Conn)
		if err != nil {
			if err == io.EOF {
				rw.cfg.Logger.Info("connection terminated, exiting")
				return nil
			}
			return xerrors.Errorf("remote worker: %w", err)
		}

		left, err := alg.Unmarshal(leftData)
		if err != nil {
			return xerrors.Errorf("remote worker: unmarshal left operand: %w", err)
		}
		right, err := alg.Unmarshal(rightData)
		if err != nil {
			return xerrors.Errorf("remote worker: unmarshal right operand: %w", err)
		}

		rw.cfg.Logger.Debug("got request, processing")
		var result interface{}
		switch op {
		case opSum:
			result, err = alg.Sum(left, right)
		case opProd:
			result, err = alg.Prod(left, right)
		default:
			return xerrors.Errorf("remote worker: unknown operation kind %d", op)
		}
		if err != nil {
			return xerrors.Errorf("remote worker: %w", err)
		}

		replyData, err := alg.Marshal(result)
		if err != nil {
			return xerrors.Errorf("remote worker: marshal reply: %w", err)
		}
		rw.cfg.Logger.Debug("sending reply")
		if err := writeReply(rw.cfg.Conn, replyData); err != nil {
			return xerrors.Errorf("remote worker: %w", err)
		}
	}
}
