package workerapi

import (
	"errors"
	"io/ioutil"
	"net"
	"sync"

	"Calc_Engine/dagprocessing/arithgraph"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// ListenerConfig encapsulates the settings for creating a new Listener.
type ListenerConfig struct {
	// The scheduler that accepted connections are registered with.
	Scheduler *arithgraph.Scheduler
	// The algebra used to encode operands and decode replies.
	Algebra arithgraph.Algebra
	// The address to listen for incoming worker connections on.
	ListenAddr string
	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *ListenerConfig) validate() error {
	var err error
	if cfg.Scheduler == nil {
		err = multierror.Append(err, xerrors.Errorf("scheduler has not been provided"))
	}
	if cfg.Algebra == nil {
		err = multierror.Append(err, xerrors.Errorf("algebra has not been provided"))
	}
	if cfg.ListenAddr == "" {
		err = multierror.Append(err, xerrors.Errorf("listen address has not been specified"))
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Listener accepts TCP connections from remote worker processes and
// registers a network-proxied worker with its scheduler for each one. Any
// client that connects is treated as a new worker.
type Listener struct {
	cfg      ListenerConfig
	listener net.Listener
	wg       sync.WaitGroup
}

// NewListener binds the configured address and starts accepting worker
// connections. Callers must invoke Close on the returned listener when they
// are done with it.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("worker listener: config validation failed: %w", err)
	}
	netListener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, xerrors.Errorf("worker listener: %w", err)
	}
	l := &Listener{cfg: cfg, listener: netListener}
	l.wg.Add(1)
	go l.acceptLoop()
	return l, nil
}

// Addr returns the address the listener is bound to.
func (l *Listener) Addr() net.Addr { return l.listener.Addr() }

// Close stops the accept loop and waits for its goroutine to exit. Workers
// created for already-accepted connections stay registered with the
// scheduler and are unaffected.
func (l *Listener) Close() error {
	err := l.listener.Close()
	l.wg.Wait()
	return err
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	l.cfg.Logger.WithField("address", l.listener.Addr().String()).Info("listening for new worker connections")
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.cfg.Logger.WithField("error", err).Error("accept failed")
			}
			return
		}
		name := "NetWorker_" + conn.RemoteAddr().String()
		l.cfg.Logger.WithField("worker", name).Info("new worker connection")
		NewNetWorker(l.cfg.Scheduler, l.cfg.Algebra, conn, name)
	}
}
