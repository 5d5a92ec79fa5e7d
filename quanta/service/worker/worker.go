package worker

import (
	"context"
	"io/ioutil"
	"net"
	"time"

	"Calc_Engine/dagprocessing/arithgraph"
	"Calc_Engine/pincert/dialer"
	"Calc_Engine/quantaapis/workerapi"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	defaultDialAttempts  = 3
	defaultRetryInterval = 2 * time.Second
)

// Config encapsulates the settings for configuring the remote worker
// service.
type Config struct {
	// The host:port of the scheduler-side worker listener.
	TargetAddr string
	// The algebra this worker computes over.
	Algebra arithgraph.Algebra
	// The dialer for establishing the worker stream. Defaults to plain
	// TCP; substitute dialer.WithPinnedCertVerification to require a TLS
	// peer with a pinned certificate.
	Dialer dialer.Dialer
	// A clock instance for pacing dial retries. A default wall-clock will
	// be used if not specified.
	Clock clock.Clock
	// The number of dial attempts before giving up. If not specified, a
	// default value of 3 is used.
	DialAttempts int
	// The time between dial attempts. If not specified, a default value
	// of 2s is used.
	RetryInterval time.Duration
	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.TargetAddr == "" {
		err = multierror.Append(err, xerrors.Errorf("target address has not been specified"))
	}
	if cfg.Algebra == nil {
		err = multierror.Append(err, xerrors.Errorf("algebra has not been provided"))
	}
	if cfg.Dialer == nil {
		cfg.Dialer = net.Dial
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.DialAttempts <= 0 {
		cfg.DialAttempts = defaultDialAttempts
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Service implements the remote worker component: it connects out to a
// scheduler host and serves sum/product requests until the scheduler closes
// the stream. A clean close means the engine is done with this worker and
// Run returns nil; there is no reconnect logic.
type Service struct {
	cfg Config
}

// NewService creates a new remote worker service instance with the
// specified config.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("remote worker service: config validation failed: %w", err)
	}
	return &Service{cfg: cfg}, nil
}

// Name implements service.Service.
func (svc *Service) Name() string { return "remote arithmetic worker" }

// Run implements service.Service.
func (svc *Service) Run(ctx context.Context) error {
	conn, err := svc.dial(ctx)
	if err != nil {
		return err
	}

	remote, err := workerapi.NewRemoteWorker(workerapi.RemoteWorkerConfig{
		Conn:    conn,
		Algebra: svc.cfg.Algebra,
		Logger:  svc.cfg.Logger,
	})
	if err != nil {
		_ = conn.Close()
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- remote.Run() }()

	select {
	case <-ctx.Done():
		// Closing the connection unblocks the request read; the pending
		// Run result is drained before returning.
		_ = conn.Close()
		<-errCh
		return nil
	case err := <-errCh:
		_ = conn.Close()
		return err
	}
}

func (svc *Service) dial(ctx context.Context) (net.Conn, error) {
	svc.cfg.Logger.WithField("address", svc.cfg.TargetAddr).Info("connecting to scheduler host")
	var lastErr error
	for attempt := 1; attempt <= svc.cfg.DialAttempts; attempt++ {
		conn, err := svc.cfg.Dialer("tcp", svc.cfg.TargetAddr)
		if err == nil {
			svc.cfg.Logger.Info("connected")
			return conn, nil
		}
		lastErr = err
		svc.cfg.Logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err,
		}).Warn("dial failed")
		if attempt == svc.cfg.DialAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-svc.cfg.Clock.After(svc.cfg.RetryInterval):
		}
	}
	return nil, xerrors.Errorf("dial %q: %w", svc.cfg.TargetAddr, lastErr)
}
