package frontend

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net"
	"net/http"
	"time"

	"Calc_Engine/dagprocessing/arithgraph"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	statusEndpoint  = "/status"
	workersEndpoint = "/workers"
)

// SchedulerAPI defines the methods for inspecting the scheduler state.
type SchedulerAPI interface {
	Stats() arithgraph.Stats
}

// Config encapsulates the settings for configuring the status front-end
// service.
type Config struct {
	// An API for reading scheduler statistics.
	SchedulerAPI SchedulerAPI
	// The address to listen for incoming requests.
	ListenAddr string
	// A clock instance used for uptime reporting. A default wall-clock
	// will be used if not specified.
	Clock clock.Clock
	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.SchedulerAPI == nil {
		err = multierror.Append(err, xerrors.Errorf("scheduler API has not been provided"))
	}
	if cfg.ListenAddr == "" {
		err = multierror.Append(err, xerrors.Errorf("listen address has not been specified"))
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Service implements the status front-end for the Quanta evaluation
// engine: a small HTTP surface for watching the task queue and the set of
// registered workers while long evaluations are in flight.
type Service struct {
	cfg       Config
	router    *mux.Router
	startedAt time.Time
}

// NewService creates a new front-end service instance with the specified
// config.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("front-end service: config validation failed: %w", err)
	}
	svc := &Service{cfg: cfg, router: mux.NewRouter()}
	svc.router.HandleFunc(statusEndpoint, svc.renderStatus).Methods("GET")
	svc.router.HandleFunc(workersEndpoint, svc.renderWorkers).Methods("GET")
	return svc, nil
}

// Name implements service.Service.
func (svc *Service) Name() string { return "status front-end" }

// Run implements service.Service.
func (svc *Service) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", svc.cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()

	svc.startedAt = svc.cfg.Clock.Now()
	srv := &http.Server{
		Addr:    svc.cfg.ListenAddr,
		Handler: svc.router,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	svc.cfg.Logger.WithField("addr", svc.cfg.ListenAddr).Info("starting status front-end server")
	if err = srv.Serve(l); err == http.ErrServerClosed {
		// Ignore error when the server shuts down.
		err = nil
	}
	return err
}

type statusResponse struct {
	QueueDepth    int    `json:"queue_depth"`
	WorkerCount   int    `json:"worker_count"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	StartedAt     string `json:"started_at"`
}

type workersResponse struct {
	Workers []string `json:"workers"`
}

func (svc *Service) renderStatus(w http.ResponseWriter, _ *http.Request) {
	stats := svc.cfg.SchedulerAPI.Stats()
	svc.renderJSON(w, statusResponse{
		QueueDepth:    stats.QueueDepth,
		WorkerCount:   len(stats.Workers),
		UptimeSeconds: int64(svc.cfg.Clock.Now().Sub(svc.startedAt).Seconds()),
		StartedAt:     svc.startedAt.UTC().Format(time.RFC3339),
	})
}

func (svc *Service) renderWorkers(w http.ResponseWriter, _ *http.Request) {
	stats := svc.cfg.SchedulerAPI.Stats()
	svc.renderJSON(w, workersResponse{Workers: stats.Workers})
}

func (svc *Service) renderJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		svc.cfg.Logger.WithField("err", err).Errorf("rendering status response failed")
		w.WriteHeader(http.StatusInternalServerError)
	}
}
