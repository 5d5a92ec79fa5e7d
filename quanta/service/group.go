package service

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"
)

// Service describes a long-running component of the Quanta evaluation
// engine (worker listener, status front-end, remote worker, etc).
type Service interface {
	// Name returns the service name.
	Name() string
	// Run executes the service and blocks until the context gets
	// cancelled or an error occurs.
	Run(ctx context.Context) error
}

// Group is a list of Service instances that execute in parallel.
type Group []Service

// Run executes every service in the group using the provided context.
// Calls to Run block until all services have completed, either because the
// context was cancelled or because any one of them reported an error, in
// which case the rest are shut down as well.
func (g Group) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	var wg sync.WaitGroup
	errCh := make(chan error, len(g))
	wg.Add(len(g))
	for _, s := range g {
		go func(s Service) {
			defer wg.Done()
			if err := s.Run(runCtx); err != nil {
				errCh <- xerrors.Errorf("%s: %w", s.Name(), err)
				cancelFn()
			}
		}(s)
	}

	// Block until the run context gets cancelled, then wait for the
	// service go-routines to wind down before collecting their errors.
	<-runCtx.Done()
	wg.Wait()
	close(errCh)

	var err error
	for svcErr := range errCh {
		err = multierror.Append(err, svcErr)
	}
	return err
}
