package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Service runs until its context is cancelled
type Service func(ctx context.Context) error

// RunServices starts every service and returns once all of them have
// returned. The first service to return cancels the others. The result is
// the first error any service reported.
func RunServices(ctx context.Context, services ...Service) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg    sync.WaitGroup
		once  sync.Once
		first error
	)
	for _, svc := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			if err := svc(ctx); err != nil && !errors.Is(err, context.Canceled) {
				once.Do(func() { first = err })
			}
		}()
	}
	wg.Wait()
	return first
}

// HTTPService serves srv until the context is cancelled, then drains it
// for at most timeout.
func HTTPService(srv *http.Server, timeout time.Duration) Service {
	return func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("HTTP server failed: %w", err)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-errCh
		if err != nil {
			return fmt.Errorf("HTTP shutdown failed: %w", err)
		}
		return nil
	}
}
