package util

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ShutdownResource is one component to stop on shutdown. Lower
// priorities stop first, so ingress (HTTP) drains before the workers
// it feeds.
type ShutdownResource struct {
	Name     string
	Priority int
	Shutdown func(context.Context) error
}

// GracefulShutdown stops registered resources in priority order under
// a global timeout.
type GracefulShutdown struct {
	mu        sync.Mutex
	resources []ShutdownResource
	logger    *logrus.Logger
	timeout   time.Duration
}

// NewGracefulShutdown creates a shutdown manager
func NewGracefulShutdown(logger *logrus.Logger, timeout time.Duration) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GracefulShutdown{
		logger:  logger,
		timeout: timeout,
	}
}

// Register adds a resource to be shut down
func (gs *GracefulShutdown) Register(resource ShutdownResource) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.resources = append(gs.resources, resource)
}

// RegisterCloser registers an io.Closer for shutdown
func (gs *GracefulShutdown) RegisterCloser(name string, closer io.Closer, priority int) {
	gs.Register(ShutdownResource{
		Name:     name,
		Priority: priority,
		Shutdown: func(context.Context) error { return closer.Close() },
	})
}

// Shutdown stops every registered resource in priority order. All
// resources are attempted even when earlier ones fail; the first
// error is returned.
func (gs *GracefulShutdown) Shutdown(ctx context.Context) error {
	gs.mu.Lock()
	resources := make([]ShutdownResource, len(gs.resources))
	copy(resources, gs.resources)
	gs.mu.Unlock()

	sort.SliceStable(resources, func(i, j int) bool {
		return resources[i].Priority < resources[j].Priority
	})

	gs.logger.WithField("resource_count", len(resources)).Info("Starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, gs.timeout)
	defer cancel()

	var firstErr error
	for _, resource := range resources {
		if err := gs.shutdownOne(shutdownCtx, resource); err != nil {
			gs.logger.WithError(err).WithField("resource", resource.Name).Error("Error shutting down resource")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		gs.logger.WithField("resource", resource.Name).Debug("Resource shut down")
	}

	return firstErr
}

func (gs *GracefulShutdown) shutdownOne(ctx context.Context, resource ShutdownResource) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic during %s shutdown: %v", resource.Name, r)
			}
		}()
		done <- resource.Shutdown(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown of %s timed out", resource.Name)
	}
}
