// Package server exposes publication over HTTP so a CI system can trigger
// it when a build completes. Requests are queued and handled by a fixed
// pool of workers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kylerisse/perfpoints/pkg/build"
	"github.com/kylerisse/perfpoints/pkg/publisher"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultListenAddr is the address served when none is configured.
	DefaultListenAddr = ":1982"

	// DefaultWorkers is the default number of publish workers.
	DefaultWorkers = 2

	// DefaultQueueSize is the default number of requests that may wait.
	DefaultQueueSize = 64

	shutdownTimeout = 10 * time.Second
)

var (
	errQueueFull   = errors.New("publish queue is full")
	errQueueClosed = errors.New("server is shutting down")
)

// Publisher publishes the report of one build.
type Publisher interface {
	Publish(ctx context.Context, b build.Build, ts time.Time) (publisher.Result, error)
}

// task is one queued publish request.
type task struct {
	build build.Build
	ts    time.Time
}

// Server accepts publish requests over HTTP.
type Server struct {
	pub        Publisher
	listenAddr string
	workers    int
	stats      *stats
	logger     logrus.FieldLogger
	wg         sync.WaitGroup

	// mu guards tasks against a send after closeQueue.
	mu     sync.Mutex
	tasks  chan task
	closed bool
}

// Option configures a Server.
type Option func(*Server) error

// WithListenAddr sets the HTTP listen address.
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		if addr == "" {
			return fmt.Errorf("listen address must not be empty")
		}
		s.listenAddr = addr
		return nil
	}
}

// WithWorkers sets the number of publish workers.
func WithWorkers(n int) Option {
	return func(s *Server) error {
		if n <= 0 {
			return fmt.Errorf("workers must be positive, got %d", n)
		}
		s.workers = n
		return nil
	}
}

// WithQueueSize sets how many requests may wait for a worker.
func WithQueueSize(n int) Option {
	return func(s *Server) error {
		if n <= 0 {
			return fmt.Errorf("queue size must be positive, got %d", n)
		}
		s.tasks = make(chan task, n)
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Server) error {
		s.logger = logger.WithField("component", "server")
		return nil
	}
}

// New creates a Server that hands requests to pub.
func New(pub Publisher, opts ...Option) (*Server, error) {
	if pub == nil {
		return nil, fmt.Errorf("server: publisher must not be nil")
	}

	s := &Server{
		pub:        pub,
		listenAddr: DefaultListenAddr,
		workers:    DefaultWorkers,
		tasks:      make(chan task, DefaultQueueSize),
		stats:      &stats{},
		logger:     logrus.StandardLogger().WithField("component", "server"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
	}
	return s, nil
}

// Run serves HTTP and runs the workers until ctx is canceled. Requests
// still queued at shutdown are dropped.
func (s *Server) Run(ctx context.Context) error {
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	s.startWorkers(workerCtx)

	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting API server on %v...", s.listenAddr)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server: listen on %s: %w", s.listenAddr, err)
		}
	case <-ctx.Done():
		s.logger.Info("Shutting down API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			serveErr = fmt.Errorf("server: shutdown: %w", err)
		}
	}

	// Shutdown may time out with handlers still running, so the queue is
	// closed under the lock that enqueue holds.
	cancelWorkers()
	s.closeQueue()
	s.wg.Wait()
	s.logger.Info("All workers stopped.")
	return serveErr
}

// enqueue adds t to the queue without blocking.
func (s *Server) enqueue(t task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errQueueClosed
	}
	select {
	case s.tasks <- t:
		s.stats.queued()
		return nil
	default:
		return errQueueFull
	}
}

// closeQueue stops the workers' range over the queue once it drains. It
// is safe to call more than once.
func (s *Server) closeQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.tasks)
	}
}
