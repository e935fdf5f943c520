// Package file implements a sink that appends points as line protocol to a
// local file or to standard output.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/kylerisse/perfpoints/pkg/point"
	"github.com/kylerisse/perfpoints/pkg/sink"
	"github.com/sirupsen/logrus"
)

const (
	// TypeName is the registered name for this sink type.
	TypeName = "file"

	// Stdout is the path that selects standard output.
	Stdout = "-"
)

// Sink writes line protocol to an io.Writer.
type Sink struct {
	mu        sync.Mutex
	w         io.Writer
	closer    io.Closer
	name      string
	precision point.Precision
	logger    logrus.FieldLogger
}

// NewWriter returns a Sink that writes to w. The writer is not closed by
// Close.
func NewWriter(w io.Writer, precision point.Precision, logger logrus.FieldLogger) *Sink {
	return &Sink{
		w:         w,
		name:      Stdout,
		precision: precision,
		logger:    logger.WithField("component", "file_sink"),
	}
}

// Open returns a Sink appending to path, creating the file and its parent
// directories when needed. Stdout selects os.Stdout.
func Open(path string, precision point.Precision, logger logrus.FieldLogger) (*Sink, error) {
	if path == "" {
		return nil, fmt.Errorf("file: path must not be empty")
	}
	if path == Stdout {
		return NewWriter(os.Stdout, precision, logger), nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("file: create directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("file: open %s: %w", path, err)
	}

	s := NewWriter(f, precision, logger)
	s.closer = f
	s.name = path
	return s, nil
}

// Type returns the sink type name.
func (s *Sink) Type() string {
	return TypeName
}

// Write appends one line per point.
func (s *Sink) Write(ctx context.Context, points []point.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return fmt.Errorf("file: write to closed sink %s", s.name)
	}
	if err := point.Encode(s.w, points, s.precision); err != nil {
		return fmt.Errorf("file: write %s: %w", s.name, err)
	}
	s.logger.Debugf("Wrote %d point(s) to %s", len(points), s.name)
	return nil
}

// Close closes the underlying file. Standard output is left open.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w = nil
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// NewFactory returns a sink.Factory that builds file sinks.
//
// Optional keys:
//   - "path" (string): file to append to; "-" (the default) is stdout
//   - "precision" (string): ns, us, ms, s; default ns
func NewFactory(logger logrus.FieldLogger) sink.Factory {
	return func(options map[string]any) (sink.Sink, error) {
		o := sink.Options(options)

		path, ok, err := o.String("path")
		if err != nil {
			return nil, fmt.Errorf("file: %w", err)
		}
		if !ok {
			path = Stdout
		}

		p, _, err := o.String("precision")
		if err != nil {
			return nil, fmt.Errorf("file: %w", err)
		}
		precision, err := point.ParsePrecision(p)
		if err != nil {
			return nil, fmt.Errorf("file: %w", err)
		}

		return Open(path, precision, logger)
	}
}

var _ sink.Sink = (*Sink)(nil)
