// Package publisher runs the publication step for one build: it generates
// the report's points and delivers them to every configured sink.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kylerisse/perfpoints/pkg/build"
	"github.com/kylerisse/perfpoints/pkg/generator"
	"github.com/kylerisse/perfpoints/pkg/point"
	"github.com/kylerisse/perfpoints/pkg/report"
	"github.com/kylerisse/perfpoints/pkg/sink"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Publisher delivers the points of a build's report to sinks.
type Publisher struct {
	Resolver build.Resolver
	Lookup   report.Lookup
	Sinks    []sink.Sink
	Prefix   string
	Logger   logrus.FieldLogger
}

// Result describes one publication.
type Result struct {
	// HasReport is false when the build has no report; nothing is written.
	HasReport bool

	// Points is the total number of points generated.
	Points int

	// Measurements counts the generated points per measurement name.
	Measurements map[string]int
}

// Generate returns the points of b's report stamped with ts. The bool is
// false when the build has no report.
func (p *Publisher) Generate(ctx context.Context, b build.Build, ts time.Time) ([]point.Point, bool, error) {
	resolver := p.Resolver
	if resolver == nil {
		resolver = build.ProjectNames{}
	}
	if p.Lookup == nil {
		return nil, false, fmt.Errorf("publisher: no report lookup configured")
	}

	gen, err := generator.NewPerfPublisher(ctx, resolver, p.Prefix, b, ts, p.Lookup)
	if err != nil {
		return nil, false, err
	}
	if !gen.HasReport() {
		return nil, false, nil
	}
	return gen.Generate(), true, nil
}

// Publish generates the points of b's report and writes them to every
// sink concurrently. A sink failure does not stop the other sinks; all
// failures are returned joined.
func (p *Publisher) Publish(ctx context.Context, b build.Build, ts time.Time) (Result, error) {
	log := p.logger().WithField("build", b.String())

	points, ok, err := p.Generate(ctx, b, ts)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		log.Info("No performance report found, nothing to publish")
		return Result{}, nil
	}

	res := Result{
		HasReport:    true,
		Points:       len(points),
		Measurements: countMeasurements(points),
	}
	log.Debugf("Generated %d point(s): %v", res.Points, res.Measurements)

	errs := make([]error, len(p.Sinks))
	var g errgroup.Group
	for i, s := range p.Sinks {
		g.Go(func() error {
			start := time.Now()
			if err := s.Write(ctx, points); err != nil {
				errs[i] = fmt.Errorf("sink %s: %w", s.Type(), err)
				log.WithError(err).Errorf("Failed to write to %s sink", s.Type())
				return errs[i]
			}
			log.WithField("duration", time.Since(start)).Infof("Wrote %d point(s) to %s sink", len(points), s.Type())
			return nil
		})
	}
	// Wait reports only the first failure; every sink is still attempted
	// and all failures are returned.
	if err := g.Wait(); err != nil {
		return res, errors.Join(errs...)
	}
	return res, nil
}

// Close closes every sink and returns the joined errors.
func (p *Publisher) Close() error {
	errs := make([]error, 0, len(p.Sinks))
	for _, s := range p.Sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s sink: %w", s.Type(), err))
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) logger() logrus.FieldLogger {
	if p.Logger == nil {
		return logrus.StandardLogger().WithField("component", "publisher")
	}
	return p.Logger.WithField("component", "publisher")
}

func countMeasurements(points []point.Point) map[string]int {
	counts := make(map[string]int, 4)
	for _, pt := range points {
		counts[pt.Measurement]++
	}
	return counts
}
