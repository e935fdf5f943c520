// Package generator turns a build's performance report into the flat set of
// points published to time-series databases.
//
// For one report, PerfPublisher emits, in order: a summary point, one
// metric point per distinct metric name (aggregated across tests), and for
// each test a test point followed by one point per metric of that test.
// All points of one generator share the timestamp given at construction.
package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/kylerisse/perfpoints/pkg/build"
	"github.com/kylerisse/perfpoints/pkg/point"
	"github.com/kylerisse/perfpoints/pkg/report"
)

// Measurement names.
const (
	MeasurementSummary    = "perfpublisher_summary"
	MeasurementMetric     = "perfpublisher_metric"
	MeasurementTest       = "perfpublisher_test"
	MeasurementTestMetric = "perfpublisher_test_metric"
)

// PerfPublisher generates points for one build's report. It is built per
// build and discarded after use; it is not safe for concurrent use.
type PerfPublisher struct {
	prefix    string
	build     build.Build
	naming    build.Naming
	timestamp time.Time
	report    *report.Report
}

// NewPerfPublisher resolves the project naming and looks up the report of
// b once. A missing report is not an error. Errors from the resolver or
// the lookup are returned wrapped.
func NewPerfPublisher(ctx context.Context, resolver build.Resolver, prefix string, b build.Build, timestamp time.Time, lookup report.Lookup) (*PerfPublisher, error) {
	naming, err := resolver.Resolve(b, prefix)
	if err != nil {
		return nil, fmt.Errorf("generator: resolve naming for %s: %w", b, err)
	}

	rep, err := lookup.Lookup(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("generator: lookup report for %s: %w", b, err)
	}

	return &PerfPublisher{
		prefix:    prefix,
		build:     b,
		naming:    naming,
		timestamp: timestamp,
		report:    rep,
	}, nil
}

// HasReport reports whether the build has a report, even an empty one.
func (g *PerfPublisher) HasReport() bool {
	return g.report != nil
}

// Generate returns the points for the report, or nil without a report.
// It panics if a test carries a nil metric map.
func (g *PerfPublisher) Generate() []point.Point {
	if g.report == nil {
		return nil
	}

	points := make([]point.Point, 0, 1+g.pointsHint())
	points = append(points, g.summaryPoint())
	points = append(points, g.metricPoints()...)

	for _, t := range g.report.Tests {
		points = append(points, g.testPoint(t))
		for _, name := range t.MetricNames() {
			points = append(points, g.testMetricPoint(t, name, t.Metrics[name]))
		}
	}

	return points
}

func (g *PerfPublisher) pointsHint() int {
	n := 0
	for _, t := range g.report.Tests {
		n += 1 + 2*len(t.Metrics)
	}
	return n
}

// newPoint starts a point carrying the tags shared by every measurement.
func (g *PerfPublisher) newPoint(measurement string) point.Point {
	p := point.New(measurement, g.timestamp)
	p.AddTag("prefix", g.prefix)
	p.AddTag("project_name", g.naming.ProjectName)
	p.AddTag("project_path", g.naming.ProjectPath)
	p.AddField("build_number", point.Int(int64(g.build.Number)))
	return p
}

// addProjectFields duplicates the project tags as string fields.
func (g *PerfPublisher) addProjectFields(p *point.Point) {
	p.AddField("project_name", point.String(g.naming.ProjectName))
	p.AddField("project_path", point.String(g.naming.ProjectPath))
}

func (g *PerfPublisher) summaryPoint() point.Point {
	executed := 0
	for _, t := range g.report.Tests {
		if t.Executed {
			executed++
		}
	}

	p := g.newPoint(MeasurementSummary)
	p.AddField("number_of_executed_tests", point.Int(int64(executed)))
	return p
}

// metricStats accumulates the measures recorded under one metric name.
type metricStats struct {
	sum   float64
	best  float64
	worst float64
	count int
}

func (s *metricStats) add(v float64) {
	if s.count == 0 || v > s.best {
		s.best = v
	}
	if s.count == 0 || v < s.worst {
		s.worst = v
	}
	s.sum += v
	s.count++
}

// metricPoints aggregates each metric name across all tests, in the order
// names are first seen.
func (g *PerfPublisher) metricPoints() []point.Point {
	var order []string
	stats := make(map[string]*metricStats)

	for _, t := range g.report.Tests {
		if t.Metrics == nil {
			panic(fmt.Sprintf("generator: test %q has a nil metric map", t.Name))
		}
		for _, name := range t.MetricNames() {
			s, ok := stats[name]
			if !ok {
				s = &metricStats{}
				stats[name] = s
				order = append(order, name)
			}
			s.add(t.Metrics[name].Measure)
		}
	}

	points := make([]point.Point, 0, len(order))
	for _, name := range order {
		s := stats[name]
		p := g.newPoint(MeasurementMetric)
		p.AddField("average", point.Float(s.sum/float64(s.count)))
		p.AddField("best", point.Float(s.best))
		p.AddField("worst", point.Float(s.worst))
		p.AddField("metric_name", point.String(name))
		g.addProjectFields(&p)
		points = append(points, p)
	}
	return points
}

func (g *PerfPublisher) testPoint(t *report.Test) point.Point {
	p := g.newPoint(MeasurementTest)
	p.AddTag("test_name", t.Name)
	p.AddField("executed", point.Bool(t.Executed))
	p.AddField("successful", point.Bool(t.Successful))
	g.addProjectFields(&p)
	p.AddField("test_name", point.String(t.Name))
	return p
}

func (g *PerfPublisher) testMetricPoint(t *report.Test, name string, m report.Metric) point.Point {
	p := g.newPoint(MeasurementTestMetric)
	p.AddTag("test_name", t.Name)
	p.AddField("metric_name", point.String(name))
	g.addProjectFields(&p)
	p.AddField("test_name", point.String(t.Name))
	p.AddField("relevant", point.Bool(m.Relevant))
	p.AddField("unit", point.String(m.Unit))
	p.AddField("value", point.Float(m.Measure))
	return p
}
