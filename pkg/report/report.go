// Package report defines the performance report tree produced by a build's
// performance-testing step, parses it from PerfPublisher XML files, and looks
// it up for a given build from a directory tree or an S3 bucket.
//
// A Report holds an ordered list of Tests. Each Test carries a set of named
// Metrics. Tests created through NewTest always have a non-nil metric map.
package report

import (
	"sort"
)

// Metric is one measured quantity attached to a Test.
type Metric struct {
	// Measure is the measured value.
	Measure float64

	// Relevant marks metrics that count toward summary statistics.
	Relevant bool

	// Unit is the unit of measurement (e.g. "ms"). May be empty.
	Unit string
}

// Test is one named test case within a Report.
type Test struct {
	Name       string
	Executed   bool
	Successful bool

	// Metrics maps metric name to Metric. Never nil for tests built
	// with NewTest.
	Metrics map[string]Metric
}

// NewTest returns a Test with the given name and an empty metric set.
func NewTest(name string) *Test {
	return &Test{
		Name:    name,
		Metrics: make(map[string]Metric),
	}
}

// SetMetric records m under name, replacing any previous value.
func (t *Test) SetMetric(name string, m Metric) {
	if t.Metrics == nil {
		t.Metrics = make(map[string]Metric)
	}
	t.Metrics[name] = m
}

// MetricNames returns the test's metric names in ascending order.
func (t *Test) MetricNames() []string {
	names := make([]string, 0, len(t.Metrics))
	for name := range t.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Report is the root of one build's performance run.
type Report struct {
	Name     string
	Category string

	// Tests in source order. Order is significant for point output.
	Tests []*Test
}

// New returns an empty Report.
func New() *Report {
	return &Report{}
}

// AddTest appends t to the report.
func (r *Report) AddTest(t *Test) {
	r.Tests = append(r.Tests, t)
}

// Merge appends every test of other, in order. The receiver keeps its own
// name and category unless they are empty.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	if r.Name == "" {
		r.Name = other.Name
	}
	if r.Category == "" {
		r.Category = other.Category
	}
	r.Tests = append(r.Tests, other.Tests...)
}
