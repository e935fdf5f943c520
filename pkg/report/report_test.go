package report

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kylerisse/perfpoints/pkg/build"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.DebugLevel)
	return l
}

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<report name="perf" categ="nightly">
  <test name="test.txt" executed="yes">
    <result>
      <metrics>
        <metric1 unit="ms" mesure="50" isRelevant="true"/>
      </metrics>
    </result>
  </test>
  <test name="second" executed="no">
    <result>
      <success passed="yes" state="100"/>
      <metrics>
        <metric1 unit="ms" mesure="100" isRelevant="false"/>
        <memory unit="MB" mesure="12.5"/>
      </metrics>
    </result>
  </test>
  <test name="bare" executed="true"/>
</report>`

func TestParse_Sample(t *testing.T) {
	rep, err := Parse(strings.NewReader(sampleXML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Name != "perf" || rep.Category != "nightly" {
		t.Errorf("unexpected name/category %q/%q", rep.Name, rep.Category)
	}
	if len(rep.Tests) != 3 {
		t.Fatalf("expected 3 tests, got %d", len(rep.Tests))
	}

	first := rep.Tests[0]
	if first.Name != "test.txt" || !first.Executed {
		t.Errorf("unexpected first test %+v", first)
	}
	if first.Successful {
		t.Error("expected successful to default to false without <success>")
	}
	m, ok := first.Metrics["metric1"]
	if !ok {
		t.Fatal("expected metric1 on first test")
	}
	if m.Measure != 50 || !m.Relevant || m.Unit != "ms" {
		t.Errorf("unexpected metric1 %+v", m)
	}

	second := rep.Tests[1]
	if second.Executed || !second.Successful {
		t.Errorf("unexpected flags on second test %+v", second)
	}
	if len(second.Metrics) != 2 {
		t.Errorf("expected 2 metrics on second test, got %d", len(second.Metrics))
	}
	if second.Metrics["memory"].Measure != 12.5 || second.Metrics["memory"].Relevant {
		t.Errorf("unexpected memory metric %+v", second.Metrics["memory"])
	}

	bare := rep.Tests[2]
	if bare.Metrics == nil {
		t.Error("expected empty, non-nil metric map for test without metrics")
	}
	if !bare.Executed {
		t.Error("expected executed=true to parse")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not xml", "not xml at all"},
		{"bad executed", `<report><test name="a" executed="maybe"/></report>`},
		{"bad measure", `<report><test name="a"><result><metrics><m mesure="fast"/></metrics></result></test></report>`},
		{"bad relevant", `<report><test name="a"><result><metrics><m mesure="1" isRelevant="sometimes"/></metrics></result></test></report>`},
		{"wrong root", `<suite><test name="a"/></suite>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.doc)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestParseFlag(t *testing.T) {
	for _, in := range []string{"yes", "YES", "true", "1", " True "} {
		if v, err := parseFlag(in); err != nil || !v {
			t.Errorf("parseFlag(%q) = %v, %v; want true", in, v, err)
		}
	}
	for _, in := range []string{"", "no", "false", "0", "No"} {
		if v, err := parseFlag(in); err != nil || v {
			t.Errorf("parseFlag(%q) = %v, %v; want false", in, v, err)
		}
	}
}

func TestTest_MetricNamesSorted(t *testing.T) {
	tc := NewTest("t")
	tc.SetMetric("zeta", Metric{})
	tc.SetMetric("alpha", Metric{})
	tc.SetMetric("mid", Metric{})
	got := strings.Join(tc.MetricNames(), ",")
	if got != "alpha,mid,zeta" {
		t.Errorf("expected sorted names, got %s", got)
	}
}

func TestReport_Merge(t *testing.T) {
	a := New()
	a.AddTest(NewTest("a"))
	b := &Report{Name: "b", Category: "c"}
	b.AddTest(NewTest("b1"))
	b.AddTest(NewTest("b2"))

	a.Merge(b)
	a.Merge(nil)

	if len(a.Tests) != 3 {
		t.Fatalf("expected 3 tests, got %d", len(a.Tests))
	}
	if a.Tests[2].Name != "b2" {
		t.Errorf("expected merge to preserve order, got %q last", a.Tests[2].Name)
	}
	if a.Name != "b" || a.Category != "c" {
		t.Errorf("expected empty name/category to be filled, got %q/%q", a.Name, a.Category)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDirLookup(t *testing.T) {
	root := t.TempDir()
	b := build.Build{Job: build.Job{Name: "master", Path: "folder/master"}, Number: 11}
	dir := filepath.Join(root, "folder", "master", "11")

	writeFile(t, filepath.Join(dir, "b.xml"), `<report><test name="second" executed="yes"/></report>`)
	writeFile(t, filepath.Join(dir, "a.xml"), `<report name="first"><test name="first" executed="yes"/></report>`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	lookup := NewDirLookup(root, testLogger())
	rep, err := lookup.Lookup(context.Background(), b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep == nil {
		t.Fatal("expected a report")
	}
	if len(rep.Tests) != 2 {
		t.Fatalf("expected 2 tests, got %d", len(rep.Tests))
	}
	if rep.Tests[0].Name != "first" || rep.Tests[1].Name != "second" {
		t.Errorf("expected files merged in lexical order, got %q, %q", rep.Tests[0].Name, rep.Tests[1].Name)
	}
	if rep.Name != "first" {
		t.Errorf("expected report name from first file, got %q", rep.Name)
	}
}

func TestDirLookup_Absent(t *testing.T) {
	root := t.TempDir()
	lookup := NewDirLookup(root, testLogger())

	rep, err := lookup.Lookup(context.Background(), build.Build{Job: build.Job{Name: "none"}, Number: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep != nil {
		t.Error("expected no report for missing directory")
	}

	if err := os.MkdirAll(filepath.Join(root, "empty", "2"), 0755); err != nil {
		t.Fatal(err)
	}
	rep, err = lookup.Lookup(context.Background(), build.Build{Job: build.Job{Name: "empty"}, Number: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep != nil {
		t.Error("expected no report for directory without XML files")
	}
}

func TestDirLookup_EmptyReportIsPresent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "job", "5", "perf.xml"), `<report name="empty"></report>`)

	rep, err := NewDirLookup(root, testLogger()).Lookup(context.Background(), build.Build{Job: build.Job{Name: "job"}, Number: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep == nil {
		t.Fatal("expected a present report with zero tests")
	}
	if len(rep.Tests) != 0 {
		t.Errorf("expected zero tests, got %d", len(rep.Tests))
	}
}

func TestDirLookup_ParseError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "job", "1", "broken.xml"), "<report><test")

	_, err := NewDirLookup(root, testLogger()).Lookup(context.Background(), build.Build{Job: build.Job{Name: "job"}, Number: 1})
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "broken.xml") {
		t.Errorf("expected error to name the file, got %v", err)
	}
}

func TestDirLookup_RejectsEscapingJobPath(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "root")
	writeFile(t, filepath.Join(root, "job", "11", "r.xml"), sampleXML)
	writeFile(t, filepath.Join(base, "secret", "11", "r.xml"), sampleXML)

	lookup := NewDirLookup(root, testLogger())
	for _, path := range []string{"../secret", "job/../../secret", "/secret"} {
		rep, err := lookup.Lookup(context.Background(), build.Build{Job: build.Job{Name: "x", Path: path}, Number: 11})
		if err == nil {
			t.Errorf("%s: expected error", path)
		}
		if rep != nil {
			t.Errorf("%s: expected no report, got %+v", path, rep)
		}
	}
}

func TestNewS3Lookup_Validation(t *testing.T) {
	if _, err := NewS3Lookup(S3Config{Bucket: "b"}, testLogger()); err == nil {
		t.Error("expected error for missing endpoint")
	}
	if _, err := NewS3Lookup(S3Config{Endpoint: "localhost:9000"}, testLogger()); err == nil {
		t.Error("expected error for missing bucket")
	}

	s, err := NewS3Lookup(S3Config{Endpoint: "localhost:9000", Bucket: "perf", Prefix: "/jenkins/"}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.objectPrefix(build.Build{Job: build.Job{Name: "master", Path: "folder/master"}, Number: 11})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "jenkins/folder/master/11/" {
		t.Errorf("unexpected object prefix %q", got)
	}
}
