package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kylerisse/perfpoints/pkg/config"
	"github.com/sirupsen/logrus"
)

const reportXML = `<report name="perf" categ="nightly">
  <test name="test.txt" executed="yes">
    <result>
      <success passed="yes"/>
      <metrics>
        <metric1 unit="ms" mesure="50" isRelevant="true"/>
      </metrics>
    </result>
  </test>
</report>`

// setup writes a report for folder/job#11 and a config file pointing at it.
// extra is appended to the config.
func setup(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()

	buildDir := filepath.Join(dir, "builds", "folder", "job", "11")
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(buildDir, "perf.xml"), []byte(reportXML), 0o644); err != nil {
		t.Fatalf("write report: %v", err)
	}

	cfg := fmt.Sprintf("prefix: test_prefix\nlog_level: error\nprecision: ms\nreports:\n  dir: %q\n%s",
		filepath.Join(dir, "builds"), extra)
	cfgPath := filepath.Join(dir, "perfpoints.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func buildArgs(cmd, cfgPath string, number string) []string {
	return []string{cmd, "--config", cfgPath, "--job", "job", "--job-path", "folder/job",
		"--build", number, "--time", "2023-11-14T22:13:20Z"}
}

func TestRender(t *testing.T) {
	cfgPath := setup(t, "")

	out, err := run(t, buildArgs("render", cfgPath, "11")...)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), out)
	}

	tags := ",prefix=test_prefix,project_name=test_prefix_job,project_path=folder/job "
	for i, m := range []string{"perfpublisher_summary", "perfpublisher_metric", "perfpublisher_test", "perfpublisher_test_metric"} {
		if !strings.HasPrefix(lines[i], m+tags) && !strings.HasPrefix(lines[i], m+",") {
			t.Errorf("line %d: expected measurement %s, got %q", i, m, lines[i])
		}
		if !strings.HasSuffix(lines[i], " 1700000000000") {
			t.Errorf("line %d: expected millisecond timestamp, got %q", i, lines[i])
		}
	}
	if !strings.HasPrefix(lines[0], "perfpublisher_summary"+tags) {
		t.Errorf("unexpected summary tags: %q", lines[0])
	}
	if !strings.Contains(lines[0], "number_of_executed_tests=1i") {
		t.Errorf("expected executed test count in %q", lines[0])
	}
}

func TestRender_PrefixFlag(t *testing.T) {
	cfgPath := setup(t, "")

	out, err := run(t, append(buildArgs("render", cfgPath, "11"), "--prefix", "other")...)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(out, "project_name=other_job") {
		t.Errorf("expected --prefix to override config:\n%s", out)
	}
}

func TestRender_NoReport(t *testing.T) {
	cfgPath := setup(t, "")

	out, err := run(t, buildArgs("render", cfgPath, "12")...)
	if err != nil {
		t.Fatalf("expected success without a report, got %v", err)
	}
	if strings.TrimSpace(out) != "" {
		t.Errorf("expected no output, got %q", out)
	}
}

func TestPublish_FileSink(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "points.lp")
	cfgPath := setup(t, fmt.Sprintf("sinks:\n  - type: file\n    options:\n      path: %q\n      precision: s\n", outPath))

	if _, err := run(t, buildArgs("publish", cfgPath, "11")...); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), data)
	}
	if !strings.HasSuffix(lines[0], " 1700000000") {
		t.Errorf("expected the sink's second precision, got %q", lines[0])
	}
}

func TestPublish_Errors(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		args  func(cfgPath string) []string
	}{
		{
			name: "no sinks",
			args: func(c string) []string { return buildArgs("publish", c, "11") },
		},
		{
			name:  "unknown sink type",
			extra: "sinks:\n  - type: carrier_pigeon\n",
			args:  func(c string) []string { return buildArgs("publish", c, "11") },
		},
		{
			name:  "invalid sink options",
			extra: "sinks:\n  - type: influx\n    options: {database: x}\n",
			args:  func(c string) []string { return buildArgs("publish", c, "11") },
		},
		{
			name:  "bad time",
			extra: "sinks:\n  - type: file\n",
			args: func(c string) []string {
				return []string{"publish", "--config", c, "--job", "job", "--build", "11", "--time", "yesterday"}
			},
		},
		{
			name: "missing job",
			args: func(c string) []string { return []string{"publish", "--config", c, "--build", "11"} },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := setup(t, tt.extra)
			if _, err := run(t, tt.args(cfgPath)...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestShowConfig(t *testing.T) {
	cfgPath := setup(t, "sinks:\n  - type: influx\n    options: {url: \"http://localhost:8086\", token: abc123}\n")

	out, err := run(t, "show-config", "--config", cfgPath)
	if err != nil {
		t.Fatalf("show-config failed: %v", err)
	}
	if !strings.Contains(out, "test_prefix") || !strings.Contains(out, "- influx") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "abc123") {
		t.Errorf("expected token to be masked:\n%s", out)
	}
}

func TestShowConfig_SinkTypes(t *testing.T) {
	cfgPath := setup(t, "sinks:\n  - type: file\n  - type: carrier_pigeon\n")

	out, err := run(t, "show-config", "--config", cfgPath)
	if err != nil {
		t.Fatalf("show-config failed: %v", err)
	}
	if !strings.Contains(out, "Available Sinks:  clickhouse, file, influx") {
		t.Errorf("expected sorted sink types:\n%s", out)
	}
	if !strings.Contains(out, `sinks[1] has unknown type "carrier_pigeon"`) {
		t.Errorf("expected a warning for the unknown sink:\n%s", out)
	}
	if strings.Contains(out, "sinks[0]") {
		t.Errorf("expected no warning for the file sink:\n%s", out)
	}
}

func TestServe_Errors(t *testing.T) {
	cfgPath := setup(t, "")
	if _, err := run(t, "serve", "--config", cfgPath, "--listen", "127.0.0.1:0"); err == nil {
		t.Error("expected error without sinks")
	}

	cfgPath = setup(t, "sinks:\n  - type: file\n")
	if _, err := run(t, "serve", "--config", cfgPath, "--workers", "0"); err == nil {
		t.Error("expected error for zero workers")
	}
}

func TestRender_InvalidLogLevelFallsBack(t *testing.T) {
	cfgPath := setup(t, "")

	out, err := run(t, append(buildArgs("render", cfgPath, "11"), "--log-level", "bogus")...)
	if err != nil {
		t.Fatalf("expected render to run with an invalid log level, got %v", err)
	}
	if n := len(strings.Split(strings.TrimSpace(out), "\n")); n != 4 {
		t.Errorf("expected 4 lines, got %d:\n%s", n, out)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.LogLevel = "bogus"

	logger := newLogger(cfg, &buf)
	if logger.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected info level, got %v", logger.GetLevel())
	}
	if !strings.Contains(buf.String(), `Invalid log level \"bogus\"`) {
		t.Errorf("expected a warning, got %q", buf.String())
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected config to show the effective level, got %q", cfg.LogLevel)
	}

	buf.Reset()
	cfg.LogLevel = "error"
	if logger := newLogger(cfg, &buf); logger.GetLevel() != logrus.ErrorLevel {
		t.Errorf("expected error level, got %v", logger.GetLevel())
	}
	if buf.Len() != 0 {
		t.Errorf("expected no warning for a valid level, got %q", buf.String())
	}
}
