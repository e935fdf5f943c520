package clickhouse

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/kylerisse/perfpoints/pkg/point"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeStore records inserted rows in memory.
type fakeStore struct {
	created   int
	closed    bool
	rows      []row
	createErr error
	insertErr error
}

func (f *fakeStore) CreateTable(context.Context) error {
	f.created++
	return f.createErr
}

func (f *fakeStore) Insert(_ context.Context, rows []row) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func newTestSink(t *testing.T, st *fakeStore, dials *int) *Sink {
	t.Helper()
	s, err := New(Config{Addr: "localhost:9000"}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.dial = func(context.Context, Config) (store, error) {
		*dials++
		return st, nil
	}
	return s
}

func testPoint() point.Point {
	p := point.New("perfpublisher_test_metric", time.Unix(1700000000, 0))
	p.AddTag("prefix", "test_prefix")
	p.AddTag("test_name", "test.txt")
	p.AddField("build_number", point.Int(11))
	p.AddField("value", point.Float(50))
	p.AddField("relevant", point.Bool(true))
	p.AddField("unit", point.String("ms"))
	return p
}

func TestNew_Defaults(t *testing.T) {
	s, err := New(Config{Addr: "localhost:9000"}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Type() != TypeName {
		t.Errorf("expected type %q, got %q", TypeName, s.Type())
	}
	if s.cfg.Database != DefaultDatabase || s.cfg.Table != DefaultTable {
		t.Errorf("unexpected defaults %s.%s", s.cfg.Database, s.cfg.Table)
	}
	if s.cfg.DialTimeout != DefaultDialTimeout {
		t.Errorf("expected default dial timeout, got %v", s.cfg.DialTimeout)
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty addr", Config{}},
		{"bad table", Config{Addr: "x:9000", Table: "points; DROP TABLE x"}},
		{"bad database", Config{Addr: "x:9000", Database: "1db"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, testLogger()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWrite_InsertsRows(t *testing.T) {
	st := &fakeStore{}
	var dials int
	s := newTestSink(t, st, &dials)

	if err := s.Write(context.Background(), []point.Point{testPoint(), testPoint()}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Write(context.Background(), []point.Point{testPoint()}); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	if dials != 1 || st.created != 1 {
		t.Errorf("expected one connection and one CREATE TABLE, got %d and %d", dials, st.created)
	}
	if len(st.rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(st.rows))
	}

	r := st.rows[0]
	if r.Measurement != "perfpublisher_test_metric" {
		t.Errorf("unexpected measurement %q", r.Measurement)
	}
	if r.Tags["test_name"] != "test.txt" {
		t.Errorf("unexpected tags %v", r.Tags)
	}
	if r.Ints["build_number"] != 11 {
		t.Errorf("expected build_number in int fields, got %v", r.Ints)
	}
	if r.Floats["value"] != 50 {
		t.Errorf("expected value in float fields, got %v", r.Floats)
	}
	if !r.Bools["relevant"] {
		t.Errorf("expected relevant in bool fields, got %v", r.Bools)
	}
	if r.Strings["unit"] != "ms" {
		t.Errorf("expected unit in string fields, got %v", r.Strings)
	}
	if !r.Time.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected time %v", r.Time)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !st.closed {
		t.Error("expected store to be closed")
	}
}

func TestWrite_Empty(t *testing.T) {
	var dials int
	s := newTestSink(t, &fakeStore{}, &dials)
	if err := s.Write(context.Background(), nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if dials != 0 {
		t.Errorf("expected no connection for empty write, got %d", dials)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close without connection failed: %v", err)
	}
}

func TestWrite_CreateTableErrorRetried(t *testing.T) {
	st := &fakeStore{createErr: errors.New("readonly")}
	var dials int
	s := newTestSink(t, st, &dials)

	if err := s.Write(context.Background(), []point.Point{testPoint()}); err == nil {
		t.Fatal("expected create table error")
	}
	if !st.closed {
		t.Error("expected store closed after failed setup")
	}

	st.createErr = nil
	if err := s.Write(context.Background(), []point.Point{testPoint()}); err != nil {
		t.Fatalf("expected second attempt to succeed, got %v", err)
	}
	if dials != 2 {
		t.Errorf("expected a second dial, got %d", dials)
	}
}

func TestWrite_InsertError(t *testing.T) {
	st := &fakeStore{insertErr: errors.New("too many parts")}
	var dials int
	s := newTestSink(t, st, &dials)

	err := s.Write(context.Background(), []point.Point{testPoint()})
	if err == nil || !strings.Contains(err.Error(), "too many parts") {
		t.Errorf("expected insert error, got %v", err)
	}
}

func TestCreateTableQuery(t *testing.T) {
	q := createTableQuery("perf", "points")
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS `perf`.`points`",
		"int_fields Map(String, Int64)",
		"float_fields Map(String, Float64)",
		"timestamp DateTime64(9)",
		"ENGINE = MergeTree()",
	} {
		if !strings.Contains(q, want) {
			t.Errorf("expected %q in query:\n%s", want, q)
		}
	}
}

func TestFactory(t *testing.T) {
	f := NewFactory(testLogger())

	snk, err := f(map[string]any{
		"addr":         "clickhouse:9000",
		"database":     "perf",
		"table":        "points",
		"username":     "default",
		"dial_timeout": "2s",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := snk.(*Sink)
	if s.cfg.Addr != "clickhouse:9000" || s.cfg.Database != "perf" || s.cfg.Table != "points" {
		t.Errorf("unexpected config %+v", s.cfg)
	}
	if s.cfg.DialTimeout != 2*time.Second {
		t.Errorf("expected 2s dial timeout, got %v", s.cfg.DialTimeout)
	}

	if _, err := f(map[string]any{}); err == nil {
		t.Error("expected error for missing addr")
	}
	if _, err := f(map[string]any{"addr": 9000}); err == nil {
		t.Error("expected error for non-string addr")
	}
	if _, err := f(map[string]any{"addr": "x:9000", "dial_timeout": "later"}); err == nil {
		t.Error("expected error for invalid dial_timeout")
	}
}
