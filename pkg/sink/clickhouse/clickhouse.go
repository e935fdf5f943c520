// Package clickhouse implements a sink that stores points as rows of a
// ClickHouse table. Tags and each field kind go into their own Map column,
// so every measurement shares one table. The connection is opened and the
// table created on the first write.
package clickhouse

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/kylerisse/perfpoints/pkg/point"
	"github.com/kylerisse/perfpoints/pkg/sink"
	"github.com/sirupsen/logrus"
)

const (
	// TypeName is the registered name for this sink type.
	TypeName = "clickhouse"

	// DefaultDatabase is used when no database is configured.
	DefaultDatabase = "default"

	// DefaultTable is used when no table is configured.
	DefaultTable = "perfpublisher_points"

	// DefaultDialTimeout is the default connection timeout.
	DefaultDialTimeout = 10 * time.Second
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds the connection settings for a Sink.
type Config struct {
	Addr        string
	Database    string
	Table       string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// row is the column layout of one stored point.
type row struct {
	Measurement string
	Tags        map[string]string
	Ints        map[string]int64
	Floats      map[string]float64
	Bools       map[string]bool
	Strings     map[string]string
	Time        time.Time
}

// store is the part of a ClickHouse connection the sink needs.
type store interface {
	CreateTable(ctx context.Context) error
	Insert(ctx context.Context, rows []row) error
	Close() error
}

// Sink writes points to a ClickHouse table.
type Sink struct {
	cfg    Config
	logger logrus.FieldLogger
	dial   func(ctx context.Context, cfg Config) (store, error)

	mu    sync.Mutex
	store store
}

// New validates cfg and returns a Sink. No connection is made until the
// first Write.
func New(cfg Config, logger logrus.FieldLogger) (*Sink, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("clickhouse: addr must not be empty")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if !identifier.MatchString(cfg.Database) {
		return nil, fmt.Errorf("clickhouse: invalid database name %q", cfg.Database)
	}
	if !identifier.MatchString(cfg.Table) {
		return nil, fmt.Errorf("clickhouse: invalid table name %q", cfg.Table)
	}

	return &Sink{
		cfg:    cfg,
		logger: logger.WithField("component", "clickhouse_sink"),
		dial:   dialNative,
	}, nil
}

// Type returns the sink type name.
func (s *Sink) Type() string {
	return TypeName
}

// Write inserts one row per point in a single batch.
func (s *Sink) Write(ctx context.Context, points []point.Point) error {
	if len(points) == 0 {
		return nil
	}

	st, err := s.connect(ctx)
	if err != nil {
		return err
	}

	rows := make([]row, len(points))
	for i, p := range points {
		rows[i] = toRow(p)
	}

	if err := st.Insert(ctx, rows); err != nil {
		return fmt.Errorf("clickhouse: insert into %s.%s: %w", s.cfg.Database, s.cfg.Table, err)
	}
	s.logger.Debugf("Inserted %d row(s) into %s.%s", len(rows), s.cfg.Database, s.cfg.Table)
	return nil
}

// connect opens the connection and creates the table once. A failed
// attempt is retried on the next Write.
func (s *Sink) connect(ctx context.Context) (store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		return s.store, nil
	}

	st, err := s.dial(ctx, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: connect to %s: %w", s.cfg.Addr, err)
	}
	if err := st.CreateTable(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("clickhouse: create table %s.%s: %w", s.cfg.Database, s.cfg.Table, err)
	}

	s.logger.Infof("Connected to ClickHouse at %s", s.cfg.Addr)
	s.store = st
	return st, nil
}

// Close closes the connection if one was opened.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}

func toRow(p point.Point) row {
	r := row{
		Measurement: p.Measurement,
		Tags:        make(map[string]string, len(p.Tags)),
		Ints:        map[string]int64{},
		Floats:      map[string]float64{},
		Bools:       map[string]bool{},
		Strings:     map[string]string{},
		Time:        p.Time,
	}
	for _, t := range p.Tags {
		r.Tags[t.Key] = t.Value
	}
	for _, f := range p.Fields {
		switch f.Value.Kind() {
		case point.KindInt:
			v, _ := f.Value.AsInt()
			r.Ints[f.Key] = v
		case point.KindFloat:
			v, _ := f.Value.AsFloat()
			r.Floats[f.Key] = v
		case point.KindBool:
			v, _ := f.Value.AsBool()
			r.Bools[f.Key] = v
		case point.KindString:
			v, _ := f.Value.AsString()
			r.Strings[f.Key] = v
		}
	}
	return r
}

// nativeStore is a store backed by the ClickHouse native protocol.
type nativeStore struct {
	conn     driver.Conn
	database string
	table    string
}

func dialNative(ctx context.Context, cfg Config) (store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     cfg.DialTimeout,
		MaxOpenConns:    2,
		MaxIdleConns:    2,
		ConnMaxLifetime: 10 * time.Minute,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &nativeStore{conn: conn, database: cfg.Database, table: cfg.Table}, nil
}

func (n *nativeStore) CreateTable(ctx context.Context) error {
	return n.conn.Exec(ctx, createTableQuery(n.database, n.table))
}

func createTableQuery(database, table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s`.`%s`\n"+
		"(\n"+
		"\tmeasurement LowCardinality(String),\n"+
		"\ttags Map(String, String),\n"+
		"\tint_fields Map(String, Int64),\n"+
		"\tfloat_fields Map(String, Float64),\n"+
		"\tbool_fields Map(String, Bool),\n"+
		"\tstring_fields Map(String, String),\n"+
		"\ttimestamp DateTime64(9)\n"+
		") ENGINE = MergeTree()\n"+
		"ORDER BY (measurement, timestamp)", database, table)
}

func (n *nativeStore) Insert(ctx context.Context, rows []row) error {
	batch, err := n.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO `%s`.`%s`", n.database, n.table))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(r.Measurement, r.Tags, r.Ints, r.Floats, r.Bools, r.Strings, r.Time); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append row: %w", err)
		}
	}
	return batch.Send()
}

func (n *nativeStore) Close() error {
	return n.conn.Close()
}

// NewFactory returns a sink.Factory that builds clickhouse sinks.
//
// Required keys:
//   - "addr" (string): host:port of the native protocol endpoint
//
// Optional keys:
//   - "database" (string): default "default"
//   - "table" (string): default "perfpublisher_points"
//   - "username", "password" (string)
//   - "dial_timeout" (string): duration, default "10s"
func NewFactory(logger logrus.FieldLogger) sink.Factory {
	return func(options map[string]any) (sink.Sink, error) {
		o := sink.Options(options)
		var cfg Config

		for key, dst := range map[string]*string{
			"addr":     &cfg.Addr,
			"database": &cfg.Database,
			"table":    &cfg.Table,
			"username": &cfg.Username,
			"password": &cfg.Password,
		} {
			v, _, err := o.String(key)
			if err != nil {
				return nil, fmt.Errorf("clickhouse: %w", err)
			}
			*dst = v
		}

		d, _, err := o.Duration("dial_timeout")
		if err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		cfg.DialTimeout = d

		return New(cfg, logger)
	}
}

var _ sink.Sink = (*Sink)(nil)
