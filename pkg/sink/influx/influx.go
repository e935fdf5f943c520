// Package influx implements a sink that writes points to InfluxDB over its
// HTTP line-protocol write API. Both the 1.x endpoint (/write, database and
// retention policy) and the 2.x endpoint (/api/v2/write, org and bucket)
// are supported. Points are sent in batches, optionally paced by a rate
// limiter. Failed writes are reported, never retried.
package influx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kylerisse/perfpoints/pkg/point"
	"github.com/kylerisse/perfpoints/pkg/sink"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// TypeName is the registered name for this sink type.
	TypeName = "influx"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultBatchSize is the default number of points per write request.
	DefaultBatchSize = 5000

	// maxErrorBody caps how much of an error response is kept.
	maxErrorBody = 1024
)

// Sink writes points to an InfluxDB HTTP endpoint.
type Sink struct {
	baseURL   string
	database  string
	rp        string
	org       string
	bucket    string
	token     string
	username  string
	password  string
	precision point.Precision
	batchSize int
	timeout   time.Duration
	limiter   *rate.Limiter
	client    *http.Client
	writeURL  string
	logger    logrus.FieldLogger
}

// Option is a functional option for configuring a Sink.
type Option func(*Sink) error

// WithDatabase targets a 1.x database.
func WithDatabase(db string) Option {
	return func(s *Sink) error {
		s.database = db
		return nil
	}
}

// WithRetentionPolicy sets the 1.x retention policy.
func WithRetentionPolicy(rp string) Option {
	return func(s *Sink) error {
		s.rp = rp
		return nil
	}
}

// WithBucket targets a 2.x organization and bucket. /api/v2/write needs
// both, so neither may be empty.
func WithBucket(org, bucket string) Option {
	return func(s *Sink) error {
		if org == "" {
			return fmt.Errorf("org must not be empty")
		}
		if bucket == "" {
			return fmt.Errorf("bucket must not be empty")
		}
		s.org = org
		s.bucket = bucket
		return nil
	}
}

// WithToken sets the API token sent as "Authorization: Token <token>".
func WithToken(token string) Option {
	return func(s *Sink) error {
		s.token = token
		return nil
	}
}

// WithBasicAuth sets 1.x credentials.
func WithBasicAuth(username, password string) Option {
	return func(s *Sink) error {
		s.username = username
		s.password = password
		return nil
	}
}

// WithPrecision sets the timestamp precision.
func WithPrecision(p point.Precision) Option {
	return func(s *Sink) error {
		s.precision = p
		return nil
	}
}

// WithBatchSize sets the maximum number of points per request.
func WithBatchSize(n int) Option {
	return func(s *Sink) error {
		if n <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		s.batchSize = n
		return nil
	}
}

// WithRate limits write requests to perSecond requests per second.
func WithRate(perSecond float64) Option {
	return func(s *Sink) error {
		if perSecond <= 0 {
			return fmt.Errorf("rate must be positive, got %v", perSecond)
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		return nil
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Sink) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		s.timeout = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Sink) error {
		s.logger = l
		return nil
	}
}

// New creates a Sink writing to the InfluxDB instance at baseURL.
// Either WithDatabase or WithBucket is required.
func New(baseURL string, opts ...Option) (*Sink, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("influx: url must not be empty")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("influx: invalid url %q: %w", baseURL, err)
	}

	s := &Sink{
		baseURL:   baseURL,
		precision: point.Nanosecond,
		batchSize: DefaultBatchSize,
		timeout:   DefaultTimeout,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		logger:    logrus.StandardLogger(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("influx: %w", err)
		}
	}

	if s.database == "" && s.bucket == "" {
		return nil, fmt.Errorf("influx: a database or a bucket is required")
	}

	s.client = &http.Client{Timeout: s.timeout}
	s.writeURL = s.buildWriteURL()
	s.logger = s.logger.WithField("component", "influx_sink")

	return s, nil
}

func (s *Sink) buildWriteURL() string {
	q := url.Values{}
	q.Set("precision", string(s.precision))
	if s.bucket != "" {
		q.Set("org", s.org)
		q.Set("bucket", s.bucket)
		return s.baseURL + "/api/v2/write?" + q.Encode()
	}
	q.Set("db", s.database)
	if s.rp != "" {
		q.Set("rp", s.rp)
	}
	return s.baseURL + "/write?" + q.Encode()
}

// Type returns the sink type name.
func (s *Sink) Type() string {
	return TypeName
}

// Write sends points in batches of at most the configured batch size.
func (s *Sink) Write(ctx context.Context, points []point.Point) error {
	for start := 0; start < len(points); start += s.batchSize {
		end := min(start+s.batchSize, len(points))
		if err := s.writeBatch(ctx, points[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) writeBatch(ctx context.Context, points []point.Point) error {
	var body bytes.Buffer
	if err := point.Encode(&body, points, s.precision); err != nil {
		return fmt.Errorf("influx: encode: %w", err)
	}
	if body.Len() == 0 {
		return nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("influx: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.writeURL, &body)
	if err != nil {
		return fmt.Errorf("influx: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	switch {
	case s.token != "":
		req.Header.Set("Authorization", "Token "+s.token)
	case s.username != "":
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("influx: write to %s: %w", s.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("influx: write returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	s.logger.Debugf("Wrote %d point(s) to %s", len(points), s.baseURL)
	return nil
}

// Close releases idle HTTP connections.
func (s *Sink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

var _ sink.Sink = (*Sink)(nil)
