package influx

import (
	"context"
	"fmt"
	"time"

	"github.com/kylerisse/perfpoints/pkg/point"
	"github.com/kylerisse/perfpoints/pkg/sink"
	"github.com/sirupsen/logrus"
)

// NewFactory returns a sink.Factory that builds influx sinks logging to
// logger.
//
// Target keys (one of):
//   - "url" (string): base URL, e.g. "http://localhost:8086"
//   - "srv" (string): SRV record to resolve, e.g. "_influxdb._tcp.example.com";
//     with optional "dns_server" (host:port) and "scheme" (default "http")
//
// Destination keys (one of):
//   - "database" (string), optional "retention_policy" (string)
//   - "bucket" and "org" (string)
//
// Optional keys:
//   - "token", "username", "password" (string)
//   - "precision" (string): ns, us, ms, s; default ns
//   - "batch_size" (number): default 5000
//   - "rate" (number): write requests per second; default unlimited
//   - "timeout" (string): duration, default "10s"
func NewFactory(logger logrus.FieldLogger) sink.Factory {
	return func(options map[string]any) (sink.Sink, error) {
		return fromOptions(sink.Options(options), logger)
	}
}

func fromOptions(o sink.Options, logger logrus.FieldLogger) (*Sink, error) {
	opts := []Option{WithLogger(logger)}

	timeout := DefaultTimeout
	if d, ok, err := o.Duration("timeout"); err != nil {
		return nil, fmt.Errorf("influx: %w", err)
	} else if ok {
		timeout = d
		opts = append(opts, WithTimeout(d))
	}

	baseURL, err := targetURL(o, timeout)
	if err != nil {
		return nil, err
	}

	strOpts := map[string]string{}
	for _, key := range []string{"database", "retention_policy", "org", "bucket", "token", "username", "password", "precision"} {
		v, _, err := o.String(key)
		if err != nil {
			return nil, fmt.Errorf("influx: %w", err)
		}
		strOpts[key] = v
	}

	if strOpts["bucket"] != "" {
		opts = append(opts, WithBucket(strOpts["org"], strOpts["bucket"]))
	} else {
		opts = append(opts, WithDatabase(strOpts["database"]), WithRetentionPolicy(strOpts["retention_policy"]))
	}
	if strOpts["token"] != "" {
		opts = append(opts, WithToken(strOpts["token"]))
	}
	if strOpts["username"] != "" {
		opts = append(opts, WithBasicAuth(strOpts["username"], strOpts["password"]))
	}

	precision, err := point.ParsePrecision(strOpts["precision"])
	if err != nil {
		return nil, fmt.Errorf("influx: %w", err)
	}
	opts = append(opts, WithPrecision(precision))

	if n, ok, err := o.Int("batch_size"); err != nil {
		return nil, fmt.Errorf("influx: %w", err)
	} else if ok {
		opts = append(opts, WithBatchSize(n))
	}

	if r, ok, err := o.Float("rate"); err != nil {
		return nil, fmt.Errorf("influx: %w", err)
	} else if ok {
		opts = append(opts, WithRate(r))
	}

	return New(baseURL, opts...)
}

// targetURL returns the configured url, or resolves the srv record.
func targetURL(o sink.Options, timeout time.Duration) (string, error) {
	u, hasURL, err := o.String("url")
	if err != nil {
		return "", fmt.Errorf("influx: %w", err)
	}
	srvName, hasSRV, err := o.String("srv")
	if err != nil {
		return "", fmt.Errorf("influx: %w", err)
	}

	switch {
	case hasURL && hasSRV:
		return "", fmt.Errorf("influx: 'url' and 'srv' are mutually exclusive")
	case hasURL:
		return u, nil
	case !hasSRV:
		return "", fmt.Errorf("influx: config missing required key 'url' or 'srv'")
	}

	server, _, err := o.String("dns_server")
	if err != nil {
		return "", fmt.Errorf("influx: %w", err)
	}
	scheme, _, err := o.String("scheme")
	if err != nil {
		return "", fmt.Errorf("influx: %w", err)
	}
	if scheme == "" {
		scheme = "http"
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	hostport, err := ResolveSRV(ctx, srvName, server, timeout)
	if err != nil {
		return "", fmt.Errorf("influx: %w", err)
	}
	return scheme + "://" + hostport, nil
}
