// Package config handles configuration loading and management
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kylerisse/perfpoints/pkg/point"
	"github.com/kylerisse/perfpoints/pkg/report"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is used when no log level is configured.
	DefaultLogLevel = "info"

	// DefaultReportsDir is the DirLookup root used when nothing else is set.
	DefaultReportsDir = "."
)

// Config holds the application configuration
type Config struct {
	Prefix    string       `yaml:"prefix"`
	LogLevel  string       `yaml:"log_level"`
	Precision string       `yaml:"precision"`
	Reports   Reports      `yaml:"reports"`
	Sinks     []SinkConfig `yaml:"sinks"`
}

// Reports selects where build reports are read from.
type Reports struct {
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`
}

// S3Config configures the S3 report lookup. It is used instead of Dir when
// Bucket is set.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// SinkConfig names a sink type and its raw options.
type SinkConfig struct {
	Type    string         `yaml:"type"`
	Options map[string]any `yaml:"options"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		LogLevel:  DefaultLogLevel,
		Precision: string(point.Nanosecond),
		Reports:   Reports{Dir: DefaultReportsDir},
	}
}

// Load reads the .env file if it exists, then the YAML file at path (when
// path is not empty), then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// It's okay if the file doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("error opening config file: %w", err)
		}
		defer f.Close()

		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
// Environment variables are not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Prefix = getEnv("PERFPOINTS_PREFIX", c.Prefix)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Precision = getEnv("PERFPOINTS_PRECISION", c.Precision)
	c.Reports.Dir = getEnv("PERFPOINTS_REPORTS_DIR", c.Reports.Dir)
	c.Reports.S3.Endpoint = getEnv("PERFPOINTS_S3_ENDPOINT", c.Reports.S3.Endpoint)
	c.Reports.S3.Bucket = getEnv("PERFPOINTS_S3_BUCKET", c.Reports.S3.Bucket)
	c.Reports.S3.AccessKey = getEnv("PERFPOINTS_S3_ACCESS_KEY", c.Reports.S3.AccessKey)
	c.Reports.S3.SecretKey = getEnv("PERFPOINTS_S3_SECRET_KEY", c.Reports.S3.SecretKey)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := c.PointPrecision(); err != nil {
		return fmt.Errorf("invalid precision: %w", err)
	}
	if c.UseS3() && c.Reports.S3.Endpoint == "" {
		return fmt.Errorf("reports.s3: endpoint is required when bucket is set")
	}
	if !c.UseS3() && c.Reports.Dir == "" {
		return fmt.Errorf("reports: dir must not be empty")
	}
	for i, s := range c.Sinks {
		if s.Type == "" {
			return fmt.Errorf("sinks[%d]: type is required", i)
		}
	}
	return nil
}

// Level returns the parsed log level. An unparsable level falls back to
// info, and ok is false so the caller can warn once logging is set up.
func (c *Config) Level() (level logrus.Level, ok bool) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel, false
	}
	return level, true
}

// PointPrecision returns the parsed timestamp precision.
func (c *Config) PointPrecision() (point.Precision, error) {
	return point.ParsePrecision(c.Precision)
}

// UseS3 reports whether reports are read from S3 rather than a directory.
func (c *Config) UseS3() bool {
	return c.Reports.S3.Bucket != ""
}

// ReportS3Config converts the S3 section to the report package's settings.
func (c *Config) ReportS3Config() report.S3Config {
	s := c.Reports.S3
	return report.S3Config{
		Endpoint:  s.Endpoint,
		Region:    s.Region,
		AccessKey: s.AccessKey,
		SecretKey: s.SecretKey,
		Bucket:    s.Bucket,
		Prefix:    s.Prefix,
		UseSSL:    s.UseSSL,
	}
}

// secretKeys are sink option keys whose values are masked by String.
var secretKeys = map[string]bool{
	"password":   true,
	"token":      true,
	"secret_key": true,
}

func mask(v string) string {
	if v == "" {
		return "(not set)"
	}
	return "********"
}

func orNotSet(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}

func (c *Config) String() string {
	var sb strings.Builder

	source := "dir " + c.Reports.Dir
	if c.UseS3() {
		source = fmt.Sprintf("s3://%s/%s at %s", c.Reports.S3.Bucket, c.Reports.S3.Prefix, c.Reports.S3.Endpoint)
	}

	fmt.Fprintf(&sb, `Current Configuration:
======================
Prefix:           %s
Log Level:        %s
Precision:        %s
Reports:          %s`,
		orNotSet(c.Prefix),
		c.LogLevel,
		c.Precision,
		source,
	)
	if c.UseS3() {
		fmt.Fprintf(&sb, "\nS3 Access Key:    %s\nS3 Secret Key:    %s",
			orNotSet(c.Reports.S3.AccessKey), mask(c.Reports.S3.SecretKey))
	}

	if len(c.Sinks) == 0 {
		sb.WriteString("\nSinks:            (none)")
		return sb.String()
	}
	sb.WriteString("\nSinks:")
	for _, s := range c.Sinks {
		fmt.Fprintf(&sb, "\n  - %s", s.Type)

		keys := make([]string, 0, len(s.Options))
		for k := range s.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := fmt.Sprint(s.Options[k])
			if secretKeys[k] {
				v = mask(v)
			}
			fmt.Fprintf(&sb, "\n      %s: %s", k, v)
		}
	}
	return sb.String()
}
