package report

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/kylerisse/perfpoints/pkg/build"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// S3Config holds the settings for an S3Lookup.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// S3Lookup reads reports from an S3-compatible bucket laid out as
// {prefix}/{job path}/{build number}/*.xml.
type S3Lookup struct {
	client *minio.Client
	bucket string
	prefix string
	logger logrus.FieldLogger
}

// NewS3Lookup validates cfg and creates the S3 client. No request is made
// until the first Lookup.
func NewS3Lookup(cfg S3Config, logger logrus.FieldLogger) (*S3Lookup, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("report: s3 endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("report: s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	opts := &minio.Options{
		Secure: cfg.UseSSL,
		Region: region,
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts.Creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}

	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("report: init s3 client: %w", err)
	}

	return &S3Lookup{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger.WithField("component", "s3_lookup"),
	}, nil
}

// objectPrefix returns the key prefix under which a build's reports live.
func (s *S3Lookup) objectPrefix(b build.Build) (string, error) {
	key, err := buildKey(b)
	if err != nil {
		return "", err
	}
	return path.Join(s.prefix, key) + "/", nil
}

// Lookup implements Lookup.
func (s *S3Lookup) Lookup(ctx context.Context, b build.Build) (*Report, error) {
	prefix, err := s.objectPrefix(b)
	if err != nil {
		return nil, err
	}

	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("report: list s3://%s/%s: %w", s.bucket, prefix, obj.Err)
		}
		if strings.EqualFold(path.Ext(obj.Key), ".xml") {
			keys = append(keys, obj.Key)
		}
	}
	sort.Strings(keys)

	if len(keys) == 0 {
		s.logger.Debugf("No report objects for build %s under s3://%s/%s", b, s.bucket, prefix)
		return nil, nil
	}

	var rep *Report
	for _, key := range keys {
		part, err := s.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		s.logger.WithFields(logrus.Fields{
			"key":   key,
			"tests": len(part.Tests),
		}).Debug("Parsed report object")
		if rep == nil {
			rep = part
			continue
		}
		rep.Merge(part)
	}
	return rep, nil
}

func (s *S3Lookup) fetch(ctx context.Context, key string) (*Report, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("report: get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer obj.Close()

	rep, err := Parse(obj)
	if err != nil {
		return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, key, err)
	}
	return rep, nil
}

var _ Lookup = (*S3Lookup)(nil)
