package report

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kylerisse/perfpoints/pkg/build"
	"github.com/sirupsen/logrus"
)

// Lookup retrieves the performance report of a build.
// A nil Report with a nil error means the build has no report.
type Lookup interface {
	Lookup(ctx context.Context, b build.Build) (*Report, error)
}

// LookupFunc adapts a plain function to the Lookup interface.
type LookupFunc func(ctx context.Context, b build.Build) (*Report, error)

// Lookup calls f(ctx, b).
func (f LookupFunc) Lookup(ctx context.Context, b build.Build) (*Report, error) {
	return f(ctx, b)
}

// buildKey returns "<job path>/<number>", the layout shared by all lookups.
// Job paths that would leave the lookup root are rejected.
func buildKey(b build.Build) (string, error) {
	if err := b.Job.ValidatePath(); err != nil {
		return "", fmt.Errorf("report: %w", err)
	}
	return path.Join(b.Job.FullPath(), strconv.Itoa(b.Number)), nil
}

// DirLookup reads reports from a directory tree laid out as
// {root}/{job path}/{build number}/*.xml. All XML files of a build are
// merged, in lexical order, into one Report.
type DirLookup struct {
	root   string
	logger logrus.FieldLogger
}

// NewDirLookup creates a DirLookup rooted at root.
func NewDirLookup(root string, logger logrus.FieldLogger) *DirLookup {
	return &DirLookup{
		root:   root,
		logger: logger.WithField("component", "dir_lookup"),
	}
}

// Lookup implements Lookup.
func (d *DirLookup) Lookup(ctx context.Context, b build.Build) (*Report, error) {
	key, err := buildKey(b)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(d.root, filepath.FromSlash(key))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.logger.Debugf("No report directory for build %s at %s", b, dir)
			return nil, nil
		}
		return nil, fmt.Errorf("report: read %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	if len(files) == 0 {
		d.logger.Debugf("No XML report in %s for build %s", dir, b)
		return nil, nil
	}

	var rep *Report
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		part, err := ParseFile(file)
		if err != nil {
			return nil, err
		}
		d.logger.WithFields(logrus.Fields{
			"file":  file,
			"tests": len(part.Tests),
		}).Debug("Parsed report file")
		if rep == nil {
			rep = part
			continue
		}
		rep.Merge(part)
	}

	return rep, nil
}

var (
	_ Lookup = (*DirLookup)(nil)
	_ Lookup = LookupFunc(nil)
)
