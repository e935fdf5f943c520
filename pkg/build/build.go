// Package build describes the CI build a performance report belongs to and
// resolves the project naming used to tag every emitted point.
//
// A Build identifies one run of a Job by number. A Resolver turns a Build and
// a configured prefix into a Naming: the qualified project name and the
// job's hierarchical path. ProjectNames is the default Resolver.
package build

import (
	"fmt"
	"path"
	"strings"
)

// Job identifies the CI job that produced a build.
type Job struct {
	// Name is the job's short name (e.g. "master").
	Name string

	// Path is the job's hierarchical path relative to the CI root
	// (e.g. "folder/master"). Empty means the job sits at the root.
	Path string
}

// Build is a reference to a single numbered run of a Job.
type Build struct {
	Job    Job
	Number int
}

// String returns "path#number", used in logs and errors.
func (b Build) String() string {
	return fmt.Sprintf("%s#%d", b.Job.FullPath(), b.Number)
}

// FullPath returns the job path, falling back to the job name.
func (j Job) FullPath() string {
	if p := strings.Trim(j.Path, "/"); p != "" {
		return p
	}
	return j.Name
}

// ValidatePath checks that the job's full path is a relative path that
// stays below the directory it is joined to: not absolute, and without a
// ".." element once cleaned.
func (j Job) ValidatePath() error {
	if strings.HasPrefix(j.Path, "/") || strings.HasPrefix(j.Path, `\`) {
		return fmt.Errorf("build: job path %q must be relative", j.Path)
	}
	p := j.FullPath()
	if p == "" {
		return fmt.Errorf("build: job has neither a path nor a name")
	}
	for _, elem := range strings.Split(path.Clean(strings.ReplaceAll(p, `\`, "/")), "/") {
		if elem == ".." {
			return fmt.Errorf("build: job path %q must not leave its root", p)
		}
	}
	return nil
}

// Naming holds the project identity strings attached to every point.
type Naming struct {
	ProjectName string
	ProjectPath string
}

// Resolver computes the Naming for a build.
type Resolver interface {
	Resolve(b Build, prefix string) (Naming, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(b Build, prefix string) (Naming, error)

// Resolve calls f(b, prefix).
func (f ResolverFunc) Resolve(b Build, prefix string) (Naming, error) {
	return f(b, prefix)
}

// ProjectNames is the default Resolver. The project name is the prefix and
// the job name joined by an underscore, or the job name alone when the
// prefix is empty. The project path is the job's full path.
type ProjectNames struct{}

// Resolve implements Resolver.
func (ProjectNames) Resolve(b Build, prefix string) (Naming, error) {
	if b.Job.Name == "" {
		return Naming{}, fmt.Errorf("build: job name must not be empty")
	}
	name := b.Job.Name
	if prefix != "" {
		name = prefix + "_" + b.Job.Name
	}
	return Naming{
		ProjectName: name,
		ProjectPath: b.Job.FullPath(),
	}, nil
}

var _ Resolver = ProjectNames{}
