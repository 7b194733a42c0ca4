package target

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/threatflux/depAuditGoMCP/internal/github"
	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// Manifest files fetched for remote targets
const (
	PackageJSON     = "package.json"
	PackageLockJSON = "package-lock.json"
	RequirementsTxt = "requirements.txt"
	PyprojectTOML   = "pyproject.toml"
)

// RemoteFiles lists the files materialized for a remote target
var RemoteFiles = []string{PackageJSON, PackageLockJSON, RequirementsTxt, PyprojectTOML}

// Resolver turns a request into a directory that can be scanned
type Resolver interface {
	Resolve(ctx context.Context, req models.ProjectRequest) (*ResolvedProject, error)
}

// LockfileGenerator creates package-lock.json for a manifest-only directory
type LockfileGenerator interface {
	Generate(ctx context.Context, dir string) error
}

// ResolvedProject is a scannable directory plus its identity. Callers must
// call Release once they are done with Root.
type ResolvedProject struct {
	Root    string
	Key     string
	Ref     string
	Subpath string
	Remote  bool

	release    func() error
	once       sync.Once
	releaseErr error
}

// Release frees resources held for the project. Safe to call repeatedly.
func (p *ResolvedProject) Release() error {
	if p == nil {
		return nil
	}
	p.once.Do(func() {
		if p.release != nil {
			p.releaseErr = p.release()
		}
	})
	return p.releaseErr
}

// Meta returns the history metadata for the project
func (p *ResolvedProject) Meta(ecosystem models.Ecosystem) models.ScanMeta {
	return models.ScanMeta{Ref: p.Ref, Subpath: p.Subpath, Ecosystem: ecosystem}
}

// LocalResolver resolves directories on the local filesystem
type LocalResolver struct {
	workDir func() (string, error)
}

// NewLocalResolver creates a resolver relative to the process working directory
func NewLocalResolver() *LocalResolver {
	return &LocalResolver{workDir: os.Getwd}
}

// Resolve checks that the directory exists. Nothing is copied, so Release
// is a no-op.
func (r *LocalResolver) Resolve(_ context.Context, req models.ProjectRequest) (*ResolvedProject, error) {
	subpath, err := CleanSubpath(req.Subpath)
	if err != nil {
		return nil, err
	}

	workDir, err := r.workDir()
	if err != nil {
		return nil, errors.Wrap(err, "failed to determine working directory")
	}

	root := LocalRoot(strings.TrimSpace(req.Path), subpath, workDir)
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ValidationError{Field: "path", Value: root, Message: "directory does not exist"}
		}
		return nil, errors.Wrapf(err, "failed to inspect %s", root)
	}
	if !info.IsDir() {
		return nil, &ValidationError{Field: "path", Value: root, Message: "not a directory"}
	}

	return &ResolvedProject{
		Root:    root,
		Key:     LocalKeyPrefix + root,
		Ref:     req.Ref,
		Subpath: subpath,
	}, nil
}

// RemoteResolver downloads the manifest files of a repository into a
// temporary directory.
type RemoteResolver struct {
	fetcher   github.FileFetcher
	lockfiles LockfileGenerator
	tempDir   string
	logger    *logrus.Logger
}

// NewRemoteResolver creates a resolver backed by fetcher. lockfiles may be
// nil, in which case npm projects without a lockfile fail to resolve.
func NewRemoteResolver(fetcher github.FileFetcher, lockfiles LockfileGenerator, options ...func(*RemoteResolver)) *RemoteResolver {
	r := &RemoteResolver{
		fetcher:   fetcher,
		lockfiles: lockfiles,
		logger:    logrus.New(),
	}

	for _, option := range options {
		option(r)
	}

	return r
}

// WithTempDir sets the parent directory for materialized targets
func WithTempDir(dir string) func(*RemoteResolver) {
	return func(r *RemoteResolver) {
		r.tempDir = dir
	}
}

// WithResolverLogger sets the logger
func WithResolverLogger(logger *logrus.Logger) func(*RemoteResolver) {
	return func(r *RemoteResolver) {
		r.logger = logger
	}
}

// Resolve fetches the repository's manifest files at req.Ref. Files that do
// not exist are skipped; any other fetch failure aborts resolution. When no
// file exists at all, the repository, ref and subpath must still be reachable.
func (r *RemoteResolver) Resolve(ctx context.Context, req models.ProjectRequest) (*ResolvedProject, error) {
	ref, err := ParseRepoReference(req.Repo)
	if err != nil {
		return nil, err
	}
	subpath, err := CleanSubpath(req.Subpath)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(r.tempDir, "dam-"+ref.Owner+"-"+ref.Repo+"-")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temporary directory")
	}

	project := &ResolvedProject{
		Root:    dir,
		Key:     RemoteKey(ref, subpath),
		Ref:     req.Ref,
		Subpath: subpath,
		Remote:  true,
		release: func() error { return os.RemoveAll(dir) },
	}

	logger := r.logger.WithFields(logrus.Fields{
		"target": project.Key,
		"ref":    req.Ref,
	})

	fetched, err := r.fetch(ctx, ref, req.Ref, subpath, dir)
	if err != nil {
		_ = project.Release()
		return nil, err
	}

	// a missing repo, ref or subpath answers 404 for every file
	if len(fetched) == 0 {
		if err := r.fetcher.CheckPath(ctx, ref.Owner, ref.Repo, req.Ref, subpath); err != nil {
			_ = project.Release()
			return nil, err
		}
		logger.Debug("Remote target has no manifests")
	}

	if fetched[PackageJSON] && !fetched[PackageLockJSON] {
		if r.lockfiles == nil {
			_ = project.Release()
			return nil, errors.Errorf("%s has package.json but no package-lock.json and lockfile generation is unavailable", project.Key)
		}
		logger.Info("Generating lockfile for remote target")
		if err := r.lockfiles.Generate(ctx, dir); err != nil {
			_ = project.Release()
			return nil, errors.Wrapf(err, "%s has no package-lock.json", project.Key)
		}
	}

	logger.WithField("files", len(fetched)).Debug("Materialized remote target")
	return project, nil
}

// fetch downloads RemoteFiles concurrently and reports which ones exist
func (r *RemoteResolver) fetch(ctx context.Context, ref RepoReference, gitRef, subpath, dir string) (map[string]bool, error) {
	var mu sync.Mutex
	fetched := make(map[string]bool, len(RemoteFiles))

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range RemoteFiles {
		name := name
		g.Go(func() error {
			remotePath := path.Join(subpath, name)
			body, err := r.fetcher.GetFile(gctx, ref.Owner, ref.Repo, gitRef, remotePath)
			if err != nil {
				if github.IsNotFound(err) {
					return nil
				}
				return err
			}

			if err := os.WriteFile(filepath.Join(dir, name), body, 0o600); err != nil {
				return errors.Wrapf(err, "failed to write %s", name)
			}

			mu.Lock()
			fetched[name] = true
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fetched, nil
}

// MultiResolver dispatches to the remote resolver when a repository is
// given and to the local resolver otherwise.
type MultiResolver struct {
	Local  Resolver
	Remote Resolver
}

// Resolve implements Resolver
func (m *MultiResolver) Resolve(ctx context.Context, req models.ProjectRequest) (*ResolvedProject, error) {
	req.Normalize()
	if req.IsRemote() {
		if m.Remote == nil {
			return nil, &ValidationError{Field: "repo", Value: req.Repo, Message: "remote repositories are not enabled"}
		}
		return m.Remote.Resolve(ctx, req)
	}
	if m.Local == nil {
		return nil, &ValidationError{Field: "path", Value: req.Path, Message: "local directories are not enabled"}
	}
	return m.Local.Resolve(ctx, req)
}
