// Package target parses target references, derives the identity key that
// correlates successive scans, and materializes targets on disk.
package target

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// LocalKeyPrefix prefixes identity keys of local directory targets
const LocalKeyPrefix = "local:"

// remoteHost is the only host accepted in full repository URLs
const remoteHost = "github.com"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidationError reports a malformed target reference
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

// Error implements error
func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
}

// RepoReference identifies a remote repository
type RepoReference struct {
	Owner string
	Repo  string
}

// String returns the owner/repo form
func (r RepoReference) String() string {
	return r.Owner + "/" + r.Repo
}

// ParseRepoReference accepts "owner/repo" shorthand as well as https, ssh
// and scheme-less URLs of repositories on github.com.
func ParseRepoReference(raw string) (RepoReference, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return RepoReference{}, &ValidationError{Field: "repo", Message: "repository reference is required"}
	}

	invalid := func(msg string) (RepoReference, error) {
		return RepoReference{}, &ValidationError{Field: "repo", Value: raw, Message: msg}
	}

	var segments []string
	shorthand := false

	switch {
	case strings.HasPrefix(value, "git@"):
		rest := strings.TrimPrefix(value, "git@")
		host, path, ok := strings.Cut(rest, ":")
		if !ok || !isRemoteHost(host) {
			return invalid("expected git@github.com:owner/repo")
		}
		segments = splitPath(path)

	case strings.Contains(value, "://"):
		u, err := url.Parse(value)
		if err != nil {
			return invalid("not a valid URL")
		}
		if !isRemoteHost(u.Hostname()) {
			return invalid("only github.com repositories are supported")
		}
		segments = splitPath(u.Path)

	case hasHostPrefix(value):
		_, path, _ := strings.Cut(value, "/")
		segments = splitPath(path)

	default:
		shorthand = true
		segments = splitPath(value)
	}

	if len(segments) < 2 || (shorthand && len(segments) != 2) {
		return invalid("expected owner/repo or a github.com repository URL")
	}

	owner := segments[0]
	repo := strings.TrimSuffix(segments[1], ".git")
	for _, name := range []string{owner, repo} {
		if !namePattern.MatchString(name) || name == "." || name == ".." {
			return invalid(fmt.Sprintf("%q is not a valid owner or repository name", name))
		}
	}

	return RepoReference{Owner: owner, Repo: repo}, nil
}

// CleanSubpath trims separators and rejects paths escaping the target
func CleanSubpath(raw string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(raw), `/\`)
	if trimmed == "" {
		return "", nil
	}

	normalized := strings.ReplaceAll(trimmed, `\`, "/")
	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return "", &ValidationError{Field: "subpath", Value: raw, Message: "must not leave the repository"}
		}
	}
	return trimmed, nil
}

// RemoteKey returns the identity key of a repository target. The ref is
// not part of the key.
func RemoteKey(ref RepoReference, subpath string) string {
	if subpath == "" {
		return ref.String()
	}
	return ref.String() + ":" + subpath
}

// LocalRoot resolves the directory of a local target against workDir
func LocalRoot(path, subpath, workDir string) string {
	root := path
	if root == "" {
		root = workDir
	} else if !filepath.IsAbs(root) {
		root = filepath.Join(workDir, root)
	}
	if subpath != "" {
		root = filepath.Join(root, filepath.FromSlash(subpath))
	}
	return filepath.Clean(root)
}

// IdentityKey derives the history key for a request
func IdentityKey(req models.ProjectRequest) (string, error) {
	subpath, err := CleanSubpath(req.Subpath)
	if err != nil {
		return "", err
	}

	if req.IsRemote() {
		ref, err := ParseRepoReference(req.Repo)
		if err != nil {
			return "", err
		}
		return RemoteKey(ref, subpath), nil
	}

	workDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to determine working directory: %w", err)
	}
	return LocalKeyPrefix + LocalRoot(strings.TrimSpace(req.Path), subpath, workDir), nil
}

func isRemoteHost(host string) bool {
	host = strings.ToLower(host)
	return host == remoteHost || host == "www."+remoteHost
}

func hasHostPrefix(value string) bool {
	host, _, ok := strings.Cut(value, "/")
	return ok && isRemoteHost(host)
}

func splitPath(path string) []string {
	var segments []string
	for _, s := range strings.Split(strings.Trim(path, "/"), "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
