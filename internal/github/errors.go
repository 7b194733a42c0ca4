package github

import (
	"fmt"

	"github.com/pkg/errors"
)

// AccessErrorKind classifies a failed remote repository request
type AccessErrorKind string

// Access error kinds
const (
	KindNotFound     AccessErrorKind = "not_found"
	KindAccessDenied AccessErrorKind = "access_denied"
	KindRateLimited  AccessErrorKind = "rate_limited"
	KindUnexpected   AccessErrorKind = "unexpected"
)

// RemoteAccessError describes a repository file that could not be fetched
type RemoteAccessError struct {
	Kind        AccessErrorKind
	Owner       string
	Repo        string
	Ref         string
	Path        string
	Status      int
	Remediation string
}

// Error implements error
func (e *RemoteAccessError) Error() string {
	target := fmt.Sprintf("%s/%s", e.Owner, e.Repo)
	if e.Ref != "" {
		target += "@" + e.Ref
	}
	if e.Path != "" {
		target += "/" + e.Path
	}

	var msg string
	switch e.Kind {
	case KindNotFound:
		msg = fmt.Sprintf("%s was not found", target)
	case KindAccessDenied:
		msg = fmt.Sprintf("access to %s was denied (status %d)", target, e.Status)
	case KindRateLimited:
		msg = fmt.Sprintf("rate limit exceeded while fetching %s", target)
	default:
		msg = fmt.Sprintf("unexpected status %d while fetching %s", e.Status, target)
	}

	if e.Remediation != "" {
		msg += ": " + e.Remediation
	}
	return msg
}

// IsNotFound reports whether err is a RemoteAccessError of kind not found
func IsNotFound(err error) bool {
	return hasKind(err, KindNotFound)
}

// IsRateLimited reports whether err is a RemoteAccessError of kind rate limited
func IsRateLimited(err error) bool {
	return hasKind(err, KindRateLimited)
}

func hasKind(err error, kind AccessErrorKind) bool {
	var accessErr *RemoteAccessError
	if !errors.As(err, &accessErr) {
		return false
	}
	return accessErr.Kind == kind
}

func remediationFor(kind AccessErrorKind, tokenSet bool) string {
	switch kind {
	case KindNotFound:
		if tokenSet {
			return "check the repository name, ref and subpath"
		}
		return "check the repository name, ref and subpath; private repositories need a GITHUB_TOKEN"
	case KindAccessDenied:
		if tokenSet {
			return "the configured token lacks read access to this repository"
		}
		return "set GITHUB_TOKEN to a token with read access to this repository"
	case KindRateLimited:
		if tokenSet {
			return "wait for the rate limit window to reset and try again"
		}
		return "set GITHUB_TOKEN to raise the rate limit, or wait for the window to reset"
	default:
		return "try again later"
	}
}
