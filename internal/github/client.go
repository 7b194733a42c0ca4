// Package github fetches individual files from GitHub repositories
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public GitHub REST API
const DefaultBaseURL = "https://api.github.com"

// maxFileSize bounds a single fetched file
const maxFileSize = 10 << 20

// FileFetcher fetches files from a repository at a ref
type FileFetcher interface {
	GetFile(ctx context.Context, owner, repo, ref, path string) ([]byte, error)
	// CheckPath confirms that owner/repo exists and, when set, that ref and
	// the directory dir exist in it
	CheckPath(ctx context.Context, owner, repo, ref, dir string) error
}

// Client is a minimal GitHub contents API client. It performs no retries.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewClient creates a client for the public API
func NewClient(options ...func(*Client)) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		userAgent:  "depAuditGoMCP",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logrus.New(),
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// WithBaseURL sets the API base URL
func WithBaseURL(baseURL string) func(*Client) {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithToken sets the bearer token
func WithToken(token string) func(*Client) {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) func(*Client) {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) func(*Client) {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRequestsPerSecond paces outgoing requests. Zero disables pacing.
func WithRequestsPerSecond(rps float64) func(*Client) {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) func(*Client) {
	return func(c *Client) {
		c.logger = logger
	}
}

// HasToken reports whether requests are authenticated
func (c *Client) HasToken() bool {
	return c.token != ""
}

// GetFile returns the raw contents of path in owner/repo at ref. An empty
// ref means the default branch.
func (c *Client) GetFile(ctx context.Context, owner, repo, ref, path string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), escapePath(path))
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}

	logger := c.logger.WithFields(logrus.Fields{
		"owner": owner,
		"repo":  repo,
		"ref":   ref,
		"path":  path,
	})
	logger.Debug("Fetching repository file")

	resp, err := c.send(ctx, endpoint, "application/vnd.github.raw")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s/%s/%s", owner, repo, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		accessErr := c.classify(resp, owner, repo, ref, path)
		logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"kind":   accessErr.Kind,
		}).Debug("Repository file request failed")
		return nil, accessErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFileSize+1))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s/%s/%s", owner, repo, path)
	}
	if len(body) > maxFileSize {
		return nil, fmt.Errorf("%s/%s/%s exceeds %d bytes", owner, repo, path, maxFileSize)
	}

	return body, nil
}

// CheckPath confirms that a target exists. With dir set it asks for that
// directory at ref; with only ref set it asks for the commit ref names;
// otherwise it asks for the repository itself.
func (c *Client) CheckPath(ctx context.Context, owner, repo, ref, dir string) error {
	endpoint := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	switch {
	case dir != "":
		endpoint += "/contents/" + escapePath(dir)
		if ref != "" {
			endpoint += "?ref=" + url.QueryEscape(ref)
		}
	case ref != "":
		endpoint += "/commits/" + escapePath(ref)
	}

	resp, err := c.send(ctx, endpoint, "application/vnd.github+json")
	if err != nil {
		return errors.Wrapf(err, "failed to check %s/%s", owner, repo)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxFileSize))

	if resp.StatusCode != http.StatusOK {
		accessErr := c.classify(resp, owner, repo, ref, dir)
		c.logger.WithFields(logrus.Fields{
			"owner":  owner,
			"repo":   repo,
			"ref":    ref,
			"path":   dir,
			"status": resp.StatusCode,
			"kind":   accessErr.Kind,
		}).Debug("Repository check failed")
		return accessErr
	}
	return nil
}

// send paces and issues one GET request
func (c *Client) send(ctx context.Context, endpoint, accept string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "waiting for request slot")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	c.setHeaders(req, accept)

	return c.httpClient.Do(req)
}

func (c *Client) setHeaders(req *http.Request, accept string) {
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// classify maps a non-200 response to a RemoteAccessError
func (c *Client) classify(resp *http.Response, owner, repo, ref, path string) *RemoteAccessError {
	kind := KindUnexpected
	switch resp.StatusCode {
	// the commits endpoint answers 422 for a ref that names no commit
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		kind = KindNotFound
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	case http.StatusForbidden:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != "" {
			kind = KindRateLimited
		} else {
			kind = KindAccessDenied
		}
	case http.StatusUnauthorized:
		kind = KindAccessDenied
	}

	return &RemoteAccessError{
		Kind:        kind,
		Owner:       owner,
		Repo:        repo,
		Ref:         ref,
		Path:        path,
		Status:      resp.StatusCode,
		Remediation: remediationFor(kind, c.HasToken()),
	}
}

// escapePath escapes each segment of a slash separated path
func escapePath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
