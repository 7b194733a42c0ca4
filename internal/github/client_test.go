package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, options ...func(*Client)) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	options = append([]func(*Client){WithBaseURL(server.URL), WithLogger(logger)}, options...)
	return NewClient(options...)
}

func TestGetFile_Success(t *testing.T) {
	var gotPath, gotRef, gotAuth, gotAccept string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRef = r.URL.Query().Get("ref")
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"name":"widgets"}`))
	}, WithToken("secret"))

	body, err := client.GetFile(context.Background(), "acme", "widgets", "v1.2.0", "frontend/package.json")
	require.NoError(t, err)

	assert.Equal(t, `{"name":"widgets"}`, string(body))
	assert.Equal(t, "/repos/acme/widgets/contents/frontend/package.json", gotPath)
	assert.Equal(t, "v1.2.0", gotRef)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "application/vnd.github.raw", gotAccept)
}

func TestGetFile_DefaultBranchOmitsRef(t *testing.T) {
	var rawQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		_, _ = w.Write([]byte("flask==2.0.0\n"))
	})

	_, err := client.GetFile(context.Background(), "acme", "widgets", "", "requirements.txt")
	require.NoError(t, err)
	assert.Empty(t, rawQuery)
}

func TestGetFile_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		headers  map[string]string
		token    string
		wantKind AccessErrorKind
		wantHint string
	}{
		{name: "not found", status: http.StatusNotFound, wantKind: KindNotFound, wantHint: "GITHUB_TOKEN"},
		{name: "unauthorized", status: http.StatusUnauthorized, token: "bad", wantKind: KindAccessDenied, wantHint: "lacks read access"},
		{name: "forbidden", status: http.StatusForbidden, wantKind: KindAccessDenied, wantHint: "set GITHUB_TOKEN"},
		{name: "rate limited 403", status: http.StatusForbidden, headers: map[string]string{"X-RateLimit-Remaining": "0"}, wantKind: KindRateLimited, wantHint: "rate limit"},
		{name: "rate limited 429", status: http.StatusTooManyRequests, token: "t", wantKind: KindRateLimited, wantHint: "wait"},
		{name: "server error", status: http.StatusBadGateway, wantKind: KindUnexpected, wantHint: "try again"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}, WithToken(tt.token))

			_, err := client.GetFile(context.Background(), "acme", "widgets", "", "package.json")
			require.Error(t, err)

			var accessErr *RemoteAccessError
			require.True(t, errors.As(err, &accessErr))
			assert.Equal(t, tt.wantKind, accessErr.Kind)
			assert.Equal(t, tt.status, accessErr.Status)
			assert.Contains(t, accessErr.Error(), "acme/widgets/package.json")
			assert.Contains(t, accessErr.Remediation, tt.wantHint)
		})
	}
}

func TestErrorKindHelpers(t *testing.T) {
	notFound := &RemoteAccessError{Kind: KindNotFound, Owner: "a", Repo: "b"}
	limited := &RemoteAccessError{Kind: KindRateLimited, Owner: "a", Repo: "b"}

	assert.True(t, IsNotFound(errors.Wrap(notFound, "fetching")))
	assert.False(t, IsNotFound(limited))
	assert.True(t, IsRateLimited(limited))
	assert.False(t, IsRateLimited(errors.New("plain")))
}

func TestGetFile_RespectsContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}, WithRequestsPerSecond(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.GetFile(ctx, "acme", "widgets", "", "package.json")
	assert.Error(t, err)
}

func TestCheckPath_Endpoints(t *testing.T) {
	tests := []struct {
		name      string
		ref       string
		dir       string
		wantPath  string
		wantQuery string
	}{
		{name: "repository", wantPath: "/repos/acme/widgets"},
		{name: "ref", ref: "release/1.x", wantPath: "/repos/acme/widgets/commits/release/1.x"},
		{name: "subpath", dir: "services/api", wantPath: "/repos/acme/widgets/contents/services/api"},
		{name: "subpath at ref", ref: "v2", dir: "web", wantPath: "/repos/acme/widgets/contents/web", wantQuery: "ref=v2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotQuery, gotAccept string
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotQuery = r.URL.RawQuery
				gotAccept = r.Header.Get("Accept")
				_, _ = w.Write([]byte(`{}`))
			})

			require.NoError(t, client.CheckPath(context.Background(), "acme", "widgets", tt.ref, tt.dir))
			assert.Equal(t, tt.wantPath, gotPath)
			assert.Equal(t, tt.wantQuery, gotQuery)
			assert.Equal(t, "application/vnd.github+json", gotAccept)
		})
	}
}

func TestCheckPath_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		ref      string
		wantKind AccessErrorKind
		wantText string
	}{
		{name: "missing repository", status: http.StatusNotFound, wantKind: KindNotFound, wantText: "acme/widgets was not found"},
		{name: "unknown ref", status: http.StatusUnprocessableEntity, ref: "nope", wantKind: KindNotFound, wantText: "acme/widgets@nope was not found"},
		{name: "denied", status: http.StatusUnauthorized, wantKind: KindAccessDenied, wantText: "denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			err := client.CheckPath(context.Background(), "acme", "widgets", tt.ref, "")
			require.Error(t, err)

			var accessErr *RemoteAccessError
			require.True(t, errors.As(err, &accessErr))
			assert.Equal(t, tt.wantKind, accessErr.Kind)
			assert.Equal(t, tt.ref, accessErr.Ref)
			assert.Contains(t, accessErr.Error(), tt.wantText)
		})
	}
}
