package advisor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/threatflux/depAuditGoMCP/internal/audit"
	"github.com/threatflux/depAuditGoMCP/internal/github"
	"github.com/threatflux/depAuditGoMCP/internal/history"
	"github.com/threatflux/depAuditGoMCP/internal/models"
	"github.com/threatflux/depAuditGoMCP/internal/target"
)

// MockAuditor is a mock Auditor
type MockAuditor struct {
	mock.Mock
}

// Audit mocks a scan
func (m *MockAuditor) Audit(ctx context.Context, root string) (*models.AuditSummary, error) {
	args := m.Called(ctx, root)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuditSummary), args.Error(1)
}

// staticFetcher serves the same files for every repository
type staticFetcher struct {
	files   map[string]string
	err     error
	missing error
}

func (f staticFetcher) GetFile(_ context.Context, owner, repo, _, path string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if body, ok := f.files[path]; ok {
		return []byte(body), nil
	}
	return nil, &github.RemoteAccessError{Kind: github.KindNotFound, Owner: owner, Repo: repo, Path: path}
}

func (f staticFetcher) CheckPath(context.Context, string, string, string, string) error {
	return f.missing
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func lodashSummary() *models.AuditSummary {
	vulns := []models.Vulnerability{
		{Name: "lodash", Severity: models.SeverityCritical, Title: "Prototype Pollution", Fix: models.VersionFix("4.17.21"), IsDirect: models.BoolPtr(true)},
		{Name: "minimist", Severity: models.SeverityLow, Title: "Prototype Pollution", Fix: models.FlagFix(true)},
	}
	counts := models.SeverityCounts{Critical: 1, Low: 1}
	return models.NewAuditSummary(models.EcosystemNpm, counts, vulns)
}

func newTestService(t *testing.T, auditor Auditor, fetcher github.FileFetcher) (*Service, *history.Store, string) {
	t.Helper()
	tempParent := t.TempDir()
	logger := quietLogger()

	resolver := &target.MultiResolver{
		Local:  target.NewLocalResolver(),
		Remote: target.NewRemoteResolver(fetcher, nil, target.WithTempDir(tempParent), target.WithResolverLogger(logger)),
	}
	store := history.NewStore(history.WithLogger(logger))
	return NewService(resolver, auditor, store, WithLogger(logger)), store, tempParent
}

func TestService_DerivedViews(t *testing.T) {
	auditor := new(MockAuditor)
	auditor.On("Audit", mock.Anything, mock.AnythingOfType("string")).Return(lodashSummary(), nil)

	fetcher := staticFetcher{files: map[string]string{"package.json": "{}", "package-lock.json": "{}"}}
	service, _, tempParent := newTestService(t, auditor, fetcher)
	req := models.ProjectRequest{Repo: "acme/widgets"}
	ctx := context.Background()

	summary, err := service.Audit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalVulnerabilities)

	readiness, err := service.ShipReadiness(ctx, req)
	require.NoError(t, err)
	assert.False(t, readiness.SafeToShip)

	risk, err := service.HighestRisk(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, risk.Highest)
	assert.Equal(t, "lodash", risk.Highest.Name)

	report, err := service.Summary(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, report.Summary, "Found 2 vulnerable dependencies.")

	suggestions, err := service.UpgradeSuggestions(ctx, req)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	assert.Equal(t, "npm install lodash@4.17.21", suggestions[0].Command)
	assert.Equal(t, "latest", suggestions[1].TargetVersion)

	// every materialized target was released
	entries, err := os.ReadDir(tempParent)
	require.NoError(t, err)
	assert.Empty(t, entries)
	auditor.AssertNumberOfCalls(t, "Audit", 5)
}

func TestService_CompareAccumulatesPerKey(t *testing.T) {
	auditor := new(MockAuditor)
	auditor.On("Audit", mock.Anything, mock.Anything).Return(lodashSummary(), nil).Once()
	auditor.On("Audit", mock.Anything, mock.Anything).Return(models.NewAuditSummary(models.EcosystemNpm, models.SeverityCounts{}, nil), nil).Once()

	fetcher := staticFetcher{files: map[string]string{"package.json": "{}", "package-lock.json": "{}"}}
	service, store, _ := newTestService(t, auditor, fetcher)
	ctx := context.Background()

	first, err := service.Compare(ctx, models.ProjectRequest{Repo: "https://github.com/acme/widgets.git", Ref: "main"})
	require.NoError(t, err)
	assert.True(t, first.IsFirstScan)
	assert.Equal(t, "acme/widgets", first.RepoID)

	second, err := service.Compare(ctx, models.ProjectRequest{Repo: "acme/widgets", Ref: "release"})
	require.NoError(t, err)
	assert.False(t, second.IsFirstScan)
	assert.Equal(t, []models.FindingKey{
		{Name: "lodash", Severity: models.SeverityCritical},
		{Name: "minimist", Severity: models.SeverityLow},
	}, second.Fixed)
	assert.Equal(t, -2, second.Delta)

	saved := store.History("acme/widgets")
	require.Len(t, saved, 2)
	assert.Equal(t, "main", saved[0].Ref)
	assert.Equal(t, "release", saved[1].Ref)
	assert.Equal(t, models.EcosystemNpm, saved[1].Ecosystem)
}

func TestService_LocalTarget(t *testing.T) {
	dir := t.TempDir()
	auditor := new(MockAuditor)
	auditor.On("Audit", mock.Anything, dir).Return(models.EmptyAuditSummary(), nil)

	service, _, _ := newTestService(t, auditor, staticFetcher{})

	result, err := service.Compare(context.Background(), models.ProjectRequest{Path: dir})
	require.NoError(t, err)
	assert.Equal(t, "local:"+dir, result.RepoID)
	auditor.AssertExpectations(t)
}

func TestService_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("validation", func(t *testing.T) {
		service, _, _ := newTestService(t, new(MockAuditor), staticFetcher{})

		_, err := service.Audit(ctx, models.ProjectRequest{Repo: "acme/widgets", Subpath: "../escape"})
		require.Error(t, err)
		assert.Equal(t, KindValidation, Classify(err))

		_, err = service.Audit(ctx, models.ProjectRequest{Repo: "not-a-repo"})
		assert.Equal(t, KindValidation, Classify(err))
	})

	t.Run("remote access", func(t *testing.T) {
		limited := &github.RemoteAccessError{Kind: github.KindRateLimited, Owner: "acme", Repo: "widgets", Status: 429}
		service, _, _ := newTestService(t, new(MockAuditor), staticFetcher{err: limited})

		_, err := service.ShipReadiness(ctx, models.ProjectRequest{Repo: "acme/widgets"})
		require.Error(t, err)
		assert.Equal(t, KindRateLimited, Classify(err))
	})

	t.Run("missing repository", func(t *testing.T) {
		missing := &github.RemoteAccessError{Kind: github.KindNotFound, Owner: "acme", Repo: "ghost", Status: 404}
		auditor := new(MockAuditor)
		service, store, tempParent := newTestService(t, auditor, staticFetcher{missing: missing})

		_, err := service.ShipReadiness(ctx, models.ProjectRequest{Repo: "acme/ghost"})
		require.Error(t, err)
		assert.Equal(t, KindNotFound, Classify(err))
		auditor.AssertNotCalled(t, "Audit", mock.Anything, mock.Anything)
		assert.Equal(t, 0, store.Len("acme/ghost"))

		entries, readErr := os.ReadDir(tempParent)
		require.NoError(t, readErr)
		assert.Empty(t, entries)
	})

	t.Run("scanner", func(t *testing.T) {
		auditor := new(MockAuditor)
		scanErr := &audit.ScannerExecutionError{Ecosystem: models.EcosystemNpm, Root: "/tmp/x", Remediation: "install npm"}
		auditor.On("Audit", mock.Anything, mock.Anything).Return(nil, scanErr)

		fetcher := staticFetcher{files: map[string]string{"package.json": "{}", "package-lock.json": "{}"}}
		service, store, tempParent := newTestService(t, auditor, fetcher)

		_, err := service.Compare(ctx, models.ProjectRequest{Repo: "acme/widgets"})
		require.Error(t, err)
		assert.Equal(t, KindScanner, Classify(err))
		assert.Contains(t, err.Error(), "auditing acme/widgets")
		assert.Equal(t, 0, store.Len("acme/widgets"))

		entries, readErr := os.ReadDir(tempParent)
		require.NoError(t, readErr)
		assert.Empty(t, entries)
	})
}

func TestService_RemoteTargetAgainstGitHub(t *testing.T) {
	ctx := context.Background()
	logger := quietLogger()

	newClient := func(t *testing.T, existing map[string]bool) *github.Client {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if existing[r.URL.Path] {
				_, _ = w.Write([]byte(`{}`))
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		t.Cleanup(server.Close)
		return github.NewClient(github.WithBaseURL(server.URL), github.WithLogger(logger))
	}

	t.Run("private or missing repository is not safe to ship", func(t *testing.T) {
		auditor := new(MockAuditor)
		service, _, _ := newTestService(t, auditor, newClient(t, nil))

		readiness, err := service.ShipReadiness(ctx, models.ProjectRequest{Repo: "acme/private"})
		require.Error(t, err)
		assert.Nil(t, readiness)
		assert.Equal(t, KindNotFound, Classify(err))
		assert.Contains(t, err.Error(), "GITHUB_TOKEN")
		auditor.AssertNotCalled(t, "Audit", mock.Anything, mock.Anything)
	})

	t.Run("unknown ref", func(t *testing.T) {
		service, _, _ := newTestService(t, new(MockAuditor), newClient(t, map[string]bool{"/repos/acme/widgets": true}))

		_, err := service.Audit(ctx, models.ProjectRequest{Repo: "acme/widgets", Ref: "v404"})
		require.Error(t, err)
		assert.Equal(t, KindNotFound, Classify(err))
		assert.Contains(t, err.Error(), "acme/widgets@v404")
	})

	t.Run("existing repository without manifests", func(t *testing.T) {
		auditor := new(MockAuditor)
		auditor.On("Audit", mock.Anything, mock.Anything).Return(models.EmptyAuditSummary(), nil)
		service, _, _ := newTestService(t, auditor, newClient(t, map[string]bool{"/repos/acme/docs": true}))

		readiness, err := service.ShipReadiness(ctx, models.ProjectRequest{Repo: "acme/docs"})
		require.NoError(t, err)
		assert.True(t, readiness.SafeToShip)
		auditor.AssertNumberOfCalls(t, "Audit", 1)
	})
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindNotFound, Classify(&github.RemoteAccessError{Kind: github.KindNotFound}))
	assert.Equal(t, KindAccessDenied, Classify(errors.Wrap(&github.RemoteAccessError{Kind: github.KindAccessDenied}, "x")))
	assert.Equal(t, KindTimeout, Classify(errors.Wrap(context.DeadlineExceeded, "scan")))
	assert.Equal(t, KindInternal, Classify(errors.New("boom")))
}
