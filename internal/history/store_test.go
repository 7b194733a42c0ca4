package history

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// MockSizeRecorder is a mock SizeRecorder
type MockSizeRecorder struct {
	mock.Mock
}

// SetStoredScans records the stored scan count
func (m *MockSizeRecorder) SetStoredScans(n int) {
	m.Called(n)
}

func tickingClock() func() time.Time {
	var ticks int64
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		n := atomic.AddInt64(&ticks, 1)
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newTestStore(options ...func(*Store)) *Store {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	options = append([]func(*Store){WithLogger(logger), WithClock(tickingClock())}, options...)
	return NewStore(options...)
}

func summaryWith(vulns ...models.Vulnerability) *models.AuditSummary {
	var counts models.SeverityCounts
	for _, v := range vulns {
		counts.Add(v.Severity, 1)
	}
	return models.NewAuditSummary(models.EcosystemNpm, counts, vulns)
}

func TestCompare_FirstScan(t *testing.T) {
	store := newTestStore()
	current := summaryWith(models.Vulnerability{Name: "lodash", Severity: models.SeverityHigh})

	result, err := store.Compare("acme/widgets", current, models.ScanMeta{Ref: "main"})
	require.NoError(t, err)

	assert.True(t, result.IsFirstScan)
	assert.Equal(t, "acme/widgets", result.RepoID)
	assert.Equal(t, result.Baseline, result.Current)
	assert.Empty(t, result.Fixed)
	assert.Empty(t, result.Introduced)
	assert.NotNil(t, result.Fixed)
	assert.Equal(t, 0, result.Delta)
	assert.Contains(t, result.Summary, "First scan")

	saved := store.History("acme/widgets")
	require.Len(t, saved, 1)
	assert.Equal(t, "main", saved[0].Ref)
	assert.Equal(t, models.EcosystemNpm, saved[0].Ecosystem)
	assert.NotEmpty(t, saved[0].ID)
}

func TestCompare_IdenticalSecondScan(t *testing.T) {
	store := newTestStore()
	current := summaryWith(models.Vulnerability{Name: "lodash", Severity: models.SeverityHigh})

	_, err := store.Compare("local:/srv/app", current, models.ScanMeta{})
	require.NoError(t, err)
	result, err := store.Compare("local:/srv/app", current, models.ScanMeta{})
	require.NoError(t, err)

	assert.False(t, result.IsFirstScan)
	assert.Empty(t, result.Fixed)
	assert.Empty(t, result.Introduced)
	assert.Equal(t, 0, result.Delta)
	assert.Contains(t, result.Summary, "+0 total")
	assert.True(t, result.Current.Timestamp.After(result.Baseline.Timestamp))
}

func TestCompare_FixedAndIntroduced(t *testing.T) {
	store := newTestStore()

	_, err := store.Compare("acme/widgets", summaryWith(models.Vulnerability{Name: "lodash", Severity: models.SeverityHigh}), models.ScanMeta{})
	require.NoError(t, err)

	result, err := store.Compare("acme/widgets", summaryWith(), models.ScanMeta{})
	require.NoError(t, err)
	assert.Equal(t, []models.FindingKey{{Name: "lodash", Severity: models.SeverityHigh}}, result.Fixed)
	assert.Empty(t, result.Introduced)
	assert.Equal(t, -1, result.Delta)
	assert.Contains(t, result.Summary, "1 fixed, 0 introduced, -1 total")

	result, err = store.Compare("acme/widgets", summaryWith(models.Vulnerability{Name: "express", Severity: models.SeverityCritical}), models.ScanMeta{})
	require.NoError(t, err)
	assert.Empty(t, result.Fixed)
	assert.Equal(t, []models.FindingKey{{Name: "express", Severity: models.SeverityCritical}}, result.Introduced)
	assert.Equal(t, 1, result.Delta)
}

func TestDiff_KeysOnNameAndSeverity(t *testing.T) {
	baseline := []models.Vulnerability{
		{Name: "qs", Severity: models.SeverityHigh, AdvisoryID: "GHSA-1"},
		{Name: "qs", Severity: models.SeverityHigh, AdvisoryID: "GHSA-2"},
		{Name: "minimist", Severity: models.SeverityLow},
	}
	current := []models.Vulnerability{
		{Name: "qs", Severity: models.SeverityHigh, AdvisoryID: "GHSA-3"},
		{Name: "minimist", Severity: models.SeverityModerate},
	}

	fixed, introduced := Diff(baseline, current)
	assert.Equal(t, []models.FindingKey{{Name: "minimist", Severity: models.SeverityLow}}, fixed)
	assert.Equal(t, []models.FindingKey{{Name: "minimist", Severity: models.SeverityModerate}}, introduced)
}

func TestStore_RetentionIsFIFO(t *testing.T) {
	recorder := new(MockSizeRecorder)
	recorder.On("SetStoredScans", mock.Anything).Return()

	store := newTestStore(WithSizeRecorder(recorder))
	for i := 0; i < 25; i++ {
		_, err := store.Compare("acme/widgets", summaryWith(), models.ScanMeta{Ref: fmt.Sprintf("r%d", i)})
		require.NoError(t, err)
	}

	saved := store.History("acme/widgets")
	require.Len(t, saved, DefaultCapacity)
	assert.Equal(t, "r5", saved[0].Ref)
	assert.Equal(t, "r24", saved[len(saved)-1].Ref)
	assert.Equal(t, DefaultCapacity, store.Len("acme/widgets"))
	assert.Equal(t, DefaultCapacity, store.Total())
	recorder.AssertCalled(t, "SetStoredScans", DefaultCapacity)
	recorder.AssertNotCalled(t, "SetStoredScans", DefaultCapacity+1)
}

func TestStore_KeysAreIndependent(t *testing.T) {
	store := newTestStore(WithCapacity(3))

	for i := 0; i < 5; i++ {
		_, err := store.Compare("a/one", summaryWith(), models.ScanMeta{})
		require.NoError(t, err)
	}
	result, err := store.Compare("a/two", summaryWith(), models.ScanMeta{})
	require.NoError(t, err)

	assert.True(t, result.IsFirstScan)
	assert.Equal(t, 3, store.Len("a/one"))
	assert.Equal(t, 1, store.Len("a/two"))
	assert.Equal(t, 4, store.Total())
}

func TestStore_HistoryIsACopy(t *testing.T) {
	store := newTestStore()
	current := summaryWith(models.Vulnerability{Name: "lodash", Severity: models.SeverityHigh})
	_, err := store.Compare("k", current, models.ScanMeta{})
	require.NoError(t, err)

	current.Vulnerabilities[0].Name = "mutated"
	saved := store.History("k")
	saved[0].RepoID = "changed"

	again := store.History("k")
	assert.Equal(t, "lodash", again[0].Summary.Vulnerabilities[0].Name)
	assert.Equal(t, "k", again[0].RepoID)
}

func TestCompare_Validation(t *testing.T) {
	store := newTestStore()

	_, err := store.Compare("", summaryWith(), models.ScanMeta{})
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = store.Compare("k", nil, models.ScanMeta{})
	assert.ErrorIs(t, err, ErrNilSummary)
	assert.Equal(t, 0, store.Len("k"))
}

func TestCompare_ConcurrentSameKeySerialized(t *testing.T) {
	const workers = 50
	store := newTestStore(WithCapacity(workers))

	var wg sync.WaitGroup
	results := make([]*models.CompareScansResult, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := store.Compare("acme/widgets", summaryWith(), models.ScanMeta{})
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	assert.Equal(t, workers, store.Len("acme/widgets"))

	firsts := 0
	baselines := make(map[time.Time]bool)
	for _, r := range results {
		require.NotNil(t, r)
		if r.IsFirstScan {
			firsts++
			continue
		}
		assert.False(t, baselines[r.Baseline.Timestamp], "two comparisons shared a baseline")
		baselines[r.Baseline.Timestamp] = true
	}
	assert.Equal(t, 1, firsts)
	assert.Len(t, baselines, workers-1)
}
