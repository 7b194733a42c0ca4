package history

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// Compare records current as the newest scan for key and diffs it against
// the scan recorded before it. The append and the lookup of the previous
// scan happen under a per-key lock, so concurrent comparisons of the same
// target each see a distinct predecessor.
func (s *Store) Compare(key string, current *models.AuditSummary, meta models.ScanMeta) (*models.CompareScansResult, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if current == nil {
		return nil, ErrNilSummary
	}

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	previous, hasPrevious := s.latest(key)

	ecosystem := meta.Ecosystem
	if ecosystem == models.EcosystemNone {
		ecosystem = current.Ecosystem
	}

	saved := models.SavedScan{
		ID:        s.newID(),
		RepoID:    key,
		Ref:       meta.Ref,
		Subpath:   meta.Subpath,
		Timestamp: s.now(),
		Summary:   cloneSummary(current),
		Ecosystem: ecosystem,
	}
	s.append(saved)

	logger := s.logger.WithFields(logrus.Fields{
		"target":  key,
		"scan_id": saved.ID,
	})

	if !hasPrevious {
		logger.Info("Recorded first scan for target")
		snapshot := saved.Snapshot()
		return &models.CompareScansResult{
			RepoID:      key,
			Baseline:    snapshot,
			Current:     snapshot,
			Fixed:       []models.FindingKey{},
			Introduced:  []models.FindingKey{},
			Summary:     fmt.Sprintf("First scan recorded for %s: %d %s. Scan again later to see what changed.", key, saved.Summary.TotalVulnerabilities, vulnerabilityNoun(saved.Summary.TotalVulnerabilities)),
			IsFirstScan: true,
		}, nil
	}

	fixed, introduced := Diff(previous.Summary.Vulnerabilities, saved.Summary.Vulnerabilities)
	delta := saved.Summary.TotalVulnerabilities - previous.Summary.TotalVulnerabilities

	logger.WithFields(logrus.Fields{
		"fixed":      len(fixed),
		"introduced": len(introduced),
		"delta":      delta,
	}).Info("Compared scan with previous scan")

	return &models.CompareScansResult{
		RepoID:     key,
		Baseline:   previous.Snapshot(),
		Current:    saved.Snapshot(),
		Fixed:      fixed,
		Introduced: introduced,
		Delta:      delta,
		Summary: fmt.Sprintf("Compared with the previous scan of %s: %d fixed, %d introduced, %+d total (%d -> %d).",
			key, len(fixed), len(introduced), delta, previous.Summary.TotalVulnerabilities, saved.Summary.TotalVulnerabilities),
	}, nil
}

// Diff computes the two-way set difference of findings keyed by package
// name and severity. Multiplicity is ignored. Results follow the order in
// which keys first appear in their source list.
func Diff(baseline, current []models.Vulnerability) (fixed, introduced []models.FindingKey) {
	baselineKeys := findingKeys(baseline)
	currentKeys := findingKeys(current)

	currentSet := keySet(currentKeys)
	baselineSet := keySet(baselineKeys)

	fixed = []models.FindingKey{}
	for _, k := range baselineKeys {
		if _, ok := currentSet[k]; !ok {
			fixed = append(fixed, k)
		}
	}

	introduced = []models.FindingKey{}
	for _, k := range currentKeys {
		if _, ok := baselineSet[k]; !ok {
			introduced = append(introduced, k)
		}
	}
	return fixed, introduced
}

// findingKeys lists distinct keys in first-seen order
func findingKeys(vulns []models.Vulnerability) []models.FindingKey {
	seen := make(map[models.FindingKey]struct{}, len(vulns))
	keys := make([]models.FindingKey, 0, len(vulns))
	for _, v := range vulns {
		k := models.FindingKey{Name: v.Name, Severity: v.Severity}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

func keySet(keys []models.FindingKey) map[models.FindingKey]struct{} {
	set := make(map[models.FindingKey]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// cloneSummary copies the vulnerability slice so later caller mutations
// cannot reach stored history.
func cloneSummary(summary *models.AuditSummary) models.AuditSummary {
	clone := *summary
	clone.Vulnerabilities = make([]models.Vulnerability, len(summary.Vulnerabilities))
	copy(clone.Vulnerabilities, summary.Vulnerabilities)
	return clone
}

func vulnerabilityNoun(n int) string {
	if n == 1 {
		return "vulnerability"
	}
	return "vulnerabilities"
}
