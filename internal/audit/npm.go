package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// npmReport mirrors the parts of `npm audit --json` (report version 2) we read.
type npmReport struct {
	Vulnerabilities json.RawMessage `json:"vulnerabilities"`
	Metadata        struct {
		Vulnerabilities map[string]int `json:"vulnerabilities"`
	} `json:"metadata"`
	Error *struct {
		Code    string `json:"code"`
		Summary string `json:"summary"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

type npmEntry struct {
	Name         string        `json:"name"`
	Severity     *string       `json:"severity"`
	IsDirect     *bool         `json:"isDirect"`
	Via          []interface{} `json:"via"`
	Range        string        `json:"range"`
	FixAvailable interface{}   `json:"fixAvailable"`
}

// NpmAdapter normalizes npm audit reports.
//
// Severity counts are copied from the report metadata and are not
// recomputed from the enumerated findings. Findings without a severity are
// treated as moderate; findings with an unrecognized severity are dropped.
type NpmAdapter struct{}

// NewNpmAdapter creates a new npm adapter
func NewNpmAdapter() *NpmAdapter {
	return &NpmAdapter{}
}

// Ecosystem returns the npm ecosystem tag
func (a *NpmAdapter) Ecosystem() models.Ecosystem {
	return models.EcosystemNpm
}

// Detect looks for a package.json manifest
func (a *NpmAdapter) Detect(root string) bool {
	return hasAnyFile(root, "package.json")
}

// Normalize parses the raw npm audit JSON
func (a *NpmAdapter) Normalize(raw []byte) (*models.AuditSummary, error) {
	var report npmReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("%w: npm audit output: %v", ErrMalformedReport, err)
	}

	if report.Error != nil && len(report.Vulnerabilities) == 0 {
		msg := report.Error.Summary
		if msg == "" {
			msg = report.Error.Detail
		}
		return nil, fmt.Errorf("%w: npm %s: %s", ErrScannerReported, report.Error.Code, msg)
	}

	var counts models.SeverityCounts
	for name, n := range report.Metadata.Vulnerabilities {
		if level, ok := models.ParseSeverity(name); ok {
			counts.Add(level, n)
		}
	}

	vulns := []models.Vulnerability{}
	err := forEachOrdered(report.Vulnerabilities, func(key string, value json.RawMessage) error {
		var entry npmEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return fmt.Errorf("%w: entry %q: %v", ErrMalformedReport, key, err)
		}

		severity := models.SeverityModerate
		if entry.Severity != nil {
			level, ok := models.ParseSeverity(*entry.Severity)
			if !ok {
				return nil
			}
			severity = level
		}

		name := entry.Name
		if name == "" {
			name = key
		}

		vuln := models.Vulnerability{
			Name:     name,
			Severity: severity,
			Range:    entry.Range,
			Fix:      npmFixAvailability(entry.FixAvailable),
			IsDirect: entry.IsDirect,
		}
		applyNpmVia(&vuln, entry.Via)

		vulns = append(vulns, vuln)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return models.NewAuditSummary(models.EcosystemNpm, counts, vulns), nil
}

// applyNpmVia fills title, advisory and provenance from the via chain. Entries
// are either package names or advisory objects.
func applyNpmVia(vuln *models.Vulnerability, via []interface{}) {
	for i, item := range via {
		switch v := item.(type) {
		case string:
			if i == 0 {
				vuln.Title = v
			}
			vuln.Via = append(vuln.Via, v)
		case map[string]interface{}:
			if i == 0 {
				if title, ok := v["title"].(string); ok {
					vuln.Title = title
				}
				vuln.AdvisoryID = npmAdvisoryID(v)
			}
			if name, ok := v["name"].(string); ok && name != "" {
				vuln.Via = append(vuln.Via, name)
			} else if dep, ok := v["dependency"].(string); ok && dep != "" {
				vuln.Via = append(vuln.Via, dep)
			}
		}
	}
}

func npmAdvisoryID(advisory map[string]interface{}) string {
	if url, ok := advisory["url"].(string); ok && url != "" {
		if idx := strings.LastIndex(url, "/"); idx >= 0 && idx < len(url)-1 {
			return url[idx+1:]
		}
		return url
	}
	switch source := advisory["source"].(type) {
	case float64:
		return fmt.Sprintf("%d", int64(source))
	case string:
		return source
	}
	return ""
}

// npmFixAvailability maps the absent, boolean and object shapes of fixAvailable.
func npmFixAvailability(raw interface{}) models.FixAvailability {
	switch v := raw.(type) {
	case nil:
		return models.NoFix()
	case bool:
		return models.FlagFix(v)
	case map[string]interface{}:
		if version, ok := v["version"].(string); ok && version != "" {
			return models.VersionFix(version)
		}
		return models.FlagFix(true)
	default:
		return models.NoFix()
	}
}

// forEachOrdered walks a JSON object in document order. A null or missing
// object yields no calls.
func forEachOrdered(raw json.RawMessage, fn func(key string, value json.RawMessage) error) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: vulnerabilities is not an object", ErrMalformedReport)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedReport, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("%w: unexpected key token %v", ErrMalformedReport, keyTok)
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("%w: value for %q: %v", ErrMalformedReport, key, err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}
