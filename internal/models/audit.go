package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Ecosystem identifies the dependency manager a project uses.
type Ecosystem string

const (
	EcosystemNpm  Ecosystem = "npm"
	EcosystemPip  Ecosystem = "pip"
	EcosystemNone Ecosystem = ""
)

// FixKind tags the shape of a FixAvailability value.
type FixKind int

const (
	// FixNone means the scanner said nothing about a fix
	FixNone FixKind = iota
	// FixFlag means the scanner only reported whether a fix exists
	FixFlag
	// FixVersion means the scanner named the version that fixes the finding
	FixVersion
)

// FixAvailability is a tagged variant: no fix information, a boolean flag,
// or a concrete target version.
type FixAvailability struct {
	Kind      FixKind
	Available bool
	Version   string
}

// NoFix returns the empty variant
func NoFix() FixAvailability {
	return FixAvailability{Kind: FixNone}
}

// FlagFix returns the boolean variant
func FlagFix(available bool) FixAvailability {
	return FixAvailability{Kind: FixFlag, Available: available}
}

// VersionFix returns the concrete-version variant
func VersionFix(version string) FixAvailability {
	return FixAvailability{Kind: FixVersion, Available: true, Version: version}
}

// HasFix reports whether some fix is known to exist.
func (f FixAvailability) HasFix() bool {
	switch f.Kind {
	case FixVersion:
		return true
	case FixFlag:
		return f.Available
	default:
		return false
	}
}

// UpgradeTarget returns the version to move to. A bare positive flag maps to
// "latest". The second result is false when there is nothing to upgrade to.
func (f FixAvailability) UpgradeTarget() (string, bool) {
	switch f.Kind {
	case FixVersion:
		return f.Version, true
	case FixFlag:
		if f.Available {
			return "latest", true
		}
	}
	return "", false
}

// MarshalJSON encodes the variant as null, a boolean or a version string.
func (f FixAvailability) MarshalJSON() ([]byte, error) {
	switch f.Kind {
	case FixFlag:
		return json.Marshal(f.Available)
	case FixVersion:
		return json.Marshal(f.Version)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts the encodings produced by MarshalJSON.
func (f *FixAvailability) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = NoFix()
		return nil
	}

	var flag bool
	if err := json.Unmarshal(trimmed, &flag); err == nil {
		*f = FlagFix(flag)
		return nil
	}

	var version string
	if err := json.Unmarshal(trimmed, &version); err == nil {
		*f = VersionFix(version)
		return nil
	}

	return fmt.Errorf("invalid fix availability: %s", string(trimmed))
}

// Vulnerability is one finding against one package in one scan.
type Vulnerability struct {
	Name        string          `json:"name"`
	Severity    SeverityLevel   `json:"severity"`
	Title       string          `json:"title,omitempty"`
	AdvisoryID  string          `json:"advisory_id,omitempty"`
	Range       string          `json:"range,omitempty"`
	Fix         FixAvailability `json:"fix_available"`
	Via         []string        `json:"via,omitempty"`
	IsDirect    *bool           `json:"is_direct,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Direct reports the directness flag, treating an unknown flag as transitive
func (v Vulnerability) Direct() bool {
	return v.IsDirect != nil && *v.IsDirect
}

// AuditSummary is the normalized result of one scan.
//
// Counts may disagree with len(Vulnerabilities) for ecosystems whose tool
// reports pre-aggregated totals; both values are kept as reported.
type AuditSummary struct {
	Ecosystem            Ecosystem       `json:"ecosystem,omitempty"`
	Counts               SeverityCounts  `json:"counts"`
	TotalVulnerabilities int             `json:"total_vulnerabilities"`
	HasCriticalOrHigh    bool            `json:"has_critical_or_high"`
	Vulnerabilities      []Vulnerability `json:"vulnerabilities"`
}

// NewAuditSummary builds a summary and fills in the derived fields.
func NewAuditSummary(ecosystem Ecosystem, counts SeverityCounts, vulns []Vulnerability) *AuditSummary {
	if vulns == nil {
		vulns = []Vulnerability{}
	}
	return &AuditSummary{
		Ecosystem:            ecosystem,
		Counts:               counts,
		TotalVulnerabilities: len(vulns),
		HasCriticalOrHigh:    counts.Critical > 0 || counts.High > 0,
		Vulnerabilities:      vulns,
	}
}

// EmptyAuditSummary is the neutral result for a project with no recognizable manifest.
func EmptyAuditSummary() *AuditSummary {
	return NewAuditSummary(EcosystemNone, SeverityCounts{}, nil)
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}
