package models

import "time"

// SavedScan is one immutable entry in a target's scan history.
type SavedScan struct {
	ID        string       `json:"id"`
	RepoID    string       `json:"repo_id"`
	Ref       string       `json:"ref,omitempty"`
	Subpath   string       `json:"subpath,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Summary   AuditSummary `json:"summary"`
	Ecosystem Ecosystem    `json:"ecosystem,omitempty"`
}

// ScanMeta is the caller-supplied context recorded with a scan.
type ScanMeta struct {
	Ref       string
	Subpath   string
	Ecosystem Ecosystem
}

// ScanSnapshot is the condensed view of a SavedScan used in comparisons.
type ScanSnapshot struct {
	Timestamp            time.Time      `json:"timestamp"`
	Counts               SeverityCounts `json:"counts"`
	TotalVulnerabilities int            `json:"total_vulnerabilities"`
}

// FindingKey identifies a finding for diffing purposes.
type FindingKey struct {
	Name     string        `json:"name"`
	Severity SeverityLevel `json:"severity"`
}

// CompareScansResult describes what changed between the two most recent scans.
type CompareScansResult struct {
	RepoID      string       `json:"repo_id"`
	Baseline    ScanSnapshot `json:"baseline"`
	Current     ScanSnapshot `json:"current"`
	Fixed       []FindingKey `json:"fixed"`
	Introduced  []FindingKey `json:"introduced"`
	Delta       int          `json:"delta"`
	Summary     string       `json:"summary"`
	IsFirstScan bool         `json:"is_first_scan"`
}

// Snapshot condenses a saved scan.
func (s SavedScan) Snapshot() ScanSnapshot {
	return ScanSnapshot{
		Timestamp:            s.Timestamp,
		Counts:               s.Summary.Counts,
		TotalVulnerabilities: s.Summary.TotalVulnerabilities,
	}
}
