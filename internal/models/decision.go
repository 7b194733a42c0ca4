package models

// ShipReadiness is the release verdict for one scan. It is computed on
// every request and never stored.
type ShipReadiness struct {
	SafeToShip     bool   `json:"safe_to_ship"`
	Reason         string `json:"reason"`
	Critical       int    `json:"critical"`
	High           int    `json:"high"`
	Moderate       int    `json:"moderate"`
	Low            int    `json:"low"`
	Recommendation string `json:"recommendation,omitempty"`
}

// HighestRisk carries the top finding and the full severity-ranked list.
type HighestRisk struct {
	Highest *Vulnerability  `json:"highest"`
	Summary string          `json:"summary"`
	Sorted  []Vulnerability `json:"sorted"`
}

// VulnerabilityReport is the plain-language rendering of a scan.
type VulnerabilityReport struct {
	Summary              string         `json:"summary"`
	Counts               SeverityCounts `json:"counts"`
	TotalVulnerabilities int            `json:"total_vulnerabilities"`
}

// UpgradeSuggestion is one ready-to-run upgrade for one package.
type UpgradeSuggestion struct {
	Name          string        `json:"name"`
	CurrentRange  string        `json:"current_range,omitempty"`
	TargetVersion string        `json:"target_version"`
	Severity      SeverityLevel `json:"severity"`
	Command       string        `json:"command"`
	// IsSemverCompatible is reserved; nothing computes it yet.
	IsSemverCompatible *bool `json:"is_semver_compatible,omitempty"`
}
