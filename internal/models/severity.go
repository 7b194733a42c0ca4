package models

import "strings"

// SeverityLevel is the normalized severity of a single finding.
type SeverityLevel string

const (
	SeverityCritical SeverityLevel = "critical"
	SeverityHigh     SeverityLevel = "high"
	SeverityModerate SeverityLevel = "moderate"
	SeverityLow      SeverityLevel = "low"
	SeverityInfo     SeverityLevel = "info"
)

// SeverityOrder lists every level from most to least severe. Display code
// iterates this slice so groups always come out in the same order.
var SeverityOrder = []SeverityLevel{
	SeverityCritical,
	SeverityHigh,
	SeverityModerate,
	SeverityLow,
	SeverityInfo,
}

var severityScores = map[SeverityLevel]int{
	SeverityCritical: 100,
	SeverityHigh:     80,
	SeverityModerate: 50,
	SeverityLow:      20,
	SeverityInfo:     5,
}

// ParseSeverity matches a raw severity name against the five known levels.
// Matching is case-insensitive; anything else reports false.
func ParseSeverity(raw string) (SeverityLevel, bool) {
	level := SeverityLevel(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := severityScores[level]; !ok {
		return "", false
	}
	return level, true
}

// IsValid reports whether the level is one of the known levels
func (s SeverityLevel) IsValid() bool {
	_, ok := severityScores[s]
	return ok
}

// Score returns the ranking weight of the level, or 0 for unknown levels.
func (s SeverityLevel) Score() int {
	return severityScores[s]
}

// Rank returns the position of the level in SeverityOrder (0 is most severe).
// Unknown levels sort after info.
func (s SeverityLevel) Rank() int {
	for i, level := range SeverityOrder {
		if level == s {
			return i
		}
	}
	return len(SeverityOrder)
}

// IsBlocking reports whether findings at this level block a release
func (s SeverityLevel) IsBlocking() bool {
	return s == SeverityCritical || s == SeverityHigh
}

// SeverityCounts holds one counter per severity level.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Moderate int `json:"moderate"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Get returns the counter for the given level
func (c SeverityCounts) Get(level SeverityLevel) int {
	switch level {
	case SeverityCritical:
		return c.Critical
	case SeverityHigh:
		return c.High
	case SeverityModerate:
		return c.Moderate
	case SeverityLow:
		return c.Low
	case SeverityInfo:
		return c.Info
	}
	return 0
}

// Add increments the counter for the given level by n. Unknown levels are ignored.
func (c *SeverityCounts) Add(level SeverityLevel, n int) {
	switch level {
	case SeverityCritical:
		c.Critical += n
	case SeverityHigh:
		c.High += n
	case SeverityModerate:
		c.Moderate += n
	case SeverityLow:
		c.Low += n
	case SeverityInfo:
		c.Info += n
	}
}

// Total sums every counter
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Moderate + c.Low + c.Info
}
