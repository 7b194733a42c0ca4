package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixAvailability(t *testing.T) {
	tests := []struct {
		name      string
		fix       FixAvailability
		hasFix    bool
		target    string
		hasTarget bool
		encodedAs string
	}{
		{name: "no fix", fix: NoFix(), encodedAs: "null"},
		{name: "flag false", fix: FlagFix(false), encodedAs: "false"},
		{name: "flag true", fix: FlagFix(true), hasFix: true, target: "latest", hasTarget: true, encodedAs: "true"},
		{name: "version", fix: VersionFix("4.17.21"), hasFix: true, target: "4.17.21", hasTarget: true, encodedAs: `"4.17.21"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.hasFix, tt.fix.HasFix())

			target, ok := tt.fix.UpgradeTarget()
			assert.Equal(t, tt.hasTarget, ok)
			assert.Equal(t, tt.target, target)

			data, err := json.Marshal(tt.fix)
			require.NoError(t, err)
			assert.JSONEq(t, tt.encodedAs, string(data))

			var decoded FixAvailability
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, tt.fix, decoded)
		})
	}

	var bad FixAvailability
	assert.Error(t, json.Unmarshal([]byte(`{"version":"1"}`), &bad))
}

func TestNewAuditSummaryDerivedFields(t *testing.T) {
	vulns := []Vulnerability{
		{Name: "lodash", Severity: SeverityHigh},
		{Name: "minimist", Severity: SeverityLow},
	}

	summary := NewAuditSummary(EcosystemNpm, SeverityCounts{High: 1, Low: 4}, vulns)
	assert.Equal(t, 2, summary.TotalVulnerabilities)
	assert.True(t, summary.HasCriticalOrHigh)
	assert.Equal(t, EcosystemNpm, summary.Ecosystem)

	summary = NewAuditSummary(EcosystemPip, SeverityCounts{Moderate: 3}, vulns[1:])
	assert.Equal(t, 1, summary.TotalVulnerabilities)
	assert.False(t, summary.HasCriticalOrHigh)

	empty := EmptyAuditSummary()
	assert.Equal(t, 0, empty.TotalVulnerabilities)
	assert.NotNil(t, empty.Vulnerabilities)
	assert.False(t, empty.HasCriticalOrHigh)
}

func TestVulnerabilityDirect(t *testing.T) {
	assert.False(t, Vulnerability{}.Direct())
	assert.False(t, Vulnerability{IsDirect: BoolPtr(false)}.Direct())
	assert.True(t, Vulnerability{IsDirect: BoolPtr(true)}.Direct())
}
