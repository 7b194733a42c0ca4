package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threatflux/depAuditGoMCP/internal/decision"
	"github.com/threatflux/depAuditGoMCP/internal/models"
)

const npmLodashReport = `{
  "auditReportVersion": 2,
  "vulnerabilities": {
    "lodash": {
      "name": "lodash",
      "severity": "high",
      "isDirect": true,
      "via": ["lodash: Prototype Pollution"],
      "range": "<4.17.21",
      "fixAvailable": {"name": "lodash", "version": "4.17.21", "isSemVerMajor": false}
    }
  },
  "metadata": {
    "vulnerabilities": {"info": 0, "low": 1, "moderate": 3, "high": 2, "critical": 1, "total": 7}
  }
}`

func TestNpmAdapter_NormalizeLodashScenario(t *testing.T) {
	summary, err := NewNpmAdapter().Normalize([]byte(npmLodashReport))
	require.NoError(t, err)

	assert.Equal(t, models.SeverityCounts{Critical: 1, High: 2, Moderate: 3, Low: 1, Info: 0}, summary.Counts)
	assert.Equal(t, 1, summary.TotalVulnerabilities)
	assert.True(t, summary.HasCriticalOrHigh)
	assert.Equal(t, models.EcosystemNpm, summary.Ecosystem)

	require.Len(t, summary.Vulnerabilities, 1)
	vuln := summary.Vulnerabilities[0]
	assert.Equal(t, "lodash", vuln.Name)
	assert.Equal(t, models.SeverityHigh, vuln.Severity)
	assert.Equal(t, "lodash: Prototype Pollution", vuln.Title)
	assert.Equal(t, "<4.17.21", vuln.Range)
	assert.Equal(t, models.VersionFix("4.17.21"), vuln.Fix)
	require.NotNil(t, vuln.IsDirect)
	assert.True(t, *vuln.IsDirect)

	readiness := decision.ShipReadiness(summary)
	assert.False(t, readiness.SafeToShip)
	assert.Contains(t, readiness.Reason, "1 critical and 2 high")
}

func TestNpmAdapter_SeverityPolicy(t *testing.T) {
	raw := `{
	  "vulnerabilities": {
	    "no-severity": {"name": "no-severity", "via": []},
	    "weird": {"name": "weird", "severity": "catastrophic", "via": []},
	    "minimist": {"name": "minimist", "severity": "LOW", "via": []}
	  },
	  "metadata": {"vulnerabilities": {"low": 5}}
	}`

	summary, err := NewNpmAdapter().Normalize([]byte(raw))
	require.NoError(t, err)

	require.Len(t, summary.Vulnerabilities, 2)
	assert.Equal(t, "no-severity", summary.Vulnerabilities[0].Name)
	assert.Equal(t, models.SeverityModerate, summary.Vulnerabilities[0].Severity)
	assert.Equal(t, "minimist", summary.Vulnerabilities[1].Name)
	assert.Equal(t, models.SeverityLow, summary.Vulnerabilities[1].Severity)

	// counts come from metadata only
	assert.Equal(t, models.SeverityCounts{Low: 5}, summary.Counts)
	assert.Equal(t, 2, summary.TotalVulnerabilities)
	assert.False(t, summary.HasCriticalOrHigh)
}

func TestNpmAdapter_PreservesReportOrder(t *testing.T) {
	raw := `{"vulnerabilities": {
	  "zeta": {"severity": "low"},
	  "alpha": {"severity": "critical"},
	  "mid": {"severity": "moderate"}
	}}`

	summary, err := NewNpmAdapter().Normalize([]byte(raw))
	require.NoError(t, err)

	names := make([]string, 0, len(summary.Vulnerabilities))
	for _, v := range summary.Vulnerabilities {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
	assert.Equal(t, models.SeverityCounts{}, summary.Counts)
	assert.False(t, summary.HasCriticalOrHigh)
}

func TestNpmAdapter_ViaAndFixShapes(t *testing.T) {
	raw := `{"vulnerabilities": {
	  "express": {
	    "name": "express", "severity": "critical", "isDirect": false,
	    "via": [
	      {"source": 1096820, "name": "express", "title": "Open redirect in express", "url": "https://github.com/advisories/GHSA-rv95-896h-c2vc"},
	      "body-parser"
	    ],
	    "fixAvailable": true
	  },
	  "qs": {"name": "qs", "severity": "high", "via": [{"source": 42, "name": "qs", "title": "qs prototype poisoning"}], "fixAvailable": false},
	  "semver": {"name": "semver", "severity": "moderate", "via": ["semver"], "fixAvailable": {"name": "semver"}}
	}}`

	summary, err := NewNpmAdapter().Normalize([]byte(raw))
	require.NoError(t, err)
	require.Len(t, summary.Vulnerabilities, 3)

	express := summary.Vulnerabilities[0]
	assert.Equal(t, "Open redirect in express", express.Title)
	assert.Equal(t, "GHSA-rv95-896h-c2vc", express.AdvisoryID)
	assert.Equal(t, []string{"express", "body-parser"}, express.Via)
	assert.Equal(t, models.FlagFix(true), express.Fix)
	require.NotNil(t, express.IsDirect)
	assert.False(t, *express.IsDirect)

	qs := summary.Vulnerabilities[1]
	assert.Equal(t, "42", qs.AdvisoryID)
	assert.Equal(t, models.FlagFix(false), qs.Fix)
	assert.Nil(t, qs.IsDirect)

	semver := summary.Vulnerabilities[2]
	assert.Equal(t, "semver", semver.Title)
	assert.Equal(t, models.FlagFix(true), semver.Fix)
}

func TestNpmAdapter_MissingFixIsNoFix(t *testing.T) {
	summary, err := NewNpmAdapter().Normalize([]byte(`{"vulnerabilities": {"a": {"severity": "low"}}}`))
	require.NoError(t, err)
	assert.Equal(t, models.NoFix(), summary.Vulnerabilities[0].Fix)
}

func TestNpmAdapter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "not json", raw: "npm ERR! something", wantErr: ErrMalformedReport},
		{name: "vulnerabilities is a list", raw: `{"vulnerabilities": []}`, wantErr: ErrMalformedReport},
		{name: "entry is not an object", raw: `{"vulnerabilities": {"a": 3}}`, wantErr: ErrMalformedReport},
		{name: "npm error document", raw: `{"error": {"code": "ENOLOCK", "summary": "This command requires an existing lockfile."}}`, wantErr: ErrScannerReported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := NewNpmAdapter().Normalize([]byte(tt.raw))
			assert.Nil(t, summary)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNpmAdapter_EmptyReport(t *testing.T) {
	summary, err := NewNpmAdapter().Normalize([]byte(`{"auditReportVersion": 2, "vulnerabilities": {}, "metadata": {"vulnerabilities": {"total": 0}}}`))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalVulnerabilities)
	assert.NotNil(t, summary.Vulnerabilities)
}
