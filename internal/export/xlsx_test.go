package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/Rezme-Inc/incentive-agent/internal/model"
)

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "programs.xlsx")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []model.Record{
		{
			ID: "abc123", Name: "Work Opportunity Tax Credit (WOTC)",
			Tier: model.TierFederal, LocationKey: "federal",
			Confidence: model.ConfidenceHigh,
			Attributes: model.Attributes{
				Agency:            "U.S. Department of Labor",
				BenefitType:       "tax_credit",
				MaxValue:          "$2,400 - $9,600 per hire",
				TargetPopulations: []string{"veterans", "youth"},
				SourceURLs:        []string{"https://www.dol.gov/agencies/eta/wotc"},
			},
			FirstSeenAt: now, LastConfirmedAt: now,
			DiscoveryCount: 4,
		},
		{
			ID: "def456", Name: "Quality Jobs Program",
			Tier: model.TierState, LocationKey: "arizona",
			Confidence:  model.ConfidenceMedium,
			FirstSeenAt: now, LastConfirmedAt: now,
			DiscoveryCount: 1, MissCount: 2, Stale: true,
		},
	}

	require.NoError(t, WriteXLSX(path, records))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Equal(t, "Programs", sheet.Name)
	require.Len(t, sheet.Rows, 3)

	assert.Equal(t, "ID", sheet.Rows[0].Cells[0].Value)
	assert.Equal(t, "Stale", sheet.Rows[0].Cells[len(header)-1].Value)

	first := sheet.Rows[1]
	assert.Equal(t, "abc123", first.Cells[0].Value)
	assert.Equal(t, "Work Opportunity Tax Credit (WOTC)", first.Cells[1].Value)
	assert.Equal(t, "federal", first.Cells[2].Value)
	assert.Equal(t, "veterans; youth", first.Cells[7].Value)
	assert.Equal(t, "high", first.Cells[10].Value)
	assert.Equal(t, "2026-03-01T12:00:00Z", first.Cells[11].Value)
	assert.Equal(t, "4", first.Cells[13].Value)
	assert.Equal(t, "false", first.Cells[15].Value)

	second := sheet.Rows[2]
	assert.Equal(t, "Quality Jobs Program", second.Cells[1].Value)
	assert.Equal(t, "2", second.Cells[14].Value)
	assert.Equal(t, "true", second.Cells[15].Value)
}

func TestWriteXLSX_EmptyRecordSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteXLSX(path, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets[0].Rows, 1, "header only")
}
