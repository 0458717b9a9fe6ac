// Package export writes knowledge-base records to spreadsheet files for
// downstream report consumers.
package export

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/Rezme-Inc/incentive-agent/internal/model"
)

var header = []string{
	"ID", "Program Name", "Tier", "Location", "Agency", "Benefit Type",
	"Max Value", "Target Populations", "Description", "Source URLs",
	"Confidence", "First Seen", "Last Confirmed", "Discovery Count",
	"Miss Count", "Stale",
}

// WriteXLSX writes records to an XLSX workbook at path, one row per program.
func WriteXLSX(path string, records []model.Record) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Programs")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	row := sheet.AddRow()
	for _, h := range header {
		row.AddCell().Value = h
	}

	for _, rec := range records {
		r := sheet.AddRow()
		for _, v := range recordCells(rec) {
			r.AddCell().Value = v
		}
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func recordCells(rec model.Record) []string {
	return []string{
		rec.ID,
		rec.Name,
		string(rec.Tier),
		rec.LocationKey,
		rec.Attributes.Agency,
		rec.Attributes.BenefitType,
		rec.Attributes.MaxValue,
		strings.Join(rec.Attributes.TargetPopulations, "; "),
		rec.Attributes.Description,
		strings.Join(rec.Attributes.SourceURLs, "; "),
		string(rec.Confidence),
		rec.FirstSeenAt.UTC().Format(time.RFC3339),
		rec.LastConfirmedAt.UTC().Format(time.RFC3339),
		strconv.Itoa(rec.DiscoveryCount),
		strconv.Itoa(rec.MissCount),
		strconv.FormatBool(rec.Stale),
	}
}
