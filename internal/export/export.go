// Package export writes lead listings as XLSX workbooks or CSV.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Format is an export file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// SheetName is the worksheet that holds exported leads.
const SheetName = "Leads"

// Header is the column order of every export.
var Header = []string{
	"ID", "Company", "Domain", "Job Title", "Status", "Score",
	"Contact Role", "Pain Points", "Reason", "Created At",
}

// ParseFormat accepts "xlsx" or "csv" in any case.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatXLSX, FormatCSV:
		return f, nil
	default:
		return "", eris.Errorf("export: unsupported format %q", raw)
	}
}

// FormatFromPath infers the format from a file extension, defaulting to XLSX.
func FormatFromPath(path string) Format {
	if strings.HasSuffix(strings.ToLower(path), ".csv") {
		return FormatCSV
	}
	return FormatXLSX
}

// Write encodes leads to w in format f.
func Write(w io.Writer, f Format, leads []model.Lead) error {
	switch f {
	case FormatXLSX:
		return WriteXLSX(w, leads)
	case FormatCSV:
		return WriteCSV(w, leads)
	default:
		return eris.Errorf("export: unsupported format %q", f)
	}
}

func record(l model.Lead) []string {
	return []string{
		strconv.FormatInt(l.ID, 10),
		l.CompanyName,
		l.CompanyDomain,
		l.JobTitle,
		string(l.Status),
		strconv.Itoa(l.RelevanceScore),
		l.ContactRole,
		strings.Join(l.CompanyPainPoints, "; "),
		l.Reason,
		l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// WriteCSV writes a header row followed by one row per lead.
func WriteCSV(w io.Writer, leads []model.Lead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, l := range leads {
		if err := cw.Write(record(l)); err != nil {
			return eris.Wrapf(err, "export: write csv lead %d", l.ID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes a single-sheet workbook. ID and Score are numeric cells.
func WriteXLSX(w io.Writer, leads []model.Lead) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range Header {
		header.AddCell().SetString(h)
	}

	for _, l := range leads {
		row := sheet.AddRow()
		for i, v := range record(l) {
			cell := row.AddCell()
			switch i {
			case 0:
				cell.SetInt64(l.ID)
			case 5:
				cell.SetInt(l.RelevanceScore)
			default:
				cell.SetString(v)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}
