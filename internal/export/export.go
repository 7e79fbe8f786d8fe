// Package export writes stored leads to spreadsheet files.
package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadgen/internal/model"
)

// Header lists the exported columns in order.
var Header = []string{"ID", "Title", "Website", "Phone", "Price", "State", "Lat", "Lng", "Has Emails", "Emails", "Created At"}

// Pager returns one page of businesses. An empty page ends the export.
type Pager func(ctx context.Context, limit, page int) ([]model.PersistedBusiness, error)

// Collect walks every page and returns all businesses.
func Collect(ctx context.Context, next Pager, pageSize int) ([]model.PersistedBusiness, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	var all []model.PersistedBusiness
	for page := 1; ; page++ {
		batch, err := next(ctx, pageSize, page)
		if err != nil {
			return nil, eris.Wrapf(err, "export: page %d", page)
		}
		all = append(all, batch...)
		if len(batch) < pageSize {
			return all, nil
		}
	}
}

// Row flattens a business into export cells.
func Row(b model.PersistedBusiness) []string {
	state := ""
	if b.State != nil {
		state = *b.State
	}
	return []string{
		b.ID,
		b.Title,
		b.Website,
		b.PhoneUnformatted,
		b.Price,
		state,
		strconv.FormatFloat(b.Location.Lat, 'f', -1, 64),
		strconv.FormatFloat(b.Location.Lng, 'f', -1, 64),
		strconv.FormatBool(b.HasEmails),
		strings.Join(b.Addresses(), "; "),
		b.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// WriteXLSX saves businesses to an xlsx workbook with a single "Leads" sheet.
func WriteXLSX(path string, businesses []model.PersistedBusiness) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range Header {
		header.AddCell().SetString(h)
	}

	for _, b := range businesses {
		row := sheet.AddRow()
		for i, v := range Row(b) {
			cell := row.AddCell()
			switch Header[i] {
			case "Lat":
				cell.SetFloat(b.Location.Lat)
			case "Lng":
				cell.SetFloat(b.Location.Lng)
			case "Has Emails":
				cell.SetBool(b.HasEmails)
			default:
				cell.SetString(v)
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

// WriteCSV writes businesses as CSV with a header row.
func WriteCSV(w io.Writer, businesses []model.PersistedBusiness) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	for _, b := range businesses {
		if err := cw.Write(Row(b)); err != nil {
			return eris.Wrapf(err, "csv: write business %s", b.ID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "csv: flush")
}
