// Package spreadsheet reads recipient rows from uploaded .xlsx and .csv files.
package spreadsheet

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"github.com/dukerupert/courier/internal/email"
)

// EmailColumn is the header every recipient file must carry.
const EmailColumn = "email"

// Supported reports whether name has an extension Read understands.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".csv":
		return true
	}
	return false
}

// Read parses the recipient rows of the file called name. The first row is
// the header; every header becomes a template field. Completely blank rows
// are skipped. Values are trimmed of surrounding whitespace.
func Read(name string, r io.Reader) ([]email.Row, error) {
	var (
		rows []email.Row
		err  error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		rows, err = readXLSX(r)
	case ".csv":
		rows, err = readCSV(r)
	default:
		return nil, ErrUnsupportedFormat(name)
	}
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows, nil
}

// readXLSX reads the first sheet of a workbook.
func readXLSX(r io.Reader) ([]email.Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, ErrUnreadable(err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoRows
	}

	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, ErrUnreadable(fmt.Errorf("sheet %q: %w", sheets[0], err))
	}
	return fromRecords(cells)
}

func readCSV(r io.Reader) ([]email.Row, error) {
	records, err := gocsv.DefaultCSVReader(r).ReadAll()
	if err != nil {
		return nil, ErrUnreadable(err)
	}
	return fromRecords(records)
}

// fromRecords maps every record after the header onto the header's keys.
// Records shorter than the header get empty values.
func fromRecords(records [][]string) ([]email.Row, error) {
	if len(records) == 0 {
		return nil, ErrNoEmailColumn
	}

	header := headers(records[0])
	if !hasEmail(header) {
		return nil, ErrNoEmailColumn
	}

	var rows []email.Row
	for i, record := range records[1:] {
		row := make(email.Row, len(header))
		for j, key := range header {
			if key == "" {
				continue
			}
			var v string
			if j < len(record) {
				v = record[j]
			}
			row[key] = strings.TrimSpace(v)
		}
		ok, err := keep(row, i+2)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// headers trims header cells, drops a leading byte order mark and
// disambiguates duplicates as name.1, name.2.
func headers(cells []string) []string {
	seen := make(map[string]int, len(cells))
	out := make([]string, len(cells))
	for i, c := range cells {
		key := strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
		if key == "" {
			continue
		}
		if n, dup := seen[key]; dup {
			seen[key] = n + 1
			key = fmt.Sprintf("%s.%d", key, n+1)
		} else {
			seen[key] = 0
		}
		out[i] = key
	}
	return out
}

func hasEmail(header []string) bool {
	for _, h := range header {
		if h == EmailColumn {
			return true
		}
	}
	return false
}

// keep reports whether row is a recipient. Blank rows are dropped; a row
// with data but no email address is an error.
func keep(row email.Row, line int) (bool, error) {
	blank := true
	for _, v := range row {
		if v != "" {
			blank = false
			break
		}
	}
	if blank {
		return false, nil
	}
	if row[EmailColumn] == "" {
		return false, ErrMissingEmail(line)
	}
	return true, nil
}
