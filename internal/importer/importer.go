// Package importer turns uploaded spreadsheets into job records. Columns
// are positional:
//
//	JobNumber, Client, Facility, JobValue, Pieces, RequiredByDate, Color,
//	TestFit, Rush, Schedule
//
// A first row whose first cell reads "JobNumber" is taken as a header.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"board/internal/core"
)

// Column positions.
const (
	colJobNumber = iota
	colClient
	colFacility
	colJobValue
	colPieces
	colRequiredByDate
	colColor
	colTestFit
	colRush
	colSchedule
	columnCount
)

// Excel serial day numbers accepted as dates: 1982-10-03 .. 2119-01-23.
const (
	minSerialDate = 30000
	maxSerialDate = 80000
)

// Format is an accepted upload format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

type (
	// Row is one data row converted to a job. Line is 1-based and counts
	// the header.
	Row struct {
		Line int
		Job  core.Job
	}

	// RowError reports a row that could not be converted or stored.
	RowError struct {
		Line      int    `json:"line"`
		JobNumber string `json:"jobNumber,omitempty"`
		Error     string `json:"error"`
	}

	Result struct {
		Rows   []Row
		Errors []RowError
	}
)

// DetectFormat picks the parser from the file name.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, filepath.Ext(name))
}

// ParseFile reads r according to the extension of name.
func ParseFile(name string, r io.Reader) (Result, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return Result{}, err
	}
	switch format {
	case FormatTSV:
		return ParseDelimited(r, '\t')
	case FormatXLSX:
		return ParseXLSX(r)
	default:
		return ParseDelimited(r, ',')
	}
}

// ParseDelimited reads comma or tab separated text. A leading UTF-8 byte
// order mark is ignored.
func ParseDelimited(r io.Reader, comma rune) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read upload: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return Result{}, core.NewValidationError(fmt.Errorf("malformed file at line %d: %w", perr.Line, perr.Err))
		}
		return Result{}, fmt.Errorf("parse delimited file: %w", err)
	}
	return ParseRecords(records), nil
}

// ParseXLSX reads the first worksheet of a workbook. Cells are read raw so
// date columns arrive as serial numbers regardless of display format.
func ParseXLSX(r io.Reader) (Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Result{}, core.NewValidationError(fmt.Errorf("open workbook: %w", err))
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return Result{}, core.NewValidationError(errors.New("no worksheet found"))
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return Result{}, fmt.Errorf("read worksheet %q: %w", sheet, err)
	}
	return ParseRecords(rows), nil
}

// ParseRecords converts rows of cells. Blank rows are skipped.
func ParseRecords(records [][]string) Result {
	res := Result{Rows: []Row{}, Errors: []RowError{}}
	for i, rec := range records {
		line := i + 1
		if isBlank(rec) {
			continue
		}
		if i == 0 && isHeader(rec) {
			continue
		}
		j, err := parseRow(rec)
		if err != nil {
			res.Errors = append(res.Errors, RowError{Line: line, JobNumber: j.JobNumber, Error: err.Error()})
			continue
		}
		res.Rows = append(res.Rows, Row{Line: line, Job: j})
	}
	return res
}

func parseRow(rec []string) (core.Job, error) {
	j := core.Job{
		JobNumber: cell(rec, colJobNumber),
		Client:    cell(rec, colClient),
		Facility:  core.ParseFacility(cell(rec, colFacility)),
		Color:     cell(rec, colColor),
		Schedule:  []string{},
	}

	var err error
	if j.JobValue, err = core.ParseAmount(cell(rec, colJobValue)); err != nil {
		return j, fmt.Errorf("JobValue: %w", err)
	}
	if j.Pieces, err = core.ParseCount(cell(rec, colPieces)); err != nil {
		return j, fmt.Errorf("Pieces: %w", err)
	}
	if v := cell(rec, colRequiredByDate); v != "" {
		if j.RequiredByDate, err = parseDateCell(v); err != nil {
			return j, fmt.Errorf("RequiredByDate: %w", err)
		}
	}
	if j.TestFit, err = core.ParseFlag(cell(rec, colTestFit)); err != nil {
		return j, fmt.Errorf("TestFit: %w", err)
	}
	if j.Rush, err = core.ParseFlag(cell(rec, colRush)); err != nil {
		return j, fmt.Errorf("Rush: %w", err)
	}
	for _, part := range splitSchedule(cell(rec, colSchedule)) {
		entry, err := parseScheduleCell(part)
		if err != nil {
			return j, fmt.Errorf("Schedule: %w", err)
		}
		j.Schedule = append(j.Schedule, entry)
	}
	return j, nil
}

// parseDateCell accepts any date layout ParseDate does, plus Excel serial
// day numbers.
func parseDateCell(v string) (core.Date, error) {
	if serial, err := strconv.ParseFloat(v, 64); err == nil {
		if serial < minSerialDate || serial > maxSerialDate {
			return core.Date{}, fmt.Errorf("%w: serial %v out of range", core.ErrInvalidDate, v)
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return core.Date{}, fmt.Errorf("%w: %v", core.ErrInvalidDate, err)
		}
		return core.DateOf(t), nil
	}
	return core.ParseDate(v)
}

func parseScheduleCell(v string) (string, error) {
	suffix := strings.TrimSpace(core.TestFitSuffix)
	testFit := false
	if len(v) > len(suffix) && strings.EqualFold(v[len(v)-len(suffix):], suffix) {
		testFit = true
		v = strings.TrimSpace(v[:len(v)-len(suffix)])
	}
	d, err := parseDateCell(v)
	if err != nil {
		return "", err
	}
	return core.ScheduleEntry{Day: d, TestFit: testFit}.String(), nil
}

func splitSchedule(v string) []string {
	parts := strings.FieldsFunc(v, func(r rune) bool {
		switch r {
		case ';', ',', '|', '\n', '\r':
			return true
		}
		return false
	})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cell(rec []string, i int) string {
	if i >= len(rec) || i >= columnCount {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isHeader(rec []string) bool {
	h := strings.ToLower(cell(rec, colJobNumber))
	h = strings.NewReplacer(" ", "", "_", "", "-", "", "#", "").Replace(h)
	return h == "jobnumber" || h == "job"
}
