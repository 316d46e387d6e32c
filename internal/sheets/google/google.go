// Package google mirrors the scheduling board into a Google Sheets tab, one
// row per job keyed by JobNumber in column A.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"board/internal/core"
	"board/internal/jobs"
	applog "board/internal/log"
)

var _ jobs.BoardMirror = (*Mirror)(nil)

// Header is the first row of the mirror tab.
var Header = []any{
	"JobNumber", "Client", "Facility", "JobValue", "Pieces",
	"RequiredByDate", "Color", "TestFit", "Rush", "Schedule", "ID",
}

const lastColumn = "K"

// idColumn is the zero-based index of the job id in a row.
const idColumn = 10

type Mirror struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
}

// New creates a mirror on the given spreadsheet tab using service account
// credentials from the environment.
func New(ctx context.Context, spreadsheetID, sheetName string, opts ...goption.ClientOption) (*Mirror, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Board"
	}

	if len(opts) == 0 {
		creds, err := serviceAccountCredentials(ctx)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Mirror{svc: svc, spreadsheetID: spreadsheetID, sheet: sheetName}, nil
}

// serviceAccountCredentials reads GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func serviceAccountCredentials(ctx context.Context) ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline service account credentials",
			applog.FieldComponent, applog.ComponentSheets)
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Read service account credentials",
			applog.FieldComponent, applog.ComponentSheets,
			applog.FieldFile, file, "size", len(data))
		return data, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
}

// UpsertJob rewrites the row holding j, found by id and then by job number,
// or appends one.
func (m *Mirror) UpsertJob(ctx context.Context, j core.Job) error {
	if m.svc == nil {
		return errors.New("sheets service not initialized")
	}
	row, err := m.rowOf(ctx, j.ID, j.JobNumber)
	if err != nil {
		return err
	}
	vr := &gsheet.ValueRange{Values: [][]any{jobRow(j)}}

	if row == 0 {
		rng := a1(m.sheet, "A:"+lastColumn)
		_, err = m.svc.Spreadsheets.Values.Append(m.spreadsheetID, rng, vr).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("append row for %s: %w", j.JobNumber, err)
		}
		slog.DebugContext(ctx, "Appended mirror row",
			applog.FieldComponent, applog.ComponentSheets, applog.FieldJobNumber, j.JobNumber)
		return nil
	}

	rng := a1(m.sheet, fmt.Sprintf("A%d:%s%d", row, lastColumn, row))
	_, err = m.svc.Spreadsheets.Values.Update(m.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	slog.DebugContext(ctx, "Updated mirror row",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldJobNumber, j.JobNumber, "row", row)
	return nil
}

// DeleteJob removes the row holding the job id, or else jobNumber. A missing
// row is not an error.
func (m *Mirror) DeleteJob(ctx context.Context, id, jobNumber string) error {
	if m.svc == nil {
		return errors.New("sheets service not initialized")
	}
	row, err := m.rowOf(ctx, id, jobNumber)
	if err != nil || row == 0 {
		return err
	}
	sheetID, err := m.sheetID(ctx)
	if err != nil {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:    sheetID,
			Dimension:  "ROWS",
			StartIndex: int64(row - 1),
			EndIndex:   int64(row),
		}},
	}}}
	if _, err := m.svc.Spreadsheets.BatchUpdate(m.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d: %w", row, err)
	}
	slog.DebugContext(ctx, "Deleted mirror row",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldJobNumber, jobNumber, "row", row)
	return nil
}

// ReplaceAll clears the tab and writes the header followed by every job.
func (m *Mirror) ReplaceAll(ctx context.Context, list []core.Job) error {
	if m.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if _, err := m.svc.Spreadsheets.Values.Clear(m.spreadsheetID, a1(m.sheet, "A:"+lastColumn),
		&gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %s: %w", m.sheet, err)
	}

	values := make([][]any, 0, len(list)+1)
	values = append(values, Header)
	for _, j := range list {
		values = append(values, jobRow(j))
	}
	_, err := m.svc.Spreadsheets.Values.Update(m.spreadsheetID, a1(m.sheet, "A1"),
		&gsheet.ValueRange{Values: values}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write sheet %s: %w", m.sheet, err)
	}
	return nil
}

// rowOf returns the 1-based row holding the job, or 0.
func (m *Mirror) rowOf(ctx context.Context, id, jobNumber string) (int, error) {
	rng := a1(m.sheet, "A:"+lastColumn)
	resp, err := m.svc.Spreadsheets.Values.Get(m.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", rng, err)
	}
	return findRow(resp.Values, id, jobNumber), nil
}

func (m *Mirror) sheetID(ctx context.Context) (int64, error) {
	ss, err := m.svc.Spreadsheets.Get(m.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == m.sheet {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", m.sheet)
}

// findRow returns the 1-based row whose id column holds id, else the first
// row whose job number column holds jobNumber, else 0. The first row is
// skipped only when it is the header.
func findRow(values [][]any, id, jobNumber string) int {
	id, jobNumber = strings.TrimSpace(id), strings.TrimSpace(jobNumber)
	byNumber := 0
	for i, row := range values {
		if len(row) == 0 || (i == 0 && isHeaderRow(row)) {
			continue
		}
		if id != "" && len(row) > idColumn && strings.TrimSpace(fmt.Sprint(row[idColumn])) == id {
			return i + 1
		}
		if byNumber == 0 && jobNumber != "" && strings.TrimSpace(fmt.Sprint(row[0])) == jobNumber {
			byNumber = i + 1
		}
	}
	return byNumber
}

func isHeaderRow(row []any) bool {
	return strings.TrimSpace(fmt.Sprint(row[0])) == Header[0]
}

func jobRow(j core.Job) []any {
	return []any{
		j.JobNumber,
		j.Client,
		string(j.Facility),
		j.JobValue,
		j.Pieces,
		j.RequiredByDate.String(),
		j.Color,
		string(j.TestFit),
		string(j.Rush),
		strings.Join(j.Schedule, "; "),
		j.ID,
	}
}

// a1 builds an A1 range, quoting sheet names that need it.
func a1(sheet, cells string) string {
	if strings.ContainsAny(sheet, " '!") || startsWithDigit(sheet) {
		sheet = "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	}
	return sheet + "!" + cells
}

func startsWithDigit(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.Atoi(s[:1])
	return err == nil
}
