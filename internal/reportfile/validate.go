// Package reportfile validates bulk-upload spreadsheets before any byte is
// sent to the platform. The platform re-validates and stays the authority
// of record; rejecting here just saves the user a round trip.
package reportfile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/finsight/riskdash-back/internal/domain"
)

const MaxDataRows = 10000

var annualColumns = []string{
	"stock_symbol",
	"company_name",
	"sector",
	"reporting_year",
	"debt_to_equity",
	"current_ratio",
	"interest_coverage",
	"return_on_assets",
	"net_profit_margin",
}

var quarterlyColumns = []string{
	"stock_symbol",
	"company_name",
	"sector",
	"reporting_year",
	"reporting_quarter",
	"debt_to_equity",
	"current_ratio",
	"return_on_assets",
	"net_profit_margin",
}

// RequiredColumns returns the fixed column set for a job type.
func RequiredColumns(jobType domain.JobType) []string {
	switch jobType {
	case domain.JobTypeQuarterly:
		return append([]string(nil), quarterlyColumns...)
	default:
		return append([]string(nil), annualColumns...)
	}
}

// ValidationError carries everything the UI needs to tell the user what to
// fix. It is returned before any network call happens.
type ValidationError struct {
	MissingColumns []string
	RowCount       int
	Reason         string
}

func (e *ValidationError) Error() string {
	if len(e.MissingColumns) > 0 {
		return "missing required columns: " + strings.Join(e.MissingColumns, ", ")
	}
	return e.Reason
}

// Result summarizes an accepted file.
type Result struct {
	Columns  []string
	DataRows int
}

// Validate checks the structural contract for the given job type: every
// required column present (reported by exact name when missing) and at most
// MaxDataRows data rows. CSV is parsed natively; .xlsx via excelize.
func Validate(filename string, content io.Reader, jobType domain.JobType) (Result, error) {
	header, dataRows, err := readTable(filename, content)
	if err != nil {
		return Result{}, err
	}
	if len(header) == 0 {
		return Result{}, &ValidationError{Reason: "file has no header row"}
	}

	present := make(map[string]bool, len(header))
	for _, column := range header {
		present[normalizeColumn(column)] = true
	}

	missing := make([]string, 0)
	for _, required := range RequiredColumns(jobType) {
		if !present[required] {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return Result{}, &ValidationError{MissingColumns: missing}
	}

	if dataRows > MaxDataRows {
		return Result{}, &ValidationError{
			RowCount: dataRows,
			Reason:   fmt.Sprintf("file has %d data rows, the limit is %d", dataRows, MaxDataRows),
		}
	}
	if dataRows == 0 {
		return Result{}, &ValidationError{Reason: "file has no data rows"}
	}

	return Result{Columns: header, DataRows: dataRows}, nil
}

func readTable(filename string, content io.Reader) ([]string, int, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", "":
		return readCSV(content)
	case ".xlsx":
		return readXLSX(content)
	default:
		return nil, 0, &ValidationError{Reason: "unsupported file type, expected .csv or .xlsx"}
	}
}

func readCSV(content io.Reader) ([]string, int, error) {
	reader := csv.NewReader(content)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, 0, &ValidationError{Reason: "file is empty"}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read csv header: %w", err)
	}

	dataRows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read csv row %d: %w", dataRows+2, err)
		}
		if isBlankRow(record) {
			continue
		}
		dataRows++
		// Counting past the cap is pointless; the file is already rejected.
		if dataRows > MaxDataRows {
			break
		}
	}
	return header, dataRows, nil
}

func readXLSX(content io.Reader) ([]string, int, error) {
	raw, err := io.ReadAll(content)
	if err != nil {
		return nil, 0, fmt.Errorf("read xlsx content: %w", err)
	}

	workbook, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, &ValidationError{Reason: "file is not a readable .xlsx workbook"}
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, 0, &ValidationError{Reason: "workbook has no sheets"}
	}

	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, 0, fmt.Errorf("read xlsx rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, 0, &ValidationError{Reason: "file is empty"}
	}

	dataRows := 0
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		dataRows++
		if dataRows > MaxDataRows {
			break
		}
	}
	return rows[0], dataRows, nil
}

func normalizeColumn(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func isBlankRow(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// AsValidationError unwraps err into a ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr, true
	}
	return nil, false
}
