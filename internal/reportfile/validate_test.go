package reportfile

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/finsight/riskdash-back/internal/domain"
)

const annualHeader = "stock_symbol,company_name,sector,reporting_year,debt_to_equity,current_ratio,interest_coverage,return_on_assets,net_profit_margin"

const quarterlyHeader = "stock_symbol,company_name,sector,reporting_year,reporting_quarter,debt_to_equity,current_ratio,return_on_assets,net_profit_margin"

func TestValidateAcceptsAnnualCSV(t *testing.T) {
	content := annualHeader + "\nACME,Acme Corp,Tech,2024,1.2,1.5,3.0,0.08,0.12\n"

	result, err := Validate("annual.csv", strings.NewReader(content), domain.JobTypeAnnual)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if result.DataRows != 1 {
		t.Fatalf("expected 1 data row, got %d", result.DataRows)
	}
	if len(result.Columns) != 9 {
		t.Fatalf("expected 9 columns, got %d", len(result.Columns))
	}
}

func TestValidateReportsMissingColumnsByName(t *testing.T) {
	content := "stock_symbol,company_name,sector,reporting_year,debt_to_equity,current_ratio,interest_coverage,net_profit_margin\nACME,Acme,Tech,2024,1,1,1,1\n"

	_, err := Validate("annual.csv", strings.NewReader(content), domain.JobTypeAnnual)
	validationErr, ok := AsValidationError(err)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(validationErr.MissingColumns) != 1 || validationErr.MissingColumns[0] != "return_on_assets" {
		t.Fatalf("unexpected missing columns: %v", validationErr.MissingColumns)
	}
	if !strings.Contains(validationErr.Error(), "return_on_assets") {
		t.Fatalf("message must name the column: %q", validationErr.Error())
	}
}

func TestValidateQuarterlyRequiresQuarterColumn(t *testing.T) {
	content := annualHeader + "\nACME,Acme,Tech,2024,1,1,1,1,1\n"

	_, err := Validate("q.csv", strings.NewReader(content), domain.JobTypeQuarterly)
	validationErr, ok := AsValidationError(err)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	found := false
	for _, column := range validationErr.MissingColumns {
		if column == "reporting_quarter" {
			found = true
		}
	}
	if !found {
		t.Fatalf("reporting_quarter not reported missing: %v", validationErr.MissingColumns)
	}
}

func TestValidateHeaderMatchingIgnoresCaseAndSpace(t *testing.T) {
	content := " Stock_Symbol ,COMPANY_NAME,sector,Reporting_Year,debt_to_equity,current_ratio,interest_coverage,return_on_assets,net_profit_margin\nACME,Acme,Tech,2024,1,1,1,1,1\n"

	if _, err := Validate("annual.csv", strings.NewReader(content), domain.JobTypeAnnual); err != nil {
		t.Fatalf("normalized header rejected: %v", err)
	}
}

func TestValidateRejectsTooManyRows(t *testing.T) {
	var builder strings.Builder
	builder.WriteString(annualHeader + "\n")
	for i := 0; i <= MaxDataRows; i++ {
		builder.WriteString("ACME,Acme,Tech,2024,1,1,1,1,1\n")
	}

	_, err := Validate("annual.csv", strings.NewReader(builder.String()), domain.JobTypeAnnual)
	validationErr, ok := AsValidationError(err)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if validationErr.RowCount <= MaxDataRows {
		t.Fatalf("row count not reported: %d", validationErr.RowCount)
	}
}

func TestValidateRejectsEmptyAndHeaderOnlyFiles(t *testing.T) {
	if _, err := Validate("a.csv", strings.NewReader(""), domain.JobTypeAnnual); err == nil {
		t.Fatal("empty file must be rejected")
	}
	_, err := Validate("a.csv", strings.NewReader(annualHeader+"\n"), domain.JobTypeAnnual)
	validationErr, ok := AsValidationError(err)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(validationErr.Reason, "no data rows") {
		t.Fatalf("unexpected reason: %q", validationErr.Reason)
	}
}

func TestValidateSkipsBlankRows(t *testing.T) {
	content := annualHeader + "\nACME,Acme,Tech,2024,1,1,1,1,1\n,,,,,,,,\n"

	result, err := Validate("annual.csv", strings.NewReader(content), domain.JobTypeAnnual)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if result.DataRows != 1 {
		t.Fatalf("blank row counted: %d", result.DataRows)
	}
}

func TestValidateRejectsUnsupportedExtension(t *testing.T) {
	_, err := Validate("report.pdf", strings.NewReader("x"), domain.JobTypeAnnual)
	if _, ok := AsValidationError(err); !ok {
		t.Fatalf("expected ValidationError for unsupported type, got %v", err)
	}
}

func TestValidateReadsXLSXWorkbook(t *testing.T) {
	workbook := excelize.NewFile()
	sheet := workbook.GetSheetName(0)
	header := strings.Split(quarterlyHeader, ",")
	for i, column := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := workbook.SetCellValue(sheet, cell, column); err != nil {
			t.Fatalf("set header cell: %v", err)
		}
	}
	row := []string{"ACME", "Acme Corp", "Tech", "2024", "Q1", "1.2", "1.5", "0.08", "0.12"}
	for i, value := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := workbook.SetCellValue(sheet, cell, value); err != nil {
			t.Fatalf("set data cell: %v", err)
		}
	}

	var buffer bytes.Buffer
	if err := workbook.Write(&buffer); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	result, err := Validate("report.xlsx", &buffer, domain.JobTypeQuarterly)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if result.DataRows != 1 {
		t.Fatalf("expected 1 data row, got %d", result.DataRows)
	}
}

func TestValidateRejectsCorruptXLSX(t *testing.T) {
	_, err := Validate("report.xlsx", strings.NewReader("not a workbook"), domain.JobTypeAnnual)
	if _, ok := AsValidationError(err); !ok {
		t.Fatalf("expected ValidationError for corrupt workbook, got %v", err)
	}
}
