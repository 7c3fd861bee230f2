package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/sjperalta/crm-api/internal/columns"
	"github.com/sjperalta/crm-api/internal/models"
	"github.com/xuri/excelize/v2"
)

// Export formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const (
	exportTimeLayout = "2006-01-02 15:04:05"
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportFile is a rendered download.
type ExportFile struct {
	Data        []byte
	Filename    string
	ContentType string
}

type ExportService struct {
	mapper *columns.Mapper
	now    func() time.Time
}

func NewExportService(mapper *columns.Mapper) *ExportService {
	return &ExportService{mapper: mapper, now: time.Now}
}

// Clients renders clients under their primary header spellings, in registry order.
func (s *ExportService) Clients(clients []models.Client, format string) (*ExportFile, error) {
	fields := s.mapper.Fields()
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i], _ = s.mapper.PrimaryHeader(f)
	}

	rows := make([][]string, len(clients))
	for i := range clients {
		row := make([]string, len(fields))
		for j, f := range fields {
			row[j] = clients[i].Values()[f]
		}
		rows[i] = row
	}
	return s.render("clients", "Clients", headers, rows, format)
}

// AuditRows renders flattened audit entries, one row per field change.
func (s *ExportService) AuditRows(entries []AuditExportRow, format string) (*ExportFile, error) {
	headers := []string{"Date", "Trading Code", "Action", "Edited By", "Edited By Email", "Field", "Old Value", "New Value"}
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{
			e.Date.Format(exportTimeLayout),
			e.TradingCode,
			e.Action,
			e.EditedBy,
			e.EditedByEmail,
			e.Field,
			e.OldValue,
			e.NewValue,
		}
	}
	return s.render("audit_logs", "Audit Logs", headers, rows, format)
}

func (s *ExportService) render(base, sheet string, headers []string, rows [][]string, format string) (*ExportFile, error) {
	stamp := s.now().Format("2006-01-02")
	switch format {
	case "", FormatCSV:
		data, err := writeCSV(headers, rows)
		if err != nil {
			return nil, err
		}
		return &ExportFile{Data: data, Filename: fmt.Sprintf("%s_%s.csv", base, stamp), ContentType: "text/csv"}, nil
	case FormatXLSX:
		data, err := writeXLSX(sheet, headers, rows)
		if err != nil {
			return nil, err
		}
		return &ExportFile{Data: data, Filename: fmt.Sprintf("%s_%s.xlsx", base, stamp), ContentType: xlsxContentType}, nil
	default:
		return nil, invalid("Unsupported export format %q", format)
	}
}

func writeCSV(headers []string, rows [][]string) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)
	if err := writer.Write(headers); err != nil {
		return nil, err
	}
	if err := writer.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeXLSX(sheet string, headers []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return nil, err
	}
	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return nil, err
	}
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(cell, cells); err != nil {
			return nil, err
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
