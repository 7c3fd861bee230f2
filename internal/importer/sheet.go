package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sjperalta/crm-api/internal/columns"
	"github.com/sjperalta/crm-api/internal/statemachine"
)

// Rejections reported to the uploader as 400.
var (
	ErrMissingKeyColumn = errors.New("CSV must contain 'Trading Code' column (required field)")
	ErrEmptyFile        = errors.New("CSV file is empty or contains no valid data")
)

// ErrMalformedCSV wraps reader failures in the middle of the stream.
var ErrMalformedCSV = errors.New("error parsing CSV file")

// IsRejection reports whether err describes a bad upload rather than a server fault.
func IsRejection(err error) bool {
	return errors.Is(err, ErrMissingKeyColumn) || errors.Is(err, ErrEmptyFile)
}

// Sheet is a parsed upload: the analysed header row and the valid data rows.
type Sheet struct {
	Layout *columns.Layout
	Rows   []columns.Row
	// Skipped counts rows dropped for being blank or lacking a trading code.
	Skipped int
}

// Keys returns the distinct trading codes in row order.
func (s *Sheet) Keys() []string {
	seen := make(map[string]bool, len(s.Rows))
	keys := make([]string, 0, len(s.Rows))
	for _, r := range s.Rows {
		k := r.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// Parse reads a CSV stream into a Sheet, driving the session through header
// validation and row streaming. A missing key column rejects the upload
// before any data row is read.
func Parse(ctx context.Context, r io.Reader, mapper *columns.Mapper, session *statemachine.ImportFSM) (*Sheet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		session.Fail(ctx)
		return nil, ErrEmptyFile
	}
	if err != nil {
		session.Fail(ctx)
		return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}
	if err := session.ReceiveHeaders(ctx); err != nil {
		return nil, err
	}

	layout := mapper.Analyze(header)
	if !layout.HasKey {
		session.Fail(ctx)
		return nil, fmt.Errorf("%w. Found columns: %s", ErrMissingKeyColumn, strings.Join(layout.Headers, ", "))
	}
	if err := session.AcceptHeaders(ctx); err != nil {
		return nil, err
	}

	sheet := &Sheet{Layout: layout}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			session.Fail(ctx)
			return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
		}

		row := layout.MapRow(record)
		if row.Blank() || row.Key() == "" {
			sheet.Skipped++
			continue
		}
		sheet.Rows = append(sheet.Rows, row)
	}

	if err := session.EndStream(ctx); err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		session.Fail(ctx)
		return nil, ErrEmptyFile
	}
	return sheet, nil
}
