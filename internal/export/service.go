// Package export writes extracted statements as spreadsheets.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/statement-parser/internal/entity"
)

// RecordSource lists stored results, newest first.
type RecordSource interface {
	All(ctx context.Context) ([]entity.HistoryRecord, error)
}

// Service is a tiny façade over the history that produces XLSX and CSV exports.
type Service struct {
	source   RecordSource
	currency string
	logger   *slog.Logger
}

func NewService(source RecordSource, currency string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Service{source: source, currency: currency, logger: logger}
}

// Rows loads every stored record as a row. Undecodable records are skipped.
func (s *Service) Rows(ctx context.Context) ([]Row, error) {
	recs, err := s.source.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		row, err := RowFromRecord(rec, s.currency)
		if err != nil {
			s.logger.Warn("export.row.skipped", "id", rec.ID, "error", err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ExportXLSX returns the stored history as an XLSX workbook.
func (s *Service) ExportXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()
	rows, err := s.Rows(ctx)
	if err != nil {
		return nil, err
	}
	buf, err := WriteXLSX(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.xlsx.ok", "rows", len(rows), "elapsed_ms", time.Since(start).Milliseconds())
	return buf, nil
}

// ExportCSV writes the stored history as CSV to w.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	start := time.Now()
	rows, err := s.Rows(ctx)
	if err != nil {
		return err
	}
	if err := WriteCSV(w, rows); err != nil {
		return err
	}
	s.logger.Info("export.csv.ok", "rows", len(rows), "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// SheetName is the worksheet holding exported statements.
const SheetName = "Statements"

var xlsxHeaders = []string{
	"File",
	"Bank",
	"Processed At",
	"Card Variant",
	"Card Last 4",
	"Billing Cycle",
	"Cycle Start",
	"Cycle End",
	"Payment Due Date",
	"Total Balance Due",
	"Min Confidence",
}

// WriteXLSX renders rows into a single-sheet workbook.
func WriteXLSX(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	for i, h := range xlsxHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	for r, row := range rows {
		line := r + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, line)
			_ = f.SetCellValue(SheetName, cell, v)
		}
		write(1, row.FileName)
		write(2, row.Bank)
		write(3, row.ProcessedAt)
		write(4, row.CardVariant)
		write(5, row.CardLast4)
		write(6, row.BillingCycle)
		write(7, row.CycleStart)
		write(8, row.CycleEnd)
		// prefer the ISO form when the date parsed
		if row.DueDate != "" {
			write(9, row.DueDate)
		} else {
			write(9, row.PaymentDueDate)
		}
		if row.TotalDisplay != "" {
			write(10, row.TotalDisplay)
		} else {
			write(10, row.TotalBalanceDue)
		}
		write(11, row.MinConfidence)
	}

	_ = f.SetColWidth(SheetName, "A", "A", 32) // file
	_ = f.SetColWidth(SheetName, "B", "B", 22) // bank
	_ = f.SetColWidth(SheetName, "C", "C", 22)
	_ = f.SetColWidth(SheetName, "D", "E", 14)
	_ = f.SetColWidth(SheetName, "F", "F", 30) // cycle
	_ = f.SetColWidth(SheetName, "G", "J", 16)
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	return nil
}
