// Package export builds xlsx workbooks for staff: bookings and their
// settlement obligations over a date range.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"taurean/internal/database"
	"taurean/internal/models"
)

const (
	sheetBookings    = "Bookings"
	sheetSettlements = "Settlements"
)

// Service writes export files to a configured directory.
type Service struct {
	db   *database.DB
	path string
	log  zerolog.Logger
}

func NewService(db *database.DB, path string, logger *zerolog.Logger) *Service {
	return &Service{
		db:   db,
		path: path,
		log:  logger.With().Str("component", "export").Logger(),
	}
}

// BookingsReport writes a workbook with bookings and settlements that
// fall inside [from, to) and returns the file path.
func (s *Service) BookingsReport(ctx context.Context, from, to time.Time) (string, error) {
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	bookings, err := s.db.ListBookingsByDateRange(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("list bookings: %w", err)
	}
	transactions, err := s.db.ListTransactionsByDateRange(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("list transactions: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeBookingsSheet(f, bookings); err != nil {
		return "", err
	}
	if err := writeSettlementsSheet(f, transactions); err != nil {
		return "", err
	}
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("bookings_%s_to_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
	filePath := filepath.Join(s.path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("save export file: %w", err)
	}

	s.log.Info().
		Str("file_path", filePath).
		Int("bookings", len(bookings)).
		Int("transactions", len(transactions)).
		Msg("export file created")
	return filePath, nil
}

func writeBookingsSheet(f *excelize.File, bookings []models.Booking) error {
	index, err := f.NewSheet(sheetBookings)
	if err != nil {
		return fmt.Errorf("create bookings sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Reference", "Resource", "User ID", "Start", "End",
		"Quantity", "Status", "Payment Status", "Total",
	}
	writeHeaderRow(f, sheetBookings, headers)

	for i, b := range bookings {
		row := i + 2
		_ = f.SetCellValue(sheetBookings, fmt.Sprintf("A%d", row), b.ID)
		_ = f.SetCellValue(sheetBookings, fmt.Sprintf("B%d", row), b.Reference)
		_ = f.SetCellValue(sheetBookings, fmt.Sprintf("C%d", row), b.ResourceName)
		_ = f.SetCellValue(sheetBookings, fmt.Sprintf("D%d", row), b.UserID)
		_ = f.SetCellValue(sheetBookings, fmt.Sprintf("E%d", row), b.StartTime.Format("02.01.2006 15:04"))
		_ = f.SetCellValue(sheetBookings, fmt.Sprintf("F%d", row), b.EndTime.Format("02.01.2006 15:04"))
		_ = f.SetCellValue(sheetBookings, fmt.Sprintf("G%d", row), b.Quantity)
		_ = f.SetCellValue(sheetBookings, fmt.Sprintf("H%d", row), b.Status)
		_ = f.SetCellValue(sheetBookings, fmt.Sprintf("I%d", row), b.PaymentStatus)
		_ = f.SetCellValue(sheetBookings, fmt.Sprintf("J%d", row), formatMoney(b.TotalCents, b.Currency))
	}

	_ = f.SetColWidth(sheetBookings, "B", "B", 38)
	_ = f.SetColWidth(sheetBookings, "C", "C", 25)
	_ = f.SetColWidth(sheetBookings, "E", "F", 18)
	_ = f.SetColWidth(sheetBookings, "H", "J", 15)
	return nil
}

func writeSettlementsSheet(f *excelize.File, transactions []models.PendingTransaction) error {
	if _, err := f.NewSheet(sheetSettlements); err != nil {
		return fmt.Errorf("create settlements sheet: %w", err)
	}

	headers := []string{
		"ID", "Reference", "Booking ID", "Amount", "Method", "Plan",
		"Status", "Processed By", "Rejection Reason", "Created",
	}
	writeHeaderRow(f, sheetSettlements, headers)

	for i, t := range transactions {
		row := i + 2
		_ = f.SetCellValue(sheetSettlements, fmt.Sprintf("A%d", row), t.ID)
		_ = f.SetCellValue(sheetSettlements, fmt.Sprintf("B%d", row), t.Reference)
		_ = f.SetCellValue(sheetSettlements, fmt.Sprintf("C%d", row), t.BookingID)
		_ = f.SetCellValue(sheetSettlements, fmt.Sprintf("D%d", row), formatMoney(t.AmountCents, t.Currency))
		_ = f.SetCellValue(sheetSettlements, fmt.Sprintf("E%d", row), t.Method)
		_ = f.SetCellValue(sheetSettlements, fmt.Sprintf("F%d", row), t.TimingPlan)
		_ = f.SetCellValue(sheetSettlements, fmt.Sprintf("G%d", row), t.Status)
		_ = f.SetCellValue(sheetSettlements, fmt.Sprintf("H%d", row), t.ProcessedBy)
		_ = f.SetCellValue(sheetSettlements, fmt.Sprintf("I%d", row), t.RejectionReason)
		_ = f.SetCellValue(sheetSettlements, fmt.Sprintf("J%d", row), t.CreatedAt.Format("02.01.2006 15:04"))
	}

	_ = f.SetColWidth(sheetSettlements, "B", "B", 38)
	_ = f.SetColWidth(sheetSettlements, "D", "G", 14)
	_ = f.SetColWidth(sheetSettlements, "H", "I", 22)
	return nil
}

func writeHeaderRow(f *excelize.File, sheet string, headers []string) {
	style, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
		_ = f.SetCellStyle(sheet, cell, cell, style)
	}
}

func formatMoney(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, currency)
}
