package infra

import (
	"fmt"
	"io"

	"sarnabroker/internal/dto"

	"github.com/xuri/excelize/v2"
)

const bookingsSheet = "Bookings"

var bookingColumns = []string{
	"Order", "Crop", "Buyer", "Booked", "Loaded", "Remaining",
	"Rate", "Status", "Loading", "QC", "Created",
}

// WriteBookingsXLSX writes a miller's bookings as a one-sheet workbook.
func WriteBookingsXLSX(rows []dto.BookingResponse, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", bookingsSheet); err != nil {
		return err
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E0E0E0"}},
	})
	if err != nil {
		return err
	}

	for i, h := range bookingColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(bookingsSheet, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(bookingColumns), 1)
	if err := f.SetCellStyle(bookingsSheet, "A1", last, header); err != nil {
		return err
	}

	for r, b := range rows {
		rate, _ := b.Price.Float64()
		values := []interface{}{
			b.OrderID, b.Crop, b.BuyerID, b.Quantity, b.LoadedQty, b.Remaining,
			rate, b.Status, b.LoadingStatus, b.QCStatus, b.CreatedAt,
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(bookingsSheet, cell, &values); err != nil {
			return fmt.Errorf("report: row %d: %w", r+2, err)
		}
	}
	_ = f.SetColWidth(bookingsSheet, "A", "A", 12)
	_ = f.SetColWidth(bookingsSheet, "C", "C", 38)

	return f.Write(w)
}
