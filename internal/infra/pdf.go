package infra

// pdf.go renders the settlement statement ("final hisab") of a paid booking
// with go-pdf/fpdf: header, booking summary, one row per truck, totals.

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"sarnabroker/internal/dto"

	"github.com/go-pdf/fpdf"
)

// RenderStatementPDF writes the statement for st to w.
func RenderStatementPDF(st *dto.SettlementResponse, issuedAt time.Time, w io.Writer) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle("Settlement "+st.OrderID, true)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 30

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentW, 9, "Sarna Broker", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(contentW, 6, "Settlement statement", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	// ── Booking summary ──────────────────────────────────────────────────────
	label := contentW * 0.3
	value := contentW * 0.7
	row := func(k, v string) {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(label, 6, k, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(value, 6, v, "", 1, "L", false, 0, "")
	}
	row("Order", st.OrderID)
	row("Crop", st.Crop)
	row("Rate (per bag)", st.Price.StringFixed(2))
	row("Booked / loaded", fmt.Sprintf("%d / %d bags", st.Quantity, st.LoadedQty))
	row("Loading status", st.LoadingStatus)
	row("Issued", issuedAt.Format("02/01/2006 15:04"))
	pdf.Ln(3)

	// ── Trucks ───────────────────────────────────────────────────────────────
	cols := []float64{contentW * 0.08, contentW * 0.26, contentW * 0.14, contentW * 0.16, contentW * 0.16, contentW * 0.20}
	headers := []string{"#", "Truck", "Bags", "QC", "Payment", "Amount"}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		align := "L"
		if i == len(headers)-1 {
			align = "R"
		}
		pdf.CellFormat(cols[i], 7, h, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for i, line := range st.Trucks {
		truck := "-"
		if line.TruckNumber != nil {
			truck = *line.TruckNumber
		}
		pdf.CellFormat(cols[0], 6, fmt.Sprintf("%d", i+1), "1", 0, "L", false, 0, "")
		pdf.CellFormat(cols[1], 6, truck, "1", 0, "L", false, 0, "")
		pdf.CellFormat(cols[2], 6, fmt.Sprintf("%d", line.LoadedQty), "1", 0, "L", false, 0, "")
		pdf.CellFormat(cols[3], 6, line.QCStatus, "1", 0, "L", false, 0, "")
		pdf.CellFormat(cols[4], 6, line.PaymentStatus, "1", 0, "L", false, 0, "")
		pdf.CellFormat(cols[5], 6, line.Amount.StringFixed(2), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(3)

	// ── Totals ───────────────────────────────────────────────────────────────
	left := contentW * 0.7
	right := contentW * 0.3
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(left, 6, "Amount due", "", 0, "R", false, 0, "")
	pdf.CellFormat(right, 6, st.AmountDue.StringFixed(2), "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(left, 7, "Amount paid", "", 0, "R", false, 0, "")
	pdf.CellFormat(right, 7, st.AmountPaid.StringFixed(2), "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(left, 6, "Status", "", 0, "R", false, 0, "")
	pdf.CellFormat(right, 6, st.Status, "", 1, "R", false, 0, "")

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(contentW, 5, "Computer-generated statement; no signature required.", "", 1, "C", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("pdf: render statement: %w", err)
	}
	return nil
}

// StatementPDF is RenderStatementPDF into memory, for email attachments.
func StatementPDF(st *dto.SettlementResponse, issuedAt time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderStatementPDF(st, issuedAt, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
