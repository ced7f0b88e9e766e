package dto

import "github.com/shopspring/decimal"

// TruckLoadRequest carries the multipart form fields of a truck upload.
// The invoice file itself is saved by the handler before the service runs.
type TruckLoadRequest struct {
	LoadQty     int    `form:"load_qty" validate:"required,gt=0"`
	TruckNumber string `form:"truck_number" validate:"max=30"`
}

// RecordQCRequest keeps the numbers as text so the service can reject
// anything that does not parse instead of silently dropping it.
type RecordQCRequest struct {
	Weight   string `json:"weight" form:"weight" validate:"required"`
	Moisture string `json:"moisture" form:"moisture" validate:"required"`
	Remarks  string `json:"remarks" form:"remarks" validate:"max=500"`
}

type TruckResponse struct {
	ID               string           `json:"id"`
	BookingID        string           `json:"booking_id"`
	LoadedQty        int              `json:"loaded_qty"`
	InvoiceFile      string           `json:"invoice_file"`
	TruckNumber      *string          `json:"truck_number,omitempty"`
	QCWeight         *decimal.Decimal `json:"qc_weight,omitempty"`
	QCMoisture       *decimal.Decimal `json:"qc_moisture,omitempty"`
	QCRemarks        *string          `json:"qc_remarks,omitempty"`
	QCStatus         string           `json:"qc_status"`
	QCAt             *string          `json:"qc_at,omitempty"`
	FinalInvoiceFile *string          `json:"final_invoice_file,omitempty"`
	PaymentStatus    string           `json:"payment_status"`
	PaymentAt        *string          `json:"payment_at,omitempty"`
	CreatedAt        string           `json:"created_at"`
}

type TruckLoadResponse struct {
	Booking BookingResponse `json:"booking"`
	Truck   TruckResponse   `json:"truck"`
	// Clamped is true when the requested load exceeded what was left.
	Clamped bool `json:"clamped"`
}
