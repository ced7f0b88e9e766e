package dto

import "github.com/shopspring/decimal"

type PaymentResponse struct {
	ID          string          `json:"id"`
	BookingID   string          `json:"booking_id"`
	OrderID     string          `json:"order_id,omitempty"`
	Crop        string          `json:"crop,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	PaidAt      *string         `json:"paid_at,omitempty"`
	InvoiceFile *string         `json:"invoice_file,omitempty"`
}

// SettlementLine is one truck's share of a booking settlement.
type SettlementLine struct {
	TruckID          string          `json:"truck_id"`
	TruckNumber      *string         `json:"truck_number,omitempty"`
	LoadedQty        int             `json:"loaded_qty"`
	Amount           decimal.Decimal `json:"amount"`
	QCStatus         string          `json:"qc_status"`
	FinalInvoiceFile *string         `json:"final_invoice_file,omitempty"`
	PaymentStatus    string          `json:"payment_status"`
	PaymentAt        *string         `json:"payment_at,omitempty"`
}

// SettlementResponse is the computed booking-level view.
// Status: "pending" | "partially_paid" | "paid"
type SettlementResponse struct {
	BookingID     string           `json:"booking_id"`
	OrderID       string           `json:"order_id"`
	Crop          string           `json:"crop"`
	BuyerID       string           `json:"buyer_id"`
	MillerID      string           `json:"miller_id"`
	Price         decimal.Decimal  `json:"price"`
	Quantity      int              `json:"quantity"`
	LoadedQty     int              `json:"loaded_qty"`
	LoadingStatus string           `json:"loading_status"`
	AmountDue     decimal.Decimal  `json:"amount_due"`
	AmountPaid    decimal.Decimal  `json:"amount_paid"`
	Status        string           `json:"status"`
	Payment       *PaymentResponse `json:"payment,omitempty"`
	Trucks        []SettlementLine `json:"trucks"`
}
