package dto

import "github.com/shopspring/decimal"

type CreateBookingRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type DeclineBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type CloseRemainingRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type BookingResponse struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"order_id"`
	StockID       string          `json:"stock_id"`
	BuyerID       string          `json:"buyer_id"`
	MillerID      string          `json:"miller_id"`
	Crop          string          `json:"crop,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	LoadedQty     int             `json:"loaded_qty"`
	Remaining     int             `json:"remaining"`
	Status        string          `json:"status"`
	LoadingStatus string          `json:"loading_status"`
	TruckStatus   string          `json:"truck_status"`
	Reason        *string         `json:"reason,omitempty"`
	CloseReason   *string         `json:"close_reason,omitempty"`
	ClosedBy      *string         `json:"closed_by,omitempty"`
	BillDocument  *string         `json:"bill_document,omitempty"`
	QCStatus      string          `json:"qc_status"`
	DecisionAt    *string         `json:"decision_at,omitempty"`
	LoadedAt      *string         `json:"loaded_at,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

// BookingFilter is bound from the query string of the booking list endpoints.
// View applies to buyers only: active | partial | loaded.
type BookingFilter struct {
	View  string `form:"view"`
	Page  int    `form:"page"`
	Limit int    `form:"limit"`
}

type BookingListResponse struct {
	Data  []BookingResponse `json:"data"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}
