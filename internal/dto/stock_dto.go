package dto

import "github.com/shopspring/decimal"

type PostStockRequest struct {
	Crop          string          `json:"crop" validate:"required,max=80"`
	Quantity      int             `json:"quantity" validate:"required,gt=0"`
	Price         decimal.Decimal `json:"price" validate:"required,gt=0"`
	Condition     string          `json:"condition" validate:"max=80"`
	BagType       string          `json:"bag_type" validate:"max=40"`
	DeductionRate decimal.Decimal `json:"deduction_rate" validate:"gte=0"`
}

type UpdateStockRequest struct {
	Quantity      int             `json:"quantity" validate:"gte=0"`
	Price         decimal.Decimal `json:"price" validate:"required,gt=0"`
	Condition     string          `json:"condition" validate:"max=80"`
	BagType       string          `json:"bag_type" validate:"max=40"`
	DeductionRate decimal.Decimal `json:"deduction_rate" validate:"gte=0"`
}

type UpdateDeductionRequest struct {
	DeductionRate decimal.Decimal `json:"deduction_rate" validate:"gte=0"`
}

type StockResponse struct {
	ID            string          `json:"id"`
	MillerID      string          `json:"miller_id"`
	Crop          string          `json:"crop"`
	Condition     string          `json:"condition"`
	BagType       string          `json:"bag_type"`
	DeductionRate decimal.Decimal `json:"deduction_rate"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	ReservedQty   int             `json:"reserved_qty"`
	Status        string          `json:"status"`
	CreatedAt     string          `json:"created_at"`
}

// MarketFilter is bound from the query string of GET /v1/market.
type MarketFilter struct {
	Crop  string `form:"crop"`
	Page  int    `form:"page"`
	Limit int    `form:"limit"`
}

type StockListResponse struct {
	Data  []StockResponse `json:"data"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// StockHistoryItem is one audit row of a listing.
type StockHistoryItem struct {
	ID           string          `json:"id"`
	StockID      string          `json:"stock_id"`
	ChangedBy    string          `json:"changed_by"`
	OldPrice     decimal.Decimal `json:"old_price"`
	NewPrice     decimal.Decimal `json:"new_price"`
	OldQty       int             `json:"old_qty"`
	NewQty       int             `json:"new_qty"`
	OldDeduction decimal.Decimal `json:"old_deduction"`
	NewDeduction decimal.Decimal `json:"new_deduction"`
	Reason       string          `json:"reason"`
	CreatedAt    string          `json:"created_at"`
}

type StockHistoryListResponse struct {
	Data  []StockHistoryItem `json:"data"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}
