package handler

import (
	"net/http"
	"strconv"

	"sarnabroker/internal/dto"
	"sarnabroker/internal/service"

	"github.com/gin-gonic/gin"
)

type StockHandler struct{ svc service.StockService }

func NewStockHandler(svc service.StockService) *StockHandler { return &StockHandler{svc: svc} }

// Post godoc
// @Summary      Post a stock listing
// @Tags         stock
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body     dto.PostStockRequest true "Listing"
// @Success      201  {object} dto.StockResponse
// @Failure      403  {object} apierror.APIError
// @Failure      422  {object} apierror.APIError
// @Router       /v1/stock [post]
func (h *StockHandler) Post(c *gin.Context) {
	var req dto.PostStockRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.PostStock(c.Request.Context(), actor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Update godoc
// @Summary      Edit a listing
// @Description  Quantity may not drop below what approved bookings hold. Every edit is recorded in the listing history.
// @Tags         stock
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string                 true "Listing UUID"
// @Param        body body     dto.UpdateStockRequest true "New values"
// @Success      200  {object} dto.StockResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/stock/{id} [put]
func (h *StockHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateStockRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.UpdateStock(c.Request.Context(), actor(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateDeduction godoc
// @Summary      Set a listing's deduction rate
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string                     true "Listing UUID"
// @Param        body body     dto.UpdateDeductionRequest true "Rate"
// @Success      200  {object} dto.StockResponse
// @Router       /v1/admin/stock/{id}/deduction [patch]
func (h *StockHandler) UpdateDeduction(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateDeductionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.UpdateDeduction(c.Request.Context(), actor(c), id, req.DeductionRate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Mine godoc
// @Summary      List own listings
// @Tags         stock
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array} dto.StockResponse
// @Router       /v1/stock/mine [get]
func (h *StockHandler) Mine(c *gin.Context) {
	resp, err := h.svc.ListMine(c.Request.Context(), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Market godoc
// @Summary      Browse open listings
// @Tags         stock
// @Produce      json
// @Security     BearerAuth
// @Param        crop  query    string false "Crop name"
// @Param        page  query    int    false "Page"
// @Param        limit query    int    false "Page size"
// @Success      200   {object} dto.StockListResponse
// @Router       /v1/market [get]
func (h *StockHandler) Market(c *gin.Context) {
	var filter dto.MarketFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondError(c, service.ErrValidation)
		return
	}
	resp, err := h.svc.ListMarket(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// History godoc
// @Summary      Listing change history
// @Tags         stock
// @Produce      json
// @Security     BearerAuth
// @Param        id    path     string true  "Listing UUID"
// @Param        page  query    int    false "Page"
// @Param        limit query    int    false "Page size"
// @Success      200   {object} dto.StockHistoryListResponse
// @Router       /v1/stock/{id}/history [get]
func (h *StockHandler) History(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	resp, err := h.svc.ListHistory(c.Request.Context(), actor(c), id, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
