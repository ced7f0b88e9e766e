package handler

import (
	"bytes"
	"net/http"
	"time"

	"sarnabroker/internal/infra"
	"sarnabroker/internal/service"

	"github.com/gin-gonic/gin"
)

type SettlementHandler struct {
	svc  service.SettlementService
	docs infra.DocumentStore
}

func NewSettlementHandler(svc service.SettlementService, docs infra.DocumentStore) *SettlementHandler {
	return &SettlementHandler{svc: svc, docs: docs}
}

// UploadFinalInvoice godoc
// @Summary      Final invoice for a whole loaded booking
// @Tags         settlement
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id      path     string true "Booking UUID"
// @Param        invoice formData file   true "Final invoice"
// @Success      200 {object} dto.PaymentResponse
// @Router       /v1/bookings/{id}/final-invoice [post]
func (h *SettlementHandler) UploadFinalInvoice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	file, ok := saveUpload(c, h.docs, "invoice")
	if !ok {
		return
	}
	resp, err := h.svc.UploadFinalInvoice(c.Request.Context(), actor(c), id, file)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// MarkPaid godoc
// @Summary      Confirm payment for a whole booking
// @Tags         settlement
// @Produce      json
// @Security     BearerAuth
// @Param        id  path     string true "Booking UUID"
// @Success      200 {object} dto.PaymentResponse
// @Router       /v1/bookings/{id}/paid [post]
func (h *SettlementHandler) MarkPaid(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.MarkPaymentDone(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UploadTruckFinalInvoice godoc
// @Summary      Final invoice for one QC-verified truck
// @Tags         settlement
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id      path     string true "Truck UUID"
// @Param        invoice formData file   true "Final invoice"
// @Success      200 {object} dto.TruckResponse
// @Router       /v1/trucks/{id}/final-invoice [post]
func (h *SettlementHandler) UploadTruckFinalInvoice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	file, ok := saveUpload(c, h.docs, "invoice")
	if !ok {
		return
	}
	resp, err := h.svc.UploadTruckFinalInvoice(c.Request.Context(), actor(c), id, file)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// MarkTruckPaid godoc
// @Summary      Confirm payment for one truck
// @Description  Idempotent. Paying the last truck of a finished booking settles the booking.
// @Tags         settlement
// @Produce      json
// @Security     BearerAuth
// @Param        id  path     string true "Truck UUID"
// @Success      200 {object} dto.TruckResponse
// @Router       /v1/trucks/{id}/paid [post]
func (h *SettlementHandler) MarkTruckPaid(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.MarkTruckPaymentDone(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary      Settlement summary of a booking
// @Tags         settlement
// @Produce      json
// @Security     BearerAuth
// @Param        id  path     string true "Booking UUID"
// @Success      200 {object} dto.SettlementResponse
// @Router       /v1/bookings/{id}/settlement [get]
func (h *SettlementHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetSettlement(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StatementPDF godoc
// @Summary      Settlement statement PDF of a paid booking
// @Tags         settlement
// @Produce      application/pdf
// @Security     BearerAuth
// @Param        id  path     string true "Booking UUID"
// @Success      200 {file}   binary
// @Failure      409 {object} apierror.APIError
// @Router       /v1/bookings/{id}/statement.pdf [get]
func (h *SettlementHandler) StatementPDF(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	st, err := h.svc.Statement(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := infra.RenderStatementPDF(st, time.Now(), &buf); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="statement-`+st.OrderID+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// Payments godoc
// @Summary      Buyer's completed payments
// @Tags         settlement
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} dto.PaymentResponse
// @Router       /v1/payments [get]
func (h *SettlementHandler) Payments(c *gin.Context) {
	resp, err := h.svc.ListBuyerPayments(c.Request.Context(), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
