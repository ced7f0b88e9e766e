package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"sarnabroker/internal/dto"
	"sarnabroker/internal/infra"
	"sarnabroker/internal/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type BookingsHandler struct {
	svc  service.BookingService
	docs infra.DocumentStore
}

func NewBookingsHandler(svc service.BookingService, docs infra.DocumentStore) *BookingsHandler {
	return &BookingsHandler{svc: svc, docs: docs}
}

// Create godoc
// @Summary      Book quantity from a listing
// @Description  Deducts the quantity from the listing immediately and assigns the next order id.
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string                   true "Listing UUID"
// @Param        body body     dto.CreateBookingRequest true "Quantity"
// @Success      201  {object} dto.BookingResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/stock/{id}/bookings [post]
func (h *BookingsHandler) Create(c *gin.Context) {
	stockID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.CreateBookingRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), actor(c), stockID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Get godoc
// @Summary      Read one booking
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        id  path     string true "Booking UUID"
// @Success      200 {object} dto.BookingResponse
// @Failure      403 {object} apierror.APIError
// @Router       /v1/bookings/{id} [get]
func (h *BookingsHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Approve godoc
// @Summary      Approve a pending booking
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        id  path     string true "Booking UUID"
// @Success      200 {object} dto.BookingResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/bookings/{id}/approve [post]
func (h *BookingsHandler) Approve(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Approve(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Decline godoc
// @Summary      Decline a booking
// @Description  Returns the booked quantity to the listing. The body is optional.
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string                    true  "Booking UUID"
// @Param        body body     dto.DeclineBookingRequest false "Reason"
// @Success      200  {object} dto.BookingResponse
// @Router       /v1/bookings/{id}/decline [post]
func (h *BookingsHandler) Decline(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.DeclineBookingRequest
	if c.Request.ContentLength != 0 && !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Decline(c.Request.Context(), actor(c), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Cancel godoc
// @Summary      Cancel own booking before loading starts
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        id  path     string true "Booking UUID"
// @Success      200 {object} dto.BookingResponse
// @Router       /v1/bookings/{id}/cancel [post]
func (h *BookingsHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Cancel(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AttachBill godoc
// @Summary      Upload the miller's bill for a loaded booking
// @Tags         bookings
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string true "Booking UUID"
// @Param        bill formData file   true "PDF, JPEG or PNG"
// @Success      200  {object} dto.BookingResponse
// @Router       /v1/bookings/{id}/bill [post]
func (h *BookingsHandler) AttachBill(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	name, ok := saveUpload(c, h.docs, "bill")
	if !ok {
		return
	}
	resp, err := h.svc.AttachBill(c.Request.Context(), actor(c), id, name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListForBuyer godoc
// @Summary      Buyer's bookings
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        view  query    string false "active (default), partial or loaded"
// @Param        page  query    int    false "Page"
// @Param        limit query    int    false "Page size"
// @Success      200   {object} dto.BookingListResponse
// @Router       /v1/bookings [get]
func (h *BookingsHandler) ListForBuyer(c *gin.Context) {
	h.list(c, h.svc.ListForBuyer)
}

// ListForMiller godoc
// @Summary      Bookings against the miller's listings
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} dto.BookingListResponse
// @Router       /v1/miller/bookings [get]
func (h *BookingsHandler) ListForMiller(c *gin.Context) {
	h.list(c, h.svc.ListForMiller)
}

// ListAll godoc
// @Summary      Every booking
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} dto.BookingListResponse
// @Router       /v1/admin/bookings [get]
func (h *BookingsHandler) ListAll(c *gin.Context) {
	h.list(c, h.svc.ListAll)
}

type listFunc func(ctx context.Context, actor service.ActingIdentity, filter dto.BookingFilter) (*dto.BookingListResponse, error)

func (h *BookingsHandler) list(c *gin.Context, fn listFunc) {
	var filter dto.BookingFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondError(c, service.ErrValidation)
		return
	}
	resp, err := fn(c.Request.Context(), actor(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Export godoc
// @Summary      Download the miller's bookings as XLSX
// @Tags         bookings
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security     BearerAuth
// @Success      200 {file} binary
// @Router       /v1/miller/bookings/export [get]
func (h *BookingsHandler) Export(c *gin.Context) {
	rows, err := h.svc.ExportForMiller(c.Request.Context(), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := infra.WriteBookingsXLSX(rows, &buf); err != nil {
		respondError(c, err)
		return
	}
	filename := fmt.Sprintf("bookings-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
