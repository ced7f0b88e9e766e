package handler

import (
	"net/http"

	"sarnabroker/internal/dto"
	"sarnabroker/internal/infra"
	"sarnabroker/internal/service"

	"github.com/gin-gonic/gin"
)

// TrucksHandler covers loading, QC and the close-remaining action.
type TrucksHandler struct {
	svc  service.LoadingService
	docs infra.DocumentStore
}

func NewTrucksHandler(svc service.LoadingService, docs infra.DocumentStore) *TrucksHandler {
	return &TrucksHandler{svc: svc, docs: docs}
}

// RecordLoad godoc
// @Summary      Record one truck load
// @Description  A load larger than what is left is clamped; the response reports it.
// @Tags         trucks
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id           path     string true  "Booking UUID"
// @Param        load_qty     formData int    true  "Bags on the truck"
// @Param        truck_number formData string false "Registration"
// @Param        invoice      formData file   true  "Loading invoice"
// @Success      201 {object} dto.TruckLoadResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/bookings/{id}/trucks [post]
func (h *TrucksHandler) RecordLoad(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.TruckLoadRequest
	if !bindFormAndValidate(c, &req) {
		return
	}
	file, ok := saveUpload(c, h.docs, "invoice")
	if !ok {
		return
	}
	resp, err := h.svc.RecordTruckLoad(c.Request.Context(), actor(c), id, req, file)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary      Trucks of a booking
// @Tags         trucks
// @Produce      json
// @Security     BearerAuth
// @Param        id  path     string true "Booking UUID"
// @Success      200 {array}  dto.TruckResponse
// @Router       /v1/bookings/{id}/trucks [get]
func (h *TrucksHandler) List(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.ListTrucks(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RecordQC godoc
// @Summary      Record quality check for a truck
// @Description  Weight and moisture are decimal strings. Locked once the truck has a final invoice.
// @Tags         trucks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string              true "Truck UUID"
// @Param        body body     dto.RecordQCRequest true "QC values"
// @Success      200  {object} dto.TruckResponse
// @Failure      422  {object} apierror.APIError
// @Router       /v1/trucks/{id}/qc [post]
func (h *TrucksHandler) RecordQC(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.RecordQCRequest
	if !bindFormAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RecordQC(c.Request.Context(), actor(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CloseRemaining godoc
// @Summary      Close the unloaded remainder of a booking
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string                    true "Booking UUID"
// @Param        body body     dto.CloseRemainingRequest true "Reason"
// @Success      200  {object} dto.BookingResponse
// @Router       /v1/bookings/{id}/close [post]
func (h *TrucksHandler) CloseRemaining(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.CloseRemainingRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CloseRemaining(c.Request.Context(), actor(c), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
