package handler

import (
	"net/http"

	"sarnabroker/internal/dto"
	"sarnabroker/internal/service"

	"github.com/gin-gonic/gin"
)

type ContactsHandler struct{ svc service.ContactService }

func NewContactsHandler(svc service.ContactService) *ContactsHandler {
	return &ContactsHandler{svc: svc}
}

// Me godoc
// @Summary      Read own contact
// @Tags         contacts
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object} dto.ContactResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/contacts/me [get]
func (h *ContactsHandler) Me(c *gin.Context) {
	resp, err := h.svc.Get(c.Request.Context(), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Upsert godoc
// @Summary      Create or replace own contact
// @Description  The phone is normalized to E.164 and used for SMS notifications.
// @Tags         contacts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body     dto.UpsertContactRequest true "Contact"
// @Success      200  {object} dto.ContactResponse
// @Failure      422  {object} apierror.APIError
// @Router       /v1/contacts/me [put]
func (h *ContactsHandler) Upsert(c *gin.Context) {
	var req dto.UpsertContactRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Upsert(c.Request.Context(), actor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
