package handler

import (
	"io"
	"net/http"
	"path/filepath"

	"sarnabroker/internal/infra"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var documentContentTypes = map[string]string{
	".pdf": "application/pdf",
	".jpg": "image/jpeg",
	".png": "image/png",
}

type DocumentsHandler struct{ docs infra.DocumentStore }

func NewDocumentsHandler(docs infra.DocumentStore) *DocumentsHandler {
	return &DocumentsHandler{docs: docs}
}

// Download godoc
// @Summary      Download a stored invoice, bill or photo
// @Tags         documents
// @Produce      application/octet-stream
// @Security     BearerAuth
// @Param        name path     string true "Stored document name"
// @Success      200  {file}   binary
// @Failure      404  {object} apierror.APIError
// @Router       /v1/documents/{name} [get]
func (h *DocumentsHandler) Download(c *gin.Context) {
	name := c.Param("name")
	rc, err := h.docs.Open(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	ct, ok := documentContentTypes[filepath.Ext(name)]
	if !ok {
		ct = "application/octet-stream"
	}
	c.Header("Content-Type", ct)
	c.Header("Content-Disposition", `inline; filename="`+name+`"`)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		log.Warn().Err(err).Str("document", name).Msg("document download interrupted")
	}
}
