package handler

import (
	"net/http"

	"sarnabroker/internal/apierror"
	"sarnabroker/internal/infra"

	"github.com/gin-gonic/gin"
)

// saveUpload stores the multipart file under field and returns its stored
// name. On failure it writes the response and returns false.
func saveUpload(c *gin.Context, store infra.DocumentStore, field string) (string, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, apierror.New(field+" file is required"))
		return "", false
	}
	if fh.Size > infra.MaxDocumentSize {
		respondError(c, infra.ErrDocumentTooLarge)
		return "", false
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return "", false
	}
	defer f.Close()

	name, err := store.Save(c.Request.Context(), fh.Filename, f)
	if err != nil {
		respondError(c, err)
		return "", false
	}
	return name, true
}
