package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edulink/edulink-api/internal/service"
	appErrors "github.com/edulink/edulink-api/pkg/errors"
	"github.com/edulink/edulink-api/pkg/response"
)

// NoteHandler exposes study material upload and download endpoints.
type NoteHandler struct {
	service *service.NoteService
}

// NewNoteHandler creates a new handler.
func NewNoteHandler(svc *service.NoteService) *NoteHandler {
	return &NoteHandler{service: svc}
}

// Upload godoc
// @Summary Upload study material
// @Description Multipart upload of a note file for a subject the teacher owns
// @Tags Notes
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Subject ID"
// @Param title formData string true "Note title"
// @Param file formData file true "Note file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /subjects/{id}/notes [post]
func (h *NoteHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	upload := service.NoteUpload{
		Title:    c.PostForm("title"),
		FileName: fileHeader.Filename,
		MIMEType: fileHeader.Header.Get("Content-Type"),
		Size:     fileHeader.Size,
		Body:     file,
	}

	note, err := h.service.Upload(c.Request.Context(), c.Param("id"), upload, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, note)
}

// ListBySubject godoc
// @Summary List subject notes
// @Tags Notes
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /subjects/{id}/notes [get]
func (h *NoteHandler) ListBySubject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	rows, err := h.service.ListBySubject(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, rows, nil)
}

// DownloadGrant godoc
// @Summary Request note download
// @Description Returns a short-lived signed download URL
// @Tags Notes
// @Produce json
// @Param id path string true "Note ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /notes/{id}/download [get]
func (h *NoteHandler) DownloadGrant(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	grant, err := h.service.DownloadGrant(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, grant, nil)
}

// Download godoc
// @Summary Download note file
// @Description Streams the file referenced by a valid signed token
// @Tags Notes
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /notes/download [get]
func (h *NoteHandler) Download(c *gin.Context) {
	note, file, err := h.service.Resolve(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", `attachment; filename="`+note.FileName+`"`)
	c.DataFromReader(http.StatusOK, note.SizeBytes, note.MIMEType, file, nil)
}
