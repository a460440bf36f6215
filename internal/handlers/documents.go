package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/carecircle/carecircle/internal/middleware"
	"github.com/carecircle/carecircle/internal/services"
	apperrors "github.com/carecircle/carecircle/pkg/errors"
	"github.com/carecircle/carecircle/pkg/response"
)

// DocumentHandler exposes HTTP endpoints for care documents.
type DocumentHandler struct {
	service *services.DocumentService
}

// NewDocumentHandler constructs a document handler.
func NewDocumentHandler(service *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// List returns documents for a care recipient.
func (h *DocumentHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	documents, err := h.service.List(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, documents)
}

// Upload stores a multipart file as a care document.
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("a file field is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("unable to read uploaded file"))
		return
	}
	defer file.Close()

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		name = fileHeader.Filename
	}

	document, err := h.service.Upload(c.Request.Context(), services.UploadDocumentInput{
		ActorID:     userID,
		RecipientID: strings.TrimSpace(c.Param("id")),
		Name:        name,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Content:     file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, document)
}

// Download streams the document content back to the caller.
func (h *DocumentHandler) Download(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	document, reader, err := h.service.Open(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	contentType := document.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", document.Name))
	c.DataFromReader(http.StatusOK, document.SizeBytes, contentType, reader, nil)
}

// Delete removes a document and its stored blob.
func (h *DocumentHandler) Delete(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
