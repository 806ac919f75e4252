package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"docuquery/internal/app"
	"docuquery/internal/extract"
	"docuquery/internal/transport/http/middleware"
	"docuquery/internal/transport/http/response"
)

type DocumentHandler struct {
	documentService *app.DocumentService
	log             logrus.FieldLogger
}

func NewDocumentHandler(documentService *app.DocumentService, log logrus.FieldLogger) *DocumentHandler {
	return &DocumentHandler{documentService: documentService, log: log}
}

// Upload accepts a multipart form with "file" and queues it for processing.
func (h *DocumentHandler) Upload(c *gin.Context) {
	tenantID, ok := middleware.OrganizationID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if ext := extract.FileType(file.Filename); !extract.IsSupported(ext) {
		h.unsupported(c, ext)
		return
	}
	if file.Size > int64(h.documentService.MaxUploadMB())<<20 {
		h.tooLarge(c)
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	doc, err := h.documentService.Upload(c.Request.Context(), app.UploadInput{
		TenantID: tenantID,
		Filename: file.Filename,
		Size:     file.Size,
		Body:     f,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrUnsupportedFile):
			h.unsupported(c, extract.FileType(file.Filename))
		case errors.Is(err, app.ErrFileTooLarge):
			h.tooLarge(c)
		case errors.Is(err, app.ErrStorageLimit):
			response.Error(c, http.StatusBadRequest, response.CodeStorageLimit, "Storage limit exceeded")
		default:
			h.log.WithError(err).WithField("tenant_id", tenantID).Error("upload document failed")
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "upload failed")
		}
		return
	}
	response.Created(c, doc)
}

func (h *DocumentHandler) unsupported(c *gin.Context, ext string) {
	response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFile,
		fmt.Sprintf("File type '%s' not allowed. Allowed types: %s", ext, strings.Join(extract.SupportedTypes, ", ")))
}

func (h *DocumentHandler) tooLarge(c *gin.Context) {
	response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge,
		fmt.Sprintf("File too large. Maximum size is %dMB", h.documentService.MaxUploadMB()))
}

func (h *DocumentHandler) List(c *gin.Context) {
	tenantID, ok := middleware.OrganizationID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docs, err := h.documentService.List(c.Request.Context(), tenantID)
	if err != nil {
		h.log.WithError(err).WithField("tenant_id", tenantID).Error("list documents failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	tenantID, ok := middleware.OrganizationID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	doc, err := h.documentService.Get(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		h.documentError(c, err, "get document failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	tenantID, ok := middleware.OrganizationID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	if err := h.documentService.Delete(c.Request.Context(), tenantID, c.Param("id")); err != nil {
		h.documentError(c, err, "delete document failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) Reprocess(c *gin.Context) {
	tenantID, ok := middleware.OrganizationID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	doc, err := h.documentService.Reprocess(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		h.documentError(c, err, "reprocess document failed")
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"document_id": doc.ID, "status": "reprocessing scheduled"})
}

func (h *DocumentHandler) documentError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, app.ErrDocumentNotFound), errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "Document not found")
	default:
		h.log.WithError(err).Error(msg)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, msg)
	}
}
