package handler

import (
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"docuquery/internal/app"
	"docuquery/internal/transport/http/middleware"
	"docuquery/internal/transport/http/response"
)

const maxQuestionLength = 500

type QueryHandler struct {
	queryService *app.QueryService
	usageService *app.UsageService
	log          logrus.FieldLogger
}

type QueryRequest struct {
	Question    string   `json:"question" binding:"required"`
	DocumentIDs []string `json:"document_ids"`
}

func NewQueryHandler(queryService *app.QueryService, usageService *app.UsageService, log logrus.FieldLogger) *QueryHandler {
	return &QueryHandler{queryService: queryService, usageService: usageService, log: log}
}

func (h *QueryHandler) Query(c *gin.Context) {
	tenantID, ok := middleware.OrganizationID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if utf8.RuneCountInString(req.Question) > maxQuestionLength {
		response.Error(c, http.StatusBadRequest, response.CodeQuestionTooLong, "Question must be 500 characters or less")
		return
	}

	result, err := h.queryService.Answer(c.Request.Context(), tenantID, req.Question, req.DocumentIDs)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "question must not be empty")
		case errors.Is(err, app.ErrRetrieval):
			h.log.WithError(err).WithField("tenant_id", tenantID).Error("query retrieval failed")
			response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, "search is temporarily unavailable")
		default:
			h.log.WithError(err).WithField("tenant_id", tenantID).Error("query failed")
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "query failed")
		}
		return
	}

	if err := h.usageService.RecordQuery(c.Request.Context(), tenantID); err != nil {
		h.log.WithError(err).WithField("tenant_id", tenantID).Warn("record query usage failed")
	}
	response.OK(c, result)
}
