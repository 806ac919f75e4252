package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"docuquery/internal/app"
	"docuquery/internal/transport/http/middleware"
	"docuquery/internal/transport/http/response"
)

type UsageHandler struct {
	usageService *app.UsageService
	log          logrus.FieldLogger
}

func NewUsageHandler(usageService *app.UsageService, log logrus.FieldLogger) *UsageHandler {
	return &UsageHandler{usageService: usageService, log: log}
}

func (h *UsageHandler) Get(c *gin.Context) {
	tenantID, ok := middleware.OrganizationID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	usage, err := h.usageService.Get(c.Request.Context(), tenantID)
	if err != nil {
		h.log.WithError(err).WithField("tenant_id", tenantID).Error("get usage failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get usage failed")
		return
	}
	response.OK(c, usage)
}
