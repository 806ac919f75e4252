package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"docuquery/internal/ratelimit"
	"docuquery/internal/transport/http/response"
)

type Limiter interface {
	Allow(ctx context.Context, tenantID string) (ratelimit.Result, error)
}

// RateLimit counts one request against the tenant's hourly quota. A Redis
// outage lets the request through.
func RateLimit(limiter Limiter, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := OrganizationID(c)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, authRequiredMessage)
			return
		}

		res, err := limiter.Allow(c.Request.Context(), tenantID)
		if err != nil {
			log.WithError(err).WithField("tenant_id", tenantID).Warn("rate limit check failed, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			response.Abort(c, http.StatusTooManyRequests, response.CodeRateLimited,
				fmt.Sprintf("Rate limit exceeded. %d requests remaining. Limit: %d/hour", res.Remaining, res.Limit))
			return
		}
		c.Next()
	}
}
