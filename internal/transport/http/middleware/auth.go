package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"docuquery/internal/app"
	"docuquery/internal/transport/http/response"
)

const (
	ContextUserIDKey         = "user_id"
	ContextOrganizationIDKey = "organization_id"

	APIKeyHeader = "X-API-Key"
)

const authRequiredMessage = "Authentication required. Provide either X-API-Key header or Authorization: Bearer <token>"

// Authenticate accepts an X-API-Key first and falls back to a bearer JWT.
// The caller's organization id becomes the tenant for every downstream
// handler.
func Authenticate(auth *app.AuthService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var (
			principal *app.Principal
			err       error
		)
		if key := strings.TrimSpace(c.GetHeader(APIKeyHeader)); key != "" {
			principal, err = auth.AuthenticateAPIKey(ctx, key)
		} else if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			principal, err = auth.AuthenticateToken(ctx, token)
		} else {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, authRequiredMessage)
			return
		}

		if err != nil {
			if errors.Is(err, app.ErrUnauthenticated) {
				response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "Invalid credentials")
				return
			}
			log.WithError(err).Error("authenticate request failed")
			response.Abort(c, http.StatusInternalServerError, response.CodeInternalServer, "authentication failed")
			return
		}

		c.Set(ContextOrganizationIDKey, principal.OrganizationID)
		if principal.UserID != "" {
			c.Set(ContextUserIDKey, principal.UserID)
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// OrganizationID returns the authenticated tenant id.
func OrganizationID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextOrganizationIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func UserID(c *gin.Context) string {
	return c.GetString(ContextUserIDKey)
}
