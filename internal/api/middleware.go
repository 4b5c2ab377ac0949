package api

import (
	"strconv"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/gin-gonic/gin"
)

// Headers set by the upstream auth gateway
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

const principalKey = "principal"

// authenticate resolves the caller from the gateway headers. A missing role
// means CUSTOMER.
func authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader(HeaderUserID), 10, 64)
		if err != nil || userID <= 0 {
			abortWithError(c, apperr.New(apperr.KindUnauthenticated, "missing or invalid %s", HeaderUserID))
			return
		}

		role := strings.ToUpper(strings.TrimSpace(c.GetHeader(HeaderUserRole)))
		switch role {
		case "":
			role = models.RoleCustomer
		case models.RoleCustomer, models.RoleAdmin:
		default:
			abortWithError(c, apperr.New(apperr.KindUnauthenticated, "unknown role %q", role))
			return
		}

		c.Set(principalKey, models.Principal{UserID: userID, Role: role})
		c.Next()
	}
}

// requireRole rejects callers without the given role
func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p := principal(c); p.Role != role {
			abortWithError(c, apperr.New(apperr.KindForbidden, "user %d lacks role %s", p.UserID, role))
			return
		}
		c.Next()
	}
}

func principal(c *gin.Context) models.Principal {
	p, _ := c.MustGet(principalKey).(models.Principal)
	return p
}
