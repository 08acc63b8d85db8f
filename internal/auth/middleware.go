package auth

import (
	"net/http"
	"strings"

	"consultgo/backend/internal/apperrors"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// BearerCredential extracts the credential from the Authorization header,
// falling back to the token query parameter. Browser websocket clients
// cannot set headers, so the query form has to stay supported.
func BearerCredential(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Middleware authenticates REST requests and stores the Principal in the
// gin context.
func (i *Identity) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := i.Verify(c.Request.Context(), BearerCredential(c.Request))
		if err != nil {
			c.AbortWithStatusJSON(apperrors.HTTPStatus(err), gin.H{
				"success": false,
				"error":   gin.H{"code": apperrors.Code(err), "message": err.Error()},
			})
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

// PrincipalFrom returns the authenticated principal of a request.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
