package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tollgate/internal/core/domain"
	"github.com/arklim/tollgate/internal/infra/security"
	"github.com/arklim/tollgate/internal/usecase"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, code, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		Code:    code,
		TraceID: GetTraceID(c),
	}
}

// RequireAuth validates the bearer token and the session it is bound to. An
// expired session with a refresh credential is renewed transparently; the
// request proceeds on the rotated session. Absent, expired-terminal, and
// failed-refresh sessions all abort with UNAUTHENTICATED.
func RequireAuth(tokens *security.JWTManager, sessions *usecase.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, domain.CodeUnauthenticated, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, domain.CodeUnauthenticated, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, domain.CodeUnauthenticated, "missing access token"))
			return
		}

		claims, err := tokens.Parse(token)
		if err != nil {
			switch {
			case errors.Is(err, security.ErrExpiredAccessToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, domain.CodeUnauthenticated, "access token expired"))
			case errors.Is(err, security.ErrInvalidAccessToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, domain.CodeUnauthenticated, "invalid access token"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, domain.CodeInternal, "authentication failed"))
			}
			return
		}

		result, err := sessions.ValidateAndRefresh(c.Request.Context(), claims.SessionToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, domain.CodeInternal, "session validation failed"))
			return
		}
		if !result.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, domain.CodeUnauthenticated, sessionFailureMessage(result.Reason)))
			return
		}
		if result.Session.IdentityID != claims.IdentityID {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, domain.CodeUnauthenticated, "session does not match token"))
			return
		}

		c.Set(IdentityIDKey, claims.IdentityID)
		c.Set(SessionTokenKey, claims.SessionToken)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.IdentityID = claims.IdentityID
		}

		c.Next()
	}
}

func sessionFailureMessage(reason usecase.ValidateReason) string {
	switch reason {
	case usecase.ReasonExpired:
		return "session expired"
	case usecase.ReasonRefreshFailed:
		return "session refresh failed"
	default:
		return "no active session"
	}
}

// GetAuthenticatedIdentityID retrieves the identity ID from context.
func GetAuthenticatedIdentityID(c *gin.Context) (string, bool) {
	identityID, exists := c.Get(IdentityIDKey)
	if !exists {
		return "", false
	}

	if id, ok := identityID.(string); ok {
		return id, true
	}

	return "", false
}

// GetSessionToken retrieves the validated session token from context.
func GetSessionToken(c *gin.Context) (string, bool) {
	token, exists := c.Get(SessionTokenKey)
	if !exists {
		return "", false
	}

	if t, ok := token.(string); ok {
		return t, true
	}

	return "", false
}
