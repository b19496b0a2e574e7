package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tollgate/internal/core/domain"
	"github.com/arklim/tollgate/internal/transport/http/middleware"
	"github.com/arklim/tollgate/internal/usecase"
)

// AuthHandler exposes identity registration and session lifecycle endpoints.
type AuthHandler struct {
	identities *usecase.IdentityService
	sessions   *usecase.SessionService
}

// NewAuthHandler builds the auth handler.
func NewAuthHandler(identities *usecase.IdentityService, sessions *usecase.SessionService) *AuthHandler {
	return &AuthHandler{identities: identities, sessions: sessions}
}

// Register creates an identity with an initial balance.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "", "invalid request payload: "+err.Error()))
		return
	}

	identity, err := h.identities.Register(c.Request.Context(), req.Label, req.Secret, req.InitialBalance)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, domain.CodeInternal, "registration failed"))
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{
		Identity: newIdentitySummary(*identity),
		Balance:  req.InitialBalance,
	})
}

// Login verifies the API secret and opens a session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "", "invalid request payload: "+err.Error()))
		return
	}

	result, err := h.identities.Login(c.Request.Context(), req.IdentityID, req.Secret, req.RefreshCredential)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Code: domain.CodeUnauthenticated, Message: "invalid credentials"},
			{Err: usecase.ErrIdentityDeactivated, Status: http.StatusForbidden, Code: domain.CodeIdentityDeactivated, Message: "identity deactivated"},
		}, http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		Identity:    newIdentitySummary(*result.Identity),
		Session:     newSessionSummary(*result.Session),
	})
}

// Refresh exchanges an explicitly presented refresh credential. The credential
// is single-use; a reused or unknown credential is rejected.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "", "invalid request payload: "+err.Error()))
		return
	}

	result, err := h.sessions.RefreshByCredential(c.Request.Context(), req.RefreshCredential)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, domain.CodeInternal, "refresh failed"))
		return
	}
	if !result.Valid {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, domain.CodeUnauthenticated, "refresh credential rejected"))
		return
	}

	c.JSON(http.StatusOK, RefreshResponse{Session: newSessionSummary(*result.Session)})
}

// Logout deletes the authenticated session.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, ok := middleware.GetSessionToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, domain.CodeUnauthenticated, "authentication required"))
		return
	}

	if err := h.sessions.Logout(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, domain.CodeInternal, "logout failed"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}
