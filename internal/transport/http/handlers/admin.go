package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tollgate/internal/core/domain"
	"github.com/arklim/tollgate/internal/usecase"
)

// AdminHandler exposes administrative identity and balance operations.
// Compensation for failed post-debit operations happens here, by an operator
// decision, never automatically.
type AdminHandler struct {
	identities *usecase.IdentityService
}

// NewAdminHandler builds the admin handler.
func NewAdminHandler(identities *usecase.IdentityService) *AdminHandler {
	return &AdminHandler{identities: identities}
}

// Credit tops up the identity's balance.
func (h *AdminHandler) Credit(c *gin.Context) {
	identityID := c.Param("id")

	var req CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "", "invalid request payload: "+err.Error()))
		return
	}

	after, err := h.identities.Credit(c.Request.Context(), identityID, req.Amount)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Code: domain.CodeIdentityDeactivated, Message: "identity not found"},
		}, http.StatusInternalServerError, "credit failed")
		return
	}

	c.JSON(http.StatusOK, CreditResponse{IdentityID: identityID, BalanceAfter: after})
}

// Deactivate soft-deletes the identity, blocking all further execution.
func (h *AdminHandler) Deactivate(c *gin.Context) {
	identityID := c.Param("id")

	if err := h.identities.Deactivate(c.Request.Context(), identityID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Code: domain.CodeIdentityDeactivated, Message: "identity not found"},
		}, http.StatusInternalServerError, "deactivation failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "identity deactivated"})
}

// Balance reports the identity's advisory balance.
func (h *AdminHandler) Balance(c *gin.Context) {
	identityID := c.Param("id")

	status, err := h.identities.Balance(c.Request.Context(), identityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, domain.CodeInternal, "balance lookup failed"))
		return
	}

	c.JSON(http.StatusOK, BalanceResponse{
		IdentityID:  identityID,
		Balance:     status.Current,
		Deactivated: status.Deactivated,
	})
}
