package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tollgate/internal/core/domain"
	"github.com/arklim/tollgate/internal/transport/http/middleware"
	"github.com/arklim/tollgate/internal/usecase"
)

// InvokeHandler exposes the metered operation endpoint.
type InvokeHandler struct {
	dispatcher *usecase.Dispatcher
}

// NewInvokeHandler builds the invocation handler.
func NewInvokeHandler(dispatcher *usecase.Dispatcher) *InvokeHandler {
	return &InvokeHandler{dispatcher: dispatcher}
}

// Invoke runs one metered operation for the authenticated identity. Retries of
// the same logical request must carry the same action_id; they return the
// recorded outcome without a second charge.
func (h *InvokeHandler) Invoke(c *gin.Context) {
	identityID, ok := middleware.GetAuthenticatedIdentityID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, domain.CodeUnauthenticated, "authentication required"))
		return
	}

	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "", "invalid request payload: "+err.Error()))
		return
	}

	result, err := h.dispatcher.Dispatch(c.Request.Context(), domain.InvocationRequest{
		Operation:  req.Operation,
		IdentityID: identityID,
		ActionID:   req.ActionID,
		Input:      req.Input,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, domain.CodeInternal, "invocation failed"))
		return
	}

	c.JSON(invocationStatus(result), InvokeResponse{
		ActionID:       result.ActionID,
		Success:        result.Success,
		Output:         result.Output,
		ErrorCode:      result.ErrorCode,
		TokensConsumed: result.TokensConsumed,
		BalanceAfter:   result.BalanceAfter,
		Replayed:       result.Replayed,
	})
}

// Operations lists the registered operations and their token costs.
func (h *InvokeHandler) Operations(c *gin.Context) {
	ops := h.dispatcher.Operations()

	summaries := make([]OperationSummary, 0, len(ops))
	for _, op := range ops {
		summaries = append(summaries, OperationSummary{Name: op.Name, Cost: op.Cost})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })

	c.JSON(http.StatusOK, OperationListResponse{Operations: summaries})
}

func invocationStatus(result domain.InvocationResult) int {
	if result.Success {
		return http.StatusOK
	}

	switch result.ErrorCode {
	case domain.CodeInsufficientBalance:
		return http.StatusPaymentRequired
	case domain.CodeIdentityDeactivated:
		return http.StatusForbidden
	case domain.CodeUnknownOperation:
		return http.StatusNotFound
	case domain.CodePersistenceFailed:
		return http.StatusServiceUnavailable
	case domain.CodeOperationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
