package api

import (
	"net/http"
	"strings"

	"harmonyclass-api/internal/middleware"
	"harmonyclass-api/internal/response"
	"harmonyclass-api/internal/services"

	"github.com/gin-gonic/gin"
)

// GetSubscriptionStatusResponse represents subscription status response
type GetSubscriptionStatusResponse struct {
	Success bool `json:"success"`
	*services.SubscriptionStatus
}

// GetSubscriptionStatus gets subscription status
// GET /api/subscription/status?user_id=xxx
func (h *Handlers) GetSubscriptionStatus(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "user_id is required")
		return
	}

	if !middleware.AuthorizedFor(c, userID) {
		response.ErrorJSON(c, http.StatusForbidden, "user_id does not match the signed-in user")
		return
	}

	status, err := h.Subscription.Status(c.Request.Context(), userID)
	if err != nil {
		response.ErrorFromErr(c, err)
		return
	}

	c.JSON(http.StatusOK, GetSubscriptionStatusResponse{
		Success:            true,
		SubscriptionStatus: status,
	})
}
