package api

import (
	"io"
	"net/http"

	"harmonyclass-api/internal/apperror"
	"harmonyclass-api/internal/response"
	"harmonyclass-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody caps the payload read from the processor
const maxWebhookBody = 1 << 20

// WebhookHandler receives payment processor events
// POST /api/webhook
//
// The signature covers the raw bytes, so the body is read as-is and never
// bound. A 500 makes the processor redeliver the event.
func (h *Handlers) WebhookHandler(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		logging.Errorf("Failed to read webhook body: %v", err)
		response.ErrorJSON(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	_, err = h.Reconciler.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if apperror.IsVerification(err) {
			logging.Warnf("Rejected webhook: %v", err)
			response.ErrorJSON(c, http.StatusBadRequest, err.Error())
			return
		}
		logging.Errorf("Webhook processing failed: %v", err)
		response.ErrorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
