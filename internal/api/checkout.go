package api

import (
	"errors"
	"net/http"

	"harmonyclass-api/internal/middleware"
	"harmonyclass-api/internal/response"
	"harmonyclass-api/internal/services"

	"github.com/gin-gonic/gin"
)

// CreateCheckoutSessionRequest represents the plan selection posted by the pricing page
type CreateCheckoutSessionRequest struct {
	Email       string `json:"email" binding:"required,email"`
	UserID      string `json:"userId" binding:"required,max=64"`
	SchoolLevel string `json:"schoolLevel" binding:"omitempty,max=32"`
	Region      string `json:"region" binding:"omitempty,max=32"`
}

// CreateCheckoutSession opens a payment processor checkout session
// POST /api/create-checkout-session
func (h *Handlers) CreateCheckoutSession(c *gin.Context) {
	var req CreateCheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, bindingMessage(err, map[string]error{
			"Email":  services.ErrInvalidCheckoutInput,
			"UserID": services.ErrInvalidCheckoutInput,
		}))
		return
	}

	if !middleware.AuthorizedFor(c, req.UserID) {
		response.ErrorJSON(c, http.StatusForbidden, "userId does not match the signed-in user")
		return
	}

	session, err := h.Checkout.CreateSession(c.Request.Context(), services.CheckoutInput{
		Email:       req.Email,
		UserID:      req.UserID,
		SchoolLevel: req.SchoolLevel,
		Region:      req.Region,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, session)
	case errors.Is(err, services.ErrInvalidCheckoutInput):
		response.ErrorJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrCheckoutRateLimited):
		response.ErrorJSON(c, http.StatusTooManyRequests, err.Error())
	default:
		response.ErrorFromErr(c, err)
	}
}
