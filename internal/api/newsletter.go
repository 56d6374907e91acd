package api

import (
	"errors"
	"net/http"
	"strings"

	"harmonyclass-api/internal/middleware"
	"harmonyclass-api/internal/response"
	"harmonyclass-api/internal/services"

	"github.com/gin-gonic/gin"
)

// NewsletterRequest represents a self-service newsletter action
type NewsletterRequest struct {
	Email  string `json:"email" binding:"required,email"`
	UserID string `json:"userId" binding:"omitempty,max=64"`
	Action string `json:"action" binding:"required,newsletter_action"`
	Tier   string `json:"tier" binding:"omitempty,tier"`
}

var newsletterFieldErrors = map[string]error{
	"Email":  services.ErrEmailRequired,
	"Action": services.ErrUnknownAction,
}

// NewsletterSubscribe runs a newsletter action
// POST /api/newsletter/subscribe
func (h *Handlers) NewsletterSubscribe(c *gin.Context) {
	var req NewsletterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, bindingMessage(err, newsletterFieldErrors))
		return
	}

	// signed-in callers may only change their own subscription
	if _, ok := middleware.AuthenticatedUser(c); ok && req.UserID == "" && req.Action != services.ActionStatus {
		response.ErrorJSON(c, http.StatusForbidden, "userId is required when signed in")
		return
	}
	if req.UserID != "" && !middleware.AuthorizedFor(c, req.UserID) {
		response.ErrorJSON(c, http.StatusForbidden, "userId does not match the signed-in user")
		return
	}

	result, err := h.Newsletter.Handle(c.Request.Context(), services.NewsletterRequest{
		Email:  req.Email,
		UserID: req.UserID,
		Action: req.Action,
		Tier:   req.Tier,
	})
	if err != nil {
		newsletterError(c, err)
		return
	}

	response.SuccessJSON(c, result)
}

// NewsletterStatus looks a subscriber up at the mailing list provider
// GET /api/newsletter/subscribe?email=xxx
func (h *Handlers) NewsletterStatus(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		response.ErrorJSON(c, http.StatusBadRequest, services.ErrEmailRequired.Error())
		return
	}

	result, err := h.Newsletter.Status(c.Request.Context(), email)
	if err != nil {
		newsletterError(c, err)
		return
	}

	response.SuccessJSON(c, result)
}

func newsletterError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmailRequired), errors.Is(err, services.ErrUnknownAction):
		response.ErrorJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotPremium), errors.Is(err, services.ErrEmailMismatch):
		response.ErrorJSON(c, http.StatusForbidden, err.Error())
	default:
		response.ErrorFromErr(c, err)
	}
}
