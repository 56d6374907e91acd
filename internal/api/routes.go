package api

import (
	"net/http"

	"harmonyclass-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up all routes. auth guards the routes that act for a
// user; pass nil to leave them open.
func SetupRoutes(r *gin.Engine, h *Handlers, auth gin.HandlerFunc) {
	if err := RegisterValidators(); err != nil {
		logging.Errorf("Failed to register request validators: %v", err)
	}
	if auth == nil {
		auth = func(c *gin.Context) { c.Next() }
	}

	api := r.Group("/api")
	{
		// Stripe calls this one, it authenticates by signature
		api.POST("/webhook", h.WebhookHandler)

		// Public news feed
		api.GET("/news", h.GetNews)

		user := api.Group("")
		user.Use(auth)
		{
			user.POST("/create-checkout-session", h.CreateCheckoutSession)
			user.POST("/newsletter/subscribe", h.NewsletterSubscribe)
			user.GET("/newsletter/subscribe", h.NewsletterStatus)
			user.GET("/subscription/status", h.GetSubscriptionStatus)
		}
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "harmonyclass-api",
		})
	})
}
