package api

import (
	"harmonyclass-api/internal/services"
)

// Handlers holds the services behind the HTTP routes
type Handlers struct {
	Checkout     *services.CheckoutService
	Reconciler   *services.Reconciler
	Newsletter   *services.NewsletterService
	News         *services.NewsService
	Subscription *services.SubscriptionService
}
