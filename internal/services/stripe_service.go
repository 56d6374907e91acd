package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"harmonyclass-api/internal/apperror"
	"harmonyclass-api/internal/config"
	"harmonyclass-api/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeService is the payment processor adapter. The API client is built
// on first use so a missing key fails the call that needs it, not startup.
type StripeService struct {
	SecretKey     string
	WebhookSecret string

	httpClient *http.Client
	mu         sync.Mutex
	api        *client.API
}

// NewStripeService creates a new Stripe service instance
func NewStripeService(cfg *config.Config) *StripeService {
	return &StripeService{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		httpClient:    &http.Client{Timeout: cfg.ExternalCallTimeout},
	}
}

func (s *StripeService) client() (*client.API, error) {
	key, err := config.Require("STRIPE_SECRET_KEY", s.SecretKey)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.api == nil {
		s.api = client.New(key, stripe.NewBackends(s.httpClient))
	}
	return s.api, nil
}

// CreateCheckoutSession opens a hosted subscription checkout
func (s *StripeService) CreateCheckoutSession(ctx context.Context, req *models.CheckoutSessionRequest) (*models.CheckoutSession, error) {
	sc, err := s.client()
	if err != nil {
		return nil, err
	}

	params := buildCheckoutParams(req)
	params.Context = ctx

	session, err := sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, processorError(err)
	}
	return &models.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// buildCheckoutParams maps a checkout request onto Stripe's session parameters
func buildCheckoutParams(req *models.CheckoutSessionRequest) *stripe.CheckoutSessionParams {
	lineItem := &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(1),
	}
	if req.PriceID != "" {
		lineItem.Price = stripe.String(req.PriceID)
	} else {
		lineItem.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency: stripe.String(req.Currency),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(req.ProductName),
			},
			UnitAmount: stripe.Int64(req.UnitAmount),
			Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval: stripe.String(req.Interval),
			},
		}
		if req.ProductDescription != "" {
			lineItem.PriceData.ProductData.Description = stripe.String(req.ProductDescription)
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CustomerEmail:      stripe.String(req.CustomerEmail),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{lineItem},
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		// The subscription carries the same metadata so later subscription
		// events can be traced back to the user
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: req.Metadata,
		},
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}
	return params
}

// SubscriptionPeriodEnd returns the latest current period end across the
// subscription's items
func (s *StripeService) SubscriptionPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	sc, err := s.client()
	if err != nil {
		return time.Time{}, err
	}

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := sc.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return time.Time{}, processorError(err)
	}

	var end int64
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.CurrentPeriodEnd > end {
				end = item.CurrentPeriodEnd
			}
		}
	}
	if end == 0 {
		return time.Time{}, fmt.Errorf("subscription %s has no current period", subscriptionID)
	}
	return time.Unix(end, 0).UTC(), nil
}

// stripeCheckoutSession holds the checkout.session fields the service reads
type stripeCheckoutSession struct {
	ID              string            `json:"id"`
	Customer        string            `json:"customer"`
	Subscription    string            `json:"subscription"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

// stripeSubscription holds the subscription fields the service reads
type stripeSubscription struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

// VerifyEvent checks the Stripe-Signature header against the raw payload and
// decodes the event. Nothing in the payload is trusted before this succeeds.
func (s *StripeService) VerifyEvent(payload []byte, signature string) (models.PaymentEvent, error) {
	secret, err := config.Require("STRIPE_WEBHOOK_SECRET", s.WebhookSecret)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(signature) == "" {
		return nil, &apperror.VerificationError{Reason: "missing Stripe-Signature header"}
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, &apperror.VerificationError{Reason: err.Error()}
	}

	return decodeEvent(event)
}

// decodeEvent turns a verified Stripe event into one of the domain event kinds.
// A signed event that fails to decode is a server-side problem, not a bad
// delivery, so those errors stay plain and Stripe retries.
func decodeEvent(event stripe.Event) (models.PaymentEvent, error) {
	meta := models.EventMeta{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return nil, fmt.Errorf("event %s has no data object", event.ID)
	}

	switch meta.Type {
	case models.EventTypeSessionCompleted:
		var session stripeCheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("decode checkout.session for event %s: %w", event.ID, err)
		}
		email := strings.TrimSpace(session.Metadata[models.MetadataEmail])
		if email == "" {
			email = strings.TrimSpace(session.CustomerEmail)
		}
		if email == "" {
			email = strings.TrimSpace(session.CustomerDetails.Email)
		}
		return &models.SessionCompletedEvent{
			EventMeta:       meta,
			SessionID:       session.ID,
			UserID:          strings.TrimSpace(session.Metadata[models.MetadataUserID]),
			Email:           email,
			CustomerRef:     session.Customer,
			SubscriptionRef: session.Subscription,
			Metadata:        session.Metadata,
		}, nil

	case models.EventTypeSubscriptionCancelled:
		var sub stripeSubscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription for event %s: %w", event.ID, err)
		}
		return &models.SubscriptionCancelledEvent{
			EventMeta:       meta,
			SubscriptionRef: sub.ID,
			CustomerRef:     sub.Customer,
		}, nil

	default:
		return &models.IgnoredEvent{EventMeta: meta}, nil
	}
}

// processorError keeps Stripe's own message so callers can show it
func processorError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &apperror.ProcessorError{
			Status:  stripeErr.HTTPStatusCode,
			Code:    string(stripeErr.Code),
			Message: stripeErr.Msg,
		}
	}
	return &apperror.ProcessorError{Status: http.StatusBadGateway, Message: err.Error()}
}
