package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"harmonyclass-api/internal/config"
	"harmonyclass-api/internal/models"
	"harmonyclass-api/pkg/logging"
)

// ErrCheckoutRateLimited is returned when a user asks for sessions too quickly
var ErrCheckoutRateLimited = errors.New("too many checkout requests, please try again shortly")

// ErrInvalidCheckoutInput is returned when email or user id is missing
var ErrInvalidCheckoutInput = errors.New("email and userId are required")

// PaymentProcessor opens checkout sessions
type PaymentProcessor interface {
	CreateCheckoutSession(ctx context.Context, req *models.CheckoutSessionRequest) (*models.CheckoutSession, error)
}

// PlanConfig describes the premium plan sold at checkout
type PlanConfig struct {
	PriceID     string
	Name        string
	Description string
	Currency    string
	UnitAmount  int64
	Interval    string
}

// PlanFromConfig reads the plan settings
func PlanFromConfig(cfg *config.Config) PlanConfig {
	return PlanConfig{
		PriceID:     cfg.StripePriceID,
		Name:        cfg.PlanName,
		Description: cfg.PlanDescription,
		Currency:    cfg.PlanCurrency,
		UnitAmount:  cfg.PlanUnitAmount,
		Interval:    cfg.PlanInterval,
	}
}

// CheckoutInput is a visitor's plan selection
type CheckoutInput struct {
	Email       string
	UserID      string
	SchoolLevel string
	Region      string
}

// CheckoutService turns a plan selection into a payment processor session.
// It writes no local state: the profile only changes once the processor
// reports the payment.
type CheckoutService struct {
	processor PaymentProcessor
	plan      PlanConfig
	siteURL   string
	limiter   RateLimiter
	timeout   time.Duration
}

// NewCheckoutService creates a checkout service. limiter may be nil.
func NewCheckoutService(processor PaymentProcessor, plan PlanConfig, siteURL string, limiter RateLimiter, timeout time.Duration) *CheckoutService {
	return &CheckoutService{
		processor: processor,
		plan:      plan,
		siteURL:   strings.TrimRight(siteURL, "/"),
		limiter:   limiter,
		timeout:   timeout,
	}
}

// CreateSession opens a checkout session for input
func (s *CheckoutService) CreateSession(ctx context.Context, input CheckoutInput) (*models.CheckoutSession, error) {
	email := strings.TrimSpace(input.Email)
	userID := strings.TrimSpace(input.UserID)
	if email == "" || userID == "" {
		return nil, ErrInvalidCheckoutInput
	}

	req, err := s.buildRequest(email, userID, input)
	if err != nil {
		return nil, err
	}

	claimed := false
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, userID)
		if err != nil {
			// A broken limiter must not block payments
			logging.Warnf("Checkout rate limit check failed for user %s: %v", userID, err)
		} else if !allowed {
			return nil, ErrCheckoutRateLimited
		}
		claimed = err == nil
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	session, err := s.processor.CreateCheckoutSession(callCtx, req)
	if err != nil {
		logging.Errorf("Failed to create checkout session for user %s: %v", userID, err)
		if claimed {
			s.release(ctx, userID)
		}
		return nil, err
	}

	logging.Infof("Checkout session created - session_id: %s, user_id: %s", session.ID, userID)
	return session, nil
}

// release lets a user whose checkout failed retry without waiting out the window
func (s *CheckoutService) release(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.limiter.Release(ctx, userID); err != nil {
		logging.Warnf("Failed to release checkout rate limit for user %s: %v", userID, err)
	}
}

// buildRequest fills the session request from the plan and site settings
func (s *CheckoutService) buildRequest(email, userID string, input CheckoutInput) (*models.CheckoutSessionRequest, error) {
	siteURL, err := config.Require("SITE_URL", s.siteURL)
	if err != nil {
		return nil, err
	}

	req := &models.CheckoutSessionRequest{
		CustomerEmail: email,
		Metadata: map[string]string{
			models.MetadataUserID: userID,
			models.MetadataEmail:  email,
		},
		SuccessURL: siteURL + "/profile?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  siteURL + "/pricing",
	}
	if v := strings.TrimSpace(input.SchoolLevel); v != "" {
		req.Metadata[models.MetadataSchoolLevel] = v
	}
	if v := strings.TrimSpace(input.Region); v != "" {
		req.Metadata[models.MetadataRegion] = v
	}

	if s.plan.PriceID != "" {
		req.PriceID = s.plan.PriceID
		return req, nil
	}

	// Inline pricing needs every plan field
	if req.ProductName, err = config.Require("PLAN_NAME", s.plan.Name); err != nil {
		return nil, err
	}
	if req.Currency, err = config.Require("PLAN_CURRENCY", s.plan.Currency); err != nil {
		return nil, err
	}
	if req.Interval, err = config.Require("PLAN_INTERVAL", s.plan.Interval); err != nil {
		return nil, err
	}
	if req.UnitAmount, err = config.RequireID("PLAN_UNIT_AMOUNT", s.plan.UnitAmount); err != nil {
		return nil, err
	}
	req.ProductDescription = s.plan.Description
	return req, nil
}
