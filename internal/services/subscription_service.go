package services

import (
	"context"
	"errors"
	"time"

	"harmonyclass-api/internal/database"
	"harmonyclass-api/internal/models"
)

// SubscriptionStatus is the subscription view of a profile
type SubscriptionStatus struct {
	UserID               string  `json:"user_id"`
	IsActive             bool    `json:"is_active"`
	Status               string  `json:"status"`
	Tier                 string  `json:"tier"`
	StartsAt             string  `json:"starts_at,omitempty"`
	ExpiresAt            string  `json:"expires_at,omitempty"`
	NewsletterSubscribed bool    `json:"newsletter_subscribed"`
	NewsletterTier       *string `json:"newsletter_tier"`
}

// SubscriptionService answers subscription status lookups
type SubscriptionService struct {
	store ProfileRepository
	now   func() time.Time
}

// NewSubscriptionService creates a subscription service
func NewSubscriptionService(store ProfileRepository) *SubscriptionService {
	return &SubscriptionService{store: store, now: time.Now}
}

// Status returns the subscription state of userID. A user without a profile
// has never subscribed.
func (s *SubscriptionService) Status(ctx context.Context, userID string) (*SubscriptionStatus, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, database.ErrProfileNotFound) {
		return &SubscriptionStatus{UserID: userID, Status: models.SubscriptionStatusNone, Tier: models.TierFree}, nil
	}
	if err != nil {
		return nil, err
	}

	status := &SubscriptionStatus{
		UserID:               profile.ID,
		IsActive:             profile.IsPremium(s.now()),
		Status:               profile.Status(),
		Tier:                 profile.Tier(),
		NewsletterSubscribed: profile.NewsletterSubscribed,
		NewsletterTier:       profile.NewsletterTier,
	}
	if profile.SubscriptionStartDate != nil {
		status.StartsAt = profile.SubscriptionStartDate.Format(time.RFC3339)
	}
	if profile.SubscriptionEndDate != nil {
		status.ExpiresAt = profile.SubscriptionEndDate.Format(time.RFC3339)
	}
	return status, nil
}
