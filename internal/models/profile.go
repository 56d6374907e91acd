package models

import (
	"time"
)

// Subscription status values
const (
	SubscriptionStatusNone      = "none"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
)

// Tier values shared by subscription_tier and newsletter_tier
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// Column names of the profiles table
const (
	ColumnID                    = "id"
	ColumnEmail                 = "email"
	ColumnSubscriptionStatus    = "subscription_status"
	ColumnSubscriptionTier      = "subscription_tier"
	ColumnSubscriptionStartDate = "subscription_start_date"
	ColumnSubscriptionEndDate   = "subscription_end_date"
	ColumnStripeCustomerID      = "stripe_customer_id"
	ColumnStripeSubscriptionID  = "stripe_subscription_id"
	ColumnNewsletterSubscribed  = "newsletter_subscribed"
	ColumnNewsletterTier        = "newsletter_tier"
	ColumnNewsletterSyncedAt    = "newsletter_synced_at"
	ColumnCreatedAt             = "created_at"
	ColumnUpdatedAt             = "updated_at"
)

// Profile is the subscriber profile. One row per auth user. The id is the hosted auth provider's user id.
type Profile struct {
	ID    string `json:"id" gorm:"primaryKey;size:64"`
	Email string `json:"email" gorm:"size:255;index"`

	// Paid subscription state
	SubscriptionStatus    string     `json:"subscription_status" gorm:"size:20;index"` // none, active, cancelled
	SubscriptionTier      string     `json:"subscription_tier" gorm:"size:20"`         // free, premium
	SubscriptionStartDate *time.Time `json:"subscription_start_date"`
	SubscriptionEndDate   *time.Time `json:"subscription_end_date"`

	// Stripe references, used to find the profile on events that carry no user id
	StripeCustomerID     string `json:"stripe_customer_id" gorm:"size:100;index"`
	StripeSubscriptionID string `json:"stripe_subscription_id" gorm:"size:100"`

	// Newsletter sync state
	NewsletterSubscribed bool       `json:"newsletter_subscribed"`
	NewsletterTier       *string    `json:"newsletter_tier" gorm:"size:20"` // free, premium or NULL
	NewsletterSyncedAt   *time.Time `json:"newsletter_synced_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name
func (Profile) TableName() string {
	return "profiles"
}

// Status returns the subscription status, treating an unset column as none
func (p *Profile) Status() string {
	if p.SubscriptionStatus == "" {
		return SubscriptionStatusNone
	}
	return p.SubscriptionStatus
}

// Tier returns the subscription tier, treating an unset column as free
func (p *Profile) Tier() string {
	if p.SubscriptionTier == "" {
		return TierFree
	}
	return p.SubscriptionTier
}

// IsPremium reports whether the profile currently holds an active premium subscription
func (p *Profile) IsPremium(now time.Time) bool {
	if p.Status() != SubscriptionStatusActive || p.Tier() != TierPremium {
		return false
	}
	return p.SubscriptionEndDate == nil || p.SubscriptionEndDate.After(now)
}
