package services

import (
	"context"
	"errors"
	"net/http"

	"harmonyclass-api/internal/apperror"
	"harmonyclass-api/internal/config"
)

// MailingList is a newsletter provider holding one list of subscribers
// split into groups. Each method is a single remote call and does not retry.
type MailingList interface {
	// AddSubscriber adds email to the list, or updates it when already
	// present, and assigns it to groupIDs
	AddSubscriber(ctx context.Context, email string, groupIDs []int64) (*ListResult, error)
	RemoveSubscriber(ctx context.Context, email string) (*ListResult, error)
	AddToGroup(ctx context.Context, groupID int64, emails []string) (*ListResult, error)
	RemoveFromGroup(ctx context.Context, groupID int64, emails []string) (*ListResult, error)
	GetSubscriber(ctx context.Context, email string) (*ListResult, error)
}

// ListResult is a provider response passed back to API clients as is
type ListResult struct {
	Provider string      `json:"provider"`
	Value    interface{} `json:"value,omitempty"`
}

// NewsletterGroups are the two group ids the service moves subscribers between
type NewsletterGroups struct {
	Free    int64
	Premium int64
}

// isClientError reports whether err is a provider rejection that retrying
// would not fix. That includes a 2xx answer whose body refused the request.
func isClientError(err error) bool {
	var providerErr *apperror.ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Status >= http.StatusOK && providerErr.Status < http.StatusInternalServerError
	}
	return false
}

// NewMailingList builds the configured provider behind a circuit breaker
func NewMailingList(cfg *config.Config) (MailingList, NewsletterGroups) {
	free, premium := cfg.NewsletterGroups()
	groups := NewsletterGroups{Free: free, Premium: premium}

	var provider MailingList
	switch cfg.MailingProvider {
	case config.MailingProviderBrevo:
		provider = NewBrevoService(cfg)
	default:
		provider = NewStibeeService(cfg)
	}
	return NewBreakerMailingList(cfg.MailingProvider, provider, DefaultBreakerConfig()), groups
}
