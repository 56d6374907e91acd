package services

import (
	"context"
	"errors"
	"time"

	"harmonyclass-api/internal/apperror"
	"harmonyclass-api/pkg/logging"

	"github.com/sony/gobreaker/v2"
)

// ErrMailingListUnavailable is returned while the breaker is open
var ErrMailingListUnavailable = errors.New("mailing list provider unavailable: circuit open")

// BreakerConfig configures the mailing list circuit breaker
type BreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed in half-open state
	MaxRequests uint32
	// Interval is the cyclic period of the closed state
	Interval time.Duration
	// Timeout is the period of the open state
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that trips the breaker
	FailureThreshold uint32
}

// DefaultBreakerConfig returns the breaker settings used in production
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerMailingList stops calling a failing provider for a while so webhook
// deliveries do not each wait out the full timeout. It fails fast with
// ErrMailingListUnavailable while open.
type BreakerMailingList struct {
	next    MailingList
	breaker *gobreaker.CircuitBreaker[*ListResult]
}

// NewBreakerMailingList wraps next with a circuit breaker named after the provider
func NewBreakerMailingList(name string, next MailingList, cfg BreakerConfig) *BreakerMailingList {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger().Warn("mailing list circuit breaker state changed",
				"provider", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Rejections and missing settings say nothing about provider health
		IsSuccessful: func(err error) bool {
			return err == nil || apperror.IsConfiguration(err) || isClientError(err)
		},
	}

	return &BreakerMailingList{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[*ListResult](settings),
	}
}

func (b *BreakerMailingList) execute(fn func() (*ListResult, error)) (*ListResult, error) {
	result, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrMailingListUnavailable
	}
	return result, err
}

func (b *BreakerMailingList) AddSubscriber(ctx context.Context, email string, groupIDs []int64) (*ListResult, error) {
	return b.execute(func() (*ListResult, error) {
		return b.next.AddSubscriber(ctx, email, groupIDs)
	})
}

func (b *BreakerMailingList) RemoveSubscriber(ctx context.Context, email string) (*ListResult, error) {
	return b.execute(func() (*ListResult, error) {
		return b.next.RemoveSubscriber(ctx, email)
	})
}

func (b *BreakerMailingList) AddToGroup(ctx context.Context, groupID int64, emails []string) (*ListResult, error) {
	return b.execute(func() (*ListResult, error) {
		return b.next.AddToGroup(ctx, groupID, emails)
	})
}

func (b *BreakerMailingList) RemoveFromGroup(ctx context.Context, groupID int64, emails []string) (*ListResult, error) {
	return b.execute(func() (*ListResult, error) {
		return b.next.RemoveFromGroup(ctx, groupID, emails)
	})
}

func (b *BreakerMailingList) GetSubscriber(ctx context.Context, email string) (*ListResult, error) {
	return b.execute(func() (*ListResult, error) {
		return b.next.GetSubscriber(ctx, email)
	})
}
