package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"harmonyclass-api/internal/apperror"
	"harmonyclass-api/internal/models"
	"harmonyclass-api/pkg/logging"
)

// Newsletter actions
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionUpgrade     = "upgrade"
	ActionDowngrade   = "downgrade"
	ActionStatus      = "status"
)

var (
	// ErrEmailRequired is returned when a request carries no email
	ErrEmailRequired = errors.New("이메일이 필요합니다.")
	// ErrUnknownAction is returned for an action outside the supported set
	ErrUnknownAction = errors.New("유효하지 않은 action입니다.")
	// ErrNotPremium is returned when upgrading a user without an active premium subscription
	ErrNotPremium = errors.New("premium newsletter requires an active premium subscription")
	// ErrEmailMismatch is returned when a user acts on an email other than the one on their profile
	ErrEmailMismatch = errors.New("email does not match the user's profile")
)

// NewsletterRequest is one self-service newsletter action. Tier picks the
// group for subscribe; premium goes through the same checks as upgrade.
type NewsletterRequest struct {
	Email  string
	UserID string
	Action string
	Tier   string
}

// NewsletterService runs newsletter actions requested by subscribers. Each
// action is one mailing list call plus, for signed-in users, a profile update.
type NewsletterService struct {
	mailing MailingList
	store   ProfileRepository
	groups  NewsletterGroups
	timeout time.Duration
	now     func() time.Time
}

// NewNewsletterService creates a newsletter service
func NewNewsletterService(mailing MailingList, store ProfileRepository, groups NewsletterGroups, timeout time.Duration) *NewsletterService {
	return &NewsletterService{
		mailing: mailing,
		store:   store,
		groups:  groups,
		timeout: timeout,
		now:     time.Now,
	}
}

// Handle runs req.Action
func (s *NewsletterService) Handle(ctx context.Context, req NewsletterRequest) (*ListResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.Email == "" {
		return nil, ErrEmailRequired
	}

	if req.Action == ActionSubscribe && req.Tier == models.TierPremium {
		req.Action = ActionUpgrade
	}

	switch req.Action {
	case ActionUnsubscribe, ActionUpgrade, ActionDowngrade:
		if err := s.checkOwner(ctx, req); err != nil {
			return nil, err
		}
	}

	switch req.Action {
	case ActionSubscribe:
		return s.subscribe(ctx, req)
	case ActionUnsubscribe:
		return s.unsubscribe(ctx, req)
	case ActionUpgrade:
		return s.upgrade(ctx, req)
	case ActionDowngrade:
		return s.downgrade(ctx, req)
	case ActionStatus:
		return s.Status(ctx, req.Email)
	default:
		return nil, ErrUnknownAction
	}
}

// Status looks the subscriber up at the provider
func (s *NewsletterService) Status(ctx context.Context, email string) (*ListResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()
	return s.mailing.GetSubscriber(ctx, email)
}

func (s *NewsletterService) subscribe(ctx context.Context, req NewsletterRequest) (*ListResult, error) {
	result, err := s.addWithGroup(ctx, req.Email, s.groups.Free)
	if err != nil {
		return nil, err
	}

	if req.UserID != "" {
		s.saveProfile(ctx, req.UserID, true, map[string]interface{}{
			models.ColumnEmail:                req.Email,
			models.ColumnNewsletterSubscribed: true,
			models.ColumnNewsletterTier:       models.TierFree,
			models.ColumnNewsletterSyncedAt:   s.now().UTC(),
		})
	}
	return result, nil
}

func (s *NewsletterService) unsubscribe(ctx context.Context, req NewsletterRequest) (*ListResult, error) {
	callCtx, cancel := s.callContext(ctx)
	result, err := s.mailing.RemoveSubscriber(callCtx, req.Email)
	cancel()
	if err != nil {
		return nil, err
	}

	if req.UserID != "" {
		s.saveProfile(ctx, req.UserID, false, map[string]interface{}{
			models.ColumnNewsletterSubscribed: false,
			models.ColumnNewsletterTier:       nil,
			models.ColumnNewsletterSyncedAt:   s.now().UTC(),
		})
	}
	return result, nil
}

// upgrade moves a paying subscriber into the premium group. Payment is the
// only way to premium, so the profile must already hold an active subscription.
func (s *NewsletterService) upgrade(ctx context.Context, req NewsletterRequest) (*ListResult, error) {
	if req.UserID == "" {
		return nil, ErrNotPremium
	}

	callCtx, cancel := s.callContext(ctx)
	profile, err := s.store.GetProfile(callCtx, req.UserID)
	cancel()
	if err != nil {
		var storeErr *apperror.StoreError
		if errors.As(err, &storeErr) {
			return nil, err
		}
		return nil, ErrNotPremium
	}
	if !profile.IsPremium(s.now()) {
		return nil, ErrNotPremium
	}

	result, err := s.addWithGroup(ctx, req.Email, s.groups.Premium)
	if err != nil {
		return nil, err
	}

	s.saveProfile(ctx, req.UserID, false, map[string]interface{}{
		models.ColumnNewsletterSubscribed: true,
		models.ColumnNewsletterTier:       models.TierPremium,
		models.ColumnNewsletterSyncedAt:   s.now().UTC(),
	})
	return result, nil
}

func (s *NewsletterService) downgrade(ctx context.Context, req NewsletterRequest) (*ListResult, error) {
	result, err := s.addWithGroup(ctx, req.Email, s.groups.Free)
	if err != nil {
		return nil, err
	}

	if s.groups.Premium != 0 {
		callCtx, cancel := s.callContext(ctx)
		if _, err := s.mailing.RemoveFromGroup(callCtx, s.groups.Premium, []string{req.Email}); err != nil {
			logging.Warnf("Failed to release %s from premium newsletter group: %v", req.Email, err)
		}
		cancel()
	}

	if req.UserID != "" {
		s.saveProfile(ctx, req.UserID, false, map[string]interface{}{
			models.ColumnNewsletterTier:     models.TierFree,
			models.ColumnNewsletterSyncedAt: s.now().UTC(),
		})
	}
	return result, nil
}

// checkOwner refuses to move an email that differs from the one stored on the
// user's profile. Users without a profile or without a stored email pass.
func (s *NewsletterService) checkOwner(ctx context.Context, req NewsletterRequest) error {
	if req.UserID == "" {
		return nil
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()
	profile, err := s.store.GetProfile(ctx, req.UserID)
	if err != nil {
		var storeErr *apperror.StoreError
		if errors.As(err, &storeErr) {
			return err
		}
		return nil
	}
	if profile.Email != "" && !strings.EqualFold(profile.Email, req.Email) {
		logging.Warnf("Newsletter %s refused - user_id: %s, email: %s", req.Action, req.UserID, req.Email)
		return ErrEmailMismatch
	}
	return nil
}

// addWithGroup adds email to the list, inside groupID when one is configured
func (s *NewsletterService) addWithGroup(ctx context.Context, email string, groupID int64) (*ListResult, error) {
	var groupIDs []int64
	if groupID != 0 {
		groupIDs = []int64{groupID}
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()
	return s.mailing.AddSubscriber(ctx, email, groupIDs)
}

// saveProfile records the newsletter state on the profile. The provider
// already changed, so a failed write is logged and the action still succeeds.
func (s *NewsletterService) saveProfile(ctx context.Context, userID string, upsert bool, fields map[string]interface{}) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	var err error
	if upsert {
		err = s.store.UpsertProfile(ctx, userID, fields)
	} else {
		_, err = s.store.UpdateProfileByField(ctx, models.ColumnID, userID, fields)
	}
	if err != nil {
		logging.Errorf("Failed to save newsletter state for user %s: %v", userID, err)
	}
}

func (s *NewsletterService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
