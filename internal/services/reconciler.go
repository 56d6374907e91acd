package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"harmonyclass-api/internal/apperror"
	"harmonyclass-api/internal/models"
	"harmonyclass-api/pkg/logging"
)

// Reconcile outcomes
const (
	OutcomeActivated        = "activated"
	OutcomeCancelled        = "cancelled"
	OutcomeIgnored          = "ignored"
	OutcomeDuplicate        = "duplicate"
	OutcomeMissingUser      = "missing_user"
	OutcomeNoProfile        = "no_profile"
	OutcomeAmbiguousProfile = "ambiguous_profile"
)

// Best-effort steps named in warnings
const (
	StepPeriodEnd       = "period_end"
	StepPremiumGroupAdd = "premium_group_add"
	StepFreeGroupRemove = "free_group_remove"
	StepPremiumRelease  = "premium_group_remove"
	StepFreeGroupAdd    = "free_group_add"
	StepNewsletterSync  = "newsletter_sync"
	StepProfileLookup   = "profile_lookup"
	StepLedger          = "event_ledger"
)

// defaultSubscriptionTerm is the premium period assumed when the processor
// cannot say when the current period ends
const defaultSubscriptionTerm = 365 * 24 * time.Hour

// EventVerifier authenticates a raw webhook delivery
type EventVerifier interface {
	VerifyEvent(payload []byte, signature string) (models.PaymentEvent, error)
}

// SubscriptionPeriodSource reports when a processor subscription's current period ends
type SubscriptionPeriodSource interface {
	SubscriptionPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error)
}

// ProfileRepository is the profile store as seen by the services
type ProfileRepository interface {
	UpsertProfile(ctx context.Context, id string, fields map[string]interface{}) error
	UpdateProfileByField(ctx context.Context, field string, value interface{}, fields map[string]interface{}) (int64, error)
	FindProfilesByField(ctx context.Context, field string, value interface{}) ([]models.Profile, error)
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
}

// Warning is a best-effort step that failed without failing the event
type Warning struct {
	Step string
	Err  error
}

func (w Warning) String() string {
	return w.Step + ": " + w.Err.Error()
}

// ReconcileResult describes what a verified event did
type ReconcileResult struct {
	EventID   string
	EventType string
	Outcome   string
	Warnings  []Warning
}

func (r *ReconcileResult) warn(step string, err error) {
	r.Warnings = append(r.Warnings, Warning{Step: step, Err: err})
}

// Reconciler applies verified payment events to the profile store and the
// mailing list. The profile write is durable: when it fails the event fails
// and the processor redelivers. Mailing list changes are best effort and only
// ever produce warnings.
type Reconciler struct {
	verifier EventVerifier
	store    ProfileRepository
	mailing  MailingList
	groups   NewsletterGroups
	ledger   EventLedger
	periods  SubscriptionPeriodSource
	timeout  time.Duration
	now      func() time.Time
}

// NewReconciler creates a reconciler. ledger and periods may be nil.
func NewReconciler(verifier EventVerifier, store ProfileRepository, mailing MailingList, groups NewsletterGroups, ledger EventLedger, periods SubscriptionPeriodSource, timeout time.Duration) *Reconciler {
	return &Reconciler{
		verifier: verifier,
		store:    store,
		mailing:  mailing,
		groups:   groups,
		ledger:   ledger,
		periods:  periods,
		timeout:  timeout,
		now:      time.Now,
	}
}

// HandleWebhook verifies a raw delivery and reconciles it. Verification
// errors come back untouched so the caller can answer 400. Once verified the
// event runs to completion even if the caller goes away.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (*ReconcileResult, error) {
	event, err := r.verifier.VerifyEvent(payload, signature)
	if err != nil {
		return nil, err
	}
	return r.Reconcile(context.WithoutCancel(ctx), event)
}

// Reconcile applies one verified event
func (r *Reconciler) Reconcile(ctx context.Context, event models.PaymentEvent) (*ReconcileResult, error) {
	result := &ReconcileResult{EventID: event.EventID(), EventType: event.EventType()}

	if r.ledger != nil && event.EventID() != "" {
		seen, err := r.ledger.Seen(ctx, event.EventID())
		if err != nil {
			result.warn(StepLedger, err)
		} else if seen {
			logging.Infof("Payment event already processed - event_id: %s, type: %s", event.EventID(), event.EventType())
			result.Outcome = OutcomeDuplicate
			return result, nil
		}
	}

	var err error
	switch e := event.(type) {
	case *models.SessionCompletedEvent:
		err = r.activate(ctx, e, result)
	case *models.SubscriptionCancelledEvent:
		err = r.cancel(ctx, e, result)
	case *models.IgnoredEvent:
		logging.Debugf("Payment event ignored - event_id: %s, type: %s", e.ID, e.Type)
		result.Outcome = OutcomeIgnored
	default:
		return result, fmt.Errorf("no handler for payment event kind %T", event)
	}
	if err != nil {
		logging.Errorf("Payment event failed - event_id: %s, type: %s, error: %v", result.EventID, result.EventType, err)
		return result, err
	}

	if r.ledger != nil && event.EventID() != "" {
		if err := r.ledger.MarkProcessed(ctx, event.EventID()); err != nil {
			result.warn(StepLedger, err)
		}
	}

	for _, w := range result.Warnings {
		logging.Warnf("Payment event %s (%s) step failed - %s", result.EventID, result.EventType, w)
	}
	logging.Infof("Payment event reconciled - event_id: %s, type: %s, outcome: %s, warnings: %d",
		result.EventID, result.EventType, result.Outcome, len(result.Warnings))
	return result, nil
}

// activate grants premium after a completed checkout
func (r *Reconciler) activate(ctx context.Context, e *models.SessionCompletedEvent, result *ReconcileResult) error {
	if e.UserID == "" {
		// Retrying cannot add the metadata, so the event is acknowledged
		logging.Warnf("checkout.session.completed without metadata.userId - session_id: %s, email: %s", e.SessionID, e.Email)
		result.Outcome = OutcomeMissingUser
		return nil
	}

	now := r.now().UTC()
	end := r.periodEnd(ctx, e.SubscriptionRef, now, result)

	fields := map[string]interface{}{
		models.ColumnSubscriptionStatus:    models.SubscriptionStatusActive,
		models.ColumnSubscriptionTier:      models.TierPremium,
		models.ColumnSubscriptionStartDate: now,
		models.ColumnSubscriptionEndDate:   end,
	}
	if e.Email != "" {
		fields[models.ColumnEmail] = e.Email
	}
	if e.CustomerRef != "" {
		fields[models.ColumnStripeCustomerID] = e.CustomerRef
	}
	if e.SubscriptionRef != "" {
		fields[models.ColumnStripeSubscriptionID] = e.SubscriptionRef
	}

	callCtx, cancel := r.callContext(ctx)
	err := r.store.UpsertProfile(callCtx, e.UserID, fields)
	cancel()
	if err != nil {
		return fmt.Errorf("activate premium for user %s: %w", e.UserID, err)
	}
	result.Outcome = OutcomeActivated
	logging.Infof("Premium activated - user_id: %s, email: %s, ends: %s", e.UserID, e.Email, end.Format(time.RFC3339))

	if e.Email == "" {
		result.warn(StepPremiumGroupAdd, errors.New("session carries no email"))
		return nil
	}
	if r.groups.Premium == 0 {
		result.warn(StepPremiumGroupAdd, &apperror.ConfigurationError{Name: "premium newsletter group id"})
		return nil
	}

	callCtx, cancel = r.callContext(ctx)
	_, err = r.mailing.AddSubscriber(callCtx, e.Email, []int64{r.groups.Premium})
	cancel()
	if err != nil {
		result.warn(StepPremiumGroupAdd, err)
		return nil
	}

	if r.groups.Free != 0 {
		callCtx, cancel = r.callContext(ctx)
		_, err = r.mailing.RemoveFromGroup(callCtx, r.groups.Free, []string{e.Email})
		cancel()
		if err != nil {
			result.warn(StepFreeGroupRemove, err)
		}
	}

	r.markSynced(ctx, e.UserID, map[string]interface{}{
		models.ColumnNewsletterSubscribed: true,
		models.ColumnNewsletterTier:       models.TierPremium,
		models.ColumnNewsletterSyncedAt:   r.now().UTC(),
	}, result)
	return nil
}

// cancel moves the profile holding the cancelled subscription back to free
func (r *Reconciler) cancel(ctx context.Context, e *models.SubscriptionCancelledEvent, result *ReconcileResult) error {
	if e.CustomerRef == "" {
		logging.Warnf("customer.subscription.deleted without customer - subscription_id: %s", e.SubscriptionRef)
		result.Outcome = OutcomeNoProfile
		return nil
	}

	callCtx, cancel := r.callContext(ctx)
	profiles, err := r.store.FindProfilesByField(callCtx, models.ColumnStripeCustomerID, e.CustomerRef)
	cancel()
	if err != nil {
		return fmt.Errorf("find profile for customer %s: %w", e.CustomerRef, err)
	}

	switch len(profiles) {
	case 0:
		logging.Warnf("No profile for cancelled subscription - customer: %s, subscription_id: %s", e.CustomerRef, e.SubscriptionRef)
		result.Outcome = OutcomeNoProfile
		return nil
	case 1:
	default:
		ids := make([]string, 0, len(profiles))
		for _, p := range profiles {
			ids = append(ids, p.ID)
		}
		logging.Errorf("Several profiles share customer %s: %v; cancellation not applied", e.CustomerRef, ids)
		result.Outcome = OutcomeAmbiguousProfile
		result.warn(StepProfileLookup, fmt.Errorf("%d profiles share customer %s", len(profiles), e.CustomerRef))
		return nil
	}
	profile := profiles[0]

	callCtx, cancel = r.callContext(ctx)
	_, err = r.store.UpdateProfileByField(callCtx, models.ColumnStripeCustomerID, e.CustomerRef, map[string]interface{}{
		models.ColumnSubscriptionStatus: models.SubscriptionStatusCancelled,
		models.ColumnSubscriptionTier:   models.TierFree,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("cancel subscription for customer %s: %w", e.CustomerRef, err)
	}
	result.Outcome = OutcomeCancelled
	logging.Infof("Subscription cancelled - user_id: %s, customer: %s", profile.ID, e.CustomerRef)

	if profile.Email == "" {
		result.warn(StepFreeGroupAdd, fmt.Errorf("profile %s has no email", profile.ID))
		return nil
	}

	if r.groups.Premium != 0 {
		callCtx, cancel = r.callContext(ctx)
		_, err = r.mailing.RemoveFromGroup(callCtx, r.groups.Premium, []string{profile.Email})
		cancel()
		if err != nil {
			result.warn(StepPremiumRelease, err)
		}
	}

	if r.groups.Free == 0 {
		result.warn(StepFreeGroupAdd, &apperror.ConfigurationError{Name: "free newsletter group id"})
		return nil
	}
	callCtx, cancel = r.callContext(ctx)
	_, err = r.mailing.AddToGroup(callCtx, r.groups.Free, []string{profile.Email})
	cancel()
	if err != nil {
		result.warn(StepFreeGroupAdd, err)
		return nil
	}

	r.markSynced(ctx, profile.ID, map[string]interface{}{
		models.ColumnNewsletterTier:     models.TierFree,
		models.ColumnNewsletterSyncedAt: r.now().UTC(),
	}, result)
	return nil
}

// periodEnd asks the processor for the current period end, falling back to
// a year from now
func (r *Reconciler) periodEnd(ctx context.Context, subscriptionID string, now time.Time, result *ReconcileResult) time.Time {
	fallback := now.Add(defaultSubscriptionTerm)
	if r.periods == nil || subscriptionID == "" {
		return fallback
	}

	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	end, err := r.periods.SubscriptionPeriodEnd(callCtx, subscriptionID)
	if err != nil {
		result.warn(StepPeriodEnd, err)
		return fallback
	}
	return end
}

// markSynced records a successful mailing list sync on the profile
func (r *Reconciler) markSynced(ctx context.Context, userID string, fields map[string]interface{}, result *ReconcileResult) {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	if _, err := r.store.UpdateProfileByField(callCtx, models.ColumnID, userID, fields); err != nil {
		result.warn(StepNewsletterSync, err)
	}
}

func (r *Reconciler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
