package models

// Event type tags as reported by the payment processor
const (
	EventTypeSessionCompleted      = "checkout.session.completed"
	EventTypeSubscriptionCancelled = "customer.subscription.deleted"
)

// PaymentEvent is a verified payment processor event.
// The set of kinds is closed: only this package can add one, and the
// reconciler rejects any kind it has no branch for.
type PaymentEvent interface {
	EventID() string
	EventType() string
	paymentEvent()
}

// EventMeta carries the identity of the processor event
type EventMeta struct {
	ID   string
	Type string
}

func (m EventMeta) EventID() string   { return m.ID }
func (m EventMeta) EventType() string { return m.Type }

// SessionCompletedEvent is a finished checkout session.
// UserID and Email come from the session metadata written at checkout.
type SessionCompletedEvent struct {
	EventMeta
	SessionID       string
	UserID          string
	Email           string
	CustomerRef     string
	SubscriptionRef string
	Metadata        map[string]string
}

// SubscriptionCancelledEvent is a deleted subscription. It only carries
// processor references, so the profile is located by CustomerRef.
type SubscriptionCancelledEvent struct {
	EventMeta
	SubscriptionRef string
	CustomerRef     string
}

// IgnoredEvent is any event type the service does not act on
type IgnoredEvent struct {
	EventMeta
}

func (*SessionCompletedEvent) paymentEvent()      {}
func (*SubscriptionCancelledEvent) paymentEvent() {}
func (*IgnoredEvent) paymentEvent()               {}
