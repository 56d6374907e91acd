package models

// Metadata keys written on every checkout session
const (
	MetadataUserID      = "userId"
	MetadataEmail       = "email"
	MetadataSchoolLevel = "schoolLevel"
	MetadataRegion      = "region"
)

// CheckoutSessionRequest is what the payment processor needs to open a
// subscription checkout. It is built per subscribe action and never stored.
type CheckoutSessionRequest struct {
	// PriceID selects a price configured at the processor. When empty the
	// inline price fields below are used.
	PriceID string

	ProductName        string
	ProductDescription string
	Currency           string
	UnitAmount         int64
	Interval           string

	CustomerEmail string
	Metadata      map[string]string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the processor's answer to a CheckoutSessionRequest
type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}
