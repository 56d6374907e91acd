package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"harmonyclass-api/internal/config"
	"harmonyclass-api/internal/database"
	"harmonyclass-api/internal/middleware"
	"harmonyclass-api/internal/models"
	"harmonyclass-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm/logger"
)

const (
	testWebhookSecret = "whsec_test_secret"
	testJWTSecret     = "super-secret-jwt-token-with-at-least-32-characters"
)

var testGroups = services.NewsletterGroups{Free: 11, Premium: 22}

func init() {
	gin.SetMode(gin.TestMode)
}

// recordingList is a MailingList that records the method names it served
type recordingList struct {
	mu    sync.Mutex
	calls []string
}

func (l *recordingList) record(method string) (*services.ListResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, method)
	return &services.ListResult{Provider: "fake", Value: method}, nil
}

func (l *recordingList) AddSubscriber(context.Context, string, []int64) (*services.ListResult, error) {
	return l.record("AddSubscriber")
}

func (l *recordingList) RemoveSubscriber(context.Context, string) (*services.ListResult, error) {
	return l.record("RemoveSubscriber")
}

func (l *recordingList) AddToGroup(context.Context, int64, []string) (*services.ListResult, error) {
	return l.record("AddToGroup")
}

func (l *recordingList) RemoveFromGroup(context.Context, int64, []string) (*services.ListResult, error) {
	return l.record("RemoveFromGroup")
}

func (l *recordingList) GetSubscriber(context.Context, string) (*services.ListResult, error) {
	return l.record("GetSubscriber")
}

// stubProcessor opens a fixed checkout session
type stubProcessor struct {
	requests []*models.CheckoutSessionRequest
}

func (p *stubProcessor) CreateCheckoutSession(_ context.Context, req *models.CheckoutSessionRequest) (*models.CheckoutSession, error) {
	p.requests = append(p.requests, req)
	return &models.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

// denyLimiter refuses every request
type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (bool, error) { return false, nil }

func (denyLimiter) Release(context.Context, string) error { return nil }

type testServer struct {
	router    *gin.Engine
	store     *database.ProfileStore
	mailing   *recordingList
	processor *stubProcessor
}

func newTestServer(t *testing.T, jwtSecret string, limiter services.RateLimiter) *testServer {
	t.Helper()

	db, err := database.OpenSQLite(":memory:", logger.Silent)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	cfg := &config.Config{
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: testWebhookSecret,
		PlanName:            "harmonyclass Premium",
		PlanCurrency:        "krw",
		PlanUnitAmount:      9900,
		PlanInterval:        "month",
		SiteURL:             "https://harmonyclass.kr",
		ExternalCallTimeout: time.Second,
	}

	store := database.NewProfileStore(db)
	mailing := &recordingList{}
	processor := &stubProcessor{}
	stripeService := services.NewStripeService(cfg)
	ledger := services.NewMemoryEventLedger(time.Hour)
	t.Cleanup(ledger.Stop)

	h := &Handlers{
		Checkout:     services.NewCheckoutService(processor, services.PlanFromConfig(cfg), cfg.SiteURL, limiter, time.Second),
		Reconciler:   services.NewReconciler(stripeService, store, mailing, testGroups, ledger, nil, time.Second),
		Newsletter:   services.NewNewsletterService(mailing, store, testGroups, time.Second),
		News:         services.NewNewsService(cfg, nil),
		Subscription: services.NewSubscriptionService(store),
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	SetupRoutes(r, h, middleware.SupabaseAuthMiddleware(jwtSecret))

	return &testServer{router: r, store: store, mailing: mailing, processor: processor}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) postJSON(t *testing.T, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.do(req)
}

func (s *testServer) postWebhook(payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	return s.do(req)
}

func signPayload(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	}).Header
}

func userToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

const sessionCompletedPayload = `{
	"id": "evt_completed_1",
	"object": "event",
	"type": "checkout.session.completed",
	"data": {"object": {
		"id": "cs_test_1",
		"object": "checkout.session",
		"customer": "cus_123",
		"subscription": "sub_123",
		"metadata": {"userId": "u1", "email": "teacher@school.kr"}
	}}
}`

const subscriptionDeletedPayload = `{
	"id": "evt_deleted_1",
	"object": "event",
	"type": "customer.subscription.deleted",
	"data": {"object": {
		"id": "sub_123",
		"object": "subscription",
		"customer": "cus_123"
	}}
}`

func TestHealth(t *testing.T) {
	s := newTestServer(t, "", nil)

	w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestWebhook_ActivatesAndCancels(t *testing.T) {
	s := newTestServer(t, "", nil)
	ctx := context.Background()

	payload := []byte(sessionCompletedPayload)
	w := s.postWebhook(payload, signPayload(payload))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"received": true}`, w.Body.String())

	profile, err := s.store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, profile.Status())
	assert.Equal(t, models.TierPremium, profile.Tier())
	assert.Equal(t, "cus_123", profile.StripeCustomerID)

	payload = []byte(subscriptionDeletedPayload)
	w = s.postWebhook(payload, signPayload(payload))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	profile, err = s.store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, profile.Status())
	assert.Equal(t, models.TierFree, profile.Tier())
}

func TestWebhook_RedeliveryDoesNotRepeatSideEffects(t *testing.T) {
	s := newTestServer(t, "", nil)
	payload := []byte(sessionCompletedPayload)

	require.Equal(t, http.StatusOK, s.postWebhook(payload, signPayload(payload)).Code)
	calls := len(s.mailing.calls)

	w := s.postWebhook(payload, signPayload(payload))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, s.mailing.calls, calls)
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	s := newTestServer(t, "", nil)
	payload := []byte(sessionCompletedPayload)

	tests := []struct {
		name      string
		signature string
	}{
		{name: "missing", signature: ""},
		{name: "wrong secret", signature: webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   payload,
			Secret:    "whsec_other",
			Timestamp: time.Now(),
		}).Header},
		{name: "garbage", signature: "t=1,v1=deadbeef"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := s.postWebhook(payload, tc.signature)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decodeBody(t, w)["error"])
		})
	}

	_, err := s.store.GetProfile(context.Background(), "u1")
	assert.ErrorIs(t, err, database.ErrProfileNotFound)
	assert.Empty(t, s.mailing.calls)
}

func TestWebhook_UndecodableObjectIsRedelivered(t *testing.T) {
	s := newTestServer(t, "", nil)
	payload := []byte(`{
		"id": "evt_bad_1",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_1", "metadata": "userId=u1"}}
	}`)

	w := s.postWebhook(payload, signPayload(payload))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, s.mailing.calls)
}

func TestCreateCheckoutSession(t *testing.T) {
	s := newTestServer(t, "", nil)

	w := s.postJSON(t, "/api/create-checkout-session", gin.H{
		"email":       "teacher@school.kr",
		"userId":      "u1",
		"schoolLevel": "elementary",
	}, "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"sessionId": "cs_test_1", "url": "https://checkout.stripe.com/c/pay/cs_test_1"}`, w.Body.String())
	require.Len(t, s.processor.requests, 1)
	assert.Equal(t, "u1", s.processor.requests[0].Metadata[models.MetadataUserID])
	assert.Equal(t, "elementary", s.processor.requests[0].Metadata[models.MetadataSchoolLevel])

	// checkout writes nothing locally
	_, err := s.store.GetProfile(context.Background(), "u1")
	assert.ErrorIs(t, err, database.ErrProfileNotFound)
}

func TestCreateCheckoutSession_InvalidInput(t *testing.T) {
	s := newTestServer(t, "", nil)

	for name, body := range map[string]gin.H{
		"missing email":  {"userId": "u1"},
		"missing userId": {"email": "teacher@school.kr"},
		"bad email":      {"email": "not-an-email", "userId": "u1"},
	} {
		t.Run(name, func(t *testing.T) {
			w := s.postJSON(t, "/api/create-checkout-session", body, "")

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, services.ErrInvalidCheckoutInput.Error(), decodeBody(t, w)["error"])
		})
	}
	assert.Empty(t, s.processor.requests)
}

func TestCreateCheckoutSession_RateLimited(t *testing.T) {
	s := newTestServer(t, "", denyLimiter{})

	w := s.postJSON(t, "/api/create-checkout-session", gin.H{"email": "teacher@school.kr", "userId": "u1"}, "")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Empty(t, s.processor.requests)
}

func TestCreateCheckoutSession_Auth(t *testing.T) {
	s := newTestServer(t, testJWTSecret, nil)
	body := gin.H{"email": "teacher@school.kr", "userId": "u1"}

	assert.Equal(t, http.StatusUnauthorized, s.postJSON(t, "/api/create-checkout-session", body, "").Code)
	assert.Equal(t, http.StatusForbidden, s.postJSON(t, "/api/create-checkout-session", body, userToken(t, "u2")).Code)
	assert.Equal(t, http.StatusOK, s.postJSON(t, "/api/create-checkout-session", body, userToken(t, "u1")).Code)

	// the webhook authenticates by signature only
	payload := []byte(sessionCompletedPayload)
	assert.Equal(t, http.StatusOK, s.postWebhook(payload, signPayload(payload)).Code)
}

func TestNewsletterSubscribe(t *testing.T) {
	s := newTestServer(t, "", nil)

	w := s.postJSON(t, "/api/newsletter/subscribe", gin.H{
		"email":  "teacher@school.kr",
		"userId": "u1",
		"action": "subscribe",
	}, "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotNil(t, body["result"])
	assert.Equal(t, []string{"AddSubscriber"}, s.mailing.calls)

	profile, err := s.store.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, profile.NewsletterSubscribed)
	require.NotNil(t, profile.NewsletterTier)
	assert.Equal(t, models.TierFree, *profile.NewsletterTier)
}

func TestNewsletterSubscribe_Validation(t *testing.T) {
	s := newTestServer(t, "", nil)

	tests := []struct {
		name string
		body gin.H
		want string
	}{
		{name: "missing email", body: gin.H{"action": "subscribe"}, want: services.ErrEmailRequired.Error()},
		{name: "unknown action", body: gin.H{"email": "teacher@school.kr", "action": "delete"}, want: services.ErrUnknownAction.Error()},
		{name: "missing action", body: gin.H{"email": "teacher@school.kr"}, want: services.ErrUnknownAction.Error()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := s.postJSON(t, "/api/newsletter/subscribe", tc.body, "")

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.want, decodeBody(t, w)["error"])
		})
	}

	w := s.postJSON(t, "/api/newsletter/subscribe", gin.H{"email": "teacher@school.kr", "action": "subscribe", "tier": "gold"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, s.mailing.calls)
}

func TestNewsletterSubscribe_UpgradeRequiresPremium(t *testing.T) {
	s := newTestServer(t, "", nil)

	w := s.postJSON(t, "/api/newsletter/subscribe", gin.H{
		"email":  "teacher@school.kr",
		"userId": "u1",
		"action": "upgrade",
	}, "")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, s.mailing.calls)
}

func TestNewsletterSubscribe_PremiumTierRequiresPremium(t *testing.T) {
	s := newTestServer(t, "", nil)

	w := s.postJSON(t, "/api/newsletter/subscribe", gin.H{
		"email":  "teacher@school.kr",
		"userId": "u1",
		"action": "subscribe",
		"tier":   "premium",
	}, "")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, s.mailing.calls)
}

func TestNewsletterSubscribe_Auth(t *testing.T) {
	s := newTestServer(t, testJWTSecret, nil)
	token := userToken(t, "u1")

	require.Equal(t, http.StatusOK, s.postJSON(t, "/api/newsletter/subscribe", gin.H{
		"email": "teacher@school.kr", "userId": "u1", "action": "subscribe",
	}, token).Code)

	tests := []struct {
		name string
		body gin.H
		want int
	}{
		{name: "missing userId", body: gin.H{"email": "teacher@school.kr", "action": "unsubscribe"}, want: http.StatusForbidden},
		{name: "other user", body: gin.H{"email": "teacher@school.kr", "userId": "u2", "action": "unsubscribe"}, want: http.StatusForbidden},
		{name: "other email", body: gin.H{"email": "someone@school.kr", "userId": "u1", "action": "downgrade"}, want: http.StatusForbidden},
		{name: "status needs no userId", body: gin.H{"email": "teacher@school.kr", "action": "status"}, want: http.StatusOK},
		{name: "own subscription", body: gin.H{"email": "teacher@school.kr", "userId": "u1", "action": "unsubscribe"}, want: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := s.postJSON(t, "/api/newsletter/subscribe", tc.body, token)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, []string{"AddSubscriber", "GetSubscriber", "RemoveSubscriber"}, s.mailing.calls)
}

func TestNewsletterStatus(t *testing.T) {
	s := newTestServer(t, "", nil)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/newsletter/subscribe?email=teacher%40school.kr", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["success"])
	assert.Equal(t, []string{"GetSubscriber"}, s.mailing.calls)

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/newsletter/subscribe", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, services.ErrEmailRequired.Error(), decodeBody(t, w)["error"])
}

func TestGetSubscriptionStatus(t *testing.T) {
	s := newTestServer(t, "", nil)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/subscription/status?user_id=u1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, models.SubscriptionStatusNone, body["status"])
	assert.Equal(t, false, body["is_active"])

	payload := []byte(sessionCompletedPayload)
	require.Equal(t, http.StatusOK, s.postWebhook(payload, signPayload(payload)).Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/subscription/status?user_id=u1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, models.SubscriptionStatusActive, body["status"])
	assert.Equal(t, models.TierPremium, body["tier"])
	assert.Equal(t, true, body["is_active"])

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/subscription/status", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetNews_MissingKeys(t *testing.T) {
	s := newTestServer(t, "", nil)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/news", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "API keys not configured", decodeBody(t, w)["error"])
}
