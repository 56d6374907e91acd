package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"harmonyclass-api/internal/database"
	"harmonyclass-api/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

// mailingCall records one call made to fakeMailingList
type mailingCall struct {
	Method  string
	Email   string
	Emails  []string
	GroupID int64
	Groups  []int64
}

// fakeMailingList records calls and fails the methods listed in errs
type fakeMailingList struct {
	mu    sync.Mutex
	calls []mailingCall
	errs  map[string]error
}

func newFakeMailingList() *fakeMailingList {
	return &fakeMailingList{errs: map[string]error{}}
}

func (f *fakeMailingList) record(call mailingCall) (*ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if err := f.errs[call.Method]; err != nil {
		return nil, err
	}
	return &ListResult{Provider: "fake", Value: call.Method}, nil
}

func (f *fakeMailingList) failAll(err error) {
	for _, m := range []string{"AddSubscriber", "RemoveSubscriber", "AddToGroup", "RemoveFromGroup", "GetSubscriber"} {
		f.errs[m] = err
	}
}

func (f *fakeMailingList) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Method)
	}
	return out
}

func (f *fakeMailingList) AddSubscriber(_ context.Context, email string, groupIDs []int64) (*ListResult, error) {
	return f.record(mailingCall{Method: "AddSubscriber", Email: email, Groups: groupIDs})
}

func (f *fakeMailingList) RemoveSubscriber(_ context.Context, email string) (*ListResult, error) {
	return f.record(mailingCall{Method: "RemoveSubscriber", Email: email})
}

func (f *fakeMailingList) AddToGroup(_ context.Context, groupID int64, emails []string) (*ListResult, error) {
	return f.record(mailingCall{Method: "AddToGroup", GroupID: groupID, Emails: emails})
}

func (f *fakeMailingList) RemoveFromGroup(_ context.Context, groupID int64, emails []string) (*ListResult, error) {
	return f.record(mailingCall{Method: "RemoveFromGroup", GroupID: groupID, Emails: emails})
}

func (f *fakeMailingList) GetSubscriber(_ context.Context, email string) (*ListResult, error) {
	return f.record(mailingCall{Method: "GetSubscriber", Email: email})
}

// fakeVerifier returns a fixed event or error
type fakeVerifier struct {
	event models.PaymentEvent
	err   error
}

func (f *fakeVerifier) VerifyEvent(_ []byte, _ string) (models.PaymentEvent, error) {
	return f.event, f.err
}

// fakePeriods returns a fixed period end
type fakePeriods struct {
	end time.Time
	err error
}

func (f *fakePeriods) SubscriptionPeriodEnd(_ context.Context, _ string) (time.Time, error) {
	return f.end, f.err
}

// failingStore wraps a real store and fails the writes switched on
type failingStore struct {
	ProfileRepository
	failUpsert bool
	failUpdate bool
	failFind   bool
}

var errStoreDown = errors.New("connection refused")

func (s *failingStore) UpsertProfile(ctx context.Context, id string, fields map[string]interface{}) error {
	if s.failUpsert {
		return errStoreDown
	}
	return s.ProfileRepository.UpsertProfile(ctx, id, fields)
}

func (s *failingStore) UpdateProfileByField(ctx context.Context, field string, value interface{}, fields map[string]interface{}) (int64, error) {
	if s.failUpdate {
		return 0, errStoreDown
	}
	return s.ProfileRepository.UpdateProfileByField(ctx, field, value, fields)
}

func (s *failingStore) FindProfilesByField(ctx context.Context, field string, value interface{}) ([]models.Profile, error) {
	if s.failFind {
		return nil, errStoreDown
	}
	return s.ProfileRepository.FindProfilesByField(ctx, field, value)
}

// fakeLimiter answers Allow with a fixed result
type fakeLimiter struct {
	allowed  bool
	err      error
	keys     []string
	released []string
}

func (l *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allowed, l.err
}

func (l *fakeLimiter) Release(_ context.Context, key string) error {
	l.released = append(l.released, key)
	return nil
}

// newTestProfileStore opens an empty in-memory profile store
func newTestProfileStore(t *testing.T) *database.ProfileStore {
	t.Helper()

	db, err := database.OpenSQLite(":memory:", logger.Silent)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return database.NewProfileStore(db)
}
