package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"harmonyclass-api/internal/apperror"
	"harmonyclass-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrProfileNotFound is returned by GetProfile when no row has the id
var ErrProfileNotFound = errors.New("profile not found")

// writableColumns are the profile columns callers may set. id and the
// timestamps are managed here.
var writableColumns = map[string]bool{
	models.ColumnEmail:                 true,
	models.ColumnSubscriptionStatus:    true,
	models.ColumnSubscriptionTier:      true,
	models.ColumnSubscriptionStartDate: true,
	models.ColumnSubscriptionEndDate:   true,
	models.ColumnStripeCustomerID:      true,
	models.ColumnStripeSubscriptionID:  true,
	models.ColumnNewsletterSubscribed:  true,
	models.ColumnNewsletterTier:        true,
	models.ColumnNewsletterSyncedAt:    true,
}

// lookupColumns are the columns profiles can be located by
var lookupColumns = map[string]bool{
	models.ColumnID:                   true,
	models.ColumnEmail:                true,
	models.ColumnStripeCustomerID:     true,
	models.ColumnStripeSubscriptionID: true,
}

// ProfileStore reads and writes subscriber profiles.
// Every write is a plain field overwrite, so repeating one is harmless.
type ProfileStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewProfileStore creates a profile store on db
func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{db: db, now: time.Now}
}

// UpsertProfile creates the profile with id, or overwrites the given fields
// when it exists. Columns not in fields keep their stored values.
func (s *ProfileStore) UpsertProfile(ctx context.Context, id string, fields map[string]interface{}) error {
	if strings.TrimSpace(id) == "" {
		return &apperror.StoreError{Op: "upsert", Err: errors.New("empty profile id")}
	}
	if err := checkColumns(fields); err != nil {
		return &apperror.StoreError{Op: "upsert", Err: err}
	}

	now := s.now()
	row := make(map[string]interface{}, len(fields)+5)
	for column, value := range fields {
		row[column] = value
	}
	row[models.ColumnID] = id
	row[models.ColumnCreatedAt] = now
	row[models.ColumnUpdatedAt] = now
	// A new row starts unsubscribed unless the caller says otherwise
	if _, ok := row[models.ColumnSubscriptionStatus]; !ok {
		row[models.ColumnSubscriptionStatus] = models.SubscriptionStatusNone
	}
	if _, ok := row[models.ColumnSubscriptionTier]; !ok {
		row[models.ColumnSubscriptionTier] = models.TierFree
	}

	updates := append(sortedColumns(fields), models.ColumnUpdatedAt)

	err := s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: models.ColumnID}},
			DoUpdates: clause.AssignmentColumns(updates),
		}).
		Create(row).Error
	if err != nil {
		return &apperror.StoreError{Op: "upsert", Err: err}
	}
	return nil
}

// UpdateProfileByField overwrites fields on every profile whose field
// equals value and returns the number of rows changed.
func (s *ProfileStore) UpdateProfileByField(ctx context.Context, field string, value interface{}, fields map[string]interface{}) (int64, error) {
	if !lookupColumns[field] {
		return 0, &apperror.StoreError{Op: "update", Err: fmt.Errorf("cannot match on column %q", field)}
	}
	if len(fields) == 0 {
		return 0, &apperror.StoreError{Op: "update", Err: errors.New("no fields to update")}
	}
	if err := checkColumns(fields); err != nil {
		return 0, &apperror.StoreError{Op: "update", Err: err}
	}

	updates := make(map[string]interface{}, len(fields)+1)
	for column, v := range fields {
		updates[column] = v
	}
	updates[models.ColumnUpdatedAt] = s.now()

	result := s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where(field+" = ?", value).
		Updates(updates)
	if result.Error != nil {
		return 0, &apperror.StoreError{Op: "update", Err: result.Error}
	}
	return result.RowsAffected, nil
}

// FindProfilesByField returns every profile whose field equals value
func (s *ProfileStore) FindProfilesByField(ctx context.Context, field string, value interface{}) ([]models.Profile, error) {
	if !lookupColumns[field] {
		return nil, &apperror.StoreError{Op: "find", Err: fmt.Errorf("cannot match on column %q", field)}
	}

	var profiles []models.Profile
	if err := s.db.WithContext(ctx).Where(field+" = ?", value).Find(&profiles).Error; err != nil {
		return nil, &apperror.StoreError{Op: "find", Err: err}
	}
	return profiles, nil
}

// GetProfile gets a profile by id
func (s *ProfileStore) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).Where(models.ColumnID+" = ?", id).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, &apperror.StoreError{Op: "get", Err: err}
	}
	return &profile, nil
}

func checkColumns(fields map[string]interface{}) error {
	for column := range fields {
		if !writableColumns[column] {
			return fmt.Errorf("column %q is not writable", column)
		}
	}
	return nil
}

func sortedColumns(fields map[string]interface{}) []string {
	columns := make([]string, 0, len(fields)+1)
	for column := range fields {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}
