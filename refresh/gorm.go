package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// tokenRow is the relational shape of a Token. The value column is unique so
// the database enforces what MemoryRepository enforces with its map.
type tokenRow struct {
	ID          string `gorm:"primaryKey;size:36"`
	Value       string `gorm:"uniqueIndex;size:128;not null"`
	UserID      string `gorm:"index;size:64;not null"`
	CreatedAt   time.Time
	ExpiresAt   time.Time `gorm:"index"`
	Revoked     bool      `gorm:"not null;default:false"`
	RevokedAt   *time.Time
	CreatedByIP string `gorm:"size:64"`
	UserAgent   string `gorm:"size:256"`
}

func (tokenRow) TableName() string { return "refresh_tokens" }

func rowFromToken(t *Token) *tokenRow {
	return &tokenRow{
		ID:          t.ID,
		Value:       t.Value,
		UserID:      t.UserID,
		CreatedAt:   t.CreatedAt,
		ExpiresAt:   t.ExpiresAt,
		Revoked:     t.Revoked,
		RevokedAt:   t.RevokedAt,
		CreatedByIP: t.CreatedByIP,
		UserAgent:   t.UserAgent,
	}
}

func (row *tokenRow) token() *Token {
	return &Token{
		ID:          row.ID,
		Value:       row.Value,
		UserID:      row.UserID,
		CreatedAt:   row.CreatedAt,
		ExpiresAt:   row.ExpiresAt,
		Revoked:     row.Revoked,
		RevokedAt:   row.RevokedAt,
		CreatedByIP: row.CreatedByIP,
		UserAgent:   row.UserAgent,
	}
}

// GormRepository persists tokens in a relational database. Rotation is a
// guarded UPDATE inside a transaction, so concurrent rotations of the same
// value resolve to exactly one winner regardless of driver.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate creates or updates the refresh_tokens table.
func (r *GormRepository) AutoMigrate() error {
	if err := r.db.AutoMigrate(&tokenRow{}); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *GormRepository) Add(ctx context.Context, token *Token) error {
	err := r.db.WithContext(ctx).Create(rowFromToken(token)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateValue
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *GormRepository) FindByValue(ctx context.Context, value string) (*Token, error) {
	var row tokenRow
	err := r.db.WithContext(ctx).Where("value = ?", value).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return row.token(), nil
}

func (r *GormRepository) Revoke(ctx context.Context, value string, at time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&tokenRow{}).
			Where("value = ? AND revoked = ?", value, false).
			Updates(map[string]any{"revoked": true, "revoked_at": at.UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		// Nothing flipped: either the row is missing or already revoked.
		var count int64
		if err := tx.Model(&tokenRow{}).Where("value = ?", value).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrTokenNotFound
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *GormRepository) Rotate(ctx context.Context, oldValue string, at time.Time, next *Token) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&tokenRow{}).
			Where("value = ? AND revoked = ?", oldValue, false).
			Updates(map[string]any{"revoked": true, "revoked_at": at.UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&tokenRow{}).Where("value = ?", oldValue).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrTokenNotFound
			}
			return ErrRotationConflict
		}

		if err := tx.Create(rowFromToken(next)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateValue
			}
			return err
		}
		return nil
	})

	if err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound),
			errors.Is(err, ErrRotationConflict),
			errors.Is(err, ErrDuplicateValue):
			return err
		default:
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

// DeleteExpired removes rows whose lifetime fully ended before cutoff.
// Revoked rows are kept until they expire so replays keep tripping reuse
// detection.
func (r *GormRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&tokenRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}

// Open connects to the database named by dsn. A postgres:// or postgresql://
// prefix selects the postgres driver, anything else is treated as a sqlite
// path (":memory:" included).
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{TranslateError: true}

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return db, nil
}
