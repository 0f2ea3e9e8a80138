package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/voyatra/hybridpay/internal/entitlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// New creates the gorm-backed snapshot store and migrates its table.
func New(p Params) (domain.Store, error) {
	if err := p.DB.AutoMigrate(&domain.SnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("migrate snapshots: %w", err)
	}
	return &Store{
		db:  p.DB,
		log: p.Log.Named("entitlement.store"),
	}, nil
}

// Load returns the last persisted snapshot for the user.
func (s *Store) Load(ctx context.Context, userID string) (*domain.Entitlements, error) {
	var rec domain.SnapshotRecord
	err := s.db.WithContext(ctx).First(&rec, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}

	var e domain.Entitlements
	if err := json.Unmarshal(rec.Payload, &e); err != nil {
		// A corrupt row is unreadable, not fatal; treat as first run.
		s.log.Warn("discarding unreadable snapshot",
			zap.String("user_id", userID),
			zap.Int("version", rec.Version),
			zap.Error(err))
		return nil, domain.ErrSnapshotNotFound
	}
	return &e, nil
}

// Save overwrites the persisted snapshot. The write is durable before return.
func (s *Store) Save(ctx context.Context, userID string, e domain.Entitlements) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}

	rec := domain.SnapshotRecord{
		UserID:    userID,
		Version:   domain.SnapshotVersion,
		Payload:   payload,
		UpdatedAt: e.LastUpdated,
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}
	return nil
}
