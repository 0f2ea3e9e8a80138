package domain

import (
	"context"
	"time"
)

// Store durably caches the last resolved snapshot per user. It is a cache,
// not a source of truth: a live refresh always supersedes whatever it holds.
type Store interface {
	Load(ctx context.Context, userID string) (*Entitlements, error)
	Save(ctx context.Context, userID string, e Entitlements) error
}

// SnapshotVersion tags the persisted payload so fields can be added without
// destructive schema changes.
const SnapshotVersion = 1

// SnapshotRecord is the persisted row backing one user's snapshot.
type SnapshotRecord struct {
	UserID    string    `gorm:"primaryKey;type:text"`
	Version   int       `gorm:"not null"`
	Payload   []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (SnapshotRecord) TableName() string { return "entitlement_snapshots" }
