package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table. Balance is mutated only through
// the conditional update in DeductBalanceIfAvailable and AddBalance.
type Account struct {
	AccountID string    `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"not null;uniqueIndex:uniq_accounts_user"`
	Balance   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

func (account *Account) BeforeCreate(tx *gorm.DB) error {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	return nil
}

// LedgerEntry mirrors the ledger_entries table. Rows are append-only.
type LedgerEntry struct {
	EntryID      string    `gorm:"type:uuid;primaryKey"`
	AccountID    string    `gorm:"type:uuid;not null;index:idx_entries_account_created,priority:1"`
	Kind         string    `gorm:"not null"`
	Delta        int64     `gorm:"not null"`
	BalanceAfter int64     `gorm:"not null"`
	Reason       string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_entries_account_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// GenerationRequest mirrors the generation_requests table.
type GenerationRequest struct {
	RequestID    string         `gorm:"type:uuid;primaryKey"`
	UserID       string         `gorm:"not null;index"`
	Kind         string         `gorm:"not null"`
	Prompt       string         `gorm:"not null"`
	Status       string         `gorm:"not null"`
	Cost         int64          `gorm:"not null"`
	ArtifactURLs datatypes.JSON `gorm:"not null"`
	CreatedAt    time.Time      `gorm:"not null"`
	UpdatedAt    time.Time      `gorm:"not null"`
}

func (GenerationRequest) TableName() string { return "generation_requests" }

// MediaAsset mirrors the media_assets table. Metadata is present only on
// rows that reached the ready state.
type MediaAsset struct {
	AssetID              string         `gorm:"type:uuid;primaryKey"`
	OwnerID              string         `gorm:"not null;index"`
	ExternalJobID        string         `gorm:"not null;uniqueIndex:uniq_assets_external_job"`
	Title                string         `gorm:"not null"`
	Status               string         `gorm:"not null"`
	LastTransitionSource string         `gorm:"not null;default:''"`
	FailureReason        string         `gorm:"not null;default:''"`
	Metadata             datatypes.JSON `gorm:""`
	CreatedAt            time.Time      `gorm:"not null"`
	UpdatedAt            time.Time      `gorm:"not null"`
}

func (MediaAsset) TableName() string { return "media_assets" }
