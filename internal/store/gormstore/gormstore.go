// Package gormstore persists ledger accounts, generation requests, and
// media assets through GORM, against SQLite or PostgreSQL.
package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/lucentmedia/genstudio/pkg/ledger"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore = "store"
	errorSubjectAccount = "account"
	errorSubjectBalance = "balance"
	errorSubjectEntry   = "entry"
	errorCodeDeduct     = "deduct"
	errorCodeCredit     = "credit"
	errorCodeGet        = "get"
	errorCodeInsert     = "insert"
	errorCodeInvalid    = "invalid"
	errorCodeList       = "list"
	errorCodeLookup     = "lookup"
)

// Store implements ledger.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates every table this package owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Account{}, &LedgerEntry{}, &GenerationRequest{}, &MediaAsset{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetOrCreateAccount(ctx context.Context, userID string) (ledger.Account, error) {
	var account Account
	err := store.db.WithContext(ctx).
		Where(Account{UserID: userID}).
		FirstOrCreate(&account, Account{UserID: userID, CreatedAt: time.Now().UTC()}).Error
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	return ledger.Account{
		AccountID: account.AccountID,
		UserID:    account.UserID,
		Balance:   account.Balance,
	}, nil
}

// DeductBalanceIfAvailable performs the single conditional decrement that
// the ledger's correctness rests on. The WHERE clause both locates the row
// and guards the invariant; RowsAffected discriminates granted from
// declined.
func (store *Store) DeductBalanceIfAvailable(ctx context.Context, accountID string, cost int64) (int64, bool, error) {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_id = ? AND balance >= ?", accountID, cost).
		Update("balance", gorm.Expr("balance - ?", cost))
	if result.Error != nil {
		return 0, false, wrapStoreError(errorSubjectBalance, errorCodeDeduct, result.Error)
	}
	balance, readError := store.readBalance(ctx, accountID)
	if readError != nil {
		return 0, false, readError
	}
	return balance, result.RowsAffected > 0, nil
}

func (store *Store) AddBalance(ctx context.Context, accountID string, amount int64) (int64, error) {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_id = ?", accountID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeCredit, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrUnknownAccount)
	}
	return store.readBalance(ctx, accountID)
}

func (store *Store) InsertEntry(ctx context.Context, entry ledger.Entry) error {
	createdAt := time.Unix(entry.CreatedUnixUTC, 0).UTC()
	if entry.CreatedUnixUTC == 0 {
		createdAt = time.Now().UTC()
	}
	row := LedgerEntry{
		EntryID:      entry.EntryID,
		AccountID:    entry.AccountID,
		Kind:         entry.Kind.String(),
		Delta:        entry.Delta,
		BalanceAfter: entry.BalanceAfter,
		Reason:       entry.Reason,
		CreatedAt:    createdAt,
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListEntries(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error) {
	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}

	entries := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		kind, parseError := ledger.ParseEntryKind(row.Kind)
		if parseError != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, parseError)
		}
		entries = append(entries, ledger.Entry{
			EntryID:        row.EntryID,
			AccountID:      row.AccountID,
			Kind:           kind,
			Delta:          row.Delta,
			BalanceAfter:   row.BalanceAfter,
			Reason:         row.Reason,
			CreatedUnixUTC: row.CreatedAt.Unix(),
		})
	}
	return entries, nil
}

func (store *Store) readBalance(ctx context.Context, accountID string) (int64, error) {
	var account Account
	err := store.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Take(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrUnknownAccount)
		}
		return 0, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return account.Balance, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
