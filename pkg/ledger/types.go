package ledger

import (
	"context"
	"fmt"
	"strings"
)

// UserID identifies an account owner.
type UserID struct {
	value string
}

// Amount is a strictly positive credit quantity.
type Amount int64

// Reason is a short human-readable label attached to a ledger entry.
type Reason struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewAmount validates an amount and ensures it is strictly positive.
func NewAmount(raw int64) (Amount, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return Amount(raw), nil
}

// Int64 returns the raw credit quantity.
func (amount Amount) Int64() int64 {
	return int64(amount)
}

// NewReason validates and normalizes an entry reason.
func NewReason(raw string) (Reason, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Reason{}, fmt.Errorf("%w: empty value", ErrInvalidReason)
	}
	return Reason{value: trimmed}, nil
}

// String returns the normalized reason.
func (reason Reason) String() string {
	return reason.value
}

// EntryKind enumerates ledger entry kinds.
type EntryKind string

const (
	EntryReservation EntryKind = "reservation"
	EntryRefund      EntryKind = "refund"
	EntryTopUp       EntryKind = "topup"
)

// ParseEntryKind validates a stored entry kind.
func ParseEntryKind(raw string) (EntryKind, error) {
	switch EntryKind(raw) {
	case EntryReservation, EntryRefund, EntryTopUp:
		return EntryKind(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntryKind, raw)
}

// String returns the kind as stored.
func (kind EntryKind) String() string {
	return string(kind)
}

// Account is the balance row for one principal. The balance is mutated
// only through ledger operations and never goes negative.
type Account struct {
	AccountID string
	UserID    string
	Balance   int64
}

// Entry is a single immutable line in the ledger. Entries are append-only;
// replaying them chronologically reproduces the account balance.
type Entry struct {
	EntryID        string
	AccountID      string
	Kind           EntryKind
	Delta          int64
	BalanceAfter   int64
	Reason         string
	CreatedUnixUTC int64
}

// ReserveResult reports the outcome of a reservation attempt.
// Granted=false is a normal signaled outcome, not an error.
type ReserveResult struct {
	Granted      bool
	BalanceAfter int64
}

// Store is the persistence contract used by Service. Atomicity of
// DeductBalanceIfAvailable must come from the storage layer, not from
// in-process locking: callers may run on different processes.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetOrCreateAccount(ctx context.Context, userID string) (Account, error)
	// DeductBalanceIfAvailable performs the single conditional update
	// (balance = balance - cost WHERE balance >= cost). deducted=false
	// means the condition failed and nothing was mutated; balance then
	// carries the current, unchanged value.
	DeductBalanceIfAvailable(ctx context.Context, accountID string, cost int64) (balance int64, deducted bool, err error)
	AddBalance(ctx context.Context, accountID string, amount int64) (balance int64, err error)
	InsertEntry(ctx context.Context, entry Entry) error
	ListEntries(ctx context.Context, accountID string, limit int) ([]Entry, error)
}
