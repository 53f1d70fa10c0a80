package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

// stubStore keeps one account in memory. The mutex stands in for the
// storage-layer atomicity of the conditional update.
type stubStore struct {
	mu        sync.Mutex
	accountID string
	userID    string
	balance   int64
	entries   []Entry

	failDeduct bool
	failInsert bool
	failCredit bool
}

func newStubStore(test *testing.T, balance int64) *stubStore {
	test.Helper()
	return &stubStore{accountID: "acct-1", balance: balance}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) GetOrCreateAccount(ctx context.Context, userID string) (Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.userID = userID
	return Account{AccountID: store.accountID, UserID: userID, Balance: store.balance}, nil
}

func (store *stubStore) DeductBalanceIfAvailable(ctx context.Context, accountID string, cost int64) (int64, bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failDeduct {
		return 0, false, fmt.Errorf("stub: deduct failed")
	}
	if store.balance < cost {
		return store.balance, false, nil
	}
	store.balance -= cost
	return store.balance, true, nil
}

func (store *stubStore) AddBalance(ctx context.Context, accountID string, amount int64) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failCredit {
		return 0, fmt.Errorf("stub: credit failed")
	}
	store.balance += amount
	return store.balance, nil
}

func (store *stubStore) InsertEntry(ctx context.Context, entry Entry) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failInsert {
		return fmt.Errorf("stub: insert failed")
	}
	entry.EntryID = fmt.Sprintf("entry-%d", len(store.entries)+1)
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) ListEntries(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	listed := make([]Entry, 0, len(store.entries))
	for index := len(store.entries) - 1; index >= 0 && len(listed) < limit; index-- {
		listed = append(listed, store.entries[index])
	}
	return listed, nil
}

func (store *stubStore) snapshotEntries() []Entry {
	store.mu.Lock()
	defer store.mu.Unlock()
	copied := make([]Entry, len(store.entries))
	copy(copied, store.entries)
	return copied
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 1700000000 }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id %q: %v", raw, err)
	}
	return userID
}

func mustAmount(test *testing.T, raw int64) Amount {
	test.Helper()
	amount, err := NewAmount(raw)
	if err != nil {
		test.Fatalf("amount %d: %v", raw, err)
	}
	return amount
}

func mustReason(test *testing.T, raw string) Reason {
	test.Helper()
	reason, err := NewReason(raw)
	if err != nil {
		test.Fatalf("reason %q: %v", raw, err)
	}
	return reason
}
