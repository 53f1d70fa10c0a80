package ledger

import (
	"context"
	"sync"
	"testing"
)

func TestReserveGrantsAndWritesReservationEntry(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 10)
	service := mustNewService(test, store)
	userID := mustUserID(test, "user-123")

	result, err := service.Reserve(context.Background(), userID, mustAmount(test, 10), mustReason(test, "portrait generation"))
	if err != nil {
		test.Fatalf("reserve: %v", err)
	}
	if !result.Granted {
		test.Fatalf("expected grant")
	}
	if result.BalanceAfter != 0 {
		test.Fatalf("expected balance 0, got %d", result.BalanceAfter)
	}

	entries := store.snapshotEntries()
	if len(entries) != 1 {
		test.Fatalf("expected 1 ledger entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Kind != EntryReservation {
		test.Fatalf("expected reservation entry, got %s", entry.Kind)
	}
	if entry.Delta != -10 {
		test.Fatalf("expected delta -10, got %d", entry.Delta)
	}
	if entry.BalanceAfter != 0 {
		test.Fatalf("expected balance_after 0, got %d", entry.BalanceAfter)
	}
}

func TestReserveInsufficientFundsWritesNothing(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 3)
	service := mustNewService(test, store)
	userID := mustUserID(test, "reserve-low")

	result, err := service.Reserve(context.Background(), userID, mustAmount(test, 5), mustReason(test, "video generation"))
	if err != nil {
		test.Fatalf("reserve: %v", err)
	}
	if result.Granted {
		test.Fatalf("expected grant to be refused")
	}
	if result.BalanceAfter != 3 {
		test.Fatalf("expected balance unchanged at 3, got %d", result.BalanceAfter)
	}
	if entries := store.snapshotEntries(); len(entries) != 0 {
		test.Fatalf("expected no ledger entries, got %d", len(entries))
	}
}

func TestRefundRestoresReservedBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 10)
	service := mustNewService(test, store)
	userID := mustUserID(test, "refund-user")
	amount := mustAmount(test, 10)

	if _, err := service.Reserve(context.Background(), userID, amount, mustReason(test, "portrait generation")); err != nil {
		test.Fatalf("reserve: %v", err)
	}
	balanceAfter, err := service.Refund(context.Background(), userID, amount, mustReason(test, "generation failed"))
	if err != nil {
		test.Fatalf("refund: %v", err)
	}
	if balanceAfter != 10 {
		test.Fatalf("expected balance restored to 10, got %d", balanceAfter)
	}

	entries := store.snapshotEntries()
	if len(entries) != 2 {
		test.Fatalf("expected reservation+refund entries, got %d", len(entries))
	}
	var net int64
	for _, entry := range entries {
		net += entry.Delta
	}
	if net != 0 {
		test.Fatalf("expected zero net delta for the pair, got %d", net)
	}
	if entries[1].Kind != EntryRefund {
		test.Fatalf("expected refund entry, got %s", entries[1].Kind)
	}
}

func TestTopUpAppendsTopUpEntry(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 0)
	service := mustNewService(test, store)
	userID := mustUserID(test, "topup-user")

	balanceAfter, err := service.TopUp(context.Background(), userID, mustAmount(test, 30), mustReason(test, "credit pack purchase"))
	if err != nil {
		test.Fatalf("topup: %v", err)
	}
	if balanceAfter != 30 {
		test.Fatalf("expected balance 30, got %d", balanceAfter)
	}
	entries := store.snapshotEntries()
	if len(entries) != 1 || entries[0].Kind != EntryTopUp {
		test.Fatalf("expected one topup entry, got %+v", entries)
	}
}

func TestConcurrentReservesNeverOversubscribe(test *testing.T) {
	test.Parallel()
	const initialBalance = 25
	const callers = 100
	store := newStubStore(test, initialBalance)
	service := mustNewService(test, store)
	userID := mustUserID(test, "racer")
	amount := mustAmount(test, 1)
	reason := mustReason(test, "race")

	var wg sync.WaitGroup
	granted := make(chan bool, callers)
	for index := 0; index < callers; index++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := service.Reserve(context.Background(), userID, amount, reason)
			if err != nil {
				test.Errorf("reserve: %v", err)
				return
			}
			granted <- result.Granted
		}()
	}
	wg.Wait()
	close(granted)

	grantedCount := 0
	for wasGranted := range granted {
		if wasGranted {
			grantedCount++
		}
	}
	if grantedCount != initialBalance {
		test.Fatalf("expected exactly %d grants, got %d", initialBalance, grantedCount)
	}
	balance, err := service.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		test.Fatalf("expected balance 0 after exhaustion, got %d", balance)
	}
	if balance < 0 {
		test.Fatalf("balance went negative: %d", balance)
	}
}

func TestHistoryReplaysBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 0)
	service := mustNewService(test, store)
	userID := mustUserID(test, "history-user")

	if _, err := service.TopUp(context.Background(), userID, mustAmount(test, 20), mustReason(test, "signup grant")); err != nil {
		test.Fatalf("topup: %v", err)
	}
	if _, err := service.Reserve(context.Background(), userID, mustAmount(test, 5), mustReason(test, "portrait generation")); err != nil {
		test.Fatalf("reserve: %v", err)
	}
	if _, err := service.Refund(context.Background(), userID, mustAmount(test, 5), mustReason(test, "generation failed")); err != nil {
		test.Fatalf("refund: %v", err)
	}

	entries, err := service.History(context.Background(), userID, 10)
	if err != nil {
		test.Fatalf("history: %v", err)
	}
	if len(entries) != 3 {
		test.Fatalf("expected 3 entries, got %d", len(entries))
	}

	// Entries come newest-first; replay oldest-first.
	var replayed int64
	for index := len(entries) - 1; index >= 0; index-- {
		replayed += entries[index].Delta
		if replayed != entries[index].BalanceAfter {
			test.Fatalf("replay diverged at entry %d: computed %d, stored %d", index, replayed, entries[index].BalanceAfter)
		}
	}
	balance, err := service.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if replayed != balance {
		test.Fatalf("replayed balance %d does not match stored %d", replayed, balance)
	}
}

type recordingLogger struct {
	mu   sync.Mutex
	logs []OperationLog
}

func (logger *recordingLogger) LogOperation(ctx context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.logs = append(logger.logs, entry)
}

func TestReserveLogsInsufficientStatus(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 1)
	logger := &recordingLogger{}
	service := mustNewService(test, store, WithOperationLogger(logger))
	userID := mustUserID(test, "logged-user")

	if _, err := service.Reserve(context.Background(), userID, mustAmount(test, 2), mustReason(test, "video generation")); err != nil {
		test.Fatalf("reserve: %v", err)
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.logs) != 1 {
		test.Fatalf("expected 1 operation log, got %d", len(logger.logs))
	}
	if logger.logs[0].Status != operationStatusInsufficient {
		test.Fatalf("expected %q status, got %q", operationStatusInsufficient, logger.logs[0].Status)
	}
}
