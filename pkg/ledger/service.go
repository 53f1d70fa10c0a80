package ledger

import (
	"context"
	"fmt"
)

// Service contains the domain logic over a Store.
type Service struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Reserve deducts cost from the account balance if and only if the balance
// covers it, writing the reservation entry in the same transaction. A failed
// condition returns Granted=false with no mutation; concurrent callers racing
// for the last credits never oversubscribe the balance.
func (service *Service) Reserve(ctx context.Context, userID UserID, cost Amount, reason Reason) (ReserveResult, error) {
	var result ReserveResult
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetOrCreateAccount(ctx, userID.String())
		if err != nil {
			return err
		}
		balance, deducted, err := transactionStore.DeductBalanceIfAvailable(ctx, account.AccountID, cost.Int64())
		if err != nil {
			return err
		}
		if !deducted {
			result = ReserveResult{Granted: false, BalanceAfter: balance}
			return nil
		}
		entry := Entry{
			AccountID:      account.AccountID,
			Kind:           EntryReservation,
			Delta:          -cost.Int64(),
			BalanceAfter:   balance,
			Reason:         reason.String(),
			CreatedUnixUTC: service.nowFn(),
		}
		if err := transactionStore.InsertEntry(ctx, entry); err != nil {
			return err
		}
		result = ReserveResult{Granted: true, BalanceAfter: balance}
		return nil
	})
	status := ""
	if operationError == nil && !result.Granted {
		status = operationStatusInsufficient
	}
	service.logOperation(ctx, OperationLog{
		Operation:    operationReserve,
		UserID:       userID,
		Amount:       cost,
		Reason:       reason,
		BalanceAfter: result.BalanceAfter,
		Status:       status,
		Error:        operationError,
	})
	return result, operationError
}

// Refund credits the full amount back unconditionally and writes the refund
// entry in the same transaction. The caller must guarantee at most one refund
// per reservation; the ledger does not deduplicate.
func (service *Service) Refund(ctx context.Context, userID UserID, amount Amount, reason Reason) (int64, error) {
	balanceAfter, operationError := service.credit(ctx, userID, amount, reason, EntryRefund)
	service.logOperation(ctx, OperationLog{
		Operation:    operationRefund,
		UserID:       userID,
		Amount:       amount,
		Reason:       reason,
		BalanceAfter: balanceAfter,
		Error:        operationError,
	})
	return balanceAfter, operationError
}

// TopUp adds purchased or granted credits to the account.
func (service *Service) TopUp(ctx context.Context, userID UserID, amount Amount, reason Reason) (int64, error) {
	balanceAfter, operationError := service.credit(ctx, userID, amount, reason, EntryTopUp)
	service.logOperation(ctx, OperationLog{
		Operation:    operationTopUp,
		UserID:       userID,
		Amount:       amount,
		Reason:       reason,
		BalanceAfter: balanceAfter,
		Error:        operationError,
	})
	return balanceAfter, operationError
}

// Balance returns the current credit balance for a user.
func (service *Service) Balance(ctx context.Context, userID UserID) (int64, error) {
	account, err := service.store.GetOrCreateAccount(ctx, userID.String())
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// History lists the most recent ledger entries for a user.
func (service *Service) History(ctx context.Context, userID UserID, limit int) ([]Entry, error) {
	account, err := service.store.GetOrCreateAccount(ctx, userID.String())
	if err != nil {
		return nil, err
	}
	return service.store.ListEntries(ctx, account.AccountID, limit)
}

func (service *Service) credit(ctx context.Context, userID UserID, amount Amount, reason Reason, kind EntryKind) (int64, error) {
	var balanceAfter int64
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetOrCreateAccount(ctx, userID.String())
		if err != nil {
			return err
		}
		balance, err := transactionStore.AddBalance(ctx, account.AccountID, amount.Int64())
		if err != nil {
			return err
		}
		entry := Entry{
			AccountID:      account.AccountID,
			Kind:           kind,
			Delta:          amount.Int64(),
			BalanceAfter:   balance,
			Reason:         reason.String(),
			CreatedUnixUTC: service.nowFn(),
		}
		if err := transactionStore.InsertEntry(ctx, entry); err != nil {
			return err
		}
		balanceAfter = balance
		return nil
	})
	return balanceAfter, operationError
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
