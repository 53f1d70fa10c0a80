package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/lucentmedia/genstudio/pkg/ledger"
)

// LedgerAuditLogger implements ledger.OperationLogger. Every state-changing
// ledger operation is logged and published to the broker as an audit event.
type LedgerAuditLogger struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewLedgerAuditLogger returns an audit logger over the given publisher.
func NewLedgerAuditLogger(publisher Publisher, logger *zap.Logger) *LedgerAuditLogger {
	if publisher == nil {
		publisher = Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerAuditLogger{publisher: publisher, logger: logger}
}

type ledgerOperationEvent struct {
	Operation    string `json:"operation"`
	UserID       string `json:"userId"`
	Amount       int64  `json:"amount"`
	Reason       string `json:"reason"`
	BalanceAfter int64  `json:"balanceAfter"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// LogOperation records one ledger operation. Publishing is best-effort; a
// broker outage must never fail a ledger call.
func (audit *LedgerAuditLogger) LogOperation(ctx context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.Int64("amount", entry.Amount.Int64()),
		zap.String("status", entry.Status),
		zap.Int64("balance_after", entry.BalanceAfter),
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		audit.logger.Warn("ledger operation", fields...)
	} else {
		audit.logger.Info("ledger operation", fields...)
	}

	event := ledgerOperationEvent{
		Operation:    entry.Operation,
		UserID:       entry.UserID.String(),
		Amount:       entry.Amount.Int64(),
		Reason:       entry.Reason.String(),
		BalanceAfter: entry.BalanceAfter,
		Status:       entry.Status,
	}
	if entry.Error != nil {
		event.Error = entry.Error.Error()
	}
	if publishError := audit.publisher.Publish(ctx, TopicLedgerOperations, event); publishError != nil {
		audit.logger.Warn("ledger audit event not published", zap.Error(publishError))
	}
}
