package ledger

import (
	"errors"
	"testing"
)

func TestWrapErrorPreservesSentinel(test *testing.T) {
	test.Parallel()
	wrapped := WrapError("store", "account", "lookup", ErrUnknownAccount)
	if !errors.Is(wrapped, ErrUnknownAccount) {
		test.Fatalf("expected ErrUnknownAccount through wrap, got %v", wrapped)
	}
	var operationError OperationError
	if !errors.As(wrapped, &operationError) {
		test.Fatalf("expected OperationError, got %T", wrapped)
	}
	if operationError.Operation() != "store" || operationError.Subject() != "account" || operationError.Code() != "lookup" {
		test.Fatalf("unexpected segments: %s.%s.%s", operationError.Operation(), operationError.Subject(), operationError.Code())
	}
}

func TestWrapErrorNilPassthrough(test *testing.T) {
	test.Parallel()
	if WrapError("store", "entry", "insert", nil) != nil {
		test.Fatalf("expected nil for nil error")
	}
}
