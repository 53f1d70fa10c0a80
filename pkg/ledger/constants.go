package ledger

const (
	operationReserve = "reserve"
	operationRefund  = "refund"
	operationTopUp   = "topup"

	operationStatusOK           = "ok"
	operationStatusError        = "error"
	operationStatusInsufficient = "insufficient_funds"
)
