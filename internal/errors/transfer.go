package errors

// Failure codes persisted on transfers that end in a non-COMPLETED state.
const (
	FailureExpired           = "EXPIRED"
	FailureCardState         = "CARD_STATE"
	FailureInsufficientFunds = "INSUFFICIENT_FUNDS"
	FailureCanceled          = "CANCELED"
)

// Failure messages paired with the codes above.
const (
	FailureExpiredMessage           = "Transfer expired"
	FailureCardStateMessage         = "Card is blocked or expired"
	FailureInsufficientFundsMessage = "Insufficient funds"
	FailureCanceledMessage          = "Canceled by user"
)

var (
	ErrInsufficientFunds = &DomainError{
		Kind:    KindInsufficientFunds,
		Code:    "INSUFFICIENT_FUNDS",
		Message: "insufficient funds",
	}
	ErrInvalidAmount = &DomainError{
		Kind:    KindBadRequest,
		Code:    "INVALID_AMOUNT",
		Message: "amount must be positive",
	}
	ErrTransferNotFound = &DomainError{
		Kind:    KindNotFound,
		Code:    "TRANSFER_NOT_FOUND",
		Message: "transfer not found",
	}
	ErrCardNotFound = &DomainError{
		Kind:    KindNotFound,
		Code:    "CARD_NOT_FOUND",
		Message: "card not found",
	}
	ErrUserNotFound = &DomainError{
		Kind:    KindNotFound,
		Code:    "USER_NOT_FOUND",
		Message: "user not found",
	}
	ErrCardNotOwned = &DomainError{
		Kind:    KindOwnershipViolation,
		Code:    "CARD_NOT_OWNED",
		Message: "card does not belong to the user",
	}
	ErrNotInitiator = &DomainError{
		Kind:    KindOwnershipViolation,
		Code:    "NOT_INITIATOR",
		Message: "only the initiator can cancel the transfer",
	}
	ErrCardInactive = &DomainError{
		Kind:    KindInvalidState,
		Code:    "CARD_INACTIVE",
		Message: "card is not active",
	}
	ErrCardExpired = &DomainError{
		Kind:    KindExpired,
		Code:    "CARD_EXPIRED",
		Message: "card is expired",
	}
	ErrTransferNotPending = &DomainError{
		Kind:    KindInvalidState,
		Code:    "TRANSFER_NOT_PENDING",
		Message: "transfer is not pending",
	}
	ErrTransferExpired = &DomainError{
		Kind:    KindExpired,
		Code:    "TRANSFER_EXPIRED",
		Message: "transfer has expired",
	}
	ErrBalanceOverflow = &DomainError{
		Kind:    KindInvalidState,
		Code:    "BALANCE_OVERFLOW",
		Message: "destination balance would overflow",
	}
	ErrIdempotencyMismatch = &DomainError{
		Kind:    KindIdempotencyConflict,
		Code:    "IDEMPOTENCY_KEY_REUSED",
		Message: "idempotency key already used with different parameters",
	}
)
