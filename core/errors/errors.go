package errors

import stderrors "errors"

// Input validation. The transaction never reaches the ledger.
var (
	ErrMissingSender   = stderrors.New("input: sender address required")
	ErrMissingReceiver = stderrors.New("input: receiver address required")
	ErrNegativeAmount  = stderrors.New("input: negative amount")
	ErrInvalidToken    = stderrors.New("input: invalid token transfer")
	ErrInvalidGas      = stderrors.New("input: invalid gas fields")
	ErrMissingCode     = stderrors.New("input: code identifier required")
)

// Ledger errors.
var (
	ErrInsufficientFunds      = stderrors.New("ledger: insufficient funds")
	ErrInsufficientTokenFunds = stderrors.New("ledger: insufficient token funds")
	ErrInvalidRoyalties       = stderrors.New("ledger: royalties exceed 10000 basis points")
	ErrUnknownRevision        = stderrors.New("ledger: unknown revision")
)

// Dispatch errors.
var (
	ErrFunctionNotFound       = stderrors.New("invalid function (not found)")
	ErrContractNotFound       = stderrors.New("contract code not registered")
	ErrPaymentConflict        = stderrors.New("cannot transfer both MOAX and DCT")
	ErrNonPayable             = stderrors.New("function does not accept MOAX payment")
	ErrNonPayableToken        = stderrors.New("function does not accept DCT payment")
	ErrSingleTokenExpected    = stderrors.New("function expects single DCT payment")
	ErrBadTokenProvided       = stderrors.New("bad call value token provided")
	ErrTooManyTokenTransfers  = stderrors.New("too many DCT transfers")
	ErrCallStackOverflow      = stderrors.New("call stack overflow")
	ErrAccountAlreadyDeployed = stderrors.New("contract already deployed at address")
	ErrActionNotAllowed       = stderrors.New("action is not allowed")
	ErrContractPanic          = stderrors.New("execution failed: contract panicked")
)

// UserError is an explicit abort raised by entry-point logic. The message is
// preserved verbatim in the transaction result.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

// Signal builds a UserError with the given message.
func Signal(message string) error {
	return &UserError{Message: message}
}

// IsPaymentPolicy reports whether err is a payment policy violation.
func IsPaymentPolicy(err error) bool {
	return stderrors.Is(err, ErrPaymentConflict) ||
		stderrors.Is(err, ErrNonPayable) ||
		stderrors.Is(err, ErrNonPayableToken) ||
		stderrors.Is(err, ErrSingleTokenExpected) ||
		stderrors.Is(err, ErrBadTokenProvided) ||
		stderrors.Is(err, ErrTooManyTokenTransfers)
}

// IsInputError reports whether err belongs to the input validation class.
func IsInputError(err error) bool {
	return stderrors.Is(err, ErrMissingSender) ||
		stderrors.Is(err, ErrMissingReceiver) ||
		stderrors.Is(err, ErrNegativeAmount) ||
		stderrors.Is(err, ErrInvalidToken) ||
		stderrors.Is(err, ErrInvalidGas) ||
		stderrors.Is(err, ErrMissingCode)
}
