package domain

import "errors"

// Kind classifies why an exchange operation was rejected.
type Kind int

const (
	KindUnknown Kind = iota
	KindSignatureInvalid
	KindOrderInvalid
	KindOrderAlreadyExecuted
	KindOrderWrongSides
	KindStrategyExecutionInvalid
	KindFeesHigherThanExpected
	KindRegistryRoyaltyFeeTooHigh
	KindRegistryRoyaltyReceiverInvalid
	KindOwnerRoyaltyFeeLimitTooHigh
	KindOwnerNotTheOwner
	KindSetterNotTheSetter
	KindNonceFloorNotIncreasing
	KindNonceCancelTooMany
	KindTransferFailed
)

var (
	ErrSignatureInvalid            = errors.New("Signature_Invalid")
	ErrOrderInvalid                = errors.New("Order_Invalid")
	ErrOrderAlreadyExecuted        = errors.New("Order_AlreadyExecuted")
	ErrOrderWrongSides             = errors.New("Order_WrongSides")
	ErrStrategyExecutionInvalid    = errors.New("Strategy_ExecutionInvalid")
	ErrFeesHigherThanExpected      = errors.New("Fees_HigherThanExpected")
	ErrRegistryRoyaltyFeeTooHigh   = errors.New("Registry_RoyaltyFeeTooHigh")
	ErrRegistryRoyaltyReceiver     = errors.New("Registry_RoyaltyReceiverInvalid")
	ErrOwnerRoyaltyFeeLimitTooHigh = errors.New("Owner_RoyaltyFeeLimitTooHigh")
	ErrOwnerNotTheOwner            = errors.New("Owner_NotTheOwner")
	ErrSetterNotTheSetter          = errors.New("Setter_NotTheSetter")
	ErrNonceFloorNotIncreasing     = errors.New("Nonce_FloorNotIncreasing")
	ErrNonceCancelTooMany          = errors.New("Nonce_CancelTooMany")
	ErrTransferFailed              = errors.New("Transfer_Failed")
)

var sentinels = map[Kind]error{
	KindSignatureInvalid:               ErrSignatureInvalid,
	KindOrderInvalid:                   ErrOrderInvalid,
	KindOrderAlreadyExecuted:           ErrOrderAlreadyExecuted,
	KindOrderWrongSides:                ErrOrderWrongSides,
	KindStrategyExecutionInvalid:       ErrStrategyExecutionInvalid,
	KindFeesHigherThanExpected:         ErrFeesHigherThanExpected,
	KindRegistryRoyaltyFeeTooHigh:      ErrRegistryRoyaltyFeeTooHigh,
	KindRegistryRoyaltyReceiverInvalid: ErrRegistryRoyaltyReceiver,
	KindOwnerRoyaltyFeeLimitTooHigh:    ErrOwnerRoyaltyFeeLimitTooHigh,
	KindOwnerNotTheOwner:               ErrOwnerNotTheOwner,
	KindSetterNotTheSetter:             ErrSetterNotTheSetter,
	KindNonceFloorNotIncreasing:        ErrNonceFloorNotIncreasing,
	KindNonceCancelTooMany:             ErrNonceCancelTooMany,
	KindTransferFailed:                 ErrTransferFailed,
}

// String returns the wire name of the kind (e.g. "Signature_Invalid").
func (k Kind) String() string {
	if s, ok := sentinels[k]; ok {
		return s.Error()
	}
	return "Unknown"
}

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// ExchangeError is a rejection of a specific Kind raised by operation Op.
// Err carries optional detail and is exposed through Unwrap.
type ExchangeError struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError creates an ExchangeError.
func NewError(kind Kind, op string, err error) *ExchangeError {
	return &ExchangeError{Kind: kind, Op: op, Err: err}
}

func (e *ExchangeError) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *ExchangeError) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// IsRetriable is true only for collaborator transfer failures; every other rejection is
// final for the given inputs.
func (e *ExchangeError) IsRetriable() bool {
	return e.Kind == KindTransferFailed
}

// KindOf extracts the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindUnknown
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrUnknownCollection is returned when a collection has no registered implementation.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrInsufficientBalance is returned when a currency debit exceeds the available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)
