package ledger

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the ways a transfer can fail. A duplicate tx hash is
// not an error; see StatusSkipped.
type ErrorKind int

const (
	KindStore ErrorKind = iota + 1
	KindInsufficientFunds
	KindAccountNotFound
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindStore:
		return "store"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindAccountNotFound:
		return "account_not_found"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

var (
	ErrStore             = errors.New("store error")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrOther             = errors.New("unexpected transfer state")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindStore:
		return ErrStore
	case KindInsufficientFunds:
		return ErrInsufficientFunds
	case KindAccountNotFound:
		return ErrAccountNotFound
	default:
		return ErrOther
	}
}

// TransferError is the single error type returned by the transfer protocol.
// Address is set for InsufficientFunds and AccountNotFound, Reason for Other,
// Err for Store.
type TransferError struct {
	Kind    ErrorKind
	Address string
	Reason  string
	Err     error
}

func (e *TransferError) Error() string {
	switch e.Kind {
	case KindStore:
		return fmt.Sprintf("store error: %v", e.Err)
	case KindInsufficientFunds:
		return fmt.Sprintf("insufficient funds account(%s)", e.Address)
	case KindAccountNotFound:
		return fmt.Sprintf("account not found: %s", e.Address)
	default:
		return fmt.Sprintf("unknown error: %s", e.Reason)
	}
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrInsufficientFunds) and friends match by kind.
func (e *TransferError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the kind of a TransferError anywhere in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}

func storeError(err error) error {
	return &TransferError{Kind: KindStore, Err: err}
}

func insufficientFunds(address string) error {
	return &TransferError{Kind: KindInsufficientFunds, Address: address}
}

func accountNotFound(address string) error {
	return &TransferError{Kind: KindAccountNotFound, Address: address}
}

func otherError(reason string) error {
	return &TransferError{Kind: KindOther, Reason: reason}
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ErrorKind) UnmarshalText(text []byte) error {
	for _, kind := range []ErrorKind{KindStore, KindInsufficientFunds, KindAccountNotFound, KindOther} {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", text)
}
