// Package storage holds the errors shared by the AccountStore implementations.
package storage

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrTxDone          = errors.New("unit of work already committed or rolled back")
)
