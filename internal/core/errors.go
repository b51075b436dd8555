package core

import "errors"

var (
	// ErrRelayClosed is returned when enqueueing onto a relay that has been torn down.
	ErrRelayClosed = errors.New("relay closed")
	// ErrRelayOverflow is returned when a bounded relay with the disconnect policy overflows.
	ErrRelayOverflow = errors.New("relay overflow")
	// ErrAlreadyRegistered is returned when an identity is registered twice.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrNotRegistered is returned when an operation targets an unknown identity.
	ErrNotRegistered = errors.New("not registered")
)
