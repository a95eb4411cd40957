package mcpmgr

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by a Client.
type ErrorKind string

const (
	KindConfig         ErrorKind = "config"
	KindNotInitialized ErrorKind = "not_initialized"
	KindConnection     ErrorKind = "connection"
	KindCall           ErrorKind = "call"
)

var (
	// ErrInvalidConfig matches configuration errors.
	ErrInvalidConfig = errors.New("mcpmgr: invalid configuration")
	// ErrNotInitialized matches operations attempted before Connect.
	ErrNotInitialized = errors.New("mcpmgr: server not initialized, call Connect first")
	// ErrConnectionFailed matches failed Connect attempts.
	ErrConnectionFailed = errors.New("mcpmgr: connection failed")
	// ErrCallFailed matches failed tools/list and tools/call exchanges.
	ErrCallFailed = errors.New("mcpmgr: call failed")
)

// Error is returned by Client operations. Err holds the underlying cause, so
// errors.Is and errors.As see through to transport and protocol errors.
type Error struct {
	Server string
	Kind   ErrorKind
	Op     string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("mcpmgr: %s %s", e.Op, e.Server)
	switch e.Kind {
	case KindNotInitialized:
		msg += ": server not initialized, call Connect first"
	case KindConnection:
		msg += ": connection failed"
	case KindConfig:
		msg += ": invalid configuration"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the package sentinels by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidConfig:
		return e.Kind == KindConfig
	case ErrNotInitialized:
		return e.Kind == KindNotInitialized
	case ErrConnectionFailed:
		return e.Kind == KindConnection
	case ErrCallFailed:
		return e.Kind == KindCall
	}
	return false
}

func configError(server string, err error) error {
	return &Error{Server: server, Kind: KindConfig, Op: "configure", Err: err}
}
