package manager

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindNotFound ErrorKind = iota
	KindConflict
	KindNotRunning
	KindValidation
	KindStartFailure
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindNotRunning:
		return "NotRunning"
	case KindValidation:
		return "ValidationError"
	case KindStartFailure:
		return "StartFailure"
	case KindTimeout:
		return "Timeout"
	}
	return "Unknown"
}

// BotError is the tagged error returned by every manager operation. The Kind
// is stable and suitable for mapping to transport status codes by the caller.
type BotError struct {
	Kind ErrorKind
	UIN  string
	Err  error
}

func (e *BotError) Error() string {
	if e.UIN != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Kind, e.UIN, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *BotError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a BotError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var be *BotError
	return errors.As(err, &be) && be.Kind == kind
}

func notFound(uin, what string) *BotError {
	return &BotError{Kind: KindNotFound, UIN: uin, Err: errors.New(what + " not found")}
}

func conflict(uin, msg string) *BotError {
	return &BotError{Kind: KindConflict, UIN: uin, Err: errors.New(msg)}
}

func notRunning(uin string) *BotError {
	return &BotError{Kind: KindNotRunning, UIN: uin, Err: errors.New("bot is not running")}
}

func validation(uin, msg string) *BotError {
	return &BotError{Kind: KindValidation, UIN: uin, Err: errors.New(msg)}
}

func startFailure(uin string, err error) *BotError {
	return &BotError{Kind: KindStartFailure, UIN: uin, Err: err}
}

func timeout(uin string, err error) *BotError {
	return &BotError{Kind: KindTimeout, UIN: uin, Err: err}
}
