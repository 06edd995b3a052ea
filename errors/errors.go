package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Authentication failures. A handshake rejected with one of these never
// created any registry state.
var (
	ErrNoSession    = fmt.Errorf("no authenticated session")
	ErrCSRFMismatch = fmt.Errorf("csrf fingerprint mismatch")
	ErrUserNotFound = fmt.Errorf("user not found")
	ErrBanned       = fmt.Errorf("user is banned")
)

// Validation failures, reported to the offending sender only.
var (
	ErrMissingRoom           = fmt.Errorf("room is missing")
	ErrInvalidRoomFormat     = fmt.Errorf("invalid room format")
	ErrInvalidTargetNickname = fmt.Errorf("invalid target nickname")
	ErrSelfMessage           = fmt.Errorf("cannot send a private message to yourself")
	ErrEmptyMessage          = fmt.Errorf("message text is empty")
)

// Policy failures.
var (
	ErrUserMuted  = fmt.Errorf("user is muted")
	ErrUserBanned = fmt.Errorf("user is banned from posting")
)

// Not-found failures.
var (
	ErrChannelNotFound = fmt.Errorf("channel not found")
	ErrTargetNotInRoom = fmt.Errorf("target user is not in the room")
)

// Infrastructure failures.
var (
	ErrJoinRoomFailed  = fmt.Errorf("join room failed")
	ErrBreakerOpen     = fmt.Errorf("circuit breaker is open")
	ErrRateLimited     = fmt.Errorf("rate limit exceeded")
	ErrSinkClosed      = fmt.Errorf("connection sink is closed")
	ErrDeliveryTimeout = fmt.Errorf("event delivery timed out")
	ErrWorkerPanic     = fmt.Errorf("worker panic")
)

// Storage and credential failures.
var (
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrSessionNotFound    = fmt.Errorf("session not found")
	ErrCacheMiss          = fmt.Errorf("cache miss")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
)

// storeOutcomes are negative answers the store computed and returned: the
// dependency worked. Breakers must not mistake them for dependency failures,
// or one client's bad input degrades the store for everyone.
var storeOutcomes = []error{
	ErrUserNotFound,
	ErrChannelNotFound,
	ErrSessionNotFound,
	ErrUserAlreadyExists,
	ErrCacheMiss,
}

// IsStoreOutcome reports whether err is a business result rather than a
// dependency failure.
func IsStoreOutcome(err error) bool {
	for _, o := range storeOutcomes {
		if stderrors.Is(err, o) {
			return true
		}
	}
	return false
}

// BanError carries the ban details emitted to the socket before the
// handshake is rejected.
type BanError struct {
	Reason  string
	Expires *time.Time
}

func (e *BanError) Error() string {
	if e.Expires != nil {
		return fmt.Sprintf("banned until %s: %s", e.Expires.Format(time.RFC3339), e.Reason)
	}
	return fmt.Sprintf("banned: %s", e.Reason)
}

func (e *BanError) Unwrap() error { return ErrBanned }

// Code is the machine-readable identifier carried on wire error events.
type Code string

const (
	CodeNoSession             Code = "NO_SESSION"
	CodeCSRFMismatch          Code = "CSRF_MISMATCH"
	CodeUserNotFound          Code = "USER_NOT_FOUND"
	CodeBanned                Code = "BANNED"
	CodeMissingRoom           Code = "MISSING_ROOM"
	CodeInvalidRoomFormat     Code = "INVALID_ROOM_FORMAT"
	CodeInvalidTargetNickname Code = "INVALID_TARGET_NICKNAME"
	CodeSelfMessage           Code = "SELF_MESSAGE_NOT_ALLOWED"
	CodeEmptyMessage          Code = "EMPTY_MESSAGE"
	CodeUserMuted             Code = "USER_MUTED"
	CodeUserBanned            Code = "USER_BANNED"
	CodeChannelNotFound       Code = "CHANNEL_NOT_FOUND"
	CodeTargetNotInRoom       Code = "TARGET_USER_NOT_IN_ROOM"
	CodeJoinRoomFailed        Code = "JOIN_ROOM_FAILED"
	CodeRateLimited           Code = "RATE_LIMITED"
	CodeUserAlreadyExists     Code = "USER_ALREADY_EXISTS"
	CodeInvalidCredentials    Code = "INVALID_CREDENTIALS"
	CodeTokenGeneration       Code = "TOKEN_GENERATION_FAILED"
	CodeInternal              Code = "INTERNAL"
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrNoSession, CodeNoSession},
	{ErrCSRFMismatch, CodeCSRFMismatch},
	{ErrUserNotFound, CodeUserNotFound},
	{ErrBanned, CodeBanned},
	{ErrMissingRoom, CodeMissingRoom},
	{ErrInvalidRoomFormat, CodeInvalidRoomFormat},
	{ErrInvalidTargetNickname, CodeInvalidTargetNickname},
	{ErrSelfMessage, CodeSelfMessage},
	{ErrEmptyMessage, CodeEmptyMessage},
	{ErrUserMuted, CodeUserMuted},
	{ErrUserBanned, CodeUserBanned},
	{ErrChannelNotFound, CodeChannelNotFound},
	{ErrTargetNotInRoom, CodeTargetNotInRoom},
	{ErrJoinRoomFailed, CodeJoinRoomFailed},
	{ErrRateLimited, CodeRateLimited},
	{ErrUserAlreadyExists, CodeUserAlreadyExists},
	{ErrInvalidCredentials, CodeInvalidCredentials},
	{ErrTokenGeneration, CodeTokenGeneration},
}

// CodeOf maps an error chain to its wire code. Unknown errors are reported
// as INTERNAL so infrastructure details never leak to clients.
func CodeOf(err error) Code {
	for _, c := range codes {
		if stderrors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
