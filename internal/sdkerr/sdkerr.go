// Package sdkerr provides the typed error taxonomy from spec §7.
//
// Every failure the core can surface carries a stable machine-readable Code
// alongside a human-readable Message and, where applicable, a wrapped cause.
// This mirrors the teacher's internal/errors.AppError (stable Code, optional
// wrapped Details, constructor-per-kind) minus the HTTP-status field: the
// core itself never serves HTTP, and no package in this module maps these
// codes to HTTP statuses (cmd/teststub writes its own plain JSON errors).
package sdkerr

import "fmt"

// Code is a stable, machine-readable error identifier.
type Code string

// Token/claim error codes (spec §7).
const (
	CodeMissingToken       Code = "MISSING_TOKEN"
	CodeMalformedToken     Code = "MALFORMED_TOKEN"
	CodeDecodeError        Code = "DECODE_ERROR"
	CodeInvalidSignature   Code = "INVALID_SIGNATURE"
	CodeMissingClaim       Code = "MISSING_CLAIM"
	CodeInvalidClaim       Code = "INVALID_CLAIM"
	CodeApplicationMismatch Code = "APPLICATION_MISMATCH"
	CodeSessionExpired     Code = "SESSION_EXPIRED"
)

// Protocol error codes.
const (
	CodeBackendValidationFailed Code = "BACKEND_VALIDATION_FAILED"
	CodeSessionInvalid          Code = "SESSION_INVALID"
	CodeHeartbeatFailed         Code = "HEARTBEAT_FAILED"
	CodeExtensionFailed         Code = "EXTENSION_FAILED"
	CodeCompletionFailed        Code = "COMPLETION_FAILED"
)

// Control error codes.
const (
	CodeNotInitialized Code = "NOT_INITIALIZED"
	CodeNoSession       Code = "NO_SESSION"
	CodeHookTimeout     Code = "HOOK_TIMEOUT"
	CodeHookError       Code = "HOOK_ERROR"
)

// Error is the concrete error type returned by every package in this module.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, sdkerr.New(code, "")) to match on Code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New constructs an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an *Error around an existing error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the Code from err, or "" if err is not (or does not wrap) an *Error.
func CodeOf(err error) Code {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return ""
	}
	return e.Code
}

// Constructors for the token/claim kinds (spec §4.1, §4.2).

func MissingToken() *Error { return New(CodeMissingToken, "no session token present in URL or storage") }

func MalformedToken(reason string) *Error {
	return New(CodeMalformedToken, "token does not have exactly three segments: "+reason)
}

func DecodeError(err error) *Error {
	return Wrap(CodeDecodeError, "token segment is not base64url-decodable UTF-8 JSON", err)
}

func InvalidSignature(err error) *Error {
	return Wrap(CodeInvalidSignature, "token signature did not validate against the configured key set", err)
}

func MissingClaim(name string) *Error {
	return New(CodeMissingClaim, "required claim is absent: "+name)
}

func InvalidClaim(reason string) *Error {
	return New(CodeInvalidClaim, reason)
}

func ApplicationMismatch(expected, got string) *Error {
	return New(CodeApplicationMismatch, fmt.Sprintf("applicationId %q does not match expected %q", got, expected))
}

func SessionExpired() *Error { return New(CodeSessionExpired, "token exp claim is in the past") }

// Constructors for the protocol kinds (spec §6, §7).

func BackendValidationFailed(err error) *Error {
	return Wrap(CodeBackendValidationFailed, "validate endpoint request failed", err)
}

func SessionInvalid(serverError string) *Error {
	return New(CodeSessionInvalid, "server rejected the session: "+serverError)
}

func HeartbeatFailed(err error) *Error {
	return Wrap(CodeHeartbeatFailed, "heartbeat request failed", err)
}

func ExtensionFailed(err error) *Error {
	return Wrap(CodeExtensionFailed, "renew endpoint request failed", err)
}

func CompletionFailed(err error) *Error {
	return Wrap(CodeCompletionFailed, "complete endpoint request failed", err)
}

// Constructors for the control kinds.

func NotInitialized() *Error {
	return New(CodeNotInitialized, "controller has not completed Initialize()")
}

func NoSession() *Error { return New(CodeNoSession, "no active session record") }

func HookTimeout(hook string) *Error {
	return New(CodeHookTimeout, fmt.Sprintf("hook %q did not resolve within its timeout", hook))
}

func HookError(hook string, err error) *Error {
	return Wrap(CodeHookError, fmt.Sprintf("hook %q returned an error", hook), err)
}
