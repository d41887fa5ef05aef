// Package domain provides shared domain-level error types for the A2A core.
//
// Every protocol error carries a stable machine-readable code, a human
// message, and optional structured detail. Wire bindings map codes to their
// own status values; they never invent new error semantics.
package domain

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable reason for a protocol error.
type Code string

const (
	CodeTaskNotFound                 Code = "task_not_found"
	CodeTaskNotCancelable            Code = "task_not_cancelable"
	CodePushNotificationNotSupported Code = "push_notification_not_supported"
	CodeUnsupportedOperation         Code = "unsupported_operation"
	CodeContentTypeNotSupported      Code = "content_type_not_supported"
	CodeInvalidAgentResponse         Code = "invalid_agent_response"
	CodeExtendedCardNotConfigured    Code = "extended_card_not_configured"
	CodeExtensionSupportRequired     Code = "extension_support_required"
	CodeVersionNotSupported          Code = "version_not_supported"
	CodeInvalidRequest               Code = "invalid_request"
)

// Error is a protocol error with a stable code and optional detail.
type Error struct {
	Code    Code
	Message string
	Detail  map[string]any
}

// Sentinel instances for errors.Is comparisons. Matching is by code, so a
// detail-carrying copy still matches its sentinel.
var (
	ErrTaskNotFound                 = &Error{Code: CodeTaskNotFound, Message: "task not found"}
	ErrTaskNotCancelable            = &Error{Code: CodeTaskNotCancelable, Message: "task cannot be canceled"}
	ErrPushNotificationNotSupported = &Error{Code: CodePushNotificationNotSupported, Message: "push notifications are not supported"}
	ErrUnsupportedOperation         = &Error{Code: CodeUnsupportedOperation, Message: "operation is not supported"}
	ErrContentTypeNotSupported      = &Error{Code: CodeContentTypeNotSupported, Message: "content type is not supported"}
	ErrInvalidAgentResponse         = &Error{Code: CodeInvalidAgentResponse, Message: "agent produced an invalid response"}
	ErrExtendedCardNotConfigured    = &Error{Code: CodeExtendedCardNotConfigured, Message: "extended agent card is not configured"}
	ErrExtensionSupportRequired     = &Error{Code: CodeExtensionSupportRequired, Message: "a required extension is not supported by the caller"}
	ErrVersionNotSupported          = &Error{Code: CodeVersionNotSupported, Message: "protocol version is not supported"}
	ErrInvalidRequest               = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
)

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so wrapped or detailed copies
// compare equal to their sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy of e with a more specific human message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...), Detail: e.Detail}
}

// WithDetail returns a copy of e with the given detail field added.
func (e *Error) WithDetail(key string, value any) *Error {
	detail := make(map[string]any, len(e.Detail)+1)
	for k, v := range e.Detail {
		detail[k] = v
	}
	detail[key] = value
	return &Error{Code: e.Code, Message: e.Message, Detail: detail}
}

// AsError extracts a protocol *Error from err, if one is present.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
