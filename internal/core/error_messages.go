package core

// error_messages.go maps technical errors to user-friendly messages with
// codes for support reference.
//
// # Dataset Errors (DS001-DS099)
//
//	DS001 - Not found: The dataset or import does not exist
//	        Action: Check the id, or list datasets to find it
//	        Sentinel: ErrNotFound
//
//	DS002 - Invalid id: The identifier is malformed
//	        Action: Use the id exactly as returned by a save
//	        Sentinel: ErrInvalidID
//
//	DS003 - Save incomplete: The save produced no dataset or import id
//	        Action: Please try again or contact support
//	        Sentinel: ErrNoIdentifiers
//
//	DS004 - Save busy: Too many saves in progress
//	        Action: Please wait a moment and try again
//	        Sentinel: ErrTooManySaves
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A record with this ID already exists
//	        Patterns: "duplicate key", "unique constraint"
//
//	DB004 - Connection refused: Unable to connect to database
//	        Patterns: "connection refused", "no such host"
//
//	DB005 - Connection reset: Database connection was interrupted
//	        Patterns: "connection reset", "broken pipe"
//
//	DB006 - Timeout: Operation timed out
//	        Patterns: "timeout"
//
//	DB007 - Busy: Database was busy with conflicting operations
//	        Patterns: "deadlock", "database is locked"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Bad request body: The request body is not valid JSON
//	         Patterns: "invalid request body"
//
//	REQ002 - Request cancelled: Request was cancelled
//	         Patterns: "context canceled"
//
//	REQ003 - Request timeout: Request timed out
//	         Patterns: "context deadline exceeded"
//
//	REQ004 - Rate limited: Too many requests
//	         Patterns: "rate limit"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// Sentinels are checked first with errors.Is. Patterns are then matched
// case-insensitively with strings.Contains; the first match wins, so
// specific patterns come before general ones.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

// sentinelMessages are checked in order; ErrInvalidID must precede
// ErrNotFound since it wraps it.
var sentinelMessages = []sentinelMessage{
	{
		err: ErrInvalidID,
		msg: UserMessage{
			Message: "The identifier is malformed",
			Action:  "Use the id exactly as returned by a save",
			Code:    "DS002",
		},
	},
	{
		err: ErrNotFound,
		msg: UserMessage{
			Message: "The dataset or import does not exist",
			Action:  "Check the id, or list datasets to find it",
			Code:    "DS001",
		},
	},
	{
		err: ErrNoIdentifiers,
		msg: UserMessage{
			Message: "The save did not complete",
			Action:  "Please try again or contact support",
			Code:    "DS003",
		},
	},
	{
		err: ErrTooManySaves,
		msg: UserMessage{
			Message: "System is busy processing other saves",
			Action:  "Please wait a moment and try again",
			Code:    "DS004",
		},
	},
	{
		err: context.Canceled,
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ002",
		},
	},
	{
		err: context.DeadlineExceeded,
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller page or try again later",
			Code:    "REQ003",
		},
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Database constraint errors.
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Retry the save; a new id will be generated",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Retry the save; a new id will be generated",
			Code:    "DB001",
		},
	},

	// Database connection errors.
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "no such host",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "broken pipe",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller page or try again later",
			Code:    "REQ003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller save or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// Request errors.
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The request body is not valid",
			Action:  "Send a JSON object with options and rows",
			Code:    "REQ001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "REQ004",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000). Support staff
// should check application logs for the original technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	msg := MapError(fmt.Errorf("dataset %s: %w", id, ErrNotFound))
//	// msg.Code == "DS001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-friendly message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
