package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: backend timeouts, connection refused.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: unknown task, invalid status transition, bad configuration.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates unexpected errors, bugs, or corrupted state.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

const (
	// Task lifecycle errors
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"             // Unknown or expired task
	ErrCodeInvalidTransition   ErrorCode = "INVALID_TRANSITION"    // Task already in a terminal status
	ErrCodeResultAlreadyStored ErrorCode = "RESULT_ALREADY_STORED" // Second result write
	ErrCodeNoResultStored      ErrorCode = "NO_RESULT_STORED"      // Result read before completion
	ErrCodeConfiguration       ErrorCode = "CONFIGURATION"         // Invalid store options
	ErrCodeInvalidStatus       ErrorCode = "INVALID_STATUS"        // Unknown status value
	ErrCodeInvalidCursor       ErrorCode = "INVALID_CURSOR"        // Malformed pagination cursor
	ErrCodeInvalidInput        ErrorCode = "INVALID_INPUT"         // Malformed payload
	ErrCodeClosed              ErrorCode = "CLOSED"                // Component already shut down

	// Collaborator errors
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Persistent store failed
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Operation timed out
	ErrCodeCanceled    ErrorCode = "CANCELED"    // Context canceled

	// Internal errors
	ErrCodeInternal   ErrorCode = "INTERNAL"   // Unexpected internal error
	ErrCodeCorruption ErrorCode = "CORRUPTION" // Stored record could not be decoded
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeUnavailable, ErrCodeTimeout:
		return CategoryTransient

	case ErrCodeNotFound, ErrCodeInvalidTransition, ErrCodeResultAlreadyStored,
		ErrCodeNoResultStored, ErrCodeConfiguration, ErrCodeInvalidStatus,
		ErrCodeInvalidCursor, ErrCodeInvalidInput, ErrCodeClosed, ErrCodeCanceled:
		return CategoryPermanent

	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeNotFound:            "task not found",
	ErrCodeInvalidTransition:   "task is in a terminal status",
	ErrCodeResultAlreadyStored: "result already stored",
	ErrCodeNoResultStored:      "no result stored",
	ErrCodeConfiguration:       "invalid configuration",
	ErrCodeInvalidStatus:       "invalid task status",
	ErrCodeInvalidCursor:       "invalid cursor",
	ErrCodeInvalidInput:        "invalid input provided",
	ErrCodeClosed:              "component closed",
	ErrCodeUnavailable:         "persistent store unavailable",
	ErrCodeTimeout:             "operation timed out",
	ErrCodeCanceled:            "operation canceled",
	ErrCodeInternal:            "internal error",
	ErrCodeCorruption:          "stored record is corrupt",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
