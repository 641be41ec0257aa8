package faults

import "errors"

type ErrorCategory string

const (
	ValidationError ErrorCategory = "ValidationError"
	NotFoundError   ErrorCategory = "NotFoundError"
	ConflictError   ErrorCategory = "ConflictError"
	AuthError       ErrorCategory = "AuthError"
	TransportError  ErrorCategory = "TransportError"
	InternalError   ErrorCategory = "InternalError"

	ReferenceResolutionError ErrorCategory = "ReferenceResolutionError"
	CacheBuildError          ErrorCategory = "CacheBuildError"
	ConflictRetryError       ErrorCategory = "ConflictRetryExhausted"
	RemoteCallError          ErrorCategory = "RemoteCallError"
)

type TypedError struct {
	Category ErrorCategory
	Message  string
	Cause    error
}

func (e *TypedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message != "" && e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Category)
}

func (e *TypedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewTypedError(category ErrorCategory, message string, cause error) *TypedError {
	return &TypedError{
		Category: category,
		Message:  message,
		Cause:    cause,
	}
}

// IsCategory reports whether the outermost typed error in err's chain has the
// given category.
func IsCategory(err error, category ErrorCategory) bool {
	if err == nil {
		return false
	}

	var typedErr *TypedError
	if !errors.As(err, &typedErr) {
		return false
	}
	return typedErr.Category == category
}

// HasCategory reports whether any typed error in err's chain has the given
// category. Wrapping errors such as RemoteCallError keep the transport cause
// reachable this way.
func HasCategory(err error, category ErrorCategory) bool {
	for err != nil {
		var typedErr *TypedError
		if !errors.As(err, &typedErr) {
			return false
		}
		if typedErr.Category == category {
			return true
		}
		err = typedErr.Cause
	}
	return false
}

func CategoryOf(err error) ErrorCategory {
	var typedErr *TypedError
	if !errors.As(err, &typedErr) {
		return ""
	}
	return typedErr.Category
}
