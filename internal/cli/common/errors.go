package common

import (
	"github.com/crmarques/catalogsync/faults"
)

func ValidationError(message string, cause error) error {
	return faults.NewTypedError(faults.ValidationError, message, cause)
}

func InternalError(message string, cause error) error {
	return faults.NewTypedError(faults.InternalError, message, cause)
}
