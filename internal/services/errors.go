package services

import (
	"errors"
	"strings"
)

var (
	// ErrAuthentication means the mail credential is missing, invalid or
	// expired. It is the only error that aborts a scan.
	ErrAuthentication = errors.New("authentication failed")
	// ErrRetrieval means the mail provider failed for a reason other than
	// the credential.
	ErrRetrieval = errors.New("mail retrieval failed")
	// ErrExtraction means the language model call or its output failed.
	ErrExtraction = errors.New("extraction failed")
	// ErrPersistence means a record could not be read or written.
	ErrPersistence = errors.New("persistence failed")
	// ErrValidation means the request was rejected without any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means the record does not exist for this user.
	ErrNotFound = errors.New("not found")
)

// Detail returns the message of err without the leading sentinel text, for
// showing to API clients.
func Detail(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{ErrAuthentication, ErrRetrieval, ErrExtraction, ErrPersistence, ErrValidation, ErrNotFound} {
		if errors.Is(err, sentinel) {
			if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
				return rest
			}
		}
	}
	return msg
}
