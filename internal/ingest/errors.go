package ingest

import "fmt"

// ErrorKind identifies the distinct failure modes surfaced at the
// ingest boundary. The HTTP status mapping lives in the API router.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation_error"
	KindSourceNotFound   ErrorKind = "source_not_found"
	KindSourceInactive   ErrorKind = "source_inactive"
	KindMissingSignature ErrorKind = "missing_signature"
	KindInvalidSignature ErrorKind = "invalid_signature"
	KindStorage          ErrorKind = "storage_error"
	KindBroker           ErrorKind = "broker_error"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func newSourceNotFoundError(name string) *Error {
	return &Error{Kind: KindSourceNotFound, Message: fmt.Sprintf("source %q not found", name)}
}

func newSourceInactiveError(name string) *Error {
	return &Error{Kind: KindSourceInactive, Message: fmt.Sprintf("source %q is inactive", name)}
}

func newMissingSignatureError() *Error {
	return &Error{Kind: KindMissingSignature, Message: "signature is missing"}
}

func newInvalidSignatureError() *Error {
	return &Error{Kind: KindInvalidSignature, Message: "signature does not match"}
}

func newStorageError(err error) *Error {
	return &Error{Kind: KindStorage, Message: "storage failure", Err: err}
}

func newBrokerError(err error) *Error {
	return &Error{Kind: KindBroker, Message: "broker publish failure", Err: err}
}
