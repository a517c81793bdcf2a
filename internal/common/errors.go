package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors for payloads and schema files.
	ErrorValidation    = errors.New("validation error")
	ErrorUnknownTable  = errors.New("unknown table")
	ErrorUnknownColumn = errors.New("unknown column")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// ErrConfigInitialized is returned when process configuration is
	// installed a second time.
	ErrConfigInitialized = errors.New("config already initialized")
)

// UnhandledError wraps a storage or transport failure that has no
// dedicated sentinel. Message is meant for humans; Err keeps the cause.
type UnhandledError struct {
	Message string
	Err     error
}

func (e *UnhandledError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *UnhandledError) Unwrap() error {
	return e.Err
}

// Unhandled builds an *UnhandledError, returning nil when err is nil.
func Unhandled(msg string, err error) error {
	if err == nil {
		return nil
	}
	return &UnhandledError{Message: msg, Err: err}
}

// UploadErrorCode maps an error returned while applying an upload row to
// the wire code reported back to the client.
func UploadErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrorNotFound):
		return CodeRecordNotFound
	case errors.Is(err, ErrorAlreadyExists):
		return CodeRecordAlreadyExists
	default:
		return CodeUnknown
	}
}
