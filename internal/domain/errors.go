package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeInvalidOperation  = "INVALID_OPERATION"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeIngestionFailure  = "INGESTION_FAILURE"
	ErrCodeEmbeddingFailure  = "EMBEDDING_FAILURE"
	ErrCodeIndexBuildFailure = "INDEX_BUILD_FAILURE"
	ErrCodeGenerationFailure = "GENERATION_FAILURE"
	ErrCodeMissingCredential = "MISSING_CREDENTIAL"
	ErrCodeNoIndex           = "NO_INDEX"
	ErrCodeRateLimited       = "RATE_LIMITED"
)

// Validation errors
var (
	ErrEmptyQuestion   = NewDomainError(ErrCodeValidation, "question cannot be empty")
	ErrNoFilesUploaded = NewDomainError(ErrCodeValidation, "no files uploaded")
)

// Not found errors
var (
	ErrSessionNotFound = NewDomainError(ErrCodeNotFound, "session not found")
)

// Pipeline errors
var (
	ErrMissingCredential = NewDomainError(ErrCodeMissingCredential, "no API key supplied")
	ErrNoIndex           = NewDomainError(ErrCodeNoIndex, "no index available, process documents first")
	ErrAnswerInFlight    = NewDomainError(ErrCodeInvalidOperation, "a question is already being answered")
)

// NewUnsupportedFormat builds the error reported for a file whose extension
// has no registered loader.
func NewUnsupportedFormat(name, ext string) *DomainError {
	return NewDomainError(ErrCodeUnsupportedFormat,
		fmt.Sprintf("unsupported format %q for file %q", ext, name))
}

// NewIngestionFailure wraps a loader-level parse or I/O error for a file.
func NewIngestionFailure(name string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeIngestionFailure,
		fmt.Sprintf("failed to load file %q", name), err)
}

// NewEmbeddingFailure wraps an embedding-service error.
func NewEmbeddingFailure(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeEmbeddingFailure, "embedding service failed", err)
}

// NewIndexBuildFailure wraps an index construction error.
func NewIndexBuildFailure(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeIndexBuildFailure, "index build failed", err)
}

// NewGenerationFailure wraps a language-model invocation error.
func NewGenerationFailure(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeGenerationFailure, "language model invocation failed", err)
}
