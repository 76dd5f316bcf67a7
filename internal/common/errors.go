package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel registered for e.Code, so
// errors.Is(err, ErrSubmission) works without losing the underlying cause.
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}
	return codeSentinels[e.Code] == target
}

// Error codes. Submission, script and status failures are fatal to a drain;
// job and cleanup failures are recovered locally.
const (
	CodeSubmission  = "SUBMISSION_ERROR"
	CodeScriptWrite = "SCRIPT_WRITE_ERROR"
	CodeStatusParse = "STATUS_PARSE_ERROR"
	CodeJob         = "JOB_ERROR"
	CodeCleanup     = "CLEANUP_ERROR"
	CodeConfig      = "CONFIG_ERROR"
	CodeDatabase    = "DATABASE_ERROR"
)

// Common application errors
var (
	ErrSubmission   = errors.New("submission failed")
	ErrScriptWrite  = errors.New("script write failed")
	ErrStatusParse  = errors.New("status parse failed")
	ErrJob          = errors.New("job failed")
	ErrCleanup      = errors.New("cleanup failed")
	ErrInvalidInput = errors.New("invalid input")
	ErrDatabase     = errors.New("database error")
)

var codeSentinels = map[string]error{
	CodeSubmission:  ErrSubmission,
	CodeScriptWrite: ErrScriptWrite,
	CodeStatusParse: ErrStatusParse,
	CodeJob:         ErrJob,
	CodeCleanup:     ErrCleanup,
	CodeConfig:      ErrInvalidInput,
	CodeDatabase:    ErrDatabase,
}

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func SubmissionError(message string, cause error) error {
	return NewAppError(CodeSubmission, message, cause)
}

func ScriptWriteError(message string, cause error) error {
	return NewAppError(CodeScriptWrite, message, cause)
}

func StatusParseError(message string, cause error) error {
	return NewAppError(CodeStatusParse, message, cause)
}

func JobError(message string, cause error) error {
	return NewAppError(CodeJob, message, cause)
}

func CleanupError(message string, cause error) error {
	return NewAppError(CodeCleanup, message, cause)
}

// IsFatal reports whether err must abort the whole batch.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSubmission) ||
		errors.Is(err, ErrScriptWrite) ||
		errors.Is(err, ErrStatusParse)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
