package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
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

// Error codes carried by AppError.
const (
	CodeConfig       = "CONFIG_ERROR"
	CodeInvalidInput = "INVALID_INPUT"
	CodeRender       = "RENDER_ERROR"
	CodeOCR          = "OCR_ERROR"
	CodeEmbedding    = "EMBEDDING_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeInternal     = "INTERNAL_ERROR"
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrConfig       = errors.New("invalid configuration")
	ErrRender       = errors.New("page rendering failed")
	ErrOCR          = errors.New("ocr failed")
	ErrEmbedding    = errors.New("embedding failed")
	ErrDatabase     = errors.New("database error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// GRPCStatus converts any error into a gRPC status error using the AppError code when present.
func GRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return status.Error(codes.Internal, err.Error())
	}
	switch appErr.Code {
	case CodeInvalidInput:
		return status.Error(codes.InvalidArgument, appErr.Message)
	case CodeNotFound:
		return status.Error(codes.NotFound, appErr.Message)
	case CodeEmbedding:
		return status.Error(codes.Unavailable, appErr.Error())
	default:
		return status.Error(codes.Internal, appErr.Error())
	}
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}
