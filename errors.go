package onetable

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

var (
	// ErrItemNotFound is returned when an item is not found in DynamoDB operations.
	ErrItemNotFound = errors.New("item not found")

	// ErrValidation is matched by every [ValidationError].
	ErrValidation = errors.New("validation failed")

	// ErrConversion is matched by every [ConversionError].
	ErrConversion = errors.New("conversion failed")

	// ErrCompilation is matched by every [CompilationError].
	ErrCompilation = errors.New("predicate compilation failed")

	// ErrConditionFailed is returned when a write's condition expression evaluated to false.
	ErrConditionFailed = errors.New("condition check failed")

	// ErrUnableToContinue is returned when a continuation token carries no last evaluated key.
	ErrUnableToContinue = errors.New("unable to continue")
)

// ValidationCode identifies the rule a mapping or configuration broke.
type ValidationCode string

const (
	MissingPartitionKey          ValidationCode = "MissingPartitionKey"
	MultiplePartitionKeys        ValidationCode = "MultiplePartitionKeys"
	MultipleSortKeys             ValidationCode = "MultipleSortKeys"
	DuplicateAttributeName       ValidationCode = "DuplicateAttributeName"
	IndexCountTooLow             ValidationCode = "IndexCountTooLow"
	MissingItemTypeAttributeName ValidationCode = "MissingItemTypeAttributeName"
	InvalidField                 ValidationCode = "InvalidField"
	InvalidConfiguration         ValidationCode = "InvalidConfiguration"
)

// ValidationError reports a static schema or configuration problem.
type ValidationError struct {
	Type    string         // Item type name, empty for configuration errors
	Field   string         // Offending field, if any
	Code    ValidationCode // Broken rule
	Message string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Type != "" && e.Field != "":
		return fmt.Sprintf("%s: %s.%s: %s", e.Code, e.Type, e.Field, e.Message)
	case e.Type != "":
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Type, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConversionError reports a value that could not be converted to or from the wire.
// A nil Err means no converter was registered for Type.
type ConversionError struct {
	Type  reflect.Type
	Field string
	Err   error
}

func (e *ConversionError) Error() string {
	var msg string
	if e.Err == nil {
		msg = fmt.Sprintf("no converter registered for type %v", e.Type)
	} else {
		msg = fmt.Sprintf("failed to convert %v: %v", e.Type, e.Err)
	}
	if e.Field != "" {
		return fmt.Sprintf("field %q: %s", e.Field, msg)
	}
	return msg
}

func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// CompilationError reports a predicate that cannot be compiled into a store expression.
type CompilationError struct {
	Field   string
	Message string
}

func (e *CompilationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("cannot compile predicate on field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("cannot compile predicate: %s", e.Message)
}

func (e *CompilationError) Is(target error) bool {
	return target == ErrCompilation
}

func compileErrorf(field, format string, args ...any) error {
	return &CompilationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConditionFailedError wraps the store's condition failure for a write operation.
type ConditionFailedError struct {
	Operation string
	Err       error
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("condition check failed for %s operation", e.Operation)
}

func (e *ConditionFailedError) Is(target error) bool {
	return target == ErrConditionFailed
}

func (e *ConditionFailedError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is a [ValidationError].
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConversionError reports whether err is a [ConversionError].
func IsConversionError(err error) bool {
	return errors.Is(err, ErrConversion)
}

// IsCompilationError reports whether err is a [CompilationError].
func IsCompilationError(err error) bool {
	return errors.Is(err, ErrCompilation)
}

// IsConditionFailed reports whether err signals a failed write condition.
func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}

// classifyError maps store condition failures onto ErrConditionFailed so that callers
// never inspect transport errors. Other errors are returned unchanged.
func classifyError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return &ConditionFailedError{Operation: operation, Err: err}
	}

	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return &ConditionFailedError{Operation: operation, Err: err}
			}
		}
		return err
	}

	var ae smithy.APIError
	if errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException" {
		return &ConditionFailedError{Operation: operation, Err: err}
	}

	return err
}
