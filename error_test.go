package onetable

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "validation with type and field",
			err:      &ValidationError{Type: "User", Field: "ID", Code: MultiplePartitionKeys, Message: "partition key is already mapped"},
			expected: "MultiplePartitionKeys: User.ID: partition key is already mapped",
		},
		{
			name:     "validation with type",
			err:      &ValidationError{Type: "User", Code: MissingPartitionKey, Message: "no field is mapped to the partition key"},
			expected: "MissingPartitionKey: User: no field is mapped to the partition key",
		},
		{
			name:     "configuration",
			err:      &ValidationError{Code: InvalidConfiguration, Message: "PKName is required"},
			expected: "InvalidConfiguration: PKName is required",
		},
		{
			name:     "missing converter",
			err:      &ConversionError{Type: reflect.TypeFor[[]int](), Field: "Scores"},
			expected: `field "Scores": no converter registered for type []int`,
		},
		{
			name:     "failed conversion",
			err:      &ConversionError{Type: reflect.TypeFor[int](), Err: errors.New("boom")},
			expected: "failed to convert int: boom",
		},
		{
			name:     "compilation",
			err:      compileErrorf("Age", "%s is not supported", OpBetween),
			expected: `cannot compile predicate on field "Age": Between is not supported`,
		},
		{
			name:     "compilation without field",
			err:      compileErrorf("", "predicate is empty"),
			expected: "cannot compile predicate: predicate is empty",
		},
		{
			name:     "condition failed",
			err:      &ConditionFailedError{Operation: "put"},
			expected: "condition check failed for put operation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	wrapped := func(err error) error { return fmt.Errorf("outer: %w", err) }

	assert.True(t, IsValidationError(wrapped(&ValidationError{})))
	assert.True(t, IsConversionError(wrapped(&ConversionError{})))
	assert.True(t, IsCompilationError(wrapped(&CompilationError{})))
	assert.True(t, IsConditionFailed(wrapped(&ConditionFailedError{})))

	assert.False(t, IsValidationError(&CompilationError{}))
	assert.False(t, IsConditionFailed(ErrItemNotFound))

	cause := errors.New("bad digit")
	assert.ErrorIs(t, &ConversionError{Err: cause}, cause)
}

func TestClassifyError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, classifyError("put", nil))
	})

	t.Run("conditional check failed", func(t *testing.T) {
		cause := &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		err := classifyError("put", fmt.Errorf("operation error: %w", cause))

		assert.True(t, IsConditionFailed(err))
		var ccf *types.ConditionalCheckFailedException
		assert.ErrorAs(t, err, &ccf)

		var cfe *ConditionFailedError
		assert.ErrorAs(t, err, &cfe)
		assert.Equal(t, "put", cfe.Operation)
	})

	t.Run("transaction cancelled by condition", func(t *testing.T) {
		err := classifyError("transaction", &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("None")},
				{Code: aws.String("ConditionalCheckFailed")},
			},
		})
		assert.True(t, IsConditionFailed(err))
	})

	t.Run("transaction cancelled otherwise", func(t *testing.T) {
		cause := &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{{Code: aws.String("TransactionConflict")}},
		}
		err := classifyError("transaction", cause)
		assert.False(t, IsConditionFailed(err))
		assert.Same(t, cause, err)
	})

	t.Run("generic api error", func(t *testing.T) {
		err := classifyError("delete", &smithy.GenericAPIError{Code: "ConditionalCheckFailedException", Message: "failed"})
		assert.True(t, IsConditionFailed(err))
	})

	t.Run("other errors pass through", func(t *testing.T) {
		cause := &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException"}
		assert.Same(t, cause, classifyError("get", cause))
	})
}
