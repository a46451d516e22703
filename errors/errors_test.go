package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPattern(t *testing.T) {
	err := Wrap(ErrProcessorFailed, "Orchestrator", "StartPreProcessing", "await result")
	require.Error(t, err)
	assert.Equal(t, "Orchestrator.StartPreProcessing: await result failed: processor returned no result", err.Error())
	assert.True(t, Is(err, ErrProcessorFailed))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class ErrorClass
	}{
		{"transient", WrapTransient(ErrConnectionLost, "Client", "Publish", "send"), ErrorTransient},
		{"invalid", WrapInvalid(ErrInvalidDefinition, "Engine", "Transform", "validate"), ErrorInvalid},
		{"fatal", WrapFatal(ErrShuttingDown, "Runtime", "Start", "init"), ErrorFatal},
		{"unclassified defaults to transient", fmt.Errorf("boom"), ErrorTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.class, Classify(tt.err))
		})
	}
}

func TestClassificationPredicates(t *testing.T) {
	invalid := WrapInvalid(ErrDecodeFailed, "Envelope", "Decode", "unmarshal")
	assert.True(t, IsInvalid(invalid))
	assert.False(t, IsTransient(invalid))
	assert.False(t, IsFatal(invalid))
	assert.False(t, IsInvalid(nil))
}

func TestClassSurvivesWrapping(t *testing.T) {
	inner := WrapInvalid(ErrInvalidCondition, "Condition", "Evaluate", "parse threshold")
	outer := fmt.Errorf("labeling case 7: %w", inner)
	assert.True(t, IsInvalid(outer))

	var ce *ClassifiedError
	require.True(t, As(outer, &ce))
	assert.Equal(t, "Condition", ce.Component)
	assert.Equal(t, "Evaluate", ce.Operation)
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}
