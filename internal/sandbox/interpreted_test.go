package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpretedRejectsES2015Syntax(t *testing.T) {
	_, err := NewInterpreted(Options{Env: "let a = 1;"})
	var ierr *InitializationError
	assert.ErrorAs(t, err, &ierr)
}

func TestInterpretedTimeoutIsUncatchable(t *testing.T) {
	engine, err := NewInterpreted(Options{})
	require.NoError(t, err)
	defer engine.Dispose()

	_, err = engine.Evaluate(context.Background(),
		"var i = 0; try { while (true) { i++; } } catch (e) { 'caught' }",
		nil, EvaluateOptions{Timeout: 100 * time.Millisecond})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestInterpretedDeepRecursionIsBounded(t *testing.T) {
	engine, err := NewInterpreted(Options{MemoryLimitMB: 16, Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer engine.Dispose()

	_, err = engine.Evaluate(context.Background(), "function f(n) { return f(n + 1) + 1; } f(0)", nil, EvaluateOptions{})
	assert.True(t, IsResourceError(err), "got %v", err)
}

func TestSplitErrorName(t *testing.T) {
	tests := []struct {
		in, name, msg string
	}{
		{"TypeError: boom", "TypeError", "boom"},
		{"ReferenceError: 'a' is not defined", "ReferenceError", "'a' is not defined"},
		{"RangeError", "RangeError", ""},
		{"some message: with colon", "Error", "some message: with colon"},
		{"plain", "Error", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, msg := splitErrorName(tt.in)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.msg, msg)
		})
	}
}
