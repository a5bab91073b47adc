package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFormatConsoleArgs(t *testing.T) {
	tests := []struct {
		name string
		args []Value
		want string
	}{
		{"empty", nil, ""},
		{"strings", []Value{"a", "b"}, "a b"},
		{"numbers", []Value{1.0, 2.5, 1e21}, "1 2.5 1e+21"},
		{"literals", []Value{true, nil, Undefined}, "true null undefined"},
		{"object", []Value{map[string]Value{"k": []Value{1.0, Undefined}}}, `{"k":[1,null]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatConsoleArgs(tt.args))
		})
	}
}

func TestConsoleSinkLogsAndForwards(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var got []LogEntry

	sink := newConsoleSink(zap.New(core), BackendNative, func(e LogEntry) {
		got = append(got, e)
	})
	sink([]Value{"hi", 2.0})
	sink(nil)

	require.Len(t, got, 2)
	assert.Equal(t, "hi 2", got[0].Message)
	assert.Equal(t, "", got[1].Message)

	entries := logs.FilterMessage("sandbox console").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "hi 2", entries[0].ContextMap()["message"])
	assert.Equal(t, "native", entries[0].ContextMap()["backend"])
}

func TestConsoleSinkWithoutHook(t *testing.T) {
	sink := newConsoleSink(zap.NewNop(), BackendInterpreted, nil)
	assert.NotPanics(t, func() { sink([]Value{"x"}) })
}
