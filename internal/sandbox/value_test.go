package sandbox

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	type point struct{ X, Y int }
	s := "pointed"

	tests := []struct {
		name   string
		input  any
		want   Value
		wantOK bool
	}{
		{"nil", nil, nil, true},
		{"string", "x", "x", true},
		{"int", 3, 3.0, true},
		{"int64", int64(-4), -4.0, true},
		{"uint16", uint16(5), 5.0, true},
		{"float32", float32(0.5), 0.5, true},
		{"bool", true, true, true},
		{"json number", json.Number("12.5"), 12.5, true},
		{"bad json number", json.Number("x"), nil, false},
		{"pointer", &s, "pointed", true},
		{"nil pointer", (*string)(nil), nil, true},
		{"nil slice", []string(nil), nil, true},
		{"nil map", map[string]any(nil), nil, true},
		{"function", func() {}, nil, false},
		{"channel", make(chan int), nil, false},
		{"complex", complex(1, 2), nil, false},
		{"big int", big.NewInt(1), nil, false},
		{"big float value", *big.NewFloat(1), nil, false},
		{"undefined", Undefined, nil, false},
		{"struct", point{1, 2}, nil, false},
		{"int keyed map", map[int]string{1: "a"}, nil, false},
		{"fixed array", [2]int{1, 2}, []Value{1.0, 2.0}, true},
		{
			"slice with omitted element",
			[]any{"a", func() {}, Undefined, 1},
			[]Value{"a", Undefined, Undefined, 1.0},
			true,
		},
		{
			"map drops omitted values",
			map[string]any{"keep": "x", "fn": func() {}, "big": big.NewInt(2)},
			map[string]Value{"keep": "x"},
			true,
		},
		{
			"nested",
			map[string]any{"list": []map[string]int{{"n": 1}}},
			map[string]Value{"list": []Value{map[string]Value{"n": 1.0}}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNormalizeDepthLimit(t *testing.T) {
	var deep any = "leaf"
	for i := 0; i < maxDepth+10; i++ {
		deep = []any{deep}
	}

	got, ok := Normalize(deep)
	assert.True(t, ok)

	depth := 0
	for {
		list, isList := got.([]Value)
		if !isList {
			break
		}
		depth++
		got = list[0]
	}
	assert.True(t, IsUndefined(got))
	assert.LessOrEqual(t, depth, maxDepth+1)
}

func TestUndefinedJSON(t *testing.T) {
	b, err := json.Marshal(map[string]any{"u": Undefined, "list": []any{1, Undefined}})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"u": null, "list": [1, null]}`, string(b))
	assert.Equal(t, "undefined", Undefined.(interface{ String() string }).String())
}
