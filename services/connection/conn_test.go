package connection

import (
	"testing"

	"github.com/godror/godror"
	"github.com/stretchr/testify/assert"
)

type label string

func TestRow_Int64(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want int64
	}{
		{"int64", int64(42), 42},
		{"float", float64(3), 3},
		{"text", " 7 ", 7},
		{"decimal text", "-1.0", -1},
		{"godror number", godror.Number("-1"), -1},
		{"named string", label("12"), 12},
		{"null", nil, 0},
		{"garbage", "abc", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Row{"c": tt.v}.Int64("c"))
		})
	}
}

func TestRow_Bool(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"bool", true, true},
		{"int", int64(0), false},
		{"yes", "YES", true},
		{"n", "N", false},
		{"godror number", godror.Number("1"), true},
		{"named string", label("y"), true},
		{"null", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Row{"c": tt.v}.Bool("c"))
		})
	}
}
