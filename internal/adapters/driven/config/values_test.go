package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "abc", String("abc"))
	assert.Equal(t, "42", String(int64(42)))
	assert.Equal(t, "true", String(true))
	assert.Equal(t, "", String(nil))
	assert.Equal(t, "", String([]string{"a"}))
}

func TestInt(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{42, 42},
		{int64(2000), 2000},
		{float64(7.9), 7},
		{" 300 ", 300},
		{"abc", 0},
		{nil, 0},
		{true, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Int(tt.in), "input %v", tt.in)
	}
}

func TestFloat(t *testing.T) {
	assert.InDelta(t, 0.35, Float(0.35), 1e-9)
	assert.InDelta(t, 2.0, Float(int64(2)), 1e-9)
	assert.InDelta(t, 0.5, Float("0.5"), 1e-9)
	assert.Zero(t, Float("yarım"))
	assert.Zero(t, Float(nil))
}

func TestBool(t *testing.T) {
	assert.True(t, Bool(true))
	assert.True(t, Bool("true"))
	assert.True(t, Bool("1"))
	assert.False(t, Bool("false"))
	assert.False(t, Bool("evet"))
	assert.False(t, Bool(1))
}

func TestStringSlice(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, StringSlice([]string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, StringSlice([]any{"a", 3, "b"}))
	assert.Equal(t, []string{"company_documents", "learned_knowledge"},
		StringSlice(" company_documents, learned_knowledge ,"))
	assert.Nil(t, StringSlice(""))
	assert.Nil(t, StringSlice(5))
}
