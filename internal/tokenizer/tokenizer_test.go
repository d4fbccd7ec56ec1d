package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApproxCounter_Deterministic(t *testing.T) {
	c := ApproxCounter{}
	text := "The capital of Korea is Seoul."

	first := c.Count(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, c.Count(text))
	}
}

func TestApproxCounter_Counts(t *testing.T) {
	c := ApproxCounter{}

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "   \n\t", 0},
		{"single word", "hello", 1},
		{"words and period", "hello world.", 3},
		{"punctuation splits", "a,b", 3},
		{"multiline", "one two\nthree", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Count(tt.text))
		})
	}
}

func TestApproxCounter_MonotonicUnderConcatenation(t *testing.T) {
	c := ApproxCounter{}
	a := "first part of the text."
	b := "second part, with more words."

	assert.GreaterOrEqual(t, c.Count(a+" "+b), c.Count(a))
	assert.GreaterOrEqual(t, c.Count(a+" "+b), c.Count(b))
}

func TestNewTiktokenCounter_DefaultEncoding(t *testing.T) {
	c := NewTiktokenCounter("")
	assert.Equal(t, DefaultEncoding, c.encoding)
}
