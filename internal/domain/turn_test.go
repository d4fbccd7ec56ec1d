package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranscript_AppendOrder(t *testing.T) {
	var tr Transcript
	tr.Append(Turn{Role: RoleUser, Content: "first"})
	tr.Append(Turn{Role: RoleAssistant, Content: "second"})
	tr.Append(Turn{Role: RoleUser, Content: "third"})

	turns := tr.Turns()
	assert.Len(t, turns, 3)
	assert.Equal(t, "first", turns[0].Content)
	assert.Equal(t, "second", turns[1].Content)
	assert.Equal(t, "third", turns[2].Content)
}

func TestTranscript_TurnsReturnsCopy(t *testing.T) {
	var tr Transcript
	tr.Append(Turn{Role: RoleUser, Content: "original"})

	turns := tr.Turns()
	turns[0].Content = "mutated"

	assert.Equal(t, "original", tr.Turns()[0].Content)
	assert.Equal(t, 1, tr.Len())
}
