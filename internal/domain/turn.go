package domain

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SourceRef points at a chunk an answer was grounded on, trimmed for display.
type SourceRef struct {
	Source  string
	Page    *int
	Snippet string
}

// Turn is one message in a conversation. Assistant turns may carry the
// chunks that were retrieved to produce them.
type Turn struct {
	Role      Role
	Content   string
	Sources   []SourceRef
	CreatedAt time.Time
}

// Transcript is the user-facing, append-only history of a session. It is
// display-only and unbounded, unlike the engine's token-capped memory.
type Transcript struct {
	turns []Turn
}

// Append adds a turn to the end of the transcript.
func (t *Transcript) Append(turn Turn) {
	t.turns = append(t.turns, turn)
}

// Turns returns a copy of the transcript in arrival order.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns recorded.
func (t *Transcript) Len() int {
	return len(t.turns)
}
