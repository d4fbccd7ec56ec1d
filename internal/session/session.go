// Package session tracks conversations and their per-session pipeline
// state: the uploaded corpus's index, the answering engine, and the
// display transcript.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/dirchat/dirchat/internal/domain"
	"github.com/dirchat/dirchat/internal/ingest"
	"github.com/dirchat/dirchat/internal/service"
)

// Session is one conversation. The engine is nil until documents have
// been processed; the transcript records every turn for display and is
// never trimmed.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	apiKey     string
	uploads    []ingest.File
	engine     *service.Engine
	transcript domain.Transcript
	lastActive time.Time
}

// Greeting returned when a session is created, before any documents exist.
const welcomeGreeting = "Hello! Upload your documents and I'll answer questions about them."

// APIKey returns the session's own credential, if one was supplied.
func (s *Session) APIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey
}

// Transcript returns a copy of the session's display history.
func (s *Session) Transcript() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Turns()
}

// Ready reports whether documents have been processed into an index.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine != nil
}

// LastActive returns the time of the session's last use.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touch(now time.Time) {
	s.lastActive = now
}

// addFiles stages uploads for the next processing run.
func (s *Session) addFiles(files []ingest.File, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, files...)
	s.touch(now)
}

// stagedFiles snapshots the current upload set.
func (s *Session) stagedFiles() []ingest.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ingest.File, len(s.uploads))
	copy(out, s.uploads)
	return out
}

// currentEngine snapshots the installed engine under the session lock.
func (s *Session) currentEngine() *service.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// install swaps in a freshly built engine and greets the user with the
// processed file names. The previous engine, if any, is discarded whole;
// a failed build never reaches this point.
func (s *Session) install(engine *service.Engine, fileNames []string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.engine = engine
	s.transcript.Append(domain.Turn{
		Role:      domain.RoleAssistant,
		Content:   "You can now ask me anything about " + strings.Join(fileNames, ", ") + ".",
		CreatedAt: now,
	})
	s.touch(now)
}

// reset discards the session's uploads, index, engine, and transcript,
// re-seeding the greeting. The session ID and credential survive.
func (s *Session) reset(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.uploads = nil
	s.engine = nil
	s.transcript = domain.Transcript{}
	s.transcript.Append(domain.Turn{
		Role:      domain.RoleAssistant,
		Content:   welcomeGreeting,
		CreatedAt: now,
	})
	s.touch(now)
}

// record appends a completed question/answer pair to the transcript.
func (s *Session) record(question string, answer *service.Answer, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcript.Append(domain.Turn{
		Role:      domain.RoleUser,
		Content:   question,
		CreatedAt: now,
	})
	s.transcript.Append(domain.Turn{
		Role:      domain.RoleAssistant,
		Content:   answer.Text,
		Sources:   answer.Sources,
		CreatedAt: now,
	})
	s.touch(now)
}
