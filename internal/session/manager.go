package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dirchat/dirchat/internal/domain"
	"github.com/dirchat/dirchat/internal/index"
	"github.com/dirchat/dirchat/internal/ingest"
	"github.com/dirchat/dirchat/internal/service"
	"github.com/dirchat/dirchat/internal/telemetry"
	"github.com/dirchat/dirchat/internal/tokenizer"
	"github.com/google/uuid"
)

// ClientFactory builds the embedding and generation clients for a
// credential. Sessions may carry their own key; the server key is the
// fallback.
type ClientFactory func(apiKey string) (index.Embedder, service.LLM)

// BuilderFactory builds the index builder used for a processing run. The
// session ID lets store-backed builders key their rows.
type BuilderFactory func(embedder index.Embedder, sessionID string) service.IndexBuilder

// MemoryBuilderFactory indexes in process memory; the default.
func MemoryBuilderFactory(embedder index.Embedder, _ string) service.IndexBuilder {
	return service.MemoryIndexBuilder{Builder: index.NewBuilder(embedder)}
}

// ManagerConfig controls session behavior.
type ManagerConfig struct {
	// APIKey is the server-wide credential used when a session has none.
	APIKey string
	// TopK and Mode configure retrieval.
	TopK int
	Mode index.Mode
	// MemoryTokenBudget caps replayed conversation history.
	MemoryTokenBudget int
	// IdleTTL is how long an untouched session survives.
	IdleTTL time.Duration
	// Cleanup drops externally stored state for a session, such as
	// persisted chunk embeddings. Called on reset, remove, and reaping;
	// may be nil.
	Cleanup func(ctx context.Context, sessionID string) error
}

// Manager owns all live sessions and runs the pipeline on their behalf.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	cfg      ManagerConfig
	ingestor service.Ingestor
	splitter service.Splitter
	counter  tokenizer.Counter
	clients  ClientFactory
	builders BuilderFactory

	now func() time.Time
}

// NewManager creates a session manager.
func NewManager(
	cfg ManagerConfig,
	ingestor service.Ingestor,
	splitter service.Splitter,
	counter tokenizer.Counter,
	clients ClientFactory,
	builders BuilderFactory,
) *Manager {
	if builders == nil {
		builders = MemoryBuilderFactory
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		ingestor: ingestor,
		splitter: splitter,
		counter:  counter,
		clients:  clients,
		builders: builders,
		now:      time.Now,
	}
}

// Create starts a new session. The apiKey overrides the server credential
// for this session only and may be empty.
func (m *Manager) Create(apiKey string) *Session {
	now := m.now()
	s := &Session{
		ID:         uuid.New().String(),
		CreatedAt:  now,
		apiKey:     apiKey,
		lastActive: now,
	}
	s.transcript.Append(domain.Turn{
		Role:      domain.RoleAssistant,
		Content:   welcomeGreeting,
		CreatedAt: now,
	})

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// Remove deletes a session and all its state. Stored state is dropped
// outside the lock so a slow cleanup never stalls other sessions.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	m.dropStored(id)
	return nil
}

// Reset clears a session's uploads, index, and conversation, keeping the
// session itself (and its credential) alive.
func (m *Manager) Reset(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.reset(m.now())
	m.dropStored(id)
	return nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// AddDocuments stages uploaded files on the session for the next
// processing run.
func (m *Manager) AddDocuments(id string, files []ingest.File) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return domain.ErrNoFilesUploaded
	}
	s.addFiles(files, m.now())
	return nil
}

// Process runs the pipeline over the session's staged uploads and installs
// a fresh engine on success. A failing run changes nothing: the previous
// index, conversation memory, and transcript all stay as they were. The
// credential is checked before any file is touched.
func (m *Manager) Process(ctx context.Context, id string) (*service.ProcessResult, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "Manager.Process", telemetry.SpanAttributes{
		SessionID: s.ID,
		Operation: "process",
		Files:     len(s.stagedFiles()),
	})
	defer span.End()

	key := m.resolveKey(s)
	if key == "" {
		return nil, domain.ErrMissingCredential
	}

	files := s.stagedFiles()
	if len(files) == 0 {
		return nil, domain.ErrNoFilesUploaded
	}

	embedder, llm := m.clients(key)
	processor := service.NewProcessor(m.ingestor, m.splitter, m.builders(embedder, s.ID))

	result, err := processor.Process(ctx, files)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	engine := service.NewEngine(
		embedder,
		result.Searcher,
		llm,
		service.NewMemory(m.counter, m.cfg.MemoryTokenBudget),
		service.EngineConfig{TopK: m.cfg.TopK, Mode: m.cfg.Mode},
	)

	// Only files that actually made it into the index are announced.
	skipped := make(map[string]bool, len(result.Skipped))
	for _, fe := range result.Skipped {
		skipped[fe.Name] = true
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if skipped[f.Name] {
			continue
		}
		names = append(names, f.Name)
	}
	s.install(engine, names, m.now())

	log.Printf("session %s: installed index over %d chunk(s)", s.ID, result.Chunks)
	return result, nil
}

// Ask answers a question against the session's index and records the
// exchange in the transcript. A failed turn records nothing.
func (m *Manager) Ask(ctx context.Context, id, question string) (*service.Answer, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "Manager.Ask", telemetry.SpanAttributes{
		SessionID: s.ID,
		Operation: "ask",
	})
	defer span.End()

	engine := s.currentEngine()
	if engine == nil {
		return nil, domain.ErrNoIndex
	}

	answer, err := engine.Ask(ctx, question)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.record(question, answer, m.now())
	return answer, nil
}

// ReapIdle removes sessions idle longer than the configured TTL and
// returns how many were removed. A zero TTL disables reaping.
func (m *Manager) ReapIdle() int {
	if m.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var reaped []string
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			delete(m.sessions, id)
			reaped = append(reaped, id)
		}
	}
	m.mu.Unlock()

	for _, id := range reaped {
		m.dropStored(id)
	}
	return len(reaped)
}

// dropStored best-effort removes a session's externally stored state.
func (m *Manager) dropStored(id string) {
	if m.cfg.Cleanup == nil {
		return
	}
	if err := m.cfg.Cleanup(context.Background(), id); err != nil {
		log.Printf("session %s: failed to drop stored state: %v", id, err)
	}
}

func (m *Manager) resolveKey(s *Session) string {
	if key := s.APIKey(); key != "" {
		return key
	}
	return m.cfg.APIKey
}
