package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dirchat/dirchat/internal/domain"
	"github.com/dirchat/dirchat/internal/index"
	"github.com/dirchat/dirchat/internal/ingest"
	"github.com/dirchat/dirchat/internal/openai"
	"github.com/dirchat/dirchat/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns the same unit vector for every text.
type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

// fakeLLM replies with a fixed answer.
type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) Generate(_ context.Context, _ []openai.Message) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// fakeIngestor returns one document per file; names listed in skip are
// reported as unsupported instead.
type fakeIngestor struct {
	err  error
	skip []string
}

func (f *fakeIngestor) Ingest(_ context.Context, files []ingest.File) ([]domain.Document, []domain.FileError, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	if len(files) == 0 {
		return nil, nil, domain.ErrNoFilesUploaded
	}
	var (
		docs    []domain.Document
		skipped []domain.FileError
	)
	for _, file := range files {
		if f.skips(file.Name) {
			skipped = append(skipped, domain.FileError{
				Name: file.Name,
				Err:  domain.NewUnsupportedFormat(file.Name, ".txt"),
			})
			continue
		}
		docs = append(docs, domain.Document{Content: "content of " + file.Name, Source: file.Name})
	}
	return docs, skipped, nil
}

func (f *fakeIngestor) skips(name string) bool {
	for _, s := range f.skip {
		if s == name {
			return true
		}
	}
	return false
}

// passthroughSplitter makes one chunk per document.
type passthroughSplitter struct{}

func (passthroughSplitter) Split(docs []domain.Document) []domain.Chunk {
	chunks := make([]domain.Chunk, len(docs))
	for i, d := range docs {
		chunks[i] = domain.Chunk{Content: d.Content, Source: d.Source, Page: d.Page}
	}
	return chunks
}

type testDeps struct {
	embedder *fakeEmbedder
	llm      *fakeLLM
	ingestor *fakeIngestor
}

func newTestManager(cfg ManagerConfig, deps *testDeps) *Manager {
	if deps.embedder == nil {
		deps.embedder = &fakeEmbedder{}
	}
	if deps.llm == nil {
		deps.llm = &fakeLLM{reply: "an answer"}
	}
	if deps.ingestor == nil {
		deps.ingestor = &fakeIngestor{}
	}
	clients := func(string) (index.Embedder, service.LLM) {
		return deps.embedder, deps.llm
	}
	return NewManager(cfg, deps.ingestor, passthroughSplitter{}, wordCounter{}, clients, nil)
}

// wordCounter counts whitespace-separated words.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func TestManager_CreateSeedsGreeting(t *testing.T) {
	m := newTestManager(ManagerConfig{APIKey: "sk-test"}, &testDeps{})

	s := m.Create("")
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.Ready())

	turns := s.Transcript()
	require.Len(t, turns, 1)
	assert.Equal(t, domain.RoleAssistant, turns[0].Role)
	assert.Contains(t, turns[0].Content, "Upload your documents")
}

func TestManager_GetUnknownSession(t *testing.T) {
	m := newTestManager(ManagerConfig{}, &testDeps{})
	_, err := m.Get("nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_ProcessAndAsk(t *testing.T) {
	deps := &testDeps{llm: &fakeLLM{reply: "The capital is Seoul."}}
	m := newTestManager(ManagerConfig{APIKey: "sk-test"}, deps)

	s := m.Create("")
	require.NoError(t, m.AddDocuments(s.ID, []ingest.File{{Name: "korea.pdf", Data: []byte("x")}}))

	result, err := m.Process(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, 1, result.Chunks)
	assert.True(t, s.Ready())

	// Processing announces the file names.
	turns := s.Transcript()
	require.Len(t, turns, 2)
	assert.Contains(t, turns[1].Content, "korea.pdf")

	answer, err := m.Ask(context.Background(), s.ID, "What is the capital of Korea?")
	require.NoError(t, err)
	assert.Equal(t, "The capital is Seoul.", answer.Text)

	turns = s.Transcript()
	require.Len(t, turns, 4)
	assert.Equal(t, domain.RoleUser, turns[2].Role)
	assert.Equal(t, "What is the capital of Korea?", turns[2].Content)
	assert.Equal(t, domain.RoleAssistant, turns[3].Role)
	assert.NotEmpty(t, turns[3].Sources)
}

func TestManager_ProcessAnnouncesOnlyIndexedFiles(t *testing.T) {
	deps := &testDeps{ingestor: &fakeIngestor{skip: []string{"notes.txt"}}}
	m := newTestManager(ManagerConfig{APIKey: "sk-test"}, deps)

	s := m.Create("")
	require.NoError(t, m.AddDocuments(s.ID, []ingest.File{
		{Name: "korea.pdf", Data: []byte("x")},
		{Name: "notes.txt", Data: []byte("y")},
	}))

	result, err := m.Process(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, result.Skipped, 1)

	turns := s.Transcript()
	require.Len(t, turns, 2)
	assert.Contains(t, turns[1].Content, "korea.pdf")
	assert.NotContains(t, turns[1].Content, "notes.txt")
}

func TestManager_ProcessMissingCredential(t *testing.T) {
	m := newTestManager(ManagerConfig{}, &testDeps{}) // no server key

	s := m.Create("") // no session key either
	require.NoError(t, m.AddDocuments(s.ID, []ingest.File{{Name: "a.pdf"}}))

	_, err := m.Process(context.Background(), s.ID)
	assert.ErrorIs(t, err, domain.ErrMissingCredential)
}

func TestManager_SessionKeyOverridesServerKey(t *testing.T) {
	var seenKey string
	deps := &testDeps{embedder: &fakeEmbedder{}, llm: &fakeLLM{reply: "ok"}, ingestor: &fakeIngestor{}}
	clients := func(key string) (index.Embedder, service.LLM) {
		seenKey = key
		return deps.embedder, deps.llm
	}
	m := NewManager(ManagerConfig{APIKey: "sk-server"}, deps.ingestor, passthroughSplitter{}, wordCounter{}, clients, nil)

	s := m.Create("sk-session")
	require.NoError(t, m.AddDocuments(s.ID, []ingest.File{{Name: "a.pdf"}}))
	_, err := m.Process(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "sk-session", seenKey)
}

func TestManager_ProcessWithoutUploads(t *testing.T) {
	m := newTestManager(ManagerConfig{APIKey: "sk-test"}, &testDeps{})
	s := m.Create("")

	_, err := m.Process(context.Background(), s.ID)
	assert.ErrorIs(t, err, domain.ErrNoFilesUploaded)
}

func TestManager_AskBeforeProcess(t *testing.T) {
	m := newTestManager(ManagerConfig{APIKey: "sk-test"}, &testDeps{})
	s := m.Create("")

	_, err := m.Ask(context.Background(), s.ID, "anything")
	assert.ErrorIs(t, err, domain.ErrNoIndex)
}

func TestManager_FailedProcessKeepsPriorIndex(t *testing.T) {
	deps := &testDeps{}
	m := newTestManager(ManagerConfig{APIKey: "sk-test"}, deps)

	s := m.Create("")
	require.NoError(t, m.AddDocuments(s.ID, []ingest.File{{Name: "a.pdf"}}))
	_, err := m.Process(context.Background(), s.ID)
	require.NoError(t, err)
	turnsBefore := len(s.Transcript())

	// Second run fails at ingestion: the session keeps answering on the
	// index it already has, and the transcript gains nothing.
	deps.ingestor.err = domain.NewIngestionFailure("a.pdf", errors.New("corrupt"))
	_, err = m.Process(context.Background(), s.ID)
	require.Error(t, err)

	assert.True(t, s.Ready())
	assert.Len(t, s.Transcript(), turnsBefore)

	_, err = m.Ask(context.Background(), s.ID, "still works?")
	assert.NoError(t, err)
}

func TestManager_FailedAskRecordsNothing(t *testing.T) {
	deps := &testDeps{llm: &fakeLLM{reply: "ok"}}
	m := newTestManager(ManagerConfig{APIKey: "sk-test"}, deps)

	s := m.Create("")
	require.NoError(t, m.AddDocuments(s.ID, []ingest.File{{Name: "a.pdf"}}))
	_, err := m.Process(context.Background(), s.ID)
	require.NoError(t, err)
	turnsBefore := len(s.Transcript())

	deps.llm.err = errors.New("model overloaded")
	_, err = m.Ask(context.Background(), s.ID, "question")
	require.Error(t, err)
	assert.Len(t, s.Transcript(), turnsBefore)
}

func TestManager_ResetClearsStateKeepsSession(t *testing.T) {
	deps := &testDeps{}
	m := newTestManager(ManagerConfig{APIKey: "sk-test"}, deps)

	s := m.Create("sk-session")
	require.NoError(t, m.AddDocuments(s.ID, []ingest.File{{Name: "a.pdf"}}))
	_, err := m.Process(context.Background(), s.ID)
	require.NoError(t, err)
	_, err = m.Ask(context.Background(), s.ID, "question")
	require.NoError(t, err)

	require.NoError(t, m.Reset(s.ID))

	// The session survives with only the greeting; index and uploads are gone.
	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.False(t, got.Ready())
	assert.Equal(t, "sk-session", got.APIKey())

	turns := got.Transcript()
	require.Len(t, turns, 1)
	assert.Contains(t, turns[0].Content, "Upload your documents")

	_, err = m.Ask(context.Background(), s.ID, "anything")
	assert.ErrorIs(t, err, domain.ErrNoIndex)
	_, err = m.Process(context.Background(), s.ID)
	assert.ErrorIs(t, err, domain.ErrNoFilesUploaded)
}

func TestManager_ResetUnknownSession(t *testing.T) {
	m := newTestManager(ManagerConfig{}, &testDeps{})
	assert.ErrorIs(t, m.Reset("nope"), domain.ErrSessionNotFound)
}

func TestManager_Remove(t *testing.T) {
	m := newTestManager(ManagerConfig{}, &testDeps{})
	s := m.Create("")

	require.NoError(t, m.Remove(s.ID))
	assert.ErrorIs(t, m.Remove(s.ID), domain.ErrSessionNotFound)
	assert.Equal(t, 0, m.Count())
}

func TestManager_CleanupHookRuns(t *testing.T) {
	var (
		m       *Manager
		dropped []string
	)
	deps := &testDeps{}
	cfg := ManagerConfig{
		APIKey:  "sk-test",
		IdleTTL: time.Hour,
		Cleanup: func(_ context.Context, id string) error {
			// Touches the manager lock: the hook must never run inside
			// the critical section or this deadlocks.
			m.Count()
			dropped = append(dropped, id)
			return nil
		},
	}
	m = newTestManager(cfg, deps)

	a := m.Create("")
	require.NoError(t, m.Reset(a.ID))
	require.NoError(t, m.Remove(a.ID))

	current := time.Now()
	m.now = func() time.Time { return current }
	b := m.Create("")
	current = current.Add(2 * time.Hour)
	require.Equal(t, 1, m.ReapIdle())

	assert.Equal(t, []string{a.ID, a.ID, b.ID}, dropped)
}

func TestManager_ReapIdle(t *testing.T) {
	m := newTestManager(ManagerConfig{IdleTTL: time.Hour}, &testDeps{})

	current := time.Now()
	m.now = func() time.Time { return current }

	stale := m.Create("")
	current = current.Add(2 * time.Hour)
	fresh := m.Create("")

	removed := m.ReapIdle()
	assert.Equal(t, 1, removed)

	_, err := m.Get(stale.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = m.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestManager_ReapIdleDisabled(t *testing.T) {
	m := newTestManager(ManagerConfig{}, &testDeps{})
	m.Create("")
	assert.Equal(t, 0, m.ReapIdle())
	assert.Equal(t, 1, m.Count())
}
