package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dirchat/dirchat/internal/domain"
	"github.com/dirchat/dirchat/internal/ingest"
	"github.com/dirchat/dirchat/internal/service"
	"github.com/dirchat/dirchat/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Create(apiKey string) *session.Session {
	return m.Called(apiKey).Get(0).(*session.Session)
}

func (m *MockSessionService) Get(id string) (*session.Session, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockSessionService) Reset(id string) error {
	return m.Called(id).Error(0)
}

func (m *MockSessionService) Remove(id string) error {
	return m.Called(id).Error(0)
}

func (m *MockSessionService) AddDocuments(id string, files []ingest.File) error {
	return m.Called(id, files).Error(0)
}

func (m *MockSessionService) Process(ctx context.Context, id string) (*service.ProcessResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ProcessResult), args.Error(1)
}

func (m *MockSessionService) Ask(ctx context.Context, id, question string) (*service.Answer, error) {
	args := m.Called(ctx, id, question)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Answer), args.Error(1)
}

// withURLParam attaches a chi route parameter to the request.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestSessionHandler_Create(t *testing.T) {
	svc := new(MockSessionService)
	svc.On("Create", "sk-user").Return(&session.Session{
		ID:        "session-1",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})

	h := NewSessionHandler(svc)
	body := bytes.NewBufferString(`{"api_key":"sk-user"}`)
	req := httptest.NewRequest(http.MethodPost, "/sessions", body)
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data SessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "session-1", resp.Data.ID)
	assert.False(t, resp.Data.Ready)
	assert.Equal(t, "2024-05-01T12:00:00Z", resp.Data.CreatedAt)
}

func TestSessionHandler_Create_EmptyBody(t *testing.T) {
	svc := new(MockSessionService)
	svc.On("Create", "").Return(&session.Session{ID: "session-1"})

	h := NewSessionHandler(svc)
	req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	rec := httptest.NewRecorder()

	h.Create(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestSessionHandler_Get_NotFound(t *testing.T) {
	svc := new(MockSessionService)
	svc.On("Get", "missing").Return(nil, domain.ErrSessionNotFound)

	h := NewSessionHandler(svc)
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/sessions/missing", nil), "id", "missing")
	rec := httptest.NewRecorder()

	h.Get(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestSessionHandler_UploadDocuments(t *testing.T) {
	svc := new(MockSessionService)
	svc.On("AddDocuments", "session-1", mock.MatchedBy(func(files []ingest.File) bool {
		return len(files) == 1 && files[0].Name == "report.pdf" && string(files[0].Data) == "%PDF"
	})).Return(nil)

	h := NewSessionHandler(svc)
	body, contentType := multipartBody(t, map[string]string{"report.pdf": "%PDF"})
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/sessions/session-1/documents", body), "id", "session-1")
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadDocuments(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestSessionHandler_UploadDocuments_NotMultipart(t *testing.T) {
	h := NewSessionHandler(new(MockSessionService))
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/sessions/session-1/documents",
		strings.NewReader("{}")), "id", "session-1")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.UploadDocuments(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandler_Process(t *testing.T) {
	svc := new(MockSessionService)
	svc.On("Process", mock.Anything, "session-1").Return(&service.ProcessResult{
		Documents: 3,
		Chunks:    12,
		Skipped: []domain.FileError{
			{Name: "notes.txt", Err: domain.NewUnsupportedFormat("notes.txt", ".txt")},
		},
	}, nil)

	h := NewSessionHandler(svc)
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/sessions/session-1/process", nil), "id", "session-1")
	rec := httptest.NewRecorder()

	h.Process(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data ProcessResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Data.Documents)
	assert.Equal(t, 12, resp.Data.Chunks)
	require.Len(t, resp.Data.Skipped, 1)
	assert.Equal(t, "notes.txt", resp.Data.Skipped[0].Name)
}

func TestSessionHandler_Process_MissingCredential(t *testing.T) {
	svc := new(MockSessionService)
	svc.On("Process", mock.Anything, "session-1").Return(nil, domain.ErrMissingCredential)

	h := NewSessionHandler(svc)
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/sessions/session-1/process", nil), "id", "session-1")
	rec := httptest.NewRecorder()

	h.Process(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionHandler_Ask(t *testing.T) {
	page := 2
	svc := new(MockSessionService)
	svc.On("Ask", mock.Anything, "session-1", "What is the capital of Korea?").Return(&service.Answer{
		Text: "The capital is Seoul.",
		Sources: []domain.SourceRef{
			{Source: "korea.pdf", Page: &page, Snippet: "The capital of Korea is Seoul."},
		},
	}, nil)

	h := NewSessionHandler(svc)
	body := strings.NewReader(`{"question":"What is the capital of Korea?"}`)
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/sessions/session-1/ask", body), "id", "session-1")
	rec := httptest.NewRecorder()

	h.Ask(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data AskResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "The capital is Seoul.", resp.Data.Answer)
	require.Len(t, resp.Data.Sources, 1)
	assert.Equal(t, "korea.pdf", resp.Data.Sources[0].Source)
	require.NotNil(t, resp.Data.Sources[0].Page)
	assert.Equal(t, 2, *resp.Data.Sources[0].Page)
}

func TestSessionHandler_Ask_BeforeProcessing(t *testing.T) {
	svc := new(MockSessionService)
	svc.On("Ask", mock.Anything, "session-1", "anything").Return(nil, domain.ErrNoIndex)

	h := NewSessionHandler(svc)
	body := strings.NewReader(`{"question":"anything"}`)
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/sessions/session-1/ask", body), "id", "session-1")
	rec := httptest.NewRecorder()

	h.Ask(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSessionHandler_Ask_InvalidBody(t *testing.T) {
	h := NewSessionHandler(new(MockSessionService))
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/sessions/session-1/ask",
		strings.NewReader("not json")), "id", "session-1")
	rec := httptest.NewRecorder()

	h.Ask(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandler_Reset(t *testing.T) {
	svc := new(MockSessionService)
	svc.On("Reset", "session-1").Return(nil)
	svc.On("Get", "session-1").Return(&session.Session{ID: "session-1"}, nil)

	h := NewSessionHandler(svc)
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/sessions/session-1/reset", nil), "id", "session-1")
	rec := httptest.NewRecorder()

	h.Reset(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data SessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "session-1", resp.Data.ID)
	assert.False(t, resp.Data.Ready)
	svc.AssertExpectations(t)
}

func TestSessionHandler_Delete(t *testing.T) {
	svc := new(MockSessionService)
	svc.On("Remove", "session-1").Return(nil)

	h := NewSessionHandler(svc)
	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/sessions/session-1", nil), "id", "session-1")
	rec := httptest.NewRecorder()

	h.Delete(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
