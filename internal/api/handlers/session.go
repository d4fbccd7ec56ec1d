package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/dirchat/dirchat/internal/api"
	"github.com/dirchat/dirchat/internal/domain"
	"github.com/dirchat/dirchat/internal/ingest"
	"github.com/dirchat/dirchat/internal/service"
	"github.com/dirchat/dirchat/internal/session"
	"github.com/go-chi/chi/v5"
)

// maxUploadMemory is the in-memory buffer for multipart parsing; larger
// parts spill to disk.
const maxUploadMemory = 10 << 20

type SessionService interface {
	Create(apiKey string) *session.Session
	Get(id string) (*session.Session, error)
	Reset(id string) error
	Remove(id string) error
	AddDocuments(id string, files []ingest.File) error
	Process(ctx context.Context, id string) (*service.ProcessResult, error)
	Ask(ctx context.Context, id, question string) (*service.Answer, error)
}

type SessionHandler struct {
	svc SessionService
}

func NewSessionHandler(svc SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

type CreateSessionRequest struct {
	// APIKey overrides the server credential for this session only.
	APIKey string `json:"api_key"`
}

type SessionResponse struct {
	ID        string `json:"id"`
	Ready     bool   `json:"ready"`
	CreatedAt string `json:"created_at"`
}

type SkippedFileResponse struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type ProcessResponse struct {
	Documents int                   `json:"documents"`
	Chunks    int                   `json:"chunks"`
	Skipped   []SkippedFileResponse `json:"skipped,omitempty"`
}

type AskRequest struct {
	Question string `json:"question"`
}

type SourceResponse struct {
	Source  string `json:"source"`
	Page    *int   `json:"page,omitempty"`
	Snippet string `json:"snippet"`
}

type AskResponse struct {
	Answer  string           `json:"answer"`
	Sources []SourceResponse `json:"sources"`
}

type TurnResponse struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Sources   []SourceResponse `json:"sources,omitempty"`
	CreatedAt string           `json:"created_at"`
}

func sessionToResponse(s *session.Session) *SessionResponse {
	return &SessionResponse{
		ID:        s.ID,
		Ready:     s.Ready(),
		CreatedAt: s.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func sourcesToResponse(refs []domain.SourceRef) []SourceResponse {
	out := make([]SourceResponse, 0, len(refs))
	for _, ref := range refs {
		out = append(out, SourceResponse{
			Source:  ref.Source,
			Page:    ref.Page,
			Snippet: ref.Snippet,
		})
	}
	return out
}

// Create starts a new session.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	s := h.svc.Create(req.APIKey)
	api.Success(w, http.StatusCreated, sessionToResponse(s))
}

// Get returns session metadata.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Get(chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, sessionToResponse(s))
}

// UploadDocuments stages multipart file uploads on the session.
func (h *SessionHandler) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	files, err := collectUploads(r.MultipartForm)
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.AddDocuments(chi.URLParam(r, "id"), files); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]int{"staged": len(files)})
}

func collectUploads(form *multipart.Form) ([]ingest.File, error) {
	if form == nil {
		return nil, errors.New("no files in request")
	}

	var files []ingest.File
	for _, headers := range form.File {
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				return nil, errors.New("failed to read uploaded file " + header.Filename)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, errors.New("failed to read uploaded file " + header.Filename)
			}
			files = append(files, ingest.File{Name: header.Filename, Data: data})
		}
	}
	if len(files) == 0 {
		return nil, errors.New("no files in request")
	}
	return files, nil
}

// Process runs the pipeline over the session's staged uploads.
func (h *SessionHandler) Process(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Process(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := ProcessResponse{
		Documents: result.Documents,
		Chunks:    result.Chunks,
	}
	for _, skip := range result.Skipped {
		resp.Skipped = append(resp.Skipped, SkippedFileResponse{
			Name:   skip.Name,
			Reason: skip.Err.Error(),
		})
	}
	api.Success(w, http.StatusOK, resp)
}

// Ask answers a question against the session's processed documents.
func (h *SessionHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := h.svc.Ask(r.Context(), chi.URLParam(r, "id"), req.Question)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, AskResponse{
		Answer:  answer.Text,
		Sources: sourcesToResponse(answer.Sources),
	})
}

// Transcript returns the session's full display history.
func (h *SessionHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Get(chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	turns := s.Transcript()
	resp := make([]TurnResponse, 0, len(turns))
	for _, turn := range turns {
		resp = append(resp, TurnResponse{
			Role:      string(turn.Role),
			Content:   turn.Content,
			Sources:   sourcesToResponse(turn.Sources),
			CreatedAt: turn.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	api.Success(w, http.StatusOK, resp)
}

// Reset clears a session back to its just-created state.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Reset(id); err != nil {
		api.HandleError(w, err)
		return
	}

	s, err := h.svc.Get(id)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, sessionToResponse(s))
}

// Delete removes a session and all its state.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Remove(chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
