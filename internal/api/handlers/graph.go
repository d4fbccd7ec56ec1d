package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dirchat/dirchat/internal/api"
	"github.com/dirchat/dirchat/internal/graphqa"
)

type GraphService interface {
	Ask(ctx context.Context, question string) (*graphqa.Result, error)
}

type GraphHandler struct {
	svc GraphService
}

func NewGraphHandler(svc GraphService) *GraphHandler {
	return &GraphHandler{svc: svc}
}

type GraphQuestionRequest struct {
	Question string `json:"question"`
}

type GraphAnswerResponse struct {
	Answer string `json:"answer"`
	Cypher string `json:"cypher,omitempty"`
}

// Question answers a natural-language question against the graph.
func (h *GraphHandler) Question(w http.ResponseWriter, r *http.Request) {
	var req GraphQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Ask(r.Context(), req.Question)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, GraphAnswerResponse{
		Answer: result.Answer,
		Cypher: result.Cypher,
	})
}
