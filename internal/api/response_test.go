package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dirchat/dirchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body SuccessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]interface{}{"id": "abc"}, body.Data)
}

func TestDomainErrorToHTTP(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", domain.ErrEmptyQuestion, http.StatusBadRequest},
		{"unsupported format", domain.NewUnsupportedFormat("a.txt", ".txt"), http.StatusBadRequest},
		{"missing credential", domain.ErrMissingCredential, http.StatusUnauthorized},
		{"not found", domain.ErrSessionNotFound, http.StatusNotFound},
		{"no index", domain.ErrNoIndex, http.StatusConflict},
		{"answer in flight", domain.ErrAnswerInFlight, http.StatusConflict},
		{"ingestion", domain.NewIngestionFailure("a.pdf", errors.New("corrupt")), http.StatusUnprocessableEntity},
		{"rate limited", domain.NewDomainError(domain.ErrCodeRateLimited, "slow down"), http.StatusTooManyRequests},
		{"embedding", domain.NewEmbeddingFailure(errors.New("down")), http.StatusBadGateway},
		{"generation", domain.NewGenerationFailure(errors.New("down")), http.StatusBadGateway},
		{"index build", domain.NewIndexBuildFailure(errors.New("mismatch")), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DomainErrorToHTTP(tt.err))
		})
	}
}

func TestHandleError_DomainError(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, domain.ErrNoIndex)

	assert.Equal(t, http.StatusConflict, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.ErrCodeNoIndex, body.Code)
	assert.Contains(t, body.Error, "no index")
}

func TestHandleError_WrappedDomainError(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, domain.NewEmbeddingFailure(errors.New("connection reset")))

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.ErrCodeEmbeddingFailure, body.Code)
}

func TestHandleError_PlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Code)
	assert.Equal(t, "boom", body.Error)
}
