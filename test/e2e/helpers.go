//go:build e2e

package e2e

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dirchat/dirchat/internal/api/handlers"
	"github.com/dirchat/dirchat/internal/chunker"
	"github.com/dirchat/dirchat/internal/index"
	"github.com/dirchat/dirchat/internal/ingest"
	"github.com/dirchat/dirchat/internal/openai"
	"github.com/dirchat/dirchat/internal/server"
	"github.com/dirchat/dirchat/internal/service"
	"github.com/dirchat/dirchat/internal/session"
	"github.com/dirchat/dirchat/internal/tokenizer"
)

// embeddingDim is the dimension of the bag-of-words test embedder.
const embeddingDim = 64

// wordEmbedder is a deterministic embedder: each word hashes into a
// fixed-size bucket vector, so texts sharing words land close together.
// That gives retrieval real similarity behavior without a model.
type wordEmbedder struct{}

func (wordEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, embeddingDim)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			word = strings.Trim(word, ".,!?:;\"'")
			if word == "" {
				continue
			}
			h := fnv.New32a()
			h.Write([]byte(word))
			v[h.Sum32()%embeddingDim]++
		}
		normalize(v)
		out[i] = v
	}
	return out, nil
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}

// TestEnv is one running server instance with an in-process pipeline.
type TestEnv struct {
	T      *testing.T
	Server *httptest.Server
	Client *http.Client
}

// APIResponse is the standard response envelope.
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

// SetupTestEnv starts an in-process server with deterministic embedding
// and generation substitutes. serverKey is the server-wide credential;
// empty means sessions must bring their own.
func SetupTestEnv(t *testing.T, serverKey string) *TestEnv {
	counter := tokenizer.ApproxCounter{}

	manager := session.NewManager(session.ManagerConfig{
		APIKey:            serverKey,
		TopK:              4,
		Mode:              index.ModeMMR,
		MemoryTokenBudget: 2000,
		IdleTTL:           time.Hour,
	},
		ingest.NewAdapter(),
		chunker.NewSplitter(counter, chunker.DefaultMaxTokens, chunker.DefaultOverlapTokens),
		counter,
		func(string) (index.Embedder, service.LLM) {
			return wordEmbedder{}, excerptModel{}
		},
		nil,
	)

	router := server.NewRouter(server.RouterConfig{
		SessionHandler: handlers.NewSessionHandler(manager),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &TestEnv{
		T:      t,
		Server: srv,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// excerptModel generates answers out of the prompt itself: condense calls
// echo the follow-up question, answer calls quote the first retrieved
// excerpt. That is enough to assert grounding end to end without a model.
type excerptModel struct{}

func (excerptModel) Generate(_ context.Context, messages []openai.Message) (string, error) {
	prompt := messages[0].Content

	if strings.Contains(prompt, "Standalone question:") {
		return sectionAfter(prompt, "## Follow Up Question:"), nil
	}

	excerpt := sectionAfter(prompt, "### Excerpt 1")
	if excerpt == "" {
		return "I don't know.", nil
	}
	return "According to the documents: " + excerpt, nil
}

// sectionAfter returns the first non-empty line following the line that
// starts with the marker.
func sectionAfter(text, marker string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, marker) {
			continue
		}
		for _, next := range lines[i+1:] {
			if strings.TrimSpace(next) != "" {
				return strings.TrimSpace(next)
			}
		}
	}
	return ""
}

// Post sends a JSON POST and decodes the envelope. A nil body sends an
// empty request.
func (e *TestEnv) Post(path string, body any) (*http.Response, *APIResponse) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.T.Fatalf("failed to marshal body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	resp, err := e.Client.Post(e.Server.URL+path, "application/json", reqBody)
	if err != nil {
		e.T.Fatalf("POST %s failed: %v", path, err)
	}
	return resp, decodeEnvelope(e.T, resp)
}

// Get sends a GET and decodes the envelope.
func (e *TestEnv) Get(path string) (*http.Response, *APIResponse) {
	resp, err := e.Client.Get(e.Server.URL + path)
	if err != nil {
		e.T.Fatalf("GET %s failed: %v", path, err)
	}
	return resp, decodeEnvelope(e.T, resp)
}

// Delete sends a DELETE.
func (e *TestEnv) Delete(path string) *http.Response {
	req, err := http.NewRequest(http.MethodDelete, e.Server.URL+path, nil)
	if err != nil {
		e.T.Fatalf("failed to build DELETE %s: %v", path, err)
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		e.T.Fatalf("DELETE %s failed: %v", path, err)
	}
	resp.Body.Close()
	return resp
}

// Upload stages files on a session via multipart form.
func (e *TestEnv) Upload(sessionID string, files map[string][]byte) (*http.Response, *APIResponse) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			e.T.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			e.T.Fatalf("failed to write form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		e.T.Fatalf("failed to close multipart writer: %v", err)
	}

	resp, err := e.Client.Post(
		e.Server.URL+"/sessions/"+sessionID+"/documents",
		w.FormDataContentType(),
		&buf,
	)
	if err != nil {
		e.T.Fatalf("upload failed: %v", err)
	}
	return resp, decodeEnvelope(e.T, resp)
}

// CreateSession creates a session and returns its ID. apiKey may be empty.
func (e *TestEnv) CreateSession(apiKey string) string {
	var body any
	if apiKey != "" {
		body = map[string]string{"api_key": apiKey}
	}
	resp, env := e.Post("/sessions", body)
	if resp.StatusCode != http.StatusCreated {
		e.T.Fatalf("create session: got status %d (%s)", resp.StatusCode, env.Error)
	}

	var s struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &s); err != nil {
		e.T.Fatalf("failed to parse session response: %v", err)
	}
	return s.ID
}

func decodeEnvelope(t *testing.T, resp *http.Response) *APIResponse {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	if len(raw) == 0 {
		return &APIResponse{}
	}

	var env APIResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode response %q: %v", raw, err)
	}
	return &env
}

// MakeDocx builds a minimal valid .docx with one paragraph per input line.
func MakeDocx(t *testing.T, paragraphs ...string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		var escaped bytes.Buffer
		if err := xml.EscapeText(&escaped, []byte(p)); err != nil {
			t.Fatalf("failed to escape paragraph: %v", err)
		}
		fmt.Fprintf(&body, `<w:p><w:r><w:t>%s</w:t></w:r></w:p>`, escaped.String())
	}
	body.WriteString(`</w:body></w:document>`)

	f, err := w.Create("word/document.xml")
	if err != nil {
		t.Fatalf("failed to create zip entry: %v", err)
	}
	if _, err := f.Write([]byte(body.String())); err != nil {
		t.Fatalf("failed to write zip entry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}
