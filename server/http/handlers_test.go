package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/w-h-a/spinach/chunker/fixed"
	"github.com/w-h-a/spinach/completion"
	"github.com/w-h-a/spinach/embedder"
	"github.com/w-h-a/spinach/internal/config"
	"github.com/w-h-a/spinach/internal/service/chat"
	"github.com/w-h-a/spinach/internal/service/ingest"
	"github.com/w-h-a/spinach/internal/service/rag"
	"github.com/w-h-a/spinach/store/memory"
)

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string, role embedder.Role) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for range texts {
		vectors = append(vectors, []float32{1, 0, 0})
	}
	return vectors, nil
}

func (f *fakeEmbedder) Status() embedder.Status { return embedder.StatusReady }

func (f *fakeEmbedder) Dimension() int { return 3 }

type fakeGateway struct {
	answer string
	events []completion.StreamEvent
}

func (f *fakeGateway) Complete(ctx context.Context, messages []completion.Message) (string, error) {
	return f.answer, nil
}

func (f *fakeGateway) Stream(ctx context.Context, messages []completion.Message) (<-chan completion.StreamEvent, error) {
	events := make(chan completion.StreamEvent)
	go func() {
		defer close(events)
		for _, event := range f.events {
			events <- event
		}
	}()
	return events, nil
}

func newTestServer(t *testing.T, gateway completion.Gateway) *httptest.Server {
	t.Helper()

	c, err := fixed.New(50, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := &fakeEmbedder{}
	st := memory.NewStore()

	cfg := config.Config{
		Name:            "spinach",
		Version:         "0.1.0",
		CompletionType:  "lmstudio",
		CompletionModel: "test-model",
		EmbedderModel:   "test-embedder",
		ChunkSize:       50,
		ChunkOverlap:    10,
	}

	settings := config.NewSettings("http://localhost:1234/v1", 3, 0.5)

	server := NewServer(
		cfg,
		settings,
		ingest.New(c, e, st),
		ingest.NewTemplates(t.TempDir()),
		rag.New(e, st),
		chat.New(gateway),
		e,
		st,
		gateway,
	)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rsp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return rsp
}

func decode(t *testing.T, rsp *http.Response) map[string]any {
	t.Helper()
	defer rsp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(rsp.Body).Decode(&out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return out
}

func TestUploadTextAndCount(t *testing.T) {
	ts := newTestServer(t, &fakeGateway{})

	rsp := postJSON(t, ts.URL+"/api/documents/upload-text", map[string]any{
		"text":     "Go channels let goroutines communicate by passing values.",
		"filename": "channels",
	})

	if rsp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", rsp.StatusCode)
	}

	body := decode(t, rsp)

	if body["filename"] != "channels.md" {
		t.Errorf("expected .md suffix applied, got %v", body["filename"])
	}

	if body["chunks_created"].(float64) < 1 {
		t.Errorf("expected chunks created, got %v", body["chunks_created"])
	}

	countRsp, err := http.Get(ts.URL + "/api/documents/count")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count := decode(t, countRsp)
	if count["total_chunks"].(float64) < 1 {
		t.Errorf("expected stored chunks, got %v", count["total_chunks"])
	}
}

func TestUploadOversizeFileRejected(t *testing.T) {
	ts := newTestServer(t, &fakeGateway{})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("file", "huge.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := part.Write(bytes.Repeat([]byte("a"), 10<<20+1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	form.Close()

	rsp, err := http.Post(ts.URL+"/api/documents/upload", form.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rsp.StatusCode)
	}

	countRsp, err := http.Get(ts.URL + "/api/documents/count")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count := decode(t, countRsp)
	if count["total_chunks"].(float64) != 0 {
		t.Errorf("expected nothing indexed, got %v", count["total_chunks"])
	}
}

func TestUploadEmptyTextRejected(t *testing.T) {
	ts := newTestServer(t, &fakeGateway{})

	rsp := postJSON(t, ts.URL+"/api/documents/upload-text", map[string]any{
		"text":     "   ",
		"filename": "blank.md",
	})
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rsp.StatusCode)
	}
}

func TestDeleteDocument(t *testing.T) {
	ts := newTestServer(t, &fakeGateway{})

	rsp := postJSON(t, ts.URL+"/api/documents/upload-text", map[string]any{
		"text":     "something to remember",
		"filename": "note.md",
	})
	rsp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/documents/note.md", nil)
	deleteRsp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if deleteRsp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", deleteRsp.StatusCode)
	}

	body := decode(t, deleteRsp)
	if body["chunks_deleted"].(float64) < 1 {
		t.Errorf("expected deleted chunks, got %v", body["chunks_deleted"])
	}

	again, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/documents/note.md", nil)
	missingRsp, err := http.DefaultClient.Do(again)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer missingRsp.Body.Close()

	if missingRsp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missingRsp.StatusCode)
	}
}

func TestSettingsUpdate(t *testing.T) {
	ts := newTestServer(t, &fakeGateway{})

	data, _ := json.Marshal(map[string]any{"top_k": 7})
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/settings", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")

	rsp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rsp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", rsp.StatusCode)
	}

	body := decode(t, rsp)
	if body["top_k"].(float64) != 7 {
		t.Errorf("expected top_k 7, got %v", body["top_k"])
	}
	if body["similarity_threshold"].(float64) != 0.5 {
		t.Errorf("expected threshold untouched, got %v", body["similarity_threshold"])
	}

	bad, _ := json.Marshal(map[string]any{"similarity_threshold": 2.0})
	badReq, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/settings", bytes.NewReader(bad))
	badRsp, err := http.DefaultClient.Do(badReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer badRsp.Body.Close()

	if badRsp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", badRsp.StatusCode)
	}
}

func TestRagQueryReturnsAnswerAndSources(t *testing.T) {
	ts := newTestServer(t, &fakeGateway{answer: "channels pass values"})

	rsp := postJSON(t, ts.URL+"/api/documents/upload-text", map[string]any{
		"text":     "Go channels let goroutines communicate by passing values.",
		"filename": "channels.md",
	})
	rsp.Body.Close()

	queryRsp := postJSON(t, ts.URL+"/api/rag/query", map[string]any{
		"question": "what are channels?",
	})

	if queryRsp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", queryRsp.StatusCode)
	}

	body := decode(t, queryRsp)

	if body["answer"] != "channels pass values" {
		t.Errorf("unexpected answer: %v", body["answer"])
	}

	sources, ok := body["sources"].([]any)
	if !ok || len(sources) == 0 {
		t.Fatalf("expected sources, got %v", body["sources"])
	}
}

func TestChatStreamFraming(t *testing.T) {
	gateway := &fakeGateway{
		events: []completion.StreamEvent{
			{Data: `{"choices":[{"delta":{"content":"hi"}}]}`},
			{Data: `{"choices":[{"delta":{"content":" there"}}]}`},
			{Done: true},
		},
	}

	ts := newTestServer(t, gateway)

	rsp := postJSON(t, ts.URL+"/api/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
		"stream":   true,
	})
	defer rsp.Body.Close()

	if ct := rsp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected event stream, got %s", ct)
	}

	raw, err := io.ReadAll(rsp.Body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := string(raw)

	first := strings.Index(body, `data: {"choices":[{"delta":{"content":"hi"}}]}`)
	second := strings.Index(body, `data: {"choices":[{"delta":{"content":" there"}}]}`)
	done := strings.Index(body, "data: [DONE]")

	if first < 0 || second < 0 || done < 0 {
		t.Fatalf("missing frames in body: %q", body)
	}

	if !(first < second && second < done) {
		t.Fatalf("frames out of order: %q", body)
	}
}

func TestChatStreamErrorDistinguishableFromDone(t *testing.T) {
	gateway := &fakeGateway{
		events: []completion.StreamEvent{
			{Data: `{"n":1}`},
			{Err: fmt.Errorf("backend gone")},
		},
	}

	ts := newTestServer(t, gateway)

	rsp := postJSON(t, ts.URL+"/api/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
		"stream":   true,
	})
	defer rsp.Body.Close()

	raw, err := io.ReadAll(rsp.Body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := string(raw)

	if strings.Contains(body, "[DONE]") {
		t.Fatalf("error stream must not end with the done sentinel: %q", body)
	}

	if !strings.Contains(body, `"error"`) {
		t.Fatalf("expected an error payload: %q", body)
	}
}

func TestChatUnary(t *testing.T) {
	ts := newTestServer(t, &fakeGateway{answer: "hello back"})

	rsp := postJSON(t, ts.URL+"/api/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})

	if rsp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", rsp.StatusCode)
	}

	body := decode(t, rsp)
	if body["response"] != "hello back" {
		t.Errorf("unexpected response: %v", body)
	}
}

func TestModelStatus(t *testing.T) {
	ts := newTestServer(t, &fakeGateway{})

	rsp, err := http.Get(ts.URL + "/api/model-status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := decode(t, rsp)

	if body["status"] != "ready" {
		t.Errorf("expected ready status, got %v", body["status"])
	}
}
