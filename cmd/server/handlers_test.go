package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"domain-intel/internal/chunker"
	"domain-intel/internal/config"
	"domain-intel/internal/embedding"
	"domain-intel/internal/llm"
	"domain-intel/internal/models"
	"domain-intel/internal/session"
	"domain-intel/internal/vectorstore"
)

type noCrawl struct{}

func (noCrawl) CrawlDomain(ctx context.Context, domain string, syncMode bool) (*models.CrawlResult, error) {
	return &models.CrawlResult{Seed: domain}, nil
}

func (noCrawl) CrawlURLs(ctx context.Context, urls []string) (*models.CrawlResult, error) {
	return &models.CrawlResult{}, nil
}

func newTestServer(t *testing.T) *server {
	t.Helper()
	store, err := vectorstore.NewChromemStore(t.TempDir(), embedding.NewStub(16))
	require.NoError(t, err)
	manager := session.NewManager(&session.Deps{
		Store:      store,
		Crawler:    noCrawl{},
		Generator:  &llm.Stub{},
		WebChunker: chunker.New(50, 10),
		DocChunker: chunker.New(20, 4),
		Chat:       config.ChatConfig{ContextChunks: 3, MaxHistoryTurns: 20},
	})
	return newServer(manager)
}

func doJSON(t *testing.T, srv *server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	return rec
}

func TestInitialize_ReturnsDefaultSession(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/initialize", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info session.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "Default Session", info.Name)
	assert.NotEmpty(t, info.ID)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions", map[string]string{"name": "Research"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, srv, http.MethodPost, "/api/sessions/"+created["id"]+"/rename", map[string]string{"name": "Acme"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Acme")

	rec = doJSON(t, srv, http.MethodDelete, "/api/sessions/"+created["id"], nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateSession_EmptyBodyUsesDefaults(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created["id"])
	assert.Equal(t, "Untitled Session", created["name"])
}

func TestChat_UnknownSessionIs404(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/missing/chat", map[string]string{"query": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat_EmptyQueryIs400(t *testing.T) {
	srv := newTestServer(t)
	id := srv.manager.List()[0].ID

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/chat", map[string]string{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSync_UnsupportedIs400(t *testing.T) {
	srv := newTestServer(t)
	id := srv.manager.List()[0].ID

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/sync", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearHistoryOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	id := srv.manager.List()[0].ID

	sess, err := srv.manager.Get(id)
	require.NoError(t, err)
	_, err = sess.UploadDocument(context.Background(), "doc.txt", []byte("some document content worth chatting about"))
	require.NoError(t, err)
	_, err = sess.Chat(context.Background(), "a question", session.ModeDocs)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/history/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/sessions/"+id+"/history?mode=docs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "a question")
}

func TestUpload_TextDocument(t *testing.T) {
	srv := newTestServer(t)
	id := srv.manager.List()[0].ID

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("meeting notes about the widget launch schedule"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/sessions/"+id+"/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "notes.txt")
}

func TestUpload_UnsupportedTypeIs400(t *testing.T) {
	srv := newTestServer(t)
	id := srv.manager.List()[0].ID

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "image.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
