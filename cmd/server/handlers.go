package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"domain-intel/internal/docparser"
	"domain-intel/internal/session"
)

// uploadLimit bounds one multipart request body. Individual zip member
// caps are enforced by the parser.
const uploadLimit = 110 << 20

type server struct {
	manager *session.Manager
}

func newServer(manager *session.Manager) *server {
	return &server{manager: manager}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/initialize", s.handleInitialize)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/rename", s.handleRenameSession)
	mux.HandleFunc("POST /api/sessions/{id}/analyze", s.handleAnalyzeDomain)
	mux.HandleFunc("POST /api/sessions/{id}/analyze_urls", s.handleAnalyzeURLs)
	mux.HandleFunc("POST /api/sessions/{id}/upload", s.handleUpload)
	mux.HandleFunc("POST /api/sessions/{id}/chat", s.handleChat)
	mux.HandleFunc("POST /api/sessions/{id}/sync", s.handleSync)
	mux.HandleFunc("GET /api/sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("POST /api/sessions/{id}/history/clear", s.handleClearHistory)
	mux.HandleFunc("GET /api/sessions/{id}/documents", s.handleDocuments)
	mux.HandleFunc("POST /api/sessions/{id}/documents/clear", s.handleClearDocuments)
	return mux
}

// handleInitialize hands a client its starting session: the oldest one
// in the registry, which always exists.
func (s *server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	infos := s.manager.List()
	writeJSON(w, http.StatusOK, infos[0])
}

func (s *server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.manager.List()})
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sess := s.manager.Create(req.Name)
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID(), "name": sess.Name()})
}

func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	replacement, err := s.manager.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]string{}
	if replacement != nil {
		resp["replacement_id"] = replacement.ID()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if err := s.manager.Rename(r.PathValue("id"), req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": req.Name})
}

func (s *server) handleAnalyzeDomain(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Domain string `json:"domain"`
		Sync   bool   `json:"sync"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Domain) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "domain is required"})
		return
	}
	result, err := sess.AnalyzeDomain(r.Context(), req.Domain, req.Sync)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleAnalyzeURLs(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		URLs []string `json:"urls"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.URLs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "urls are required"})
		return
	}
	result, err := sess.AnalyzeURLs(r.Context(), req.URLs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, uploadLimit)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "a file form field is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, err)
		return
	}

	name := filepath.Base(header.Filename)
	var chunks int
	if strings.EqualFold(filepath.Ext(name), ".zip") {
		chunks, err = sess.UploadArchive(r.Context(), data)
	} else {
		chunks, err = sess.UploadDocument(r.Context(), name, data)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": name, "chunks": chunks})
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Query string `json:"query"`
		Mode  string `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	answer, err := sess.Chat(r.Context(), req.Query, req.Mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *server) handleSync(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	result, err := sess.Sync(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	mode := r.URL.Query().Get("mode")
	writeJSON(w, http.StatusOK, map[string]any{"history": sess.History(mode)})
}

func (s *server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.ClearHistory()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Documents())
}

func (s *server) handleClearDocuments(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.ClearDocuments(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return sess, true
}

// decodeBody fills v from the request JSON. An absent body is not an
// error; v keeps its zero values and each handler validates required
// fields itself.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrInvalidSession):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrEmptyQuery),
		errors.Is(err, session.ErrSyncUnsupported),
		errors.Is(err, docparser.ErrUnsupportedType),
		errors.Is(err, docparser.ErrArchiveTooLarge),
		errors.Is(err, docparser.ErrUnsafePath):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrNoContent):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
