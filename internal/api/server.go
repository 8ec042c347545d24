package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"

	"ragdocs/internal/documents"
	"ragdocs/internal/jobs"
	"ragdocs/internal/models"
	"ragdocs/internal/rag"
	"ragdocs/internal/util"
)

const (
	maxJSONBody     = 1 << 20
	multipartMemory = 32 << 20
)

var (
	errInvalidJSON = fmt.Errorf("%w: invalid json", util.ErrValidation)
	errNoFile      = fmt.Errorf("%w: no file provided", util.ErrValidation)
)

type Server struct {
	docs     *documents.Service
	composer *rag.Composer
	maxBytes int64
	maxTopK  int
}

func NewServer(docs *documents.Service, composer *rag.Composer, maxUploadBytes int64) *Server {
	return &Server{docs: docs, composer: composer, maxBytes: maxUploadBytes, maxTopK: composer.MaxTopK()}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /documents/upload", s.handleUpload)
	mux.HandleFunc("GET /documents", s.handleListDocuments)
	mux.HandleFunc("GET /documents/{id}", s.handleGetDocument)
	mux.HandleFunc("GET /documents/{id}/chunks", s.handleDocumentChunks)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("POST /retrieve", s.handleRetrieve)
	mux.HandleFunc("POST /chat", s.handleChat)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErr(w, util.ErrFileTooLarge)
			return
		}
		s.writeErr(w, fmt.Errorf("%w: parse multipart: %w", util.ErrValidation, err))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	fh, ok := uploadedFile(r.MultipartForm.File)
	if !ok {
		s.writeErr(w, errNoFile)
		return
	}
	// reject by name, type and declared size before reading the body
	contentType := fh.Header.Get("Content-Type")
	if err := documents.ValidateUpload(fh.Filename, contentType, fh.Size, s.maxBytes); err != nil {
		s.writeErr(w, err)
		return
	}
	data, err := readUpload(fh)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	doc, err := s.docs.Upload(r.Context(), documents.Upload{Filename: fh.Filename, ContentType: contentType, Data: data})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"identifier": doc.ID, "filename": doc.Filename})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.List(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	detail, err := s.docs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDocumentChunks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	chunks, err := s.docs.Chunks(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "chunks": chunks})
}

type queryRequest struct {
	Query    string            `json:"query"`
	Message  string            `json:"message"`
	TopK     int               `json:"top_k"`
	Limit    int               `json:"limit"`
	MinScore *float64          `json:"min_score"`
	History  []models.ChatTurn `json:"history"`
}

func (q queryRequest) text() string {
	if strings.TrimSpace(q.Query) != "" {
		return q.Query
	}
	return q.Message
}

func (q queryRequest) topK() int {
	if q.TopK != 0 {
		return q.TopK
	}
	return q.Limit
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	ans, err := s.composer.Answer(r.Context(), req.text(), req.topK())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	results, err := s.composer.Retrieve(r.Context(), req.text(), req.topK(), req.MinScore)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	message := req.Message
	if strings.TrimSpace(message) == "" {
		message = req.Query
	}
	ans, err := s.composer.Chat(r.Context(), message, req.History, req.topK())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errInvalidJSON, err)
	}
	return nil
}

func uploadedFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	if files := m["file"]; len(files) > 0 {
		return files[0], true
	}
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	apiErr := toAPIError(err, s.maxTopK)
	if apiErr.Status >= 500 {
		log.Printf("api: request failed status=%d code=%s err=%v", apiErr.Status, apiErr.Code, err)
	}
	writeJSON(w, apiErr.Status, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

// toAPIError maps the error taxonomy to a status and a stable code. Raw
// error text is never returned to the client.
func toAPIError(err error, maxTopK int) apiError {
	switch {
	case errors.Is(err, util.ErrEmptyQuery):
		return apiError{http.StatusBadRequest, "RD-API-4002", "Query must not be empty."}
	case errors.Is(err, util.ErrInvalidTopK):
		return apiError{http.StatusBadRequest, "RD-API-4003", fmt.Sprintf("top_k must be between 1 and %d.", maxTopK)}
	case errors.Is(err, util.ErrUnsupportedFileType):
		return apiError{http.StatusUnsupportedMediaType, "RD-API-4015", "Only PDF, plain text and Markdown files are accepted."}
	case errors.Is(err, util.ErrFileTooLarge):
		return apiError{http.StatusRequestEntityTooLarge, "RD-API-4013", "File exceeds the upload size limit."}
	case errors.Is(err, errNoFile):
		return apiError{http.StatusBadRequest, "RD-API-4006", "No file was provided."}
	case errors.Is(err, errInvalidJSON):
		return apiError{http.StatusBadRequest, "RD-API-4007", "Malformed JSON request body."}
	case errors.Is(err, util.ErrValidation):
		return apiError{http.StatusBadRequest, "RD-API-4001", "Invalid request. Check inputs and retry."}
	case errors.Is(err, util.ErrNotFound):
		return apiError{http.StatusNotFound, "RD-API-4004", "Requested resource was not found."}
	case errors.Is(err, util.ErrRetrievalFailed):
		return apiError{http.StatusBadGateway, "RD-API-5021", "Document retrieval is unavailable. Retry shortly."}
	case errors.Is(err, util.ErrGenerationFailed), errors.Is(err, util.ErrCapabilityUnavailable):
		return apiError{http.StatusBadGateway, "RD-API-5020", "Upstream model unavailable. Retry shortly."}
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrClosed):
		return apiError{http.StatusServiceUnavailable, "RD-API-5030", "Indexing queue is busy. Retry shortly."}
	case errors.Is(err, util.ErrStore):
		return apiError{http.StatusServiceUnavailable, "RD-DB-5002", "Storage is unavailable. Check local services and retry."}
	default:
		return apiError{http.StatusInternalServerError, "RD-API-5000", "Internal server error. Please retry or check service logs."}
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
