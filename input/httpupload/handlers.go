package httpupload

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/c360/barstreams/bars"
	"github.com/c360/barstreams/errors"
)

// UploadResponse is the body of an accepted upload.
type UploadResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Bytes int    `json:"bytes"`
}

// newRouter builds the upload routes.
func (u *Input) newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(u.requestTimeout))

	r.Get("/health", u.handleHealth)
	r.With(u.rateLimit).Post("/batches", u.handleUpload)
	return r
}

// rateLimit rejects requests beyond the configured rate with 429.
func (u *Input) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !u.limiter.Allow() {
			u.rejected.Add(1)
			w.Header().Set("Retry-After", "1")
			u.writeError(w, r, http.StatusTooManyRequests, errors.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (u *Input) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := u.Health()
	status := http.StatusOK
	state := "ok"
	if !h.Healthy {
		status, state = http.StatusServiceUnavailable, "unavailable"
	}
	writeJSON(w, status, map[string]any{
		"status":    state,
		"component": u.name,
		"uploads":   u.uploadsAccepted.Load(),
	})
}

// handleUpload accepts a CSV body, or a multipart form with a "file" part,
// and publishes it as one batch.
func (u *Input) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, u.config.MaxUploadBytes)

	data, filename, err := readUpload(r, u.config.MaxUploadBytes)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		u.rejected.Add(1)
		u.writeError(w, r, status, err)
		return
	}
	if len(data) == 0 {
		u.rejected.Add(1)
		u.writeError(w, r, http.StatusBadRequest, errors.ErrEmptyBatch)
		return
	}

	id := uuid.NewString()
	if q := r.URL.Query().Get("name"); q != "" {
		filename = q
	}
	filename = cleanName(filename)
	if filename == "" {
		filename = fmt.Sprintf("upload-%s.csv", id)
	}

	headers := map[string]string{
		bars.AttrFilename: filename,
		bars.AttrBatchID:  id,
	}

	ctx, cancel := context.WithTimeout(r.Context(), u.publishTimeout)
	defer cancel()
	if err := u.publisher.PublishMsg(ctx, u.subject, data, headers); err != nil {
		u.recordError(err)
		u.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}

	u.uploadsAccepted.Add(1)
	u.bytesAccepted.Add(int64(len(data)))
	u.touch()
	if u.core != nil {
		u.core.RecordBatchReceived(u.name, "http")
		u.core.RecordMessagePublished(u.name, u.subject)
	}
	u.logger.Info("Upload accepted",
		"batch", id,
		"filename", filename,
		"bytes", len(data),
		"request_id", middleware.GetReqID(r.Context()))

	writeJSON(w, http.StatusAccepted, UploadResponse{ID: id, Name: filename, Bytes: len(data)})
}

// readUpload returns the upload data and the client's file name, if any.
func readUpload(r *http.Request, maxBytes int64) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		return data, "", err
	}

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, "", err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("no file provided: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	return data, header.Filename, err
}

// cleanName reduces a client supplied name to its base name.
func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

func (u *Input) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	u.logger.Warn("Upload rejected",
		"status", status,
		"path", r.URL.Path,
		"error", err,
		"request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (u *Input) touch() {
	u.mu.Lock()
	u.lastActivity = time.Now()
	u.mu.Unlock()
}
