package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/blobfs/internal/errors"
	"github.com/3leaps/blobfs/pkg/match"
	"github.com/3leaps/blobfs/pkg/output"
	"github.com/3leaps/blobfs/pkg/storage"
)

// StorageHandler serves directory listings and object reads.
type StorageHandler struct {
	adapter  *storage.Adapter
	provider string
	log      *zap.Logger
}

func NewStorageHandler(a *storage.Adapter, providerName string, log *zap.Logger) *StorageHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StorageHandler{adapter: a, provider: providerName, log: log}
}

// List serves GET /v1/list as JSONL: one node record per entry, an error
// record if the listing was cut short, then a summary record.
//
// Query parameters: path, recursive, include and exclude (repeatable
// globs), min_size, max_size, after, before.
func (h *StorageHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")

	recursive := false
	if v := q.Get("recursive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondWithError(w, r, apperrors.BadRequest(fmt.Sprintf("recursive: invalid boolean %q", v)))
			return
		}
		recursive = b
	}

	matcher, err := match.New(match.Config{
		Includes:      q["include"],
		Excludes:      q["exclude"],
		IncludeHidden: true,
	})
	if err != nil {
		respondWithError(w, r, apperrors.BadRequest(err.Error()))
		return
	}
	filter, err := match.NewFilter(match.FilterConfig{
		MinSize: q.Get("min_size"),
		MaxSize: q.Get("max_size"),
		After:   q.Get("after"),
		Before:  q.Get("before"),
	})
	if err != nil {
		respondWithError(w, r, apperrors.BadRequest(err.Error()))
		return
	}

	ctx := r.Context()
	start := time.Now()
	w.Header().Set("Content-Type", "application/x-ndjson")
	jw := output.NewJSONLWriter(w, chimw.GetReqID(ctx), h.provider)
	defer func() { _ = jw.Close() }()

	sum := &output.SummaryRecord{Path: path, Recursive: recursive}
	l := h.adapter.ListContents(ctx, path, recursive)
	for n := range l.All() {
		if !matcher.Match(n) || !filter.Match(n) {
			continue
		}
		if err := jw.WriteNode(ctx, output.NewNodeRecord(n)); err != nil {
			h.log.Debug("Listing stream aborted", zap.String("path", path), zap.Error(err))
			return
		}
		sum.Add(n)
	}
	if err := l.Err(); err != nil {
		sum.Truncated = true
		_ = jw.WriteError(ctx, output.NewErrorRecord(path, err))
	}
	sum.Duration = time.Since(start)
	sum.DurationHuman = sum.Duration.String()
	_ = jw.WriteSummary(ctx, sum)
}

// Object serves GET and HEAD /v1/objects/{path...}.
func (h *StorageHandler) Object(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if path == "" {
		respondWithError(w, r, apperrors.BadRequest("object path is required"))
		return
	}

	ctx := r.Context()
	attrs, err := h.adapter.Stat(ctx, path)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	hdr := w.Header()
	contentType := attrs.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	hdr.Set("Content-Type", contentType)
	hdr.Set("Content-Length", strconv.FormatInt(attrs.Size, 10))
	if !attrs.LastModified.IsZero() {
		hdr.Set("Last-Modified", attrs.LastModified.UTC().Format(http.TimeFormat))
	}
	if attrs.ETag != "" {
		hdr.Set("ETag", strconv.Quote(attrs.ETag))
	}
	if attrs.CacheControl != "" {
		hdr.Set("Cache-Control", attrs.CacheControl)
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := h.adapter.ReadStream(ctx, path)
	if err != nil {
		hdr.Del("Content-Length")
		respondWithError(w, r, err)
		return
	}
	defer func() { _ = body.Close() }()

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.log.Debug("Object stream aborted", zap.String("path", path), zap.Error(err))
	}
}

// VersionHandler serves the build version.
func VersionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": version})
	}
}
