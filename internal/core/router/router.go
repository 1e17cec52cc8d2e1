package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/region-adjacency/internal/adjacency"
	"github.com/mohammed-shakir/region-adjacency/internal/core/model"
	"github.com/mohammed-shakir/region-adjacency/internal/core/observability"
	"github.com/mohammed-shakir/region-adjacency/internal/serializer"
)

// RegionView is the JSON shape of one region. Vertices and BBox are only known
// when the graph was computed in-process.
type RegionView struct {
	ID        model.RegionID   `json:"id"`
	Neighbors []model.RegionID `json:"neighbors"`
	Vertices  int              `json:"vertices,omitempty"`
	BBox      *model.BBox      `json:"bbox,omitempty"`
}

// Source answers region queries for one loaded graph.
type Source interface {
	Digest() string
	Regions(ctx context.Context) ([]model.RegionID, error)
	Region(ctx context.Context, id model.RegionID) (RegionView, bool, error)
	Graph(ctx context.Context) (*adjacency.Graph, error)
}

// Holder publishes the current Source to handlers; it is empty until the
// first graph is loaded.
type Holder struct {
	src atomic.Pointer[Source]
}

func (h *Holder) Set(src Source) { h.src.Store(&src) }

// SetIfEmpty installs src only when no Source was set yet.
func (h *Holder) SetIfEmpty(src Source) bool { return h.src.CompareAndSwap(nil, &src) }

func (h *Holder) Get() (Source, bool) {
	p := h.src.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// Readiness implements health.ReadinessReporter.
func (h *Holder) Readiness() (bool, string) {
	src, ok := h.Get()
	if !ok {
		return false, ""
	}
	return true, src.Digest()
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// observed wraps a handler that needs a loaded Source with status tracking and
// HTTP metrics under route.
func observed(logger *slog.Logger, h *Holder, route string, fn func(w http.ResponseWriter, r *http.Request, src Source)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
		}()

		src, ok := h.Get()
		if !ok {
			writeError(sw, http.StatusServiceUnavailable, "graph not loaded")
			return
		}
		fn(sw, r, src)
		if sw.code >= http.StatusInternalServerError {
			logger.WarnContext(r.Context(), "request failed", "route", route, "status", sw.code)
		}
	}
}

func HandleRegions(logger *slog.Logger, h *Holder) http.HandlerFunc {
	return observed(logger, h, "/regions", func(w http.ResponseWriter, r *http.Request, src Source) {
		ids, err := src.Regions(r.Context())
		if err != nil {
			sourceError(w, r, logger, err)
			return
		}
		if ids == nil {
			ids = []model.RegionID{}
		}
		writeJSON(w, http.StatusOK, ids)
	})
}

func HandleRegion(logger *slog.Logger, h *Holder) http.HandlerFunc {
	return observed(logger, h, "/regions/{id}", func(w http.ResponseWriter, r *http.Request, src Source) {
		view, ok := lookup(w, r, logger, src)
		if ok {
			writeJSON(w, http.StatusOK, view)
		}
	})
}

func HandleNeighbors(logger *slog.Logger, h *Holder) http.HandlerFunc {
	return observed(logger, h, "/regions/{id}/neighbors", func(w http.ResponseWriter, r *http.Request, src Source) {
		view, ok := lookup(w, r, logger, src)
		if ok {
			writeJSON(w, http.StatusOK, view.Neighbors)
		}
	})
}

// HandleCSV streams the whole graph in the adjacency file format.
func HandleCSV(logger *slog.Logger, h *Holder, delim string) http.HandlerFunc {
	return observed(logger, h, "/adjacency.csv", func(w http.ResponseWriter, r *http.Request, src Source) {
		g, err := src.Graph(r.Context())
		if err != nil {
			sourceError(w, r, logger, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="adjacency-`+src.Digest()+`.csv"`)
		if _, err := serializer.Write(w, g, delim); err != nil {
			// headers are gone; the client sees a truncated body
			logger.WarnContext(r.Context(), "csv stream aborted", "err", err)
		}
	})
}

func lookup(w http.ResponseWriter, r *http.Request, logger *slog.Logger, src Source) (RegionView, bool) {
	id, err := regionParam(r)
	if err != nil || id == "" {
		writeError(w, http.StatusBadRequest, "missing or malformed region id")
		return RegionView{}, false
	}
	view, ok, err := src.Region(r.Context(), id)
	if err != nil {
		sourceError(w, r, logger, err)
		return RegionView{}, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown region "+string(id))
		return RegionView{}, false
	}
	if view.Neighbors == nil {
		view.Neighbors = []model.RegionID{}
	}
	return view, true
}

// regionParam returns the {id} segment byte for byte. chi matches on the raw
// path when the request escaped characters, so the segment is unescaped then.
func regionParam(r *http.Request) (model.RegionID, error) {
	raw := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return model.RegionID(raw), nil
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", err
	}
	return model.RegionID(id), nil
}

func sourceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		code = http.StatusGatewayTimeout
	}
	logger.WarnContext(r.Context(), "graph source error", "path", r.URL.Path, "err", err)
	writeError(w, code, "graph source unavailable")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
