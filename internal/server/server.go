// Package server exposes a loaded manifest over a read-only HTTP API.
//
// Routes:
//
//	GET /healthz
//	GET /schemas
//	GET /schemas/{schema}/tables
//	GET /schemas/{schema}/tables/{table}
//	GET /schemas/{schema}/tables/{table}/queries/{query}
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/logger"
	"github.com/koustreak/protodb/internal/manifest"
)

const shutdownTimeout = 5 * time.Second

// Server serves one manifest. The manifest is never modified.
type Server struct {
	manifest *manifest.Manifest
	log      *logger.Logger
	router   chi.Router
}

// New builds the router for m.
func New(m *manifest.Manifest, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{manifest: m, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, errs.New(errs.ErrKindNotFound, "no such route"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed", Kind: errs.ErrKindInvalidInput.String()})
	})

	r.Get("/healthz", s.health)
	r.Route("/schemas", func(r chi.Router) {
		r.Get("/", s.listSchemas)
		r.Route("/{schema}/tables", func(r chi.Router) {
			r.Get("/", s.listTables)
			r.Get("/{table}", s.getTable)
			r.Get("/{table}/queries/{query}", s.getQuery)
		})
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.With().Str("addr", addr).Logger().Info("serving manifest")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errs.Wrap(errs.ErrKindConnectionFailed, "listen on "+addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errs.Wrap(errs.ErrKindTimeout, "shutdown", err)
		}
		return nil
	}
}

type schemaSummary struct {
	Name   string `json:"name"`
	Tables int    `json:"tables"`
}

type tableSummary struct {
	Name       string   `json:"name"`
	RecordName string   `json:"record_name"`
	Queries    []string `json:"queries"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.manifest.Version,
		"driver":  s.manifest.Driver,
	})
}

func (s *Server) listSchemas(w http.ResponseWriter, _ *http.Request) {
	out := make([]schemaSummary, 0, len(s.manifest.Schemas))
	for _, sc := range s.manifest.Schemas {
		out = append(out, schemaSummary{Name: sc.Name, Tables: len(sc.Tables)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	sc, err := s.schema(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]tableSummary, 0, len(sc.Tables))
	for _, t := range sc.Tables {
		names := make([]string, 0, len(t.Queries)+len(t.CustomQueries))
		for _, q := range t.Queries {
			names = append(names, q.Name)
		}
		for _, q := range t.CustomQueries {
			names = append(names, q.Name)
		}
		out = append(out, tableSummary{Name: t.Name, RecordName: t.RecordName, Queries: names})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getTable(w http.ResponseWriter, r *http.Request) {
	t, err := s.table(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) getQuery(w http.ResponseWriter, r *http.Request) {
	t, err := s.table(r)
	if err != nil {
		writeError(w, err)
		return
	}
	name := chi.URLParam(r, "query")
	q, ok := t.Query(name)
	if !ok {
		writeError(w, errs.Newf(errs.ErrKindNotFound, "table %s.%s has no query %q", t.Schema, t.Name, name))
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) schema(r *http.Request) (*manifest.Schema, error) {
	name := chi.URLParam(r, "schema")
	sc, ok := s.manifest.Schema(name)
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "schema %q not found", name)
	}
	return sc, nil
}

func (s *Server) table(r *http.Request) (*manifest.Table, error) {
	sc, err := s.schema(r)
	if err != nil {
		return nil, err
	}
	name := chi.URLParam(r, "table")
	t, ok := sc.Table(name)
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s.%s not found", sc.Name, name)
	}
	return t, nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.HTTPEvent().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
