// Package server wires the exam coordinator HTTP runtime: storage selection,
// authentication, routing, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hallwatch/hallwatch/internal/exam/service"
	"github.com/hallwatch/hallwatch/internal/platform/timeouts"
	"github.com/hallwatch/hallwatch/internal/storage/memory"
	"github.com/hallwatch/hallwatch/internal/storage/sqlite"
)

// Config holds the environment-provided server settings. An empty DBPath
// selects the in-memory store, which backs tests and local development.
type Config struct {
	Port       int    `env:"HALLWATCH_EXAM_PORT" envDefault:"8080"`
	DBPath     string `env:"HALLWATCH_EXAM_DB_PATH"`
	AuthSecret string `env:"HALLWATCH_EXAM_AUTH_SECRET"`
}

// Server hosts the exam coordinator HTTP API and its storage lifecycle.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *sqlite.Store
	svc        *service.Service
}

// New creates a configured server listening on the configured port.
func New(cfg Config) (*Server, error) {
	return NewWithAddr(cfg, fmt.Sprintf(":%d", cfg.Port))
}

// NewWithAddr creates a configured server for the provided address.
func NewWithAddr(cfg Config, addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	var sqlStore *sqlite.Store
	var stores service.Stores
	if path := strings.TrimSpace(cfg.DBPath); path != "" {
		sqlStore, err = sqlite.Open(path)
		if err != nil {
			_ = listener.Close()
			return nil, fmt.Errorf("open exam store: %w", err)
		}
		stores = service.Stores{
			Exams:      sqlStore,
			Attendance: sqlStore,
			Transfers:  sqlStore,
			Events:     sqlStore,
			Stats:      sqlStore,
			Messages:   sqlStore,
		}
	} else {
		mem := memory.New()
		stores = service.Stores{
			Exams:      mem,
			Attendance: mem,
			Transfers:  mem,
			Events:     mem,
			Stats:      mem,
			Messages:   mem,
		}
	}

	svc := service.New(stores)
	handler := NewHandler(svc, newTokenVerifier(cfg.AuthSecret, nil))

	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           traced(handler),
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		store: sqlStore,
		svc:   svc,
	}, nil
}

// NewHandler creates the exam API routes without a network listener, for
// tests and embedding.
func NewHandler(svc *service.Service, verifier tokenVerifier) http.Handler {
	h := &handlers{svc: svc, verifier: verifier}

	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.Handle("POST /v1/exams", h.withActor(h.handleCreateExam))
	mux.Handle("GET /v1/exams", h.withActor(h.handleListExams))
	// Lifecycle verbs arrive as "{examID}:start" and "{examID}:end".
	mux.Handle("POST /v1/exams/{examAction}", h.withActor(h.handleExamLifecycle))
	mux.Handle("GET /v1/exams/{examID}", h.withActor(h.handleGetExam))

	mux.Handle("POST /v1/exams/{examID}/students/{studentAction}", h.withActor(h.handleStudentAction))
	mux.Handle("GET /v1/exams/{examID}/students/{studentID}/file", h.withActor(h.handleStudentFile))

	mux.Handle("POST /v1/exams/{examID}/transfers", h.withActor(h.handleRequestTransfer))
	mux.Handle("GET /v1/exams/{examID}/transfers", h.withActor(h.handleListTransfers))
	mux.Handle("POST /v1/exams/{examID}/transfers/{transferAction}", h.withActor(h.handleTransferAction))

	mux.Handle("POST /v1/exams/{examID}/incidents", h.withActor(h.handleReportIncident))

	mux.Handle("POST /v1/exams/{examID}/messages", h.withActor(h.handlePostMessage))
	mux.Handle("GET /v1/exams/{examID}/messages", h.withActor(h.handleListMessages))
	mux.Handle("POST /v1/exams/{examID}/messages/{messageAction}", h.withActor(h.handleMessageAction))

	mux.Handle("GET /v1/exams/{examID}/snapshot", h.withActor(h.handleSnapshot))
	mux.Handle("GET /v1/exams/{examID}/events", h.withActor(h.handleEventLog))
	mux.Handle("POST /v1/exams/{examID}/rollups", h.withActor(h.handleRebuildRollups))

	return mux
}

// traced wraps the handler with one server span per request.
func traced(next http.Handler) http.Handler {
	tracer := otel.Tracer("hallwatch/exam")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves an exam server until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the HTTP server until context cancellation, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("exam server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close exam store: %v", err)
		}
	}
}
