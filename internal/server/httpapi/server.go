// Package httpapi exposes the capture server over HTTP: session creation and
// polling, upload intents, confirmation, the relay websocket and, for the
// local storage backend, the object gateway.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/logging"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/services"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/sessions"
)

const shutdownTimeout = 10 * time.Second

type SessionCreator interface {
	Create(docType protocol.DocType) (sessions.Session, error)
}

type Issuer interface {
	Issue(ctx context.Context, req protocol.PresignRequest) (services.UploadIntent, error)
}

type StatusChecker interface {
	Check(id string) (services.StatusResult, error)
}

type Confirmer interface {
	Confirm(ctx context.Context, req protocol.ConfirmRequest) (services.ConfirmResult, error)
	DeleteDocument(ctx context.Context, id int64) error
}

// Deps are the handlers' collaborators. Objects is nil unless the local
// storage backend serves uploads itself.
type Deps struct {
	Sessions SessionCreator
	Uploads  Issuer
	Status   StatusChecker
	Confirm  Confirmer
	Relay    http.Handler
	Objects  http.Handler
}

type Server struct {
	address string
	deps    Deps
	logger  logging.Logger
	router  chi.Router
}

func NewServer(address string, deps Deps, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop{}
	}
	s := &Server{
		address: address,
		deps:    deps,
		logger:  logger.With("module", "http_server"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get(protocol.PathHealth, s.handleHealth)
	r.Post(protocol.PathMobileSession, s.handleCreateSession)
	r.Get(protocol.PathMobileSession, s.handleSessionQuery)
	r.Post(protocol.PathPresignedURL, s.handlePresign)
	r.Post(protocol.PathConfirmUpload, s.handleConfirm)
	r.Delete(protocol.PathDocuments+"/{id}", s.handleDeleteDocument)

	if s.deps.Relay != nil {
		r.Handle(protocol.PathRelay, s.deps.Relay)
	}
	if s.deps.Objects != nil {
		r.Handle(protocol.PathObjects+"*", s.deps.Objects)
	}
	return r
}

// Run listens on the configured address until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "HTTP server listening", "address", listen.Addr().String())
	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
