// package server contains middleware & handlers for the glucose proxy web service
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/glucolink/glucolink/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers in the glucose proxy service.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Server wraps an [http.Server] with the route table for the proxy.
type Server struct {
	addr   string
	router Router
	logger *log.Logger
}

// New builds a Server with all routes registered and request logging applied.
func New(addr string, handlers *Handlers, logger *log.Logger) *Server {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	router := NewBasicRouter()
	router.Use(Logging(logger))

	router.Handler(handlers.CallbackHandler())
	router.Handle(http.MethodPost, "/auth/refresh", http.HandlerFunc(handlers.Refresh))
	router.Handle(http.MethodGet, "/glucose", http.HandlerFunc(handlers.Glucose))
	router.Handle(http.MethodGet, "/trends", http.HandlerFunc(handlers.Trends))
	router.Handle(http.MethodGet, "/charts", http.HandlerFunc(handlers.Charts))
	router.Handle(http.MethodGet, "/devices", http.HandlerFunc(handlers.Devices))
	router.Handle(http.MethodGet, "/health", http.HandlerFunc(handlers.Health))

	return &Server{addr: addr, router: router, logger: logger}
}

// Router exposes the configured route table, mainly for tests.
func (s *Server) Router() Router {
	return s.router
}

// ListenAndServe runs the HTTP server until the context is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
