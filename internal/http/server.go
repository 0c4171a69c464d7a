package http

import (
	"context"
	"net"
	"net/http"
	"time"

	"go-linkrot/internal/service"

	"github.com/sirupsen/logrus"
)

type Server struct {
	router  *http.ServeMux
	service *service.CrawlService
	log     logrus.FieldLogger
	srv     *http.Server
}

func NewServer(svc *service.CrawlService, log logrus.FieldLogger) *Server {
	server := &Server{
		router:  http.NewServeMux(),
		service: svc,
		log:     log,
	}
	server.srv = &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server.router.HandleFunc("/crawl", server.handleCrawl)
	server.router.HandleFunc("/crawl/{id}", server.handleGetJob)
	server.router.HandleFunc("/crawl/{id}/report", server.handleGetReport)
	server.router.HandleFunc("/crawl/{id}/cancel", server.handleCancel)
	return server
}

// Handler returns the routed handler wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.router)
}

// Start listens on addr and serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.log != nil {
			s.log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("http request")
		}
	})
}
