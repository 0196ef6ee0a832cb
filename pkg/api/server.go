package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quic-go/quic-go/http3"
	"github.com/scionproto/scion/pkg/log"
	"github.com/scionproto/scion/pkg/private/serrors"
	"golang.org/x/time/rate"

	"github.com/fancl20/trustchain/pkg/authority"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Role is reported by the health endpoint.
	Role string
	// Addr is the TCP listen address.
	Addr string
	// H3Addr is the UDP listen address of the HTTP/3 listener. Empty
	// disables it.
	H3Addr string
	// TLSConfig enables TLS on Addr and is required for H3Addr.
	TLSConfig *tls.Config
	// SignRate limits signing procedures per second. Zero disables the
	// limit.
	SignRate  float64
	SignBurst int
	// Registry receives the server metrics. Defaults to a fresh registry.
	Registry *prometheus.Registry
}

// Server serves the RPC procedures of one node over HTTP and optionally
// HTTP/3.
type Server struct {
	cfg     ServerConfig
	router  chi.Router
	metrics *Metrics
	opts    []connect.HandlerOption

	http *http.Server
	h3   *http3.Server
}

// NewServer creates a server with health and metrics endpoints. Services
// are added with the Mount methods.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.H3Addr != "" && cfg.TLSConfig == nil {
		return nil, serrors.New("HTTP/3 listener requires TLS", "addr", cfg.H3Addr)
	}
	metrics, err := NewMetrics(cfg.Registry)
	if err != nil {
		return nil, serrors.Wrap("registering metrics", err)
	}

	interceptors := []connect.Interceptor{metrics.Interceptor()}
	if cfg.SignRate > 0 {
		burst := cfg.SignBurst
		if burst <= 0 {
			burst = 1
		}
		interceptors = append(interceptors, signLimiter(rate.NewLimiter(rate.Limit(cfg.SignRate), burst)))
	}

	s := &Server{
		cfg:     cfg,
		router:  chi.NewRouter(),
		metrics: metrics,
		opts: []connect.HandlerOption{
			connect.WithCodec(codec{}),
			connect.WithInterceptors(interceptors...),
		},
	}
	s.router.Use(middleware.RequestID, middleware.RealIP, logRequests, middleware.Recoverer)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		TLSConfig:         cfg.TLSConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.H3Addr != "" {
		s.h3 = &http3.Server{
			Addr:      cfg.H3Addr,
			Handler:   s.router,
			TLSConfig: http3.ConfigureTLSConfig(cfg.TLSConfig),
		}
	}
	return s, nil
}

// MountRoot serves the Root procedures.
func (s *Server) MountRoot(r *authority.Root) {
	s.mount(rootHandlers(r, s.opts))
}

// MountIntermediate serves the intermediate procedures.
func (s *Server) MountIntermediate(i *authority.Intermediate) {
	s.mount(intermediateHandlers(i, s.opts))
}

// MountClient serves the client procedures.
func (s *Server) MountClient(c *authority.Client) {
	s.mount(clientHandlers(c, s.metrics, s.opts))
}

func (s *Server) mount(handlers map[string]http.Handler) {
	for procedure, h := range handlers {
		s.router.Handle(procedure, h)
	}
}

// Handler returns the router serving all mounted procedures.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on Addr until Close. It returns nil after Close.
func (s *Server) ListenAndServe() error {
	var err error
	if s.cfg.TLSConfig != nil {
		err = s.http.ListenAndServeTLS("", "")
	} else {
		err = s.http.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServeH3 serves HTTP/3 on H3Addr until Close. It returns nil
// immediately when no HTTP/3 listener is configured.
func (s *Server) ListenAndServeH3() error {
	if s.h3 == nil {
		return nil
	}
	err := s.h3.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops the server.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.h3 != nil {
		if err := s.h3.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type healthResponse struct {
	Status string `json:"status"`
	Role   string `json:"role"`
	Time   int64  `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Role:   s.cfg.Role,
		Time:   time.Now().Unix(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// logRequests attaches a request-scoped logger to the context.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.FromCtx(r.Context()).New("request_id", middleware.GetReqID(r.Context()))
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(log.CtxWith(r.Context(), logger)))
		logger.Debug("Handled request", "method", r.Method, "path", r.URL.Path,
			"duration", time.Since(start))
	})
}

func signLimiter(l *rate.Limiter) connect.Interceptor {
	return connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if signingProcedures[req.Spec().Procedure] && !l.Allow() {
				return nil, toConnect(serrors.Wrap("signing request rejected", ErrRateLimited,
					"procedure", req.Spec().Procedure))
			}
			return next(ctx, req)
		}
	})
}
