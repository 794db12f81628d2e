// Package httpapi serves health, metrics and the WebSocket live query gateway.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/relay/internal/chat"
	"github.com/matheus3301/relay/internal/live"
	"github.com/matheus3301/relay/internal/metrics"
	"go.uber.org/zap"
)

// Params are the gateway's collaborators. Metrics may be nil.
type Params struct {
	Engine   *chat.Engine
	Hub      *live.Hub
	Verifier *Verifier
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Gateway is the HTTP surface of the daemon.
type Gateway struct {
	engine   *chat.Engine
	hub      *live.Hub
	verifier *Verifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
	router   chi.Router

	mu    sync.Mutex
	conns map[string]int // open sockets per user id
}

func NewGateway(p Params) *Gateway {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		engine:   p.Engine,
		hub:      p.Hub,
		verifier: p.Verifier,
		metrics:  p.Metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(g.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if g.metrics != nil {
		r.Method(http.MethodGet, "/metrics", g.metrics.Handler())
	}
	r.Get("/ws", g.serveWS)

	g.router = r
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

func (g *Gateway) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			// hijacked by the websocket upgrade
			status = http.StatusSwitchingProtocols
		}
		g.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		g.metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Server runs the gateway on addr until Shutdown.
type Server struct {
	http   *http.Server
	logger *zap.Logger
	addr   net.Addr
	cancel context.CancelFunc
}

func NewServer(addr string, g *Gateway, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Hijacked websocket connections outlive http.Server.Shutdown, so their
	// requests hang off a base context that Shutdown cancels.
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           g,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return base },
		},
		logger: logger,
		cancel: cancel,
	}
}

// Start listens in the background. Bind errors are returned synchronously.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr()
	s.logger.Info("http gateway listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops accepting connections and waits for handlers up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.http.Shutdown(ctx)
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() net.Addr { return s.addr }
