package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/configstore"
	"github.com/voicebridge/voicebridge/internal/dispatch"
	"github.com/voicebridge/voicebridge/internal/logging"
	"github.com/voicebridge/voicebridge/internal/platform"
	"github.com/voicebridge/voicebridge/internal/store"
)

var ErrClientClosed = errors.New("client connection closed")

// Server is the voicebridge webhook HTTP + WebSocket server. It receives
// platform events, hands them to the dispatcher, and streams run updates
// to connected panel clients.
type Server struct {
	cfg        config.Config
	log        *logging.Logger
	configs    *configstore.Store
	dispatcher *dispatch.Dispatcher
	clients    *ClientRegistry
	eventSeq   atomic.Int64

	// Optional wiring. A nil platform client disables the panel usage
	// and admin sync endpoints; a nil archive disables the runs listing.
	platform *platform.Client
	archive  store.Store

	startedAt    time.Time
	httpServer   *http.Server
	upgrader     websocket.Upgrader
	loginLimiter *loginRateLimiter
}

// loginRateLimiter tracks failed auth attempts per IP to slow brute-force
// runs against the panel login and the webhook endpoint.
type loginRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
}

const (
	loginRateWindow   = 5 * time.Minute
	loginRateMaxFails = 10
	loginRateMaxIPs   = 10000 // cap tracked IPs to bound memory
)

func newLoginRateLimiter() *loginRateLimiter {
	rl := &loginRateLimiter{failures: make(map[string][]time.Time)}
	go rl.periodicCleanup()
	return rl
}

// periodicCleanup removes stale entries every minute.
func (l *loginRateLimiter) periodicCleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		cutoff := time.Now().Add(-loginRateWindow)
		for ip, times := range l.failures {
			filtered := times[:0]
			for _, t := range times {
				if t.After(cutoff) {
					filtered = append(filtered, t)
				}
			}
			if len(filtered) == 0 {
				delete(l.failures, ip)
			} else {
				l.failures[ip] = filtered
			}
		}
		l.mu.Unlock()
	}
}

func (l *loginRateLimiter) allow(remoteAddr string) bool {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		host = remoteAddr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-loginRateWindow)
	recent := l.failures[host]
	filtered := recent[:0]
	for _, t := range recent {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		delete(l.failures, host)
		return true
	}
	l.failures[host] = filtered
	return len(filtered) < loginRateMaxFails
}

func (l *loginRateLimiter) recordFailure(remoteAddr string) {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		host = remoteAddr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Evict the oldest tracked IP once at the cap.
	if _, exists := l.failures[host]; !exists && len(l.failures) >= loginRateMaxIPs {
		var oldestIP string
		var oldestTime time.Time
		for ip, times := range l.failures {
			if len(times) > 0 && (oldestIP == "" || times[0].Before(oldestTime)) {
				oldestIP = ip
				oldestTime = times[0]
			}
		}
		if oldestIP != "" {
			delete(l.failures, oldestIP)
		}
	}

	l.failures[host] = append(l.failures[host], time.Now())
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithPlatform sets the upstream platform client for the panel usage and
// admin sync endpoints.
func WithPlatform(c *platform.Client) ServerOption {
	return func(s *Server) {
		s.platform = c
	}
}

// WithArchive sets the run archive for the panel runs listing.
func WithArchive(st store.Store) ServerOption {
	return func(s *Server) {
		s.archive = st
	}
}

// New creates a gateway server.
func New(cfg config.Config, configs *configstore.Store, d *dispatch.Dispatcher, log *logging.Logger, opts ...ServerOption) *Server {
	allowedOrigins := cfg.Gateway.AllowedOrigins
	s := &Server{
		cfg:          cfg,
		log:          log.Sub("gateway"),
		configs:      configs,
		dispatcher:   d,
		clients:      NewClientRegistry(log.Sub("clients")),
		loginLimiter: newLoginRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(allowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// checkWebSocketOrigin builds the upgrader origin check. Requests with no
// Origin header (non-browser clients) are always allowed.
func checkWebSocketOrigin(allowedOrigins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowedOrigins)
	}
}

// resolveBindAddr maps the configured bind mode to a listen address.
func resolveBindAddr(cfg config.GatewayConfig) (string, error) {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "", "loopback":
	case "lan":
		host = "0.0.0.0"
	case "custom":
		if cfg.CustomBindHost == "" {
			return "", fmt.Errorf("bind mode %q requires customBindHost", cfg.Bind)
		}
		host = cfg.CustomBindHost
	default:
		return "", fmt.Errorf("unknown bind mode %q", cfg.Bind)
	}
	return net.JoinHostPort(host, fmt.Sprintf("%d", cfg.Port)), nil
}

// registerHTTPRoutes attaches every gateway endpoint to mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /panel/login", s.handlePanelLogin)
	mux.HandleFunc("POST /panel/usage", s.handlePanelUsage)
	mux.HandleFunc("GET /panel/runs", s.handlePanelRuns)
	mux.HandleFunc("GET /admin/sync-agents", s.handleSyncAgents)
	mux.HandleFunc("GET /admin/sync-numbers", s.handleSyncNumbers)
	mux.HandleFunc("POST /admin/reload", s.handleReload)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("/", handleNotFound)
}

// Start begins listening and blocks until the listener fails or ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr, err := resolveBindAddr(s.cfg.Gateway)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)

	handler := withMiddleware(mux, s.log, s.cfg.Gateway.AllowedOrigins)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.httpServer.Addr = ln.Addr().String()
	s.startedAt = time.Now()

	s.log.Info().Str("addr", s.httpServer.Addr).Msg("gateway listening")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.CloseAll()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("shutdown error")
		}
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}
