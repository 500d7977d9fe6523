package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"legalmitra/internal/ratelimit"
	"legalmitra/internal/security"
	"legalmitra/internal/util"
	"legalmitra/services/api/internal/app"
)

const (
	defaultMaxUploadBytes = 25 << 20
	maxJSONBodyBytes      = 1 << 20
	multipartMemoryBytes  = 8 << 20
	rateWindow            = time.Minute
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                      *app.App
	RedisAddr                string
	RedisPassword            string
	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
	TrustedProxyCIDRs        []string
	AllowedOrigins           []string
	MaxUploadBytes           int64
	// RequireAuth makes /api/chat/{userId} routes demand a bearer token
	// whose subject is {userId}.
	RequireAuth bool
}

// Server exposes the HTTP API.
type Server struct {
	app            *app.App
	router         chi.Router
	maxUploadBytes int64
	requireAuth    bool
	trustedProxies *util.TrustedProxies
	redis          *redis.Client
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
	alerter        *security.AuditAlerter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app is required")
	}
	signupLimit := cfg.SignupRateLimitPerMinute
	if signupLimit <= 0 {
		signupLimit = 5
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, fmt.Errorf("redis addr is required for rate limiting")
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	signupLimiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "legalmitra:api:ratelimit:signup", signupLimit, rateWindow)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init signup limiter: %w", err)
	}
	loginLimiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "legalmitra:api:ratelimit:login", loginLimit, rateWindow)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init login limiter: %w", err)
	}
	alerter, err := security.NewAuditAlerter(redisClient, "legalmitra:api:alerts")
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init audit alerter: %w", err)
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		app:            cfg.App,
		router:         chi.NewRouter(),
		maxUploadBytes: maxUpload,
		requireAuth:    cfg.RequireAuth,
		trustedProxies: trusted,
		redis:          redisClient,
		signupLimiter:  signupLimiter,
		loginLimiter:   loginLimiter,
		alerter:        alerter,
	}
	s.router.Use(
		middleware.Recoverer,
		util.WithRequestID,
		util.WithRequestLog,
		util.WithSecurityHeaders,
		cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
			MaxAge:         300,
		}),
	)
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// Close releases the Redis connection shared by the limiters and the alerter.
func (s *Server) Close() error {
	return s.redis.Close()
}

func (s *Server) routes() {
	r := s.router
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/chat/{userId}", func(r chi.Router) {
			r.Use(s.chatOwner)
			r.Post("/", s.handlePostChat)
			r.Get("/", s.handleListNotebooks)
			r.Get("/{notebookId}", s.handleGetNotebook)
		})
		r.Post("/process-document", s.handleProcessDocument)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Ping(r.Context()); err != nil {
		util.LoggerFromContext(r.Context()).Warn("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// chatOwner enforces that the bearer token belongs to {userId} when
// RequireAuth is on.
func (s *Server) chatOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.requireAuth {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "chat.authorize", "fail", "reason", "missing_token")
			writeAppError(w, r, app.ErrInvalidToken)
			return
		}
		uid, err := s.app.UserIDFromToken(r.Context(), token)
		if err != nil {
			s.audit(r, "chat.authorize", "fail", "reason", "invalid_token")
			writeAppError(w, r, err)
			return
		}
		if uid != chi.URLParam(r, "userId") {
			s.audit(r, "chat.authorize", "fail", "reason", "subject_mismatch", "user_id", uid)
			writeAppError(w, r, app.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", s.clientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	alert, err := s.alerter.Observe(r.Context(), event, outcome, s.clientIP(r))
	if err != nil {
		logger.Warn("security alert counter failed", "event", event, "err", err)
		return
	}
	if alert.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", s.clientIP(r),
			"count", alert.Count,
			"threshold", alert.Threshold,
			"window", alert.Window.String(),
		)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + s.clientIP(r)
	decision, err := limiter.Allow(r.Context(), key)
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("rate limiter unavailable", "err", err)
	}
	if decision.Allowed {
		return true
	}
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry <= 0 {
		retry = int(rateWindow.Seconds())
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", msg)
	return false
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trustedProxies)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authHeader[7:])
	return token, token != ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("encode response", "err", err)
	}
}
