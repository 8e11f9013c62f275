// Command teststub is a reference implementation of the issuer's four
// session REST endpoints (spec §6: validate, heartbeat, renew, complete),
// for exercising internal/rest against a real HTTP server instead of an
// httptest stub embedded in a Go test file. It is not a production
// authorization server - it trusts whatever session id the request path
// carries (the bearer token is never decoded) and keeps everything in memory.
//
// Grounded on the teacher's cmd/main.go gin-engine-plus-routes-file wiring
// style and internal/middleware/request_id.go's request-scoped logging.
package main

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gwsession/sdk/internal/logger"
	"github.com/gwsession/sdk/internal/middleware"
	"github.com/gwsession/sdk/internal/tokencodec"
)

const (
	validateMaxAttempts = 20
	validateWindow      = time.Minute
)

type sessionRecord struct {
	mu           sync.Mutex
	expiresAt    int64
	completed    bool
	lastBeatUnix int64
}

type stub struct {
	mu       sync.Mutex
	sessions map[string]*sessionRecord
}

func newStub() *stub {
	return &stub{sessions: make(map[string]*sessionRecord)}
}

func (s *stub) recordFor(sessionID string, claims *tokencodec.Claims) *sessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.sessions[sessionID]
	if !ok {
		r = &sessionRecord{expiresAt: claims.ExpiresAt}
		s.sessions[sessionID] = r
	}
	return r
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	return token, ok && token != ""
}

type validateRequest struct {
	SessionJWT string `json:"session_jwt"`
}

func (s *stub) validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionJWT == "" {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "missing session_jwt"})
		return
	}

	claims, err := tokencodec.Decode(req.SessionJWT)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": "malformed token"})
		return
	}
	if expired, _ := tokencodec.IsExpired(req.SessionJWT, time.Now()); expired {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": "session expired"})
		return
	}

	s.recordFor(claims.SessionID, claims)
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (s *stub) heartbeat(c *gin.Context) {
	sessionID := c.Param("id")
	_, ok := bearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	s.mu.Lock()
	r, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}

	r.mu.Lock()
	r.lastBeatUnix = time.Now().Unix()
	remaining := r.expiresAt - time.Now().Unix()
	r.mu.Unlock()

	if remaining < 0 {
		remaining = 0
	}
	c.JSON(http.StatusOK, gin.H{"remaining_seconds": float64(remaining)})
}

type renewRequest struct {
	AdditionalMinutes int `json:"additional_minutes"`
}

func (s *stub) renew(c *gin.Context) {
	sessionID := c.Param("id")
	var req renewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	r, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}

	r.mu.Lock()
	r.expiresAt += int64(req.AdditionalMinutes) * 60
	newExpiresAt := r.expiresAt
	r.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"new_expires_at": newExpiresAt})
}

func (s *stub) complete(c *gin.Context) {
	sessionID := c.Param("id")

	s.mu.Lock()
	r, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}

	r.mu.Lock()
	r.completed = true
	r.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func main() {
	logger.Initialize(getEnv("LOG_LEVEL", "info"), getEnv("LOG_PRETTY", "true") == "true")

	s := newStub()
	limiter := middleware.NewRateLimiter()
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(logger.Component("teststub")),
		middleware.TimeoutWithDuration(10*time.Second),
	)

	router.POST("/sessions/validate", limiter.Middleware(validateMaxAttempts, validateWindow), s.validate)
	router.POST("/sessions/:id/heartbeat", s.heartbeat)
	router.PUT("/sessions/:id/renew", s.renew)
	router.POST("/sessions/:id/complete", s.complete)

	addr := getEnv("LISTEN_ADDR", ":8000")
	logger.Log.Info().Str("addr", addr).Msg("teststub listening")
	if err := router.Run(addr); err != nil {
		logger.Log.Fatal().Err(err).Msg("teststub exited")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
