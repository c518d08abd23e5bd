// Package security holds the gin middleware chain placed in front of the API.
package security

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"feedrelay/internal/logging"
	"feedrelay/internal/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	// maxTrackedClients bounds the limiter map before idle entries are evicted
	maxTrackedClients = 10000

	maxSourceNameLen    = 50
	maxPreferenceKeyLen = 100
	maxGroupLen         = 100
	maxListParamLen     = 1000
	maxIDDigits         = 18
)

// clientIPHeaders are consulted in order before falling back to the peer address
var clientIPHeaders = []string{"X-Forwarded-For", "X-Real-IP", "X-Client-IP"}

// ClientLimiter keeps one token bucket per client address
type ClientLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func NewClientLimiter(limit rate.Limit, burst int) *ClientLimiter {
	return &ClientLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   limit,
		burst:   burst,
	}
}

// Bucket returns the client's bucket, creating it on first use
func (l *ClientLimiter) Bucket(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[client]; ok {
		return b
	}
	if len(l.buckets) >= maxTrackedClients {
		l.evictIdle()
	}
	b := rate.NewLimiter(l.limit, l.burst)
	l.buckets[client] = b
	return b
}

// Allow takes a token from the client's bucket
func (l *ClientLimiter) Allow(client string) bool {
	return l.Bucket(client).Allow()
}

// Cleanup drops buckets that have refilled, i.e. clients that went quiet
func (l *ClientLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictIdle()
}

func (l *ClientLimiter) evictIdle() {
	for client, b := range l.buckets {
		if b.Tokens() >= float64(l.burst) {
			delete(l.buckets, client)
		}
	}
}

// Len returns the number of tracked clients
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Options selects which middleware Setup installs
type Options struct {
	RateLimit      bool
	RatePerSecond  float64
	RateBurst      int
	CORS           bool
	AllowedOrigins []string
	Headers        bool
	MaxBodyBytes   int64
	RequestID      bool
}

// DefaultOptions enables everything with permissive CORS and a 10MB body limit
func DefaultOptions() *Options {
	return &Options{
		RateLimit:      true,
		RatePerSecond:  10,
		RateBurst:      20,
		CORS:           true,
		AllowedOrigins: []string{"*"},
		Headers:        true,
		MaxBodyBytes:   10 << 20,
		RequestID:      true,
	}
}

// Setup installs the middleware chain on router. A nil opts means DefaultOptions.
func Setup(router *gin.Engine, opts *Options) {
	if opts == nil {
		opts = DefaultOptions()
	}

	if opts.RequestID {
		router.Use(requestid.New())
	}
	if opts.Headers {
		router.Use(headersMiddleware())
	}
	if opts.CORS {
		router.Use(corsMiddleware(opts.AllowedOrigins))
	}
	if opts.RateLimit {
		router.Use(RateLimitMiddleware(NewClientLimiter(rate.Limit(opts.RatePerSecond), opts.RateBurst)))
	}

	router.Use(
		BodyLimitMiddleware(opts.MaxBodyBytes),
		ParamValidationMiddleware(),
		RequestLogMiddleware(),
	)
}

func headersMiddleware() gin.HandlerFunc {
	return secure.New(secure.Config{
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	cfg.ExposeHeaders = []string{"X-Request-ID"}
	return cors.New(cfg)
}

func abort(c *gin.Context, status int, message string, detail error) {
	body := gin.H{"error": message}
	if detail != nil {
		body["message"] = detail.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

// RateLimitMiddleware rejects clients that exhausted their bucket with 429
func RateLimitMiddleware(limiter *ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(clientIP(c)) {
			c.Header("Retry-After", "1")
			abort(c, http.StatusTooManyRequests, "Rate limit exceeded", nil)
			return
		}
		c.Next()
	}
}

// BodyLimitMiddleware rejects declared oversize bodies and caps the rest
func BodyLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			abort(c, http.StatusRequestEntityTooLarge, "Request too large",
				fmt.Errorf("body exceeds %d bytes", maxBytes))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// ParamValidationMiddleware rejects malformed item filters and path parameters
func ParamValidationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := validateItemQuery(c); err != nil {
			abort(c, http.StatusBadRequest, "Invalid query parameters", err)
			return
		}
		if err := validatePathParams(c); err != nil {
			abort(c, http.StatusBadRequest, "Invalid path parameters", err)
			return
		}
		c.Next()
	}
}

// RequestLogMiddleware logs one line per request, at warn for error statuses
func RequestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		keyvals := []interface{}{
			"ip", clientIP(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"user_agent", c.Request.UserAgent(),
		}
		if id := c.Writer.Header().Get("X-Request-ID"); id != "" {
			keyvals = append(keyvals, "request_id", id)
		}

		if status >= http.StatusBadRequest {
			logging.Warn("Request failed", keyvals...)
			return
		}
		logging.Debug("Request served", keyvals...)
	}
}

func validateItemQuery(c *gin.Context) error {
	if state := c.Query("state"); state != "" {
		if _, err := models.ParseItemState(state); err != nil {
			return err
		}
	}

	if ids := c.Query("source_ids"); ids != "" {
		if len(ids) > maxListParamLen {
			return fmt.Errorf("source_ids longer than %d characters", maxListParamLen)
		}
		for _, id := range strings.Split(ids, ",") {
			if !isValidNumber(strings.TrimSpace(id)) {
				return fmt.Errorf("source_ids must be comma separated integers")
			}
		}
	}

	if len(c.Query("group")) > maxGroupLen {
		return fmt.Errorf("group longer than %d characters", maxGroupLen)
	}
	if len(c.Query("group_names")) > maxListParamLen {
		return fmt.Errorf("group_names longer than %d characters", maxListParamLen)
	}
	return nil
}

func validatePathParams(c *gin.Context) error {
	if id := c.Param("id"); id != "" && !isValidNumber(id) {
		return fmt.Errorf("id must be a positive integer")
	}
	if source := c.Param("source"); source != "" && !isValidName(source, maxSourceNameLen) {
		return fmt.Errorf("source name may only contain letters, digits, hyphens and underscores")
	}
	if key := c.Param("key"); key != "" && !isValidName(key, maxPreferenceKeyLen) {
		return fmt.Errorf("preference key may only contain letters, digits, hyphens and underscores")
	}
	return nil
}

// clientIP prefers proxy headers; X-Forwarded-For contributes its first hop
func clientIP(c *gin.Context) string {
	for _, header := range clientIPHeaders {
		value := c.GetHeader(header)
		if value == "" {
			continue
		}
		if first, _, found := strings.Cut(value, ","); found {
			value = first
		}
		return strings.TrimSpace(value)
	}
	return c.ClientIP()
}

func isValidNumber(s string) bool {
	if s == "" || len(s) > maxIDDigits {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isValidName(s string, limit int) bool {
	if s == "" || len(s) > limit {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
