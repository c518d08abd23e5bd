package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestClientLimiter(t *testing.T) {
	limiter := NewClientLimiter(rate.Limit(10), 5)

	first := limiter.Bucket("192.168.1.1")
	if limiter.Bucket("192.168.1.1") != first {
		t.Error("Expected the same bucket for the same client")
	}
	if limiter.Bucket("192.168.1.2") == first {
		t.Error("Expected separate buckets for different clients")
	}
	if limiter.Len() != 2 {
		t.Errorf("Expected 2 tracked clients, got %d", limiter.Len())
	}
}

func TestClientLimiterCleanup(t *testing.T) {
	limiter := NewClientLimiter(rate.Limit(0.001), 2)

	busy := limiter.Bucket("10.0.0.1")
	busy.Allow()
	busy.Allow()
	limiter.Bucket("10.0.0.2")

	limiter.Cleanup()

	if limiter.Len() != 1 {
		t.Fatalf("Expected only the busy client to remain, got %d", limiter.Len())
	}
	if limiter.Bucket("10.0.0.1") != busy {
		t.Error("Expected the busy client's limiter to be kept")
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if !opts.RateLimit || !opts.CORS || !opts.Headers || !opts.RequestID {
		t.Errorf("Expected every middleware enabled by default, got %+v", opts)
	}
	if opts.RatePerSecond != 10 {
		t.Errorf("Expected 10 requests per second, got %f", opts.RatePerSecond)
	}
	if opts.RateBurst != 20 {
		t.Errorf("Expected burst of 20, got %d", opts.RateBurst)
	}
	if opts.MaxBodyBytes != 10<<20 {
		t.Errorf("Expected 10MB body limit, got %d", opts.MaxBodyBytes)
	}
}

func TestSetup(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	Setup(router, nil)
	router.PUT("/items/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/items/42", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected a request id header")
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("Expected frame deny header, got %q", w.Header().Get("X-Frame-Options"))
	}

	router2 := gin.New()
	Setup(router2, &Options{MaxBodyBytes: 1024})
	router2.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/test", nil)
	router2.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") != "" {
		t.Error("Expected no request id header when disabled")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	limiter := NewClientLimiter(rate.Limit(0.001), 1)
	router.Use(RateLimitMiddleware(limiter))

	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Forwarded-For", "192.168.1.1")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Forwarded-For", "192.168.1.1")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected a Retry-After header on 429")
	}

	// another client has its own bucket
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Forwarded-For", "192.168.1.2")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for a different client, got %d", w.Code)
	}
}

func TestBodyLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.Use(BodyLimitMiddleware(100))

	router.POST("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/test", strings.NewReader(`{"state":"read"}`))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/test", strings.NewReader(strings.Repeat("x", 150)))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/test", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for request with no body, got %d", w.Code)
	}
}

func TestParamValidationMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.Use(ParamValidationMiddleware())

	ok := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/items", ok)
	router.GET("/items/:id", ok)
	router.POST("/force-poll/:source", ok)
	router.GET("/preferences/:key", ok)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"valid item id", "GET", "/items/12", http.StatusOK},
		{"non numeric item id", "GET", "/items/abc", http.StatusBadRequest},
		{"negative item id", "GET", "/items/-1", http.StatusBadRequest},
		{"valid state filter", "GET", "/items?state=unread", http.StatusOK},
		{"invalid state filter", "GET", "/items?state=starred", http.StatusBadRequest},
		{"valid source ids", "GET", "/items?source_ids=1,2,3", http.StatusOK},
		{"invalid source ids", "GET", "/items?source_ids=1,x", http.StatusBadRequest},
		{"long group", "GET", "/items?group=" + strings.Repeat("g", 101), http.StatusBadRequest},
		{"valid source", "POST", "/force-poll/hacker-news", http.StatusOK},
		{"invalid source", "POST", "/force-poll/bad@source", http.StatusBadRequest},
		{"valid preference key", "GET", "/preferences/items_per_page", http.StatusOK},
		{"invalid preference key", "GET", "/preferences/bad.key", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, tt.path, nil)
			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestRequestLogMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.Use(RequestLogMiddleware())

	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("User-Agent", "TestBot/1.0")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		header   string
		value    string
		remote   string
		expected string
	}{
		{"forwarded chain", "X-Forwarded-For", "192.168.1.1, 10.0.0.1", "", "192.168.1.1"},
		{"forwarded single", "X-Forwarded-For", "192.168.1.3", "", "192.168.1.3"},
		{"real ip", "X-Real-IP", "192.168.1.2", "", "192.168.1.2"},
		{"client ip", "X-Client-IP", "192.168.1.5", "", "192.168.1.5"},
		{"remote addr", "", "", "192.168.1.4:12345", "192.168.1.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				c.Request.Header.Set(tt.header, tt.value)
			}
			if tt.remote != "" {
				c.Request.RemoteAddr = tt.remote
			}

			if got := clientIP(c); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestValidationFunctions(t *testing.T) {
	numbers := map[string]bool{
		"0":                   true,
		"123":                 true,
		"":                    false,
		"12a":                 false,
		"-5":                  false,
		"1234567890123456789": false,
	}
	for input, expected := range numbers {
		if got := isValidNumber(input); got != expected {
			t.Errorf("isValidNumber(%q) = %v, want %v", input, got, expected)
		}
	}

	names := []struct {
		input    string
		max      int
		expected bool
	}{
		{"golang", 50, true},
		{"hacker-news", 50, true},
		{"items_per_page", 100, true},
		{"", 50, false},
		{"with space", 50, false},
		{strings.Repeat("a", 51), 50, false},
	}
	for _, tt := range names {
		if got := isValidName(tt.input, tt.max); got != tt.expected {
			t.Errorf("isValidName(%q, %d) = %v, want %v", tt.input, tt.max, got, tt.expected)
		}
	}
}
