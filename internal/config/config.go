package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"feedrelay/internal/models"

	"gopkg.in/yaml.v3"
)

// SecurityConfig represents security configuration
type SecurityConfig struct {
	EnableRateLimit       bool
	RateLimitPerSecond    float64
	RateLimitBurst        int
	EnableCORS            bool
	AllowedOrigins        []string
	EnableSecurityHeaders bool
	MaxRequestSize        int64
	EnableRequestID       bool
}

// ExtractionConfig controls the backend extraction worker and the reader's trigger dedupe
type ExtractionConfig struct {
	RetryInterval      time.Duration
	Timeout            time.Duration
	RatePerSecond      float64
	AutoExtractPartial bool
}

type Config struct {
	Port               int
	DataDir            string
	LogLevel           string
	PollInterval       time.Duration
	ItemRetention      time.Duration
	PreferenceCacheTTL time.Duration
	BackendURL         string
	EnableSwagger      bool
	FeedsFile          string
	Sources            []models.FeedSource
	Extraction         ExtractionConfig
	Security           SecurityConfig
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnvAsInt("PORT", 8080),
		DataDir:            getEnv("DATA_DIR", "./data"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		PollInterval:       getEnvAsDuration("POLL_INTERVAL", 15*time.Minute),
		ItemRetention:      getEnvAsDuration("ITEM_RETENTION", 30*24*time.Hour),
		PreferenceCacheTTL: getEnvAsDuration("PREFERENCE_CACHE_TTL", 15*time.Minute),
		BackendURL:         getEnv("BACKEND_URL", "http://localhost:8080"),
		EnableSwagger:      getEnvAsBool("ENABLE_SWAGGER", true),
		FeedsFile:          getEnv("FEEDS_FILE", ""),
		Extraction:         loadExtractionConfig(),
		Security:           loadSecurityConfig(),
	}

	sources := loadSourcesFromEnv()
	if cfg.FeedsFile != "" {
		fileSources, err := LoadSourcesFile(cfg.FeedsFile)
		if err != nil {
			return nil, err
		}
		sources = mergeSources(fileSources, sources)
	}

	// If no feeds configured, use defaults
	if len(sources) == 0 {
		sources = getDefaultSources()
	}
	cfg.Sources = sources

	return cfg, nil
}

func loadExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		RetryInterval:      getEnvAsDuration("EXTRACTION_RETRY_INTERVAL", 5*time.Minute),
		Timeout:            getEnvAsDuration("EXTRACTION_TIMEOUT", 30*time.Second),
		RatePerSecond:      getEnvAsFloat("EXTRACTION_RATE_PER_SECOND", 1.0),
		AutoExtractPartial: getEnvAsBool("AUTO_EXTRACT_PARTIAL", false),
	}
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnableRateLimit:       getEnvAsBool("ENABLE_RATE_LIMIT", true),
		RateLimitPerSecond:    getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10.0),
		RateLimitBurst:        getEnvAsInt("RATE_LIMIT_BURST", 20),
		EnableCORS:            getEnvAsBool("ENABLE_CORS", true),
		AllowedOrigins:        getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
		EnableSecurityHeaders: getEnvAsBool("ENABLE_SECURITY_HEADERS", true),
		MaxRequestSize:        getEnvAsInt64("MAX_REQUEST_SIZE", 10<<20), // 10MB
		EnableRequestID:       getEnvAsBool("ENABLE_REQUEST_ID", true),
	}
}

// loadSourcesFromEnv reads FEED_SOURCE_<NAME>=url|group1,group2 variables
func loadSourcesFromEnv() []models.FeedSource {
	var sources []models.FeedSource

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "FEED_SOURCE_") {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}

		name := strings.ToLower(strings.TrimPrefix(parts[0], "FEED_SOURCE_"))
		url, groups := parseSourceValue(parts[1])
		if name == "" || url == "" {
			continue
		}
		sources = append(sources, models.FeedSource{Name: name, URL: url, Type: "rss", Groups: groups})
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources
}

func parseSourceValue(value string) (string, []string) {
	// Format: "url|group1,group2"
	// If no groups specified, just the URL: "url"
	parts := strings.SplitN(value, "|", 2)
	url := strings.TrimSpace(parts[0])

	var groups []string
	if len(parts) > 1 {
		for _, group := range strings.Split(parts[1], ",") {
			if group = strings.TrimSpace(group); group != "" {
				groups = append(groups, group)
			}
		}
	}
	return url, groups
}

type sourcesFile struct {
	Sources []models.FeedSource `yaml:"sources"`
}

// LoadSourcesFile reads a YAML feed list:
//
//	sources:
//	  - name: golang
//	    url: https://go.dev/blog/feed.atom
//	    groups: [dev]
func LoadSourcesFile(path string) ([]models.FeedSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds file: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse feeds file %s: %w", path, err)
	}

	for i, src := range file.Sources {
		if src.Name == "" || src.URL == "" {
			return nil, fmt.Errorf("feeds file %s: source %d needs a name and a url", path, i+1)
		}
		if src.Type == "" {
			file.Sources[i].Type = "rss"
		}
	}
	return file.Sources, nil
}

// mergeSources combines both lists; env entries override file entries with the same name
func mergeSources(file, env []models.FeedSource) []models.FeedSource {
	byName := make(map[string]int, len(file))
	merged := append([]models.FeedSource(nil), file...)
	for i, src := range merged {
		byName[src.Name] = i
	}
	for _, src := range env {
		if i, ok := byName[src.Name]; ok {
			merged[i] = src
			continue
		}
		merged = append(merged, src)
	}
	return merged
}

func getDefaultSources() []models.FeedSource {
	return []models.FeedSource{
		{Name: "golang", URL: "https://go.dev/blog/feed.atom", Type: "rss", Groups: []string{"dev"}},
		{Name: "hackernews", URL: "https://news.ycombinator.com/rss", Type: "rss", Groups: []string{"news", "dev"}},
		{Name: "npr", URL: "https://feeds.npr.org/1001/rss.xml", Type: "rss", Groups: []string{"news"}},
	}
}

func getEnv(key string, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		values := strings.Split(val, ",")
		for i := range values {
			values[i] = strings.TrimSpace(values[i])
		}
		return values
	}
	return defaultVal
}
