package shared

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"reviewsync/internal/classify"
	"reviewsync/internal/domain"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	DBDriver    string
	DBDSN       string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	CacheTTL    time.Duration

	RefreshInterval time.Duration
	AdapterTimeout  time.Duration
	RatingFloor     int
	Priority        domain.SourcePriority
	Categories      []classify.Rule
	ProviderRPS     int

	Places     PlacesConfig
	DataForSEO DataForSEOConfig
	Facebook   FacebookConfig
	GMB        GMBConfig
}

type PlacesConfig struct {
	BaseURL string
	APIKey  string
	PlaceID string
}

type DataForSEOConfig struct {
	BaseURL      string
	Login        string
	Password     string
	Keyword      string
	LocationCode int
	YelpAlias    string
}

type FacebookConfig struct {
	BaseURL   string
	PageID    string
	PageToken string
}

type GMBConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	AccountID    string
	LocationID   string
}

// overlay is the optional YAML file named by REVIEWSYNC_CONFIG.
type overlay struct {
	SourcePriority []string        `yaml:"source_priority"`
	RatingFloor    *int            `yaml:"rating_floor"`
	Categories     []classify.Rule `yaml:"categories"`
}

func Load() (Config, error) {
	c := Config{
		AppEnv:          env("APP_ENV", "prod"),
		HTTPAddr:        env("HTTP_ADDR", ":8080"),
		MetricsAddr:     env("METRICS_ADDR", ""),
		DBDriver:        env("DB_DRIVER", "mysql"),
		DBDSN:           env("DB_DSN", "root:root@tcp(localhost:3306)/reviews?parseTime=true&charset=utf8mb4&loc=UTC"),
		RedisAddr:       env("REDIS_ADDR", ""),
		RedisPass:       env("REDIS_PASSWORD", ""),
		RedisDB:         atoi("REDIS_DB", 0),
		CacheTTL:        time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,
		RefreshInterval: time.Duration(atoi("REFRESH_INTERVAL_HOURS", 24)) * time.Hour,
		AdapterTimeout:  time.Duration(atoi("ADAPTER_TIMEOUT_SECONDS", 60)) * time.Second,
		RatingFloor:     atoi("RATING_FLOOR", 4),
		ProviderRPS:     atoi("PROVIDER_RPS", 5),
		Places: PlacesConfig{
			BaseURL: env("PLACES_BASE_URL", "https://maps.googleapis.com/maps/api/place"),
			APIKey:  env("PLACES_API_KEY", ""),
			PlaceID: env("PLACES_PLACE_ID", ""),
		},
		DataForSEO: DataForSEOConfig{
			BaseURL:      env("DATAFORSEO_BASE_URL", "https://api.dataforseo.com/v3"),
			Login:        env("DATAFORSEO_LOGIN", ""),
			Password:     env("DATAFORSEO_PASSWORD", ""),
			Keyword:      env("DATAFORSEO_KEYWORD", ""),
			LocationCode: atoi("DATAFORSEO_LOCATION_CODE", 2840),
			YelpAlias:    env("YELP_ALIAS", ""),
		},
		Facebook: FacebookConfig{
			BaseURL:   env("FACEBOOK_BASE_URL", "https://graph.facebook.com/v19.0"),
			PageID:    env("FACEBOOK_PAGE_ID", ""),
			PageToken: env("FACEBOOK_PAGE_TOKEN", ""),
		},
		GMB: GMBConfig{
			BaseURL:      env("GMB_BASE_URL", "https://mybusiness.googleapis.com"),
			ClientID:     env("GMB_CLIENT_ID", ""),
			ClientSecret: env("GMB_CLIENT_SECRET", ""),
			TokenURL:     env("GMB_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			AccountID:    env("GMB_ACCOUNT_ID", ""),
			LocationID:   env("GMB_LOCATION_ID", ""),
		},
	}

	prio, err := domain.ParsePriority(os.Getenv("SOURCE_PRIORITY"))
	if err != nil {
		return Config{}, fmt.Errorf("SOURCE_PRIORITY: %w", err)
	}
	c.Priority = prio

	if path := os.Getenv("REVIEWSYNC_CONFIG"); path != "" {
		if err := c.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if c.RatingFloor < 1 || c.RatingFloor > 5 {
		return Config{}, fmt.Errorf("rating floor %d outside 1..5", c.RatingFloor)
	}
	if c.RefreshInterval <= 0 {
		return Config{}, fmt.Errorf("refresh interval must be positive")
	}
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = 60 * time.Second
	}
	return c, nil
}

// applyFile overlays the YAML file onto env-derived values.
func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var o overlay
	if err := yaml.Unmarshal(b, &o); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(o.SourcePriority) > 0 {
		prio, err := domain.ParsePriority(strings.Join(o.SourcePriority, ","))
		if err != nil {
			return fmt.Errorf("config %s source_priority: %w", path, err)
		}
		c.Priority = prio
	}
	if o.RatingFloor != nil {
		c.RatingFloor = *o.RatingFloor
	}
	if len(o.Categories) > 0 {
		c.Categories = o.Categories
	}
	log.Info().Str("path", path).Msg("config overlay applied")
	return nil
}

// Enabled sources, judged by which credentials are present.
func (c Config) PlacesEnabled() bool { return c.Places.APIKey != "" && c.Places.PlaceID != "" }
func (c Config) DataForSEOEnabled() bool {
	return c.DataForSEO.Login != "" && c.DataForSEO.Password != "" && c.DataForSEO.Keyword != ""
}
func (c Config) YelpEnabled() bool {
	return c.DataForSEO.Login != "" && c.DataForSEO.Password != "" && c.DataForSEO.YelpAlias != ""
}
func (c Config) FacebookEnabled() bool { return c.Facebook.PageID != "" && c.Facebook.PageToken != "" }
func (c Config) GMBEnabled() bool      { return c.GMB.ClientID != "" && c.GMB.ClientSecret != "" }

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
	}
	return def
}
