package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type WebServerConfig struct {
	Port            string `mapstructure:"port"`
	IP              string `mapstructure:"ip"`
	Scheme          string `mapstructure:"scheme"`
	BaseURL         string `mapstructure:"base_url"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Address          string `mapstructure:"address"`
	Password         string `mapstructure:"password"`
	DB               int    `mapstructure:"db"`
	PoolSize         int    `mapstructure:"pool_size"`
	MinIdleConns     int    `mapstructure:"min_idle_conns"`
	OperationTimeout int    `mapstructure:"operation_timeout"`
}

type MongoConfig struct {
	URI            string `mapstructure:"uri"`
	Database       string `mapstructure:"database"`
	ConnectTimeout int    `mapstructure:"connect_timeout"`
}

// StorageConfig selects the document store backend: "redis" or "mongo".
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// RateLimitConfig holds both limiters. The visitor window guards the resolution
// endpoint; the token bucket guards the owner management API.
type RateLimitConfig struct {
	VisitorLimit      int     `mapstructure:"visitor_limit"`
	VisitorWindow     int     `mapstructure:"visitor_window"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CacheConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxSizeMB   int  `mapstructure:"max_size_mb"`
	TTLSeconds  int  `mapstructure:"ttl_seconds"`
	CounterSize int  `mapstructure:"counter_size"`
}

type SecurityConfig struct {
	TrustedIPHeader    string   `mapstructure:"trusted_ip_header"`
	TrustedProxies     []string `mapstructure:"trusted_proxies"`
	FallbackIP         string   `mapstructure:"fallback_ip"`
	SuspiciousKeywords []string `mapstructure:"suspicious_keywords"`
	CloudProviders     []string `mapstructure:"cloud_providers"`
	DecoyURLs          []string `mapstructure:"decoy_urls"`
	NotFoundURL        string   `mapstructure:"not_found_url"`
	SafeBrowsingAPIKey string   `mapstructure:"safe_browsing_api_key"`
	LivenessTimeout    int      `mapstructure:"liveness_timeout"`
}

type IPIntelConfig struct {
	ReputationURL string `mapstructure:"reputation_url"`
	GeoURL        string `mapstructure:"geo_url"`
	RapidAPIKey   string `mapstructure:"rapidapi_key"`
	RapidAPIHost  string `mapstructure:"rapidapi_host"`
	Timeout       int    `mapstructure:"timeout"`
}

// QuotaConfig maps "<tier>_<duration>" to the redirect ceiling of one period.
type QuotaConfig struct {
	Ceilings map[string]int64 `mapstructure:"ceilings"`
	Fallback int64            `mapstructure:"fallback"`
}

type AuthConfig struct {
	JWTSecret      string `mapstructure:"jwt_secret"`
	TokenTTL       int    `mapstructure:"token_ttl"`
	AdminAPIKey    string `mapstructure:"admin_api_key"`
	AdminEnabled   bool   `mapstructure:"admin_enabled"`
	BcryptCost     int    `mapstructure:"bcrypt_cost"`
	MinKeyLength   int    `mapstructure:"min_key_length"`
	MaxKeyLength   int    `mapstructure:"max_key_length"`
	RequireDigit   bool   `mapstructure:"require_digit"`
	RequireLetters bool   `mapstructure:"require_letters"`
}

type JobsConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	LivenessSchedule string `mapstructure:"liveness_schedule"`
	ExpirySchedule   string `mapstructure:"expiry_schedule"`
}

type FeaturesConfig struct {
	MinKeyLength         int `mapstructure:"min_key_length"`
	MaxKeyLength         int `mapstructure:"max_key_length"`
	KeySuggestionsCount  int `mapstructure:"key_suggestions_count"`
	VisitDedupWindowMins int `mapstructure:"visit_dedup_window_mins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	WebServer WebServerConfig `mapstructure:"webserver"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Security  SecurityConfig  `mapstructure:"security"`
	IPIntel   IPIntelConfig   `mapstructure:"ipintel"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Features  FeaturesConfig  `mapstructure:"features"`
	Log       LogConfig       `mapstructure:"log"`
}

// OperationTimeout is the per-handler budget for store calls.
func (c Config) OperationTimeout() time.Duration {
	if c.Redis.OperationTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Redis.OperationTimeout) * time.Second
}

func LoadConfig() (Config, error) {
	var config Config

	v := viper.New()
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Enable environment variable overrides, e.g. SHORTLINK_REDIS_ADDRESS
	v.SetEnvPrefix("SHORTLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Error reading config file: %v", err)
			return config, err
		}
		log.Println("No config file found, using defaults and environment")
	}

	if err := v.Unmarshal(&config); err != nil {
		log.Printf("Unable to decode into struct: %v", err)
		return config, err
	}

	return config, nil
}

func MustLoadConfig() Config {
	config, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return config
}

// Defaults returns the configuration produced by defaults alone.
func Defaults() Config {
	var config Config
	v := viper.New()
	setDefaults(v)
	_ = v.Unmarshal(&config)
	return config
}

func setDefaults(v *viper.Viper) {
	// WebServer defaults
	v.SetDefault("webserver.port", "8080")
	v.SetDefault("webserver.ip", "127.0.0.1")
	v.SetDefault("webserver.scheme", "http")
	v.SetDefault("webserver.base_url", "")
	v.SetDefault("webserver.read_timeout", 15)
	v.SetDefault("webserver.write_timeout", 15)
	v.SetDefault("webserver.shutdown_timeout", 30)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.operation_timeout", 5)

	// Mongo defaults
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "shortlinks")
	v.SetDefault("mongo.connect_timeout", 10)

	v.SetDefault("storage.driver", "redis")

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_size_mb", 64)
	v.SetDefault("cache.ttl_seconds", 30)
	v.SetDefault("cache.counter_size", 100000)

	// RateLimit defaults
	v.SetDefault("ratelimit.visitor_limit", 5)
	v.SetDefault("ratelimit.visitor_window", 60)
	v.SetDefault("ratelimit.requests_per_second", 10.0)
	v.SetDefault("ratelimit.burst", 20)

	// Security defaults
	v.SetDefault("security.trusted_ip_header", "X-Visitor-IP")
	v.SetDefault("security.trusted_proxies", []string{})
	v.SetDefault("security.fallback_ip", "8.8.8.8")
	v.SetDefault("security.suspicious_keywords", []string{
		"bot", "spider", "crawl", "curl", "wget", "python", "java",
		"httpclient", "libwww", "scrapy", "go-http-client",
		"phantomjs", "headless", "selenium", "node-fetch",
	})
	v.SetDefault("security.cloud_providers", []string{
		"cdnext", "amazon", "google", "apple", "microsoft",
		"digitalocean", "cloudflare", "datacamp", "ovh",
		"linode", "vultr", "akamai", "fastly",
	})
	v.SetDefault("security.decoy_urls", []string{
		"https://httpbin.org/status/403",
		"https://www.google.com/robots.txt",
	})
	v.SetDefault("security.not_found_url", "https://www.google.com/404")
	v.SetDefault("security.safe_browsing_api_key", "")
	v.SetDefault("security.liveness_timeout", 5)

	// IP intelligence defaults
	v.SetDefault("ipintel.reputation_url", "https://ipdetective.p.rapidapi.com/ip/%s?info=true")
	v.SetDefault("ipintel.geo_url", "https://ipwho.is/%s")
	v.SetDefault("ipintel.rapidapi_key", "")
	v.SetDefault("ipintel.rapidapi_host", "ipdetective.p.rapidapi.com")
	v.SetDefault("ipintel.timeout", 5)

	// Quota defaults
	v.SetDefault("quota.ceilings", map[string]int64{
		"free_7day":         100,
		"free_1month":       100,
		"free_1year":        100,
		"pro_7day":          32000,
		"pro_1month":        62000,
		"pro_1year":         122000,
		"enterprise_7day":   420000,
		"enterprise_1month": 860000,
		"enterprise_1year":  1620000,
	})
	v.SetDefault("quota.fallback", 100)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "change-me")
	v.SetDefault("auth.token_ttl", 86400)
	v.SetDefault("auth.admin_api_key", "")
	v.SetDefault("auth.admin_enabled", true)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.min_key_length", 8)
	v.SetDefault("auth.max_key_length", 128)
	v.SetDefault("auth.require_digit", true)
	v.SetDefault("auth.require_letters", true)

	// Jobs defaults
	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.liveness_schedule", "@every 6h")
	v.SetDefault("jobs.expiry_schedule", "@every 15m")

	// Features defaults
	v.SetDefault("features.min_key_length", 3)
	v.SetDefault("features.max_key_length", 64)
	v.SetDefault("features.key_suggestions_count", 3)
	v.SetDefault("features.visit_dedup_window_mins", 60)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}
