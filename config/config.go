package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env       string
	DB        DBConfig
	HTTP      HTTPConfig
	Auth      AuthConfig
	Telegram  TelegramConfig
	Delivery  DeliveryConfig
	Geocoding GeocodingConfig
	Realtime  RealtimeConfig
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// URL returns the pgx connection string.
func (c DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

type HTTPConfig struct {
	Addr         string
	AllowOrigins []string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type TelegramConfig struct {
	Token  string // operator notification bot
	ChatID int64  // chat receiving order lifecycle messages
}

type DeliveryConfig struct {
	StoreLat      float64
	StoreLng      float64
	RatePerKm     float64
	MinFee        float64
	MaxDistanceKm float64
	PrepMinutes   int
	MinutesPerKm  float64
}

type GeocodingConfig struct {
	BaseURL   string
	UserAgent string
	Country   string
	Timeout   time.Duration
}

type RealtimeConfig struct {
	HeartbeatInterval        time.Duration
	PollIntervalConnected    time.Duration
	PollIntervalDisconnected time.Duration
	SubscriberBuffer         int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	p := parser{}
	cfg := &Config{
		Env: getEnv("ENV", "local"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     p.asInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "vibe_drinks"),
		},
		HTTP: HTTPConfig{
			Addr:         getEnv("HTTP_ADDR", ":8080"),
			AllowOrigins: []string{getEnv("CORS_ORIGIN", "*")},
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  p.asDuration("JWT_TTL", 24*time.Hour),
		},
		Telegram: TelegramConfig{
			Token:  getEnv("TELEGRAM_TOKEN", ""),
			ChatID: p.asInt64("TELEGRAM_CHAT_ID", 0),
		},
		Delivery: DeliveryConfig{
			StoreLat:      p.asFloat("STORE_LAT", -23.5874),
			StoreLng:      p.asFloat("STORE_LNG", -46.6576),
			RatePerKm:     p.asFloat("DELIVERY_RATE_PER_KM", 2.5),
			MinFee:        p.asFloat("DELIVERY_MIN_FEE", 5.0),
			MaxDistanceKm: p.asFloat("DELIVERY_MAX_DISTANCE_KM", 15),
			PrepMinutes:   p.asInt("DELIVERY_PREP_MINUTES", 15),
			MinutesPerKm:  p.asFloat("DELIVERY_MINUTES_PER_KM", 3),
		},
		Geocoding: GeocodingConfig{
			BaseURL:   getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
			UserAgent: getEnv("GEOCODER_USER_AGENT", "VibeDrinks/1.0 (delivery fee calculator)"),
			Country:   getEnv("GEOCODER_COUNTRY", "Brasil"),
			Timeout:   p.asDuration("GEOCODER_TIMEOUT", 5*time.Second),
		},
		Realtime: RealtimeConfig{
			HeartbeatInterval:        p.asDuration("SSE_HEARTBEAT_INTERVAL", 30*time.Second),
			PollIntervalConnected:    p.asDuration("POLL_INTERVAL_CONNECTED", 30*time.Second),
			PollIntervalDisconnected: p.asDuration("POLL_INTERVAL_DISCONNECTED", 5*time.Second),
			SubscriberBuffer:         p.asInt("SSE_SUBSCRIBER_BUFFER", 16),
		},
	}
	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parser keeps the first malformed value it sees so Load can report it.
type parser struct {
	err error
}

func (p *parser) fail(key, v string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: invalid %s=%q: %w", key, v, err)
	}
}

func (p *parser) asInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) asInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) asFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) asDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}
