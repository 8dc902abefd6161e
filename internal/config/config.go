package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	WhatsApp  WhatsAppConfig
	LLM       LLMConfig
	Dialogue  DialogueConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

// WhatsAppConfig holds Cloud API credentials for the webhook and the
// outbound sender.
type WhatsAppConfig struct {
	VerifyToken   string
	AppSecret     string
	AccessToken   string
	PhoneNumberID string
	APIBase       string
}

// LLMConfig configures the OpenAI-compatible endpoint used for intent
// classification, task matching and audio transcription.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DialogueConfig tunes the dialogue engine. Zero values fall back to the
// defaults in internal/dialogue.
type DialogueConfig struct {
	PageSize           int
	ConfirmTaskTTL     time.Duration
	ConfirmDupOrderTTL time.Duration
	CursorTTL          time.Duration
}

type RateLimitConfig struct {
	MaxReqs   int
	WindowSec int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		WhatsApp: WhatsAppConfig{
			VerifyToken:   k.String("whatsapp.verify.token"),
			AppSecret:     k.String("whatsapp.app.secret"),
			AccessToken:   k.String("whatsapp.access.token"),
			PhoneNumberID: k.String("whatsapp.phone.number.id"),
			APIBase:       k.String("whatsapp.api.base"),
		},
		LLM: LLMConfig{
			APIKey:  k.String("llm.api.key"),
			BaseURL: k.String("llm.base.url"),
			Model:   k.String("llm.model"),
			Timeout: k.Duration("llm.timeout"),
		},
		Dialogue: DialogueConfig{
			PageSize:           k.Int("dialogue.page.size"),
			ConfirmTaskTTL:     k.Duration("dialogue.confirm.task.ttl"),
			ConfirmDupOrderTTL: k.Duration("dialogue.confirm.duporder.ttl"),
			CursorTTL:          k.Duration("dialogue.cursor.ttl"),
		},
		RateLimit: RateLimitConfig{
			MaxReqs:   k.Int("ratelimit.max.reqs"),
			WindowSec: k.Int("ratelimit.window.sec"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 10
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.WhatsApp.APIBase == "" {
		cfg.WhatsApp.APIBase = "https://graph.facebook.com/v21.0"
	}
	if cfg.RateLimit.MaxReqs == 0 {
		cfg.RateLimit.MaxReqs = 30
	}
	if cfg.RateLimit.WindowSec == 0 {
		cfg.RateLimit.WindowSec = 60
	}
}
