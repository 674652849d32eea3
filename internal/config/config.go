package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        string `yaml:"port"`
		WebhookPath string `yaml:"webhook_path"`
	} `yaml:"server"`
	Telegram struct {
		BotToken      string `yaml:"bot_token"`
		WebhookSecret string `yaml:"webhook_secret"`
		WebhookURL    string `yaml:"webhook_url"`
		ManagerChatID int64  `yaml:"manager_chat_id"`
		APIBase       string `yaml:"api_base"`
		PollTimeout   string `yaml:"poll_timeout"`
	} `yaml:"telegram"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Quiz struct {
		ID          string `yaml:"id"`
		ContentPath string `yaml:"content_path"`
		Source      string `yaml:"source"`
		TTL         string `yaml:"ttl"`
	} `yaml:"quiz"`
	Delivery struct {
		QuestionDelay string `yaml:"question_delay"`
		ResultDelay   string `yaml:"result_delay"`
		FollowUpDelay string `yaml:"follow_up_delay"`
		LeadTimeout   string `yaml:"lead_timeout"`
	} `yaml:"delivery"`
	Admin struct {
		Password      string `yaml:"password"`
		SessionSecret string `yaml:"session_secret"`
		SessionTTL    string `yaml:"session_ttl"`
	} `yaml:"admin"`
	Leads struct {
		Email struct {
			Region string   `yaml:"region"`
			From   string   `yaml:"from"`
			To     []string `yaml:"to"`
		} `yaml:"email"`
		FeedSize int `yaml:"feed_size"`
	} `yaml:"leads"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when neither file nor environment set a value.
func Default() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Server.WebhookPath = "/api/telegram"
	cfg.Telegram.PollTimeout = "30s"
	cfg.Redis.TTL = "24h"
	cfg.Quiz.ID = "sofa"
	cfg.Quiz.TTL = "5m"
	cfg.Delivery.QuestionDelay = "0s"
	cfg.Delivery.ResultDelay = "200ms"
	cfg.Delivery.LeadTimeout = "30s"
	cfg.Admin.SessionTTL = "12h"
	cfg.Leads.Email.Region = "eu-central-1"
	cfg.Leads.FeedSize = 20
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Load reads a .env file (if present) into the environment, then the YAML config at path over the
// defaults, then applies environment overrides. A missing YAML file is not an error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	seconds := func(key string, dst *string) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f < 0 {
			return fmt.Errorf("%s: expected non-negative seconds, got %q", key, v)
		}
		*dst = time.Duration(f * float64(time.Second)).String()
		return nil
	}

	str("PORT", &cfg.Server.Port)
	str("TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken)
	str("TELEGRAM_WEBHOOK_SECRET", &cfg.Telegram.WebhookSecret)
	str("TELEGRAM_WEBHOOK_URL", &cfg.Telegram.WebhookURL)
	if v, ok := lookup("MANAGER_CHAT_ID"); ok && strings.TrimSpace(v) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("MANAGER_CHAT_ID: %w", err)
		}
		cfg.Telegram.ManagerChatID = id
	}
	str("DATABASE_URL", &cfg.Postgres.URL)
	str("SQLITE_PATH", &cfg.SQLite.Path)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("QUIZ_CONTENT_PATH", &cfg.Quiz.ContentPath)
	str("ADMIN_PASSWORD", &cfg.Admin.Password)
	str("ADMIN_SESSION_SECRET", &cfg.Admin.SessionSecret)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	// MESSAGE_DELAY_SECONDS is the shared fallback for the result and follow-up pauses.
	if err := seconds("MESSAGE_DELAY_SECONDS", &cfg.Delivery.ResultDelay); err != nil {
		return err
	}
	if err := seconds("MESSAGE_DELAY_SECONDS", &cfg.Delivery.FollowUpDelay); err != nil {
		return err
	}
	if err := seconds("QUESTION_DELAY_SECONDS", &cfg.Delivery.QuestionDelay); err != nil {
		return err
	}
	return seconds("RESULT_DELAY_SECONDS", &cfg.Delivery.ResultDelay)
}

// FollowUpDelay falls back to the result delay when unset.
func (c Config) FollowUpDelay() time.Duration {
	if c.Delivery.FollowUpDelay == "" {
		return TTLDuration(c.Delivery.ResultDelay, 0)
	}
	return TTLDuration(c.Delivery.FollowUpDelay, 0)
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
