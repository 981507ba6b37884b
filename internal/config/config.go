package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const EnvLocal = "local"

type Config struct {
	Port                  string
	AppEnv                string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	SeedAdminPassword     string

	LineChannelID          string
	LineChannelSecret      string
	LineChannelAccessToken string
	LineAdminTo            string

	WebhookURL            string
	WebhookContentType    string
	SubmitCooldownSeconds int
	SessionTTLMinutes     int

	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailTo       string
	MailCc       string
	MailSubject  string
}

// Load reads the environment, falling back to an optional .env file in the
// working directory or one of its parents.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigType("env")
	v.SetConfigName(".env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Port:                   getEnvOrViper(v, "PORT", "8080"),
		AppEnv:                 strings.ToLower(getEnvOrViper(v, "APP_ENV", "production")),
		AllowedOrigin:          getEnvOrViper(v, "ALLOWED_ORIGIN", "http://127.0.0.1:5173"),
		DatabaseURL:            getEnvOrViper(v, "DATABASE_URL", ""),
		RedisAddr:              getEnvOrViper(v, "REDIS_ADDR", ""),
		RedisPassword:          getEnvOrViper(v, "REDIS_PASSWORD", ""),
		RedisDB:                getInt(v, "REDIS_DB", 0, 0),
		AuthSecret:             strings.TrimSpace(getEnvOrViper(v, "AUTH_SECRET", "")),
		AccessTokenTTLMinutes:  getInt(v, "ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		SeedAdminPassword:      getEnvOrViper(v, "SEED_ADMIN_PASSWORD", ""),
		LineChannelID:          strings.TrimSpace(getEnvOrViper(v, "LINE_CHANNEL_ID", "")),
		LineChannelSecret:      strings.TrimSpace(getEnvOrViper(v, "LINE_CHANNEL_SECRET", "")),
		LineChannelAccessToken: strings.TrimSpace(getEnvOrViper(v, "LINE_CHANNEL_ACCESS_TOKEN", "")),
		LineAdminTo:            strings.TrimSpace(getEnvOrViper(v, "LINE_ADMIN_TO", "")),
		WebhookURL:             strings.TrimSpace(getEnvOrViper(v, "WEBHOOK_URL", "")),
		WebhookContentType:     getEnvOrViper(v, "WEBHOOK_CONTENT_TYPE", "json"),
		SubmitCooldownSeconds:  getInt(v, "SUBMIT_COOLDOWN_SECONDS", 60, 1),
		SessionTTLMinutes:      getInt(v, "SESSION_TTL_MINUTES", 60, 1),
		SMTPAddr:               getEnvOrViper(v, "SMTP_ADDR", ""),
		SMTPUsername:           getEnvOrViper(v, "SMTP_USERNAME", ""),
		SMTPPassword:           getEnvOrViper(v, "SMTP_PASSWORD", ""),
		MailFrom:               getEnvOrViper(v, "MAIL_FROM", ""),
		MailTo:                 getEnvOrViper(v, "MAIL_TO", ""),
		MailCc:                 getEnvOrViper(v, "MAIL_CC", ""),
		MailSubject:            getEnvOrViper(v, "MAIL_SUBJECT", ""),
	}

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsLocal() bool {
	return c.AppEnv == EnvLocal
}

func getEnvOrViper(v *viper.Viper, key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if v.IsSet(key) {
		if val := v.GetString(key); val != "" {
			return val
		}
	}
	return fallback
}

// getInt falls back when the value is missing, malformed or below min.
func getInt(v *viper.Viper, key string, fallback int, min int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(getEnvOrViper(v, key, strconv.Itoa(fallback))))
	if err != nil || parsed < min {
		return fallback
	}
	return parsed
}
