package configs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"

	QueueMemory = "memory"
	QueueRedis  = "redis"
)

type Config struct {
	HTTPAddr string

	StorageDriver string
	SQLDSN        string
	MongoURI      string
	MongoName     string

	QueueDriver   string
	QueueSize     int
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailLocale   string

	AppName  string
	Location *time.Location

	SessionTTL       time.Duration
	NotifyWorkers    int
	NotifyParallel   int
	ReconcileSpec    string
	SessionPurgeSpec string

	LogLevel  string
	LogPretty bool
}

// Load reads .env when present and then the EVENTS_* environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset keys.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{getenv: getenv}

	cfg := &Config{
		HTTPAddr:      e.stringOr("EVENTS_HTTP_ADDR", ":8080"),
		StorageDriver: e.stringOr("EVENTS_STORAGE_DRIVER", StorageSQLite),
		SQLDSN:        e.stringOr("EVENTS_SQL_DSN", "file:events.db?mode=rwc"),
		MongoURI:      e.stringOr("EVENTS_MONGODB_URI", "mongodb://localhost:27017"),
		MongoName:     e.stringOr("EVENTS_MONGODB_NAME", "events"),

		QueueDriver:   e.stringOr("EVENTS_QUEUE_DRIVER", QueueMemory),
		QueueSize:     e.intOr("EVENTS_QUEUE_SIZE", 1024),
		RedisAddr:     e.stringOr("EVENTS_REDIS_URL", "localhost:6379"),
		RedisPassword: e.stringOr("EVENTS_REDIS_PASSWORD", ""),
		RedisDB:       e.intOr("EVENTS_REDIS_DB", 0),

		SMTPHost:     e.stringOr("EVENTS_SMTP_HOST", ""),
		SMTPPort:     e.intOr("EVENTS_SMTP_PORT", 587),
		SMTPUsername: e.stringOr("EVENTS_SMTP_USERNAME", ""),
		SMTPPassword: e.stringOr("EVENTS_SMTP_PASSWORD", ""),
		MailFrom:     e.stringOr("EVENTS_MAIL_FROM", "no-reply@localhost"),
		MailLocale:   e.stringOr("EVENTS_MAIL_LOCALE", "en_US"),

		AppName: e.stringOr("EVENTS_APP_NAME", "Event Registration"),

		SessionTTL:       e.durationOr("EVENTS_SESSION_TTL", 24*time.Hour),
		NotifyWorkers:    e.intOr("EVENTS_NOTIFY_WORKERS", 2),
		NotifyParallel:   e.intOr("EVENTS_NOTIFY_PARALLEL", 4),
		ReconcileSpec:    e.stringOr("EVENTS_RECONCILE_SCHEDULE", "@every 10m"),
		SessionPurgeSpec: e.stringOr("EVENTS_SESSION_PURGE_SCHEDULE", "@hourly"),

		LogLevel:  e.stringOr("EVENTS_LOG_LEVEL", "info"),
		LogPretty: e.boolOr("EVENTS_LOG_PRETTY", false),
	}

	tz := e.stringOr("EVENTS_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("EVENTS_TIMEZONE: %w", err))
	}
	cfg.Location = loc

	switch cfg.StorageDriver {
	case StorageSQLite, StoragePostgres, StorageMongo:
	default:
		e.errs = append(e.errs, fmt.Errorf("EVENTS_STORAGE_DRIVER: unknown driver %q", cfg.StorageDriver))
	}
	switch cfg.QueueDriver {
	case QueueMemory, QueueRedis:
	default:
		e.errs = append(e.errs, fmt.Errorf("EVENTS_QUEUE_DRIVER: unknown driver %q", cfg.QueueDriver))
	}

	for key, spec := range map[string]string{
		"EVENTS_RECONCILE_SCHEDULE":     cfg.ReconcileSpec,
		"EVENTS_SESSION_PURGE_SCHEDULE": cfg.SessionPurgeSpec,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	if cfg.SessionTTL <= 0 {
		e.errs = append(e.errs, errors.New("EVENTS_SESSION_TTL: must be positive"))
	}

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) stringOr(key, def string) string {
	if v := e.getenv(key); v != "" {
		return v
	}
	return def
}

func (e *env) intOr(key string, def int) int {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) boolOr(key string, def bool) bool {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (e *env) durationOr(key string, def time.Duration) time.Duration {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
