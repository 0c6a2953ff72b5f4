package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	Timezone  string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Scheduler     SchedulerConfig
	Policy        PolicyConfig
	Email         EmailConfig
	Notifications NotificationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig governs the time-driven batch jobs.
type SchedulerConfig struct {
	Enabled          bool
	DailyCron        string
	ReminderInterval time.Duration
	StartupCatchUp   bool
	QAWindowDays     int
	LockTTL          time.Duration
	RetryBackoff     time.Duration
}

// PolicyConfig carries fallback values used when the policies table has no entry.
type PolicyConfig struct {
	CacheTTL time.Duration
	Defaults map[string]string
}

// EmailConfig selects and configures the outbound email sink.
type EmailConfig struct {
	Provider       string
	SendgridAPIKey string
	FromAddress    string
	FromName       string
	SubjectPrefix  string
}

// NotificationConfig sizes the asynchronous notification dispatcher.
type NotificationConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

// policyEnvKeys maps policy keys to the environment variables that override their defaults.
var policyEnvKeys = map[string]string{
	"makeup.lookback_weeks":                 "POLICY_MAKEUP_LOOKBACK_WEEKS",
	"makeup.deadline_weeks":                 "POLICY_MAKEUP_DEADLINE_WEEKS",
	"transfer.max_per_subject":              "POLICY_TRANSFER_MAX_PER_SUBJECT",
	"absence.lead_time_days":                "POLICY_ABSENCE_LEAD_TIME_DAYS",
	"request.min_reason_length":             "POLICY_REQUEST_MIN_REASON_LENGTH",
	"request.min_reject_note_length":        "POLICY_REQUEST_MIN_REJECT_NOTE_LENGTH",
	"request.pending_expiry_days":           "POLICY_REQUEST_PENDING_EXPIRY_DAYS",
	"teacher_request.pending_expiry_days":   "POLICY_TEACHER_REQUEST_PENDING_EXPIRY_DAYS",
	"enrollment.min_override_reason_length": "POLICY_ENROLLMENT_MIN_OVERRIDE_REASON_LENGTH",
	"session.reminder_hours":                "POLICY_SESSION_REMINDER_HOURS",
	"session.escalation_hours":              "POLICY_SESSION_ESCALATION_HOURS",
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.Timezone = v.GetString("CENTER_TIMEZONE")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	qaWindow := v.GetInt("SCHEDULER_QA_WINDOW_DAYS")
	if qaWindow <= 0 {
		qaWindow = 7
	}
	cfg.Scheduler = SchedulerConfig{
		Enabled:          v.GetBool("ENABLE_SCHEDULER"),
		DailyCron:        v.GetString("SCHEDULER_DAILY_CRON"),
		ReminderInterval: parseDuration(v.GetString("SCHEDULER_REMINDER_INTERVAL"), 5*time.Minute),
		StartupCatchUp:   v.GetBool("SCHEDULER_STARTUP_CATCHUP"),
		QAWindowDays:     qaWindow,
		LockTTL:          parseDuration(v.GetString("SCHEDULER_LOCK_TTL"), 10*time.Minute),
		RetryBackoff:     parseDuration(v.GetString("SCHEDULER_RETRY_BACKOFF"), 5*time.Minute),
	}

	defaults := make(map[string]string, len(policyEnvKeys))
	for key, env := range policyEnvKeys {
		if value := strings.TrimSpace(v.GetString(env)); value != "" {
			defaults[key] = value
		}
	}
	cfg.Policy = PolicyConfig{
		CacheTTL: parseDuration(v.GetString("POLICY_CACHE_TTL"), 5*time.Minute),
		Defaults: defaults,
	}

	cfg.Email = EmailConfig{
		Provider:       strings.ToLower(v.GetString("EMAIL_PROVIDER")),
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromAddress:    v.GetString("EMAIL_FROM_ADDRESS"),
		FromName:       v.GetString("EMAIL_FROM_NAME"),
		SubjectPrefix:  v.GetString("EMAIL_SUBJECT_PREFIX"),
	}

	cfg.Notifications = NotificationConfig{
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		BufferSize: v.GetInt("NOTIFY_BUFFER"),
		MaxRetries: v.GetInt("NOTIFY_RETRIES"),
	}

	return cfg, nil
}

// Location resolves the configured center timezone, defaulting to UTC when unknown.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("CENTER_TIMEZONE", "Asia/Ho_Chi_Minh")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "training_center")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_SCHEDULER", true)
	v.SetDefault("SCHEDULER_DAILY_CRON", "30 0 * * *")
	v.SetDefault("SCHEDULER_REMINDER_INTERVAL", "5m")
	v.SetDefault("SCHEDULER_STARTUP_CATCHUP", true)
	v.SetDefault("SCHEDULER_QA_WINDOW_DAYS", 7)
	v.SetDefault("SCHEDULER_LOCK_TTL", "10m")
	v.SetDefault("SCHEDULER_RETRY_BACKOFF", "5m")

	v.SetDefault("POLICY_CACHE_TTL", "5m")

	v.SetDefault("EMAIL_PROVIDER", "log")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("EMAIL_FROM_ADDRESS", "no-reply@training-center.local")
	v.SetDefault("EMAIL_FROM_NAME", "Training Center")
	v.SetDefault("EMAIL_SUBJECT_PREFIX", "[Training Center] ")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_BUFFER", 64)
	v.SetDefault("NOTIFY_RETRIES", 1)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
