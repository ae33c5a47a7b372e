package config

import (
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string
	Port        string

	// Bearer token verification
	AuthSecret string

	// External message provider (SMS-style channel)
	SMSProviderURL    string
	SMSAPIKey         string
	SMSSenderID       string
	SMSCountryCode    string // default country code for 10-digit numbers
	SMSRequestTimeout time.Duration

	// Web push (VAPID)
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	// Database performance settings
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	DBReadTimeout     time.Duration
	DBWriteTimeout    time.Duration

	// Sweepers
	NoShowSweepInterval  time.Duration
	NoShowAfter          time.Duration
	PendingSweepInterval time.Duration
	PendingVerifyTimeout time.Duration

	// Rate limits
	CheckInLimit  int // attempts per CheckInWindow per (user, queue)
	CheckInWindow time.Duration
	NotifyLimit   int // per NotifyWindow per queue
	NotifyWindow  time.Duration
	GeneralLimit  int // per GeneralWindow per user
	GeneralWindow time.Duration

	// Circuit breakers: consecutive failures / reset timeout per channel
	SMSBreakerThreshold      int
	SMSBreakerReset          time.Duration
	RealtimeBreakerThreshold int
	RealtimeBreakerReset     time.Duration
	PushBreakerThreshold     int
	PushBreakerReset         time.Duration

	// Offline buffer
	BufferMaxMessages int
	BufferMaxAge      time.Duration

	// Notification template overrides (YAML); empty = use built-ins
	TemplateFile string

	// Monitoring and logging settings
	Env            string // development, staging, production
	LogLevel       string
	LogFormat      string // "json" or "text"
	LogOutput      string // "stdout", "stderr", or file path
	MetricsEnabled bool
	MetricsPath    string

	ConfigReloadInterval time.Duration
}

func Load() *Config {
	env := getEnv("ENV", "development")
	metricsDefault := env != "production"
	metricsEnabled, _ := strconv.ParseBool(getEnv("METRICS_ENABLED", strconv.FormatBool(metricsDefault)))

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),
		AuthSecret:  getEnv("AUTH_SECRET", ""),

		SMSProviderURL:    getEnv("SMS_PROVIDER_URL", ""),
		SMSAPIKey:         getEnv("SMS_API_KEY", ""),
		SMSSenderID:       getEnv("SMS_SENDER_ID", "queue"),
		SMSCountryCode:    getEnv("SMS_COUNTRY_CODE", "+91"),
		SMSRequestTimeout: getDuration("SMS_REQUEST_TIMEOUT", 10*time.Second),

		VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:    getEnv("VAPID_SUBJECT", ""),

		DBMaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 50),
		DBMaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 15),
		DBConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 10*time.Minute),
		DBConnMaxIdleTime: getDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		DBReadTimeout:     getDuration("DB_READ_TIMEOUT", 8*time.Second),
		DBWriteTimeout:    getDuration("DB_WRITE_TIMEOUT", 6*time.Second),

		NoShowSweepInterval:  getDuration("NOSHOW_SWEEP_INTERVAL", 5*time.Minute),
		NoShowAfter:          getDuration("NOSHOW_AFTER", 20*time.Minute),
		PendingSweepInterval: getDuration("PENDING_SWEEP_INTERVAL", 1*time.Minute),
		PendingVerifyTimeout: getDuration("PENDING_VERIFY_TIMEOUT", 5*time.Minute),

		CheckInLimit:  getInt("RATE_CHECKIN_LIMIT", 3),
		CheckInWindow: getDuration("RATE_CHECKIN_WINDOW", 5*time.Minute),
		NotifyLimit:   getInt("RATE_NOTIFY_LIMIT", 10),
		NotifyWindow:  getDuration("RATE_NOTIFY_WINDOW", time.Hour),
		GeneralLimit:  getInt("RATE_GENERAL_LIMIT", 100),
		GeneralWindow: getDuration("RATE_GENERAL_WINDOW", 15*time.Minute),

		SMSBreakerThreshold:      getInt("SMS_BREAKER_THRESHOLD", 5),
		SMSBreakerReset:          getDuration("SMS_BREAKER_RESET", 60*time.Second),
		RealtimeBreakerThreshold: getInt("REALTIME_BREAKER_THRESHOLD", 10),
		RealtimeBreakerReset:     getDuration("REALTIME_BREAKER_RESET", 30*time.Second),
		PushBreakerThreshold:     getInt("PUSH_BREAKER_THRESHOLD", 5),
		PushBreakerReset:         getDuration("PUSH_BREAKER_RESET", 60*time.Second),

		BufferMaxMessages: getInt("BUFFER_MAX_MESSAGES", 1000),
		BufferMaxAge:      getDuration("BUFFER_MAX_AGE", time.Hour),

		TemplateFile: getEnv("TEMPLATE_FILE", ""),

		Env:            env,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		LogOutput:      getEnv("LOG_OUTPUT", "stdout"),
		MetricsEnabled: metricsEnabled,
		MetricsPath:    getEnv("METRICS_PATH", "/metrics"),

		ConfigReloadInterval: getDuration("CONFIG_RELOAD_INTERVAL", 0),
	}
}
