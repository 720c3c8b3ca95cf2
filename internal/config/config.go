package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr         string
	PostgresDSN      string
	DBConnectTimeout time.Duration
	LogLevel         string
	Env              string

	AuthMode    string
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	GatewayURL     string
	GatewayAPIKey  string
	GatewayTimeout time.Duration
	GatewaySandbox bool

	DraftingURL     string
	DraftingTimeout time.Duration
	SchemaDir       string

	AutoSubmitMinConfidence int
	FormThresholds          map[string]int
	Deadlines               map[string]string
	PriorityWindowDays      int
	StalledAfterDays        int

	SchedulerEnabled    bool
	SweepInterval       time.Duration
	PollInterval        time.Duration
	ClaimTTL            time.Duration
	BackupRetentionDays int
	RetentionInterval   time.Duration
	BatchConcurrency    int

	RateLimitRequests       int
	RateLimitWindowSeconds  int
	RateLimitIncludeSubject bool
	RateLimitFailClosed     bool
	RateLimitMaxKeys        int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OTelEnabled        bool
	OTelExportInterval time.Duration
}

// Load reads the environment and, when path is set, a YAML file as a
// lower-priority source. Gate thresholds must be whole numbers in 0..100.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	minConfidence, err := threshold("auto_submit_min_confidence", v.GetString("auto_submit_min_confidence"))
	if err != nil {
		return Config{}, err
	}
	formThresholds, err := thresholdMap(v.GetStringMapString("gate.form_thresholds"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPAddr:         v.GetString("http_addr"),
		PostgresDSN:      v.GetString("postgres_dsn"),
		DBConnectTimeout: v.GetDuration("db_connect_timeout"),
		LogLevel:         v.GetString("log_level"),
		Env:              v.GetString("vermietify_env"),

		AuthMode:    strings.ToLower(v.GetString("auth_mode")),
		JWTSecret:   v.GetString("jwt_secret"),
		JWTIssuer:   v.GetString("jwt_issuer"),
		JWTAudience: v.GetString("jwt_audience"),

		GatewayURL:     v.GetString("gateway_url"),
		GatewayAPIKey:  v.GetString("gateway_api_key"),
		GatewayTimeout: v.GetDuration("gateway_timeout"),
		GatewaySandbox: v.GetBool("gateway_sandbox"),

		DraftingURL:     v.GetString("drafting_url"),
		DraftingTimeout: v.GetDuration("drafting_timeout"),
		SchemaDir:       v.GetString("schema_dir"),

		AutoSubmitMinConfidence: minConfidence,
		FormThresholds:          formThresholds,
		Deadlines:               lowerKeys(v.GetStringMapString("deadlines")),
		PriorityWindowDays:      positiveInt(v.GetInt("priority_window_days"), 30),
		StalledAfterDays:        positiveInt(v.GetInt("stalled_after_days"), 60),

		SchedulerEnabled:    v.GetBool("scheduler_enabled"),
		SweepInterval:       v.GetDuration("sweep_interval"),
		PollInterval:        v.GetDuration("poll_interval"),
		ClaimTTL:            v.GetDuration("claim_ttl"),
		BackupRetentionDays: v.GetInt("backup_retention_days"),
		RetentionInterval:   v.GetDuration("retention_interval"),
		BatchConcurrency:    positiveInt(v.GetInt("batch_concurrency"), 4),

		RateLimitRequests:       v.GetInt("rate_limit_requests"),
		RateLimitWindowSeconds:  positiveInt(v.GetInt("rate_limit_window_seconds"), 60),
		RateLimitIncludeSubject: v.GetBool("rate_limit_include_subject"),
		RateLimitFailClosed:     v.GetBool("rate_limit_fail_closed"),
		RateLimitMaxKeys:        positiveInt(v.GetInt("rate_limit_max_keys"), 10000),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		OTelEnabled:        v.GetBool("otel_enabled"),
		OTelExportInterval: v.GetDuration("otel_export_interval"),
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("db_connect_timeout", 30*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("auth_mode", "header")
	v.SetDefault("gateway_timeout", 30*time.Second)
	v.SetDefault("drafting_timeout", 60*time.Second)
	v.SetDefault("auto_submit_min_confidence", 85)
	v.SetDefault("priority_window_days", 30)
	v.SetDefault("stalled_after_days", 60)
	v.SetDefault("scheduler_enabled", true)
	v.SetDefault("sweep_interval", 5*time.Minute)
	v.SetDefault("poll_interval", 15*time.Minute)
	v.SetDefault("claim_ttl", 10*time.Minute)
	v.SetDefault("backup_retention_days", 365)
	v.SetDefault("retention_interval", 24*time.Hour)
	v.SetDefault("batch_concurrency", 4)
	v.SetDefault("rate_limit_window_seconds", 60)
	v.SetDefault("rate_limit_max_keys", 10000)
	v.SetDefault("otel_export_interval", time.Minute)
}

func (c Config) BackupRetention() time.Duration {
	if c.BackupRetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.BackupRetentionDays) * 24 * time.Hour
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func positiveInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func threshold(name, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a whole number", name, raw)
	}
	if n < 0 || n > 100 {
		return 0, fmt.Errorf("%s: %d is outside 0..100", name, n)
	}
	return n, nil
}

func thresholdMap(in map[string]string) (map[string]int, error) {
	out := make(map[string]int, len(in))
	for k, raw := range in {
		n, err := threshold("gate.form_thresholds."+k, raw)
		if err != nil {
			return nil, err
		}
		out[strings.ToLower(k)] = n
	}
	return out, nil
}

func lowerKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = strings.TrimSpace(v)
	}
	return out
}
