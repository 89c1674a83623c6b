package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env              string
	ServiceName      string
	HTTPPort         int
	LogLevel         string
	ConfigPath       string
	RequestTimeoutMS int
	RequestTimeout   time.Duration
	OIDCIssuer       string
	OIDCAudience     string
	OIDCJWKSURL      string
	JWKSTTLSeconds   int
	JWTClockSkewSec  int
	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int
	KafkaBrokers     []string
	KafkaClientID    string
	KafkaGroupID     string
	KafkaRetryMax    int
	KafkaWriteMS     int
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	AsynqRedisAddr   string
	AsynqRedisPass   string
	AsynqRedisDB     int
	AsynqQueue       string
	AsynqConcurrency int
	AsynqEnabled     bool
	OutboxScanSec    int
	OutboxBatchSize  int
	OutboxMaxAttempt int
	InfluxURL        string
	InfluxToken      string
	InfluxOrg        string
	InfluxBucket     string
	InfluxTimeoutMS  int
	OtelEnabled      bool
	OtelEndpoint     string
	OtelInsecure     bool
	OtelSampleRatio  float64
	CORSOrigins      []string

	// Maintenance engine tuning.
	SLACriticalHours      float64
	SLAHighHours          float64
	SLAMediumHours        float64
	SLALowHours           float64
	SLARenotifyMinutes    int
	SLASweepSec           int
	EscalationWindowSec   int
	EscalationSweepSec    int
	CleaningCron          string
	RedistributionLockSec int
	BackfillLimit         int
}

// SLAThresholds returns the breach threshold per severity.
func (c Config) SLAThresholds() map[string]time.Duration {
	return map[string]time.Duration{
		"critical": hours(c.SLACriticalHours),
		"high":     hours(c.SLAHighHours),
		"medium":   hours(c.SLAMediumHours),
		"low":      hours(c.SLALowHours),
	}
}

func (c Config) EscalationWindow() time.Duration {
	return time.Duration(c.EscalationWindowSec) * time.Second
}

func (c Config) SLARenotifyInterval() time.Duration {
	return time.Duration(c.SLARenotifyMinutes) * time.Minute
}

func (c Config) RedistributionLockTTL() time.Duration {
	return time.Duration(c.RedistributionLockSec) * time.Second
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func defaults(serviceName string, httpPort int) Config {
	return Config{
		ServiceName:           serviceName,
		HTTPPort:              httpPort,
		LogLevel:              "info",
		RequestTimeoutMS:      30000,
		JWKSTTLSeconds:        300,
		JWTClockSkewSec:       60,
		DBMaxConns:            10,
		DBMinConns:            1,
		DBConnMaxIdleSec:      300,
		DBConnMaxLifeSec:      1800,
		KafkaRetryMax:         5,
		KafkaWriteMS:          5000,
		AsynqQueue:            "default",
		AsynqConcurrency:      10,
		OutboxScanSec:         5,
		OutboxBatchSize:       50,
		OutboxMaxAttempt:      20,
		InfluxTimeoutMS:       5000,
		OtelInsecure:          true,
		OtelSampleRatio:       1.0,
		SLACriticalHours:      2,
		SLAHighHours:          4,
		SLAMediumHours:        24,
		SLALowHours:           72,
		SLARenotifyMinutes:    0,
		SLASweepSec:           900,
		EscalationWindowSec:   300,
		EscalationSweepSec:    60,
		CleaningCron:          "0 5 * * *",
		RedistributionLockSec: 30,
		BackfillLimit:         50,
	}
}

type kind int

const (
	kindString kind = iota
	kindInt
	kindBool
	kindFloat
	kindCSV
)

type binding struct {
	key    string
	kind   kind
	target any
}

func (cfg *Config) bindings() []binding {
	return []binding{
		{"ENV", kindString, &cfg.Env},
		{"SERVICE_NAME", kindString, &cfg.ServiceName},
		{"HTTP_PORT", kindInt, &cfg.HTTPPort},
		{"LOG_LEVEL", kindString, &cfg.LogLevel},
		{"REQUEST_TIMEOUT_MS", kindInt, &cfg.RequestTimeoutMS},
		{"OIDC_ISSUER", kindString, &cfg.OIDCIssuer},
		{"OIDC_AUDIENCE", kindString, &cfg.OIDCAudience},
		{"OIDC_JWKS_URL", kindString, &cfg.OIDCJWKSURL},
		{"JWKS_CACHE_TTL_SECONDS", kindInt, &cfg.JWKSTTLSeconds},
		{"JWT_CLOCK_SKEW_SECONDS", kindInt, &cfg.JWTClockSkewSec},
		{"DATABASE_URL", kindString, &cfg.DatabaseURL},
		{"DB_MAX_CONNS", kindInt, &cfg.DBMaxConns},
		{"DB_MIN_CONNS", kindInt, &cfg.DBMinConns},
		{"DB_CONN_MAX_IDLE_SECONDS", kindInt, &cfg.DBConnMaxIdleSec},
		{"DB_CONN_MAX_LIFETIME_SECONDS", kindInt, &cfg.DBConnMaxLifeSec},
		{"KAFKA_BROKERS", kindCSV, &cfg.KafkaBrokers},
		{"KAFKA_CLIENT_ID", kindString, &cfg.KafkaClientID},
		{"KAFKA_CONSUMER_GROUP", kindString, &cfg.KafkaGroupID},
		{"KAFKA_RETRY_MAX", kindInt, &cfg.KafkaRetryMax},
		{"KAFKA_WRITE_TIMEOUT_MS", kindInt, &cfg.KafkaWriteMS},
		{"REDIS_ADDR", kindString, &cfg.RedisAddr},
		{"REDIS_PASSWORD", kindString, &cfg.RedisPassword},
		{"REDIS_DB", kindInt, &cfg.RedisDB},
		{"ASYNQ_REDIS_ADDR", kindString, &cfg.AsynqRedisAddr},
		{"ASYNQ_REDIS_PASSWORD", kindString, &cfg.AsynqRedisPass},
		{"ASYNQ_REDIS_DB", kindInt, &cfg.AsynqRedisDB},
		{"ASYNQ_QUEUE", kindString, &cfg.AsynqQueue},
		{"ASYNQ_CONCURRENCY", kindInt, &cfg.AsynqConcurrency},
		{"ASYNQ_ENABLED", kindBool, &cfg.AsynqEnabled},
		{"OUTBOX_SCAN_INTERVAL_SECONDS", kindInt, &cfg.OutboxScanSec},
		{"OUTBOX_BATCH_SIZE", kindInt, &cfg.OutboxBatchSize},
		{"OUTBOX_MAX_ATTEMPTS", kindInt, &cfg.OutboxMaxAttempt},
		{"INFLUX_URL", kindString, &cfg.InfluxURL},
		{"INFLUX_TOKEN", kindString, &cfg.InfluxToken},
		{"INFLUX_ORG", kindString, &cfg.InfluxOrg},
		{"INFLUX_BUCKET", kindString, &cfg.InfluxBucket},
		{"INFLUX_TIMEOUT_MS", kindInt, &cfg.InfluxTimeoutMS},
		{"OTEL_ENABLED", kindBool, &cfg.OtelEnabled},
		{"OTEL_EXPORTER_OTLP_ENDPOINT", kindString, &cfg.OtelEndpoint},
		{"OTEL_EXPORTER_OTLP_INSECURE", kindBool, &cfg.OtelInsecure},
		{"OTEL_SAMPLE_RATIO", kindFloat, &cfg.OtelSampleRatio},
		{"CORS_ALLOWED_ORIGINS", kindCSV, &cfg.CORSOrigins},
		{"SLA_CRITICAL_HOURS", kindFloat, &cfg.SLACriticalHours},
		{"SLA_HIGH_HOURS", kindFloat, &cfg.SLAHighHours},
		{"SLA_MEDIUM_HOURS", kindFloat, &cfg.SLAMediumHours},
		{"SLA_LOW_HOURS", kindFloat, &cfg.SLALowHours},
		{"SLA_RENOTIFY_MINUTES", kindInt, &cfg.SLARenotifyMinutes},
		{"SLA_SWEEP_INTERVAL_SECONDS", kindInt, &cfg.SLASweepSec},
		{"ESCALATION_WINDOW_SECONDS", kindInt, &cfg.EscalationWindowSec},
		{"ESCALATION_SWEEP_INTERVAL_SECONDS", kindInt, &cfg.EscalationSweepSec},
		{"CLEANING_GENERATION_CRON", kindString, &cfg.CleaningCron},
		{"REDISTRIBUTION_LOCK_SECONDS", kindInt, &cfg.RedistributionLockSec},
		{"BACKFILL_LIMIT", kindInt, &cfg.BackfillLimit},
	}
}

func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	envRaw := strings.TrimSpace(os.Getenv("ENV"))
	cfg := defaults(serviceNameDefault, httpPortDefault)
	cfg.Env = envRaw
	cfg.ConfigPath = strings.TrimSpace(os.Getenv("CONFIG_PATH"))

	problems := make([]Problem, 0, 4)
	envProvided := envRaw != ""

	if repoRoot, ok := findRepoRoot(); ok && cfg.Env != "" && cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(repoRoot, "configs", cfg.Env+".json")
	}

	if fileData, fileProblems, ok := loadConfigFile(cfg.ConfigPath, strings.TrimSpace(os.Getenv("CONFIG_PATH")) != ""); ok {
		problems = append(problems, fileProblems...)
		if fileEnv, ok := readStringKey(fileData, "ENV"); ok && strings.TrimSpace(fileEnv) != "" {
			envProvided = true
		}
		applyConfigMap(&cfg, fileData, &problems)
	} else {
		problems = append(problems, fileProblems...)
	}

	applyEnv(&cfg, &problems)

	if cfg.OIDCIssuer != "" && strings.TrimSpace(cfg.OIDCJWKSURL) == "" {
		cfg.OIDCJWKSURL = strings.TrimRight(cfg.OIDCIssuer, "/") + "/.well-known/jwks.json"
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if !envProvided {
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}
	validate(&cfg, httpPortDefault, &problems)
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond

	return cfg, problems
}

func validate(cfg *Config, httpPortDefault int, problems *[]Problem) {
	fallback := defaults(cfg.ServiceName, httpPortDefault)
	positiveInt := func(field string, v *int, def int) {
		if *v <= 0 {
			*problems = append(*problems, Problem{Field: field, Message: field + " must be > 0"})
			*v = def
		}
	}
	nonNegativeInt := func(field string, v *int, def int) {
		if *v < 0 {
			*problems = append(*problems, Problem{Field: field, Message: field + " must be >= 0"})
			*v = def
		}
	}
	positiveFloat := func(field string, v *float64, def float64) {
		if *v <= 0 {
			*problems = append(*problems, Problem{Field: field, Message: field + " must be > 0"})
			*v = def
		}
	}

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		*problems = append(*problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}
	positiveInt("REQUEST_TIMEOUT_MS", &cfg.RequestTimeoutMS, fallback.RequestTimeoutMS)
	positiveInt("JWKS_CACHE_TTL_SECONDS", &cfg.JWKSTTLSeconds, fallback.JWKSTTLSeconds)
	nonNegativeInt("JWT_CLOCK_SKEW_SECONDS", &cfg.JWTClockSkewSec, fallback.JWTClockSkewSec)
	positiveInt("DB_MAX_CONNS", &cfg.DBMaxConns, fallback.DBMaxConns)
	nonNegativeInt("DB_MIN_CONNS", &cfg.DBMinConns, fallback.DBMinConns)
	if cfg.DBMinConns > cfg.DBMaxConns {
		*problems = append(*problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be <= DB_MAX_CONNS"})
		cfg.DBMinConns = cfg.DBMaxConns
	}
	positiveInt("DB_CONN_MAX_IDLE_SECONDS", &cfg.DBConnMaxIdleSec, fallback.DBConnMaxIdleSec)
	positiveInt("DB_CONN_MAX_LIFETIME_SECONDS", &cfg.DBConnMaxLifeSec, fallback.DBConnMaxLifeSec)
	nonNegativeInt("KAFKA_RETRY_MAX", &cfg.KafkaRetryMax, fallback.KafkaRetryMax)
	positiveInt("KAFKA_WRITE_TIMEOUT_MS", &cfg.KafkaWriteMS, fallback.KafkaWriteMS)
	nonNegativeInt("REDIS_DB", &cfg.RedisDB, 0)
	nonNegativeInt("ASYNQ_REDIS_DB", &cfg.AsynqRedisDB, 0)
	positiveInt("ASYNQ_CONCURRENCY", &cfg.AsynqConcurrency, fallback.AsynqConcurrency)
	positiveInt("OUTBOX_SCAN_INTERVAL_SECONDS", &cfg.OutboxScanSec, fallback.OutboxScanSec)
	positiveInt("OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize, fallback.OutboxBatchSize)
	positiveInt("OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempt, fallback.OutboxMaxAttempt)
	positiveInt("INFLUX_TIMEOUT_MS", &cfg.InfluxTimeoutMS, fallback.InfluxTimeoutMS)
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		*problems = append(*problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be 0-1"})
		cfg.OtelSampleRatio = 1.0
	}

	positiveFloat("SLA_CRITICAL_HOURS", &cfg.SLACriticalHours, fallback.SLACriticalHours)
	positiveFloat("SLA_HIGH_HOURS", &cfg.SLAHighHours, fallback.SLAHighHours)
	positiveFloat("SLA_MEDIUM_HOURS", &cfg.SLAMediumHours, fallback.SLAMediumHours)
	positiveFloat("SLA_LOW_HOURS", &cfg.SLALowHours, fallback.SLALowHours)
	nonNegativeInt("SLA_RENOTIFY_MINUTES", &cfg.SLARenotifyMinutes, fallback.SLARenotifyMinutes)
	positiveInt("SLA_SWEEP_INTERVAL_SECONDS", &cfg.SLASweepSec, fallback.SLASweepSec)
	positiveInt("ESCALATION_WINDOW_SECONDS", &cfg.EscalationWindowSec, fallback.EscalationWindowSec)
	positiveInt("ESCALATION_SWEEP_INTERVAL_SECONDS", &cfg.EscalationSweepSec, fallback.EscalationSweepSec)
	positiveInt("REDISTRIBUTION_LOCK_SECONDS", &cfg.RedistributionLockSec, fallback.RedistributionLockSec)
	nonNegativeInt("BACKFILL_LIMIT", &cfg.BackfillLimit, fallback.BackfillLimit)
	if strings.TrimSpace(cfg.CleaningCron) == "" {
		*problems = append(*problems, Problem{Field: "CLEANING_GENERATION_CRON", Message: "CLEANING_GENERATION_CRON is required"})
		cfg.CleaningCron = fallback.CleaningCron
	}
}

func findRepoRoot() (string, bool) {
	start, err := os.Getwd()
	if err != nil {
		return "", false
	}
	dir := start
	for i := 0; i < 8; i++ {
		candidate := filepath.Join(dir, "configs")
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func loadConfigFile(path string, explicit bool) (map[string]any, []Problem, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, false
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if explicit && !errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("failed to read config file: %v", err)}}, false
		}
		if explicit && errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file not found"}}, false
		}
		return nil, nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("invalid json: %v", err)}}, false
	}
	return raw, nil, true
}

func applyEnv(cfg *Config, problems *[]Problem) {
	for _, b := range cfg.bindings() {
		raw := strings.TrimSpace(os.Getenv(b.key))
		if raw == "" && b.key == "HTTP_PORT" {
			raw = strings.TrimSpace(os.Getenv("PORT"))
		}
		if raw == "" {
			continue
		}
		b.set(raw, problems)
	}
}

func applyConfigMap(cfg *Config, raw map[string]any, problems *[]Problem) {
	index := make(map[string]binding)
	for _, b := range cfg.bindings() {
		index[b.key] = b
	}
	for k, v := range raw {
		b, ok := index[strings.ToUpper(strings.TrimSpace(k))]
		if !ok || v == nil {
			continue
		}
		if list, ok := v.([]any); ok && b.kind == kindCSV {
			*(b.target.(*[]string)) = parseAnyCSV(list)
			continue
		}
		b.set(v, problems)
	}
}

func (b binding) set(v any, problems *[]Problem) {
	switch b.kind {
	case kindString:
		if s, ok := v.(string); ok {
			*(b.target.(*string)) = strings.TrimSpace(s)
		} else {
			*problems = append(*problems, Problem{Field: b.key, Message: b.key + " must be a string"})
		}
	case kindInt:
		if n, ok := asInt(v); ok {
			*(b.target.(*int)) = n
		} else {
			*problems = append(*problems, Problem{Field: b.key, Message: b.key + " must be an integer"})
		}
	case kindFloat:
		if f, ok := asFloat(v); ok {
			*(b.target.(*float64)) = f
		} else {
			*problems = append(*problems, Problem{Field: b.key, Message: b.key + " must be a number"})
		}
	case kindBool:
		switch t := v.(type) {
		case bool:
			*(b.target.(*bool)) = t
		case string:
			if parsed, ok := asBool(t); ok {
				*(b.target.(*bool)) = parsed
			} else {
				*problems = append(*problems, Problem{Field: b.key, Message: b.key + " must be a boolean"})
			}
		default:
			*problems = append(*problems, Problem{Field: b.key, Message: b.key + " must be a boolean"})
		}
	case kindCSV:
		if s, ok := v.(string); ok {
			*(b.target.(*[]string)) = parseCSV(s)
		} else {
			*problems = append(*problems, Problem{Field: b.key, Message: b.key + " must be a comma separated string"})
		}
	}
}

func readStringKey(raw map[string]any, key string) (string, bool) {
	for k, v := range raw {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			s, ok := v.(string)
			return s, ok
		}
	}
	return "", false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	default:
		return 0, false
	}
}

func asBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAnyCSV(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
