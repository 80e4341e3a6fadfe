package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pickuphub/pickup-backend/internal/platform/logging"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv                       string
	ServiceName                  string
	ServiceVersion               string
	HTTPAddr                     string
	DBURL                        string
	DBDisablePreparedBinary      bool
	CacheEnabled                 bool
	CacheTTL                     time.Duration
	CORSAllowedOrigins           []string
	ReadTimeout                  time.Duration
	WriteTimeout                 time.Duration
	PprofEnabled                 bool
	PprofAddr                    string
	FloodDelay                   time.Duration
	FloodMaxCommands             int
	FloodTimeout                 time.Duration
	StatusCooldown               time.Duration
	RoleHubBaseURL               string
	RoleHubToken                 string
	RoleHubTimeout               time.Duration
	RoleHubCircuitEnabled        bool
	RoleHubCircuitFailureCount   int
	RoleHubCircuitOpenTimeout    time.Duration
	RoleHubCircuitHalfOpenMaxReq int
	NotifyEnabled                bool
	NotifyWebhookURL             string
	NotifyToken                  string
	NotifyTimeout                time.Duration
	NotifyWorkers                int
	NotifyCircuitEnabled         bool
	NotifyCircuitFailureCount    int
	NotifyCircuitOpenTimeout     time.Duration
	NotifyCircuitHalfOpenMaxReq  int
	UptraceEnabled               bool
	UptraceDSN                   string
	UptraceLogsEnabled           bool
	PyroscopeEnabled             bool
	PyroscopeServerAddress       string
	PyroscopeAppName             string
	PyroscopeAuthToken           string
	PyroscopeUploadRate          time.Duration
	LogLevel                     logging.Level
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceDSN == "" {
		uptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}
	uptraceLogsEnabled, err := strconv.ParseBool(getEnv("UPTRACE_LOGS_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_LOGS_ENABLED: %w", err)
	}

	pprofEnabled, err := strconv.ParseBool(getEnv("PPROF_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PPROF_ENABLED: %w", err)
	}
	pprofAddr := strings.TrimSpace(getEnv("PPROF_ADDR", ":6060"))
	if pprofEnabled && pprofAddr == "" {
		return Config{}, fmt.Errorf("PPROF_ADDR is required when PPROF_ENABLED=true")
	}

	pyroscopeEnabled, err := strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	pyroscopeServerAddress := strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if pyroscopeEnabled && pyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	pyroscopeUploadRate, err := time.ParseDuration(getEnv("PYROSCOPE_UPLOAD_RATE", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}
	if pyroscopeUploadRate <= 0 {
		return Config{}, fmt.Errorf("PYROSCOPE_UPLOAD_RATE must be > 0")
	}

	floodDelay, err := time.ParseDuration(getEnv("FLOOD_PROTECTION_DELAY", "2s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FLOOD_PROTECTION_DELAY: %w", err)
	}
	if floodDelay <= 0 {
		return Config{}, fmt.Errorf("FLOOD_PROTECTION_DELAY must be > 0")
	}
	floodMaxCommands, err := getEnvAsInt("FLOOD_PROTECTION_MAX_COMMANDS", 4)
	if err != nil {
		return Config{}, fmt.Errorf("parse FLOOD_PROTECTION_MAX_COMMANDS: %w", err)
	}
	if floodMaxCommands < 1 {
		return Config{}, fmt.Errorf("FLOOD_PROTECTION_MAX_COMMANDS must be >= 1")
	}
	floodTimeout, err := time.ParseDuration(getEnv("FLOOD_TIMEOUT_TIME", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FLOOD_TIMEOUT_TIME: %w", err)
	}
	if floodTimeout <= 0 {
		return Config{}, fmt.Errorf("FLOOD_TIMEOUT_TIME must be > 0")
	}
	statusCooldown, err := time.ParseDuration(getEnv("STATUS_COOLDOWN", "5s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse STATUS_COOLDOWN: %w", err)
	}
	if statusCooldown < 0 {
		return Config{}, fmt.Errorf("STATUS_COOLDOWN must be >= 0")
	}

	roleHubTimeout, err := time.ParseDuration(getEnv("ROLEHUB_TIMEOUT", "3s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ROLEHUB_TIMEOUT: %w", err)
	}
	roleHubCircuitEnabled, err := strconv.ParseBool(getEnv("ROLEHUB_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ROLEHUB_CIRCUIT_ENABLED: %w", err)
	}
	roleHubCircuitFailureCount, err := getEnvAsInt("ROLEHUB_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse ROLEHUB_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if roleHubCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("ROLEHUB_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	roleHubCircuitOpenTimeout, err := time.ParseDuration(getEnv("ROLEHUB_CIRCUIT_OPEN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ROLEHUB_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if roleHubCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("ROLEHUB_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	roleHubCircuitHalfOpenMaxReq, err := getEnvAsInt("ROLEHUB_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse ROLEHUB_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if roleHubCircuitHalfOpenMaxReq < 1 {
		return Config{}, fmt.Errorf("ROLEHUB_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	notifyEnabled, err := strconv.ParseBool(getEnv("NOTIFY_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse NOTIFY_ENABLED: %w", err)
	}
	notifyWebhookURL := strings.TrimSpace(getEnv("NOTIFY_WEBHOOK_URL", ""))
	if notifyEnabled && notifyWebhookURL == "" {
		return Config{}, fmt.Errorf("NOTIFY_WEBHOOK_URL is required when NOTIFY_ENABLED=true")
	}
	notifyTimeout, err := time.ParseDuration(getEnv("NOTIFY_TIMEOUT", "3s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse NOTIFY_TIMEOUT: %w", err)
	}
	if notifyTimeout <= 0 {
		return Config{}, fmt.Errorf("NOTIFY_TIMEOUT must be > 0")
	}
	notifyWorkers, err := getEnvAsInt("NOTIFY_WORKERS", 4)
	if err != nil {
		return Config{}, fmt.Errorf("parse NOTIFY_WORKERS: %w", err)
	}
	if notifyWorkers < 1 {
		return Config{}, fmt.Errorf("NOTIFY_WORKERS must be >= 1")
	}
	notifyCircuitEnabled, err := strconv.ParseBool(getEnv("NOTIFY_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse NOTIFY_CIRCUIT_ENABLED: %w", err)
	}
	notifyCircuitFailureCount, err := getEnvAsInt("NOTIFY_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse NOTIFY_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if notifyCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("NOTIFY_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	notifyCircuitOpenTimeout, err := time.ParseDuration(getEnv("NOTIFY_CIRCUIT_OPEN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse NOTIFY_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if notifyCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("NOTIFY_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	notifyCircuitHalfOpenMaxReq, err := getEnvAsInt("NOTIFY_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse NOTIFY_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if notifyCircuitHalfOpenMaxReq < 1 {
		return Config{}, fmt.Errorf("NOTIFY_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	cacheEnabled, err := strconv.ParseBool(getEnv("CACHE_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_ENABLED: %w", err)
	}
	cacheTTL, err := time.ParseDuration(getEnv("CACHE_TTL", "60s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_TTL: %w", err)
	}
	if cacheTTL <= 0 {
		return Config{}, fmt.Errorf("CACHE_TTL must be > 0")
	}

	readTimeout, err := time.ParseDuration(getEnv("APP_READ_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_READ_TIMEOUT: %w", err)
	}
	writeTimeout, err := time.ParseDuration(getEnv("APP_WRITE_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_WRITE_TIMEOUT: %w", err)
	}

	dbDisablePreparedBinary, err := strconv.ParseBool(getEnv("DB_DISABLE_PREPARED_BINARY_RESULT", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse DB_DISABLE_PREPARED_BINARY_RESULT: %w", err)
	}

	// Empty DB_URL selects the seeded in-memory repositories.
	cfg := Config{
		AppEnv:                       appEnv,
		ServiceName:                  getEnv("APP_SERVICE_NAME", "pickup-backend"),
		ServiceVersion:               getEnv("APP_SERVICE_VERSION", "dev"),
		HTTPAddr:                     getEnv("APP_HTTP_ADDR", ":8080"),
		DBURL:                        strings.TrimSpace(os.Getenv("DB_URL")),
		DBDisablePreparedBinary:      dbDisablePreparedBinary,
		CacheEnabled:                 cacheEnabled,
		CacheTTL:                     cacheTTL,
		CORSAllowedOrigins:           splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		ReadTimeout:                  readTimeout,
		WriteTimeout:                 writeTimeout,
		PprofEnabled:                 pprofEnabled,
		PprofAddr:                    pprofAddr,
		FloodDelay:                   floodDelay,
		FloodMaxCommands:             floodMaxCommands,
		FloodTimeout:                 floodTimeout,
		StatusCooldown:               statusCooldown,
		RoleHubBaseURL:               getEnv("ROLEHUB_BASE_URL", "http://localhost:8081"),
		RoleHubToken:                 strings.TrimSpace(getEnv("ROLEHUB_TOKEN", "")),
		RoleHubTimeout:               roleHubTimeout,
		RoleHubCircuitEnabled:        roleHubCircuitEnabled,
		RoleHubCircuitFailureCount:   roleHubCircuitFailureCount,
		RoleHubCircuitOpenTimeout:    roleHubCircuitOpenTimeout,
		RoleHubCircuitHalfOpenMaxReq: roleHubCircuitHalfOpenMaxReq,
		NotifyEnabled:                notifyEnabled,
		NotifyWebhookURL:             notifyWebhookURL,
		NotifyToken:                  strings.TrimSpace(getEnv("NOTIFY_TOKEN", "")),
		NotifyTimeout:                notifyTimeout,
		NotifyWorkers:                notifyWorkers,
		NotifyCircuitEnabled:         notifyCircuitEnabled,
		NotifyCircuitFailureCount:    notifyCircuitFailureCount,
		NotifyCircuitOpenTimeout:     notifyCircuitOpenTimeout,
		NotifyCircuitHalfOpenMaxReq:  notifyCircuitHalfOpenMaxReq,
		UptraceEnabled:               uptraceEnabled,
		UptraceDSN:                   uptraceDSN,
		UptraceLogsEnabled:           uptraceLogsEnabled,
		PyroscopeEnabled:             pyroscopeEnabled,
		PyroscopeServerAddress:       pyroscopeServerAddress,
		PyroscopeAuthToken:           strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeUploadRate:          pyroscopeUploadRate,
		LogLevel:                     parseLogLevel(getEnv("APP_LOG_LEVEL", "info")),
	}
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))
	if cfg.PyroscopeEnabled && cfg.PyroscopeAppName == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_APP_NAME cannot be empty when PYROSCOPE_ENABLED=true")
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		return Config{}, fmt.Errorf("CORS_ALLOWED_ORIGINS cannot be empty")
	}

	return cfg, nil
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	items := strings.Split(raw, ",")
	for _, item := range items {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			value := strings.TrimSpace(parts[1])
			return strings.Trim(value, "\"'")
		}
	}

	return ""
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
