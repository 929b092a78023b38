package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeDisabled AuthMode = "disabled"
)

// Config is the gateway configuration, loaded from SUNDIAL_* env vars.
type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Storage. Driver is "sqlite" or "postgres".
	DBDriver string
	DBDSN    string

	// Auxiliary analysis model.
	GeminiAPIKey string
	GeminiModel  string

	// Per-session debug event stream.
	DebugEvents bool

	// Call WebSocket mode (/v1/call).
	WSMaxJSONMessageBytes int64
	WSPingInterval        time.Duration
	WSWriteTimeout        time.Duration
	WSHandshakeTimeout    time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                  envOr("SUNDIAL_ADDR", ":8080"),
		AuthMode:              AuthMode(envOr("SUNDIAL_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:               make(map[string]struct{}),
		CORSAllowedOrigins:    make(map[string]struct{}),
		DBDriver:              envOr("SUNDIAL_DB_DRIVER", "sqlite"),
		DBDSN:                 envOr("SUNDIAL_DB_DSN", "data/sundial.db"),
		GeminiAPIKey:          strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:           envOr("SUNDIAL_GEMINI_MODEL", ""),
		DebugEvents:           envBoolOr("SUNDIAL_DEBUG_EVENTS", false),
		WSMaxJSONMessageBytes: envInt64Or("SUNDIAL_WS_MAX_JSON_MESSAGE_BYTES", 64*1024),
		WSPingInterval:        envDurationOr("SUNDIAL_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:        envDurationOr("SUNDIAL_WS_WRITE_TIMEOUT", 5*time.Second),
		WSHandshakeTimeout:    envDurationOr("SUNDIAL_WS_HANDSHAKE_TIMEOUT", 5*time.Second),
		ReadHeaderTimeout:     envDurationOr("SUNDIAL_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:   envDurationOr("SUNDIAL_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("SUNDIAL_AUTH_MODE must be one of required|disabled")
	}

	for _, key := range splitCSV(os.Getenv("SUNDIAL_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}
	for _, origin := range splitCSV(os.Getenv("SUNDIAL_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("SUNDIAL_DB_DRIVER must be one of sqlite|postgres")
	}
	if strings.TrimSpace(cfg.DBDSN) == "" {
		return Config{}, fmt.Errorf("SUNDIAL_DB_DSN must not be empty")
	}
	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set")
	}
	if cfg.WSMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("SUNDIAL_WS_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("SUNDIAL_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("SUNDIAL_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("SUNDIAL_WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("SUNDIAL_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("SUNDIAL_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("SUNDIAL_API_KEYS must be set when SUNDIAL_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
