// Package config defines the Session Controller's configuration (spec §6's
// complete option list) with its defaults, and a Backend settings struct
// with environment-variable loading in the teacher's getEnv/getEnvInt
// idiom. Nothing else in this module calls LoadBackendFromEnv: cmd/teststub
// and cmd/tabrelay read their few settings through their own getEnv
// helpers, and platform/distributed's constructors take explicit configs.
//
// Grounded on the teacher's cmd/main.go, which resolves every runtime
// setting through small getEnv/getEnvInt helpers with an inline default
// rather than a config-file parser or flag package.
package config

import (
	"os"
	"strconv"
	"time"
)

// Hooks holds the host-supplied lifecycle callback names this module knows
// about (spec §4.6.5); the callables themselves are supplied directly to
// session.New, not through this struct, since Go has no dynamic-dispatch
// equivalent of a JS object literal of functions.
type Hooks struct {
	HasOnSessionStart   bool
	HasOnSessionEnd     bool
	HasOnSessionExtend  bool
	HasOnSessionWarning bool
}

// Session is the complete set of configuration options recognized by the
// Session Controller (spec §6).
type Session struct {
	JWKSURI                  string
	ExpectedIssuer           string
	JWTParamName             string
	APIEndpoint              string
	WarningThresholdSeconds  int64
	ApplicationID            string
	AutoStart                bool
	EnableHeartbeat          bool
	HeartbeatIntervalSeconds int64
	EnableTabSync            bool
	PauseOnHidden            bool
	UseBackendValidation     bool
	MarketplaceURL           string
	ThemeMode                string
	CustomStyles             string
	HookTimeoutMs            int64
}

// DefaultSession returns a Session with every spec-defined default applied.
// Callers overwrite only the fields they care about.
func DefaultSession() Session {
	return Session{
		JWTParamName:             "gwSession",
		WarningThresholdSeconds:  300,
		AutoStart:                true,
		EnableHeartbeat:          false,
		HeartbeatIntervalSeconds: 30,
		EnableTabSync:            false,
		PauseOnHidden:            false,
		UseBackendValidation:     false,
		ThemeMode:                "light",
		HookTimeoutMs:            5000,
	}
}

// HookTimeout returns HookTimeoutMs as a time.Duration.
func (s Session) HookTimeout() time.Duration {
	return time.Duration(s.HookTimeoutMs) * time.Millisecond
}

// HeartbeatInterval returns HeartbeatIntervalSeconds as a time.Duration.
func (s Session) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalSeconds) * time.Second
}

// Backend is a deployment-level configuration shape for the non-browser
// pieces of this module; none of them currently reads it (see the package
// doc).
type Backend struct {
	ListenAddr string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisEnabled  bool

	NATSURL string

	AuditEnabled bool
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string
}

// LoadBackendFromEnv resolves Backend from the process environment, the
// same getEnv/getEnvInt-with-default idiom the teacher's cmd/main.go uses.
func LoadBackendFromEnv() Backend {
	return Backend{
		ListenAddr: getEnv("LISTEN_ADDR", ":8000"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisEnabled:  getEnv("REDIS_ENABLED", "false") == "true",

		NATSURL: getEnv("NATS_URL", ""),

		AuditEnabled: getEnv("AUDIT_LOG_ENABLED", "false") == "true",
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "gwsession"),
		DBPassword:   getEnv("DB_PASSWORD", "gwsession"),
		DBName:       getEnv("DB_NAME", "gwsession"),
		DBSSLMode:    getEnv("DB_SSL_MODE", "disable"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
