package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Cache backends accepted by -cache
const (
	cacheFile   = "file"
	cacheSQLite = "sqlite"
	cacheRedis  = "redis"
	cacheNone   = "none"
)

// envConfig is the environment layer; its defaults are the final fallback.
type envConfig struct {
	ServerURL    string        `env:"API_BASE_URL"       envDefault:"http://localhost:8086/api"`
	Email        string        `env:"DASHBOARD_EMAIL"`
	Password     string        `env:"DASHBOARD_PASSWORD"`
	CacheBackend string        `env:"CACHE_BACKEND"      envDefault:"file"`
	CacheFile    string        `env:"CACHE_FILE"         envDefault:".dashboard-session.json"`
	SQLitePath   string        `env:"SQLITE_PATH"        envDefault:".dashboard-session.db"`
	RedisAddr    string        `env:"REDIS_ADDR"         envDefault:"localhost:6379"`
	ProxyAddr    string        `env:"PROXY_ADDR"         envDefault:"127.0.0.1:8087"`
	Timeout      time.Duration `env:"REQUEST_TIMEOUT"    envDefault:"30s"`
	Retries      int           `env:"RETRY_ATTEMPTS"     envDefault:"3"`
	LogLevel     string        `env:"LOG_LEVEL"          envDefault:"warn"`
	LogFile      string        `env:"LOG_FILE"`
}

// Config is the resolved configuration. Priority: flag > env > default.
type Config struct {
	envConfig

	logLevel slog.Level
	Command  string
	Args     []string
}

// flagValues holds the raw command-line flags. Empty strings, a zero
// timeout and negative retries mean "not set".
type flagValues struct {
	serverURL    *string
	email        *string
	password     *string
	cacheBackend *string
	cacheFile    *string
	sqlitePath   *string
	redisAddr    *string
	proxyAddr    *string
	timeout      *time.Duration
	retries      *int
	logLevel     *string
	logFile      *string
}

var flags flagValues

func init() {
	flags = flagValues{
		serverURL: flag.String(
			"server-url",
			"",
			"Dashboard API base URL (default: http://localhost:8086/api)",
		),
		email:        flag.String("email", "", "Login email (or DASHBOARD_EMAIL env)"),
		password:     flag.String("password", "", "Login password (or DASHBOARD_PASSWORD env)"),
		cacheBackend: flag.String("cache", "", "Session cache: file, sqlite, redis or none (default: file)"),
		cacheFile:    flag.String("cache-file", "", "Session cache file (default: .dashboard-session.json)"),
		sqlitePath:   flag.String("sqlite-path", "", "SQLite cache path (default: .dashboard-session.db)"),
		redisAddr:    flag.String("redis-addr", "", "Redis address for -cache=redis (default: localhost:6379)"),
		proxyAddr:    flag.String("proxy-addr", "", "Listen address of the proxy command (default: 127.0.0.1:8087)"),
		timeout:      flag.Duration("timeout", 0, "Per-request timeout (default: 30s)"),
		retries:      flag.Int("retries", -1, "Retries on transient network errors (default: 3)"),
		logLevel:     flag.String("log-level", "", "debug, info, warn or error (default: warn)"),
		logFile:      flag.String("log-file", "", "Write diagnostic logs to this file"),
	}

	flag.Usage = usage
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: dashboard-cli [flags] <command> [command flags]\n\n")
	fmt.Fprintf(out, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-12s %s\n", c.name, c.help)
	}
	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}

// initConfig parses flags and resolves the configuration.
// Separated from init() to avoid conflicts with test flag parsing.
func initConfig() (*Config, error) {
	flag.Parse()
	return resolveConfig(flags, flag.Args())
}

// resolveConfig layers flags over the environment and validates the result.
func resolveConfig(fv flagValues, args []string) (*Config, error) {
	ec, err := env.ParseAs[envConfig]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg := &Config{envConfig: ec}
	override(&cfg.ServerURL, fv.serverURL)
	override(&cfg.Email, fv.email)
	override(&cfg.Password, fv.password)
	override(&cfg.CacheBackend, fv.cacheBackend)
	override(&cfg.CacheFile, fv.cacheFile)
	override(&cfg.SQLitePath, fv.sqlitePath)
	override(&cfg.RedisAddr, fv.redisAddr)
	override(&cfg.ProxyAddr, fv.proxyAddr)
	override(&cfg.LogLevel, fv.logLevel)
	override(&cfg.LogFile, fv.logFile)
	if fv.timeout != nil && *fv.timeout > 0 {
		cfg.Timeout = *fv.timeout
	}
	if fv.retries != nil && *fv.retries >= 0 {
		cfg.Retries = *fv.retries
	}

	cfg.Command = "status"
	if len(args) > 0 {
		cfg.Command = args[0]
		cfg.Args = args[1:]
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func override(dst *string, flagValue *string) {
	if flagValue != nil && *flagValue != "" {
		*dst = *flagValue
	}
}

func (c *Config) validate() error {
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")
	if err := validateServerURL(c.ServerURL); err != nil {
		return fmt.Errorf("invalid API_BASE_URL: %w", err)
	}

	c.CacheBackend = strings.ToLower(c.CacheBackend)
	switch c.CacheBackend {
	case cacheFile, cacheSQLite, cacheRedis, cacheNone:
	default:
		return fmt.Errorf("unknown cache backend %q (want file, sqlite, redis or none)", c.CacheBackend)
	}

	if err := c.logLevel.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	if c.Timeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.Retries < 0 {
		return errors.New("retries cannot be negative")
	}
	return nil
}

// insecure reports whether the server URL uses plaintext HTTP.
func (c *Config) insecure() bool {
	return strings.HasPrefix(strings.ToLower(c.ServerURL), "http://")
}

// validateServerURL validates that the server URL is properly formatted
func validateServerURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}
