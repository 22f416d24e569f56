package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AccountsFile string
	Push         PushConfig
	Store        StoreConfig
	Watch        WatchConfig
	Filter       FilterConfig
	HTTP         HTTPConfig
	LogLevel     string
}

type PushConfig struct {
	URL          string
	TimeoutMS    int
	LegacyURLEnv string
}

type StoreConfig struct {
	Kind           string
	SQLitePath     string
	PostgresURL    string
	FilePath       string
	LegacyURLEnv   string
	ProfileTimeout int // milliseconds, 0 disables
}

type WatchConfig struct {
	RefreshSecs int
}

type FilterConfig struct {
	MaxTextLen   int
	MaxNewlines  int
	Blacklist    []string
	VerboseDrops bool
	Trace        bool
}

type HTTPConfig struct {
	Addr      string
	RateRPS   int
	RateBurst int
}

const (
	defaultAccountsFile     = "accounts.json"
	defaultPushTimeoutMS    = 3000
	defaultStoreKind        = "sqlite"
	defaultSQLitePath       = "groupwatch.db"
	defaultStoreFile        = "watch.yaml"
	defaultRefreshSecs      = 60
	defaultProfileTimeoutMS = 5000
	defaultMaxTextLen       = 16
	defaultMaxNewlines      = 1
	defaultRateRPS          = 20
	defaultRateBurst        = 40
)

var defaultBlacklist = []string{"财务", "客服"}

func Load() Config {
	cfg := Config{}

	cfg.AccountsFile = strings.TrimSpace(os.Getenv("GROUPWATCH_ACCOUNTS_FILE"))
	if cfg.AccountsFile == "" {
		cfg.AccountsFile = defaultAccountsFile
	}

	cfg.Push.URL = strings.TrimSpace(os.Getenv("GROUPWATCH_PUSH_URL"))
	if cfg.Push.URL == "" {
		cfg.Push.URL = strings.TrimSpace(os.Getenv("NODE_PUSH_URL"))
		if cfg.Push.URL != "" {
			cfg.Push.LegacyURLEnv = "NODE_PUSH_URL"
		}
	}
	cfg.Push.TimeoutMS = readInt("GROUPWATCH_PUSH_TIMEOUT_MS", defaultPushTimeoutMS)

	cfg.Store.Kind = strings.ToLower(strings.TrimSpace(os.Getenv("GROUPWATCH_STORE")))
	if cfg.Store.Kind == "" {
		cfg.Store.Kind = defaultStoreKind
	}
	cfg.Store.SQLitePath = strings.TrimSpace(os.Getenv("GROUPWATCH_SQLITE_PATH"))
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = defaultSQLitePath
	}
	cfg.Store.PostgresURL = strings.TrimSpace(os.Getenv("GROUPWATCH_POSTGRES_URL"))
	if cfg.Store.PostgresURL == "" {
		cfg.Store.PostgresURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
		if cfg.Store.PostgresURL != "" {
			cfg.Store.LegacyURLEnv = "DATABASE_URL"
		}
	}
	cfg.Store.FilePath = strings.TrimSpace(os.Getenv("GROUPWATCH_STORE_FILE"))
	if cfg.Store.FilePath == "" {
		cfg.Store.FilePath = defaultStoreFile
	}
	cfg.Store.ProfileTimeout = readNonNegativeInt("GROUPWATCH_PROFILE_TIMEOUT_MS", defaultProfileTimeoutMS)

	cfg.Watch.RefreshSecs = readInt("GROUPWATCH_REFRESH_SECS", defaultRefreshSecs)

	cfg.Filter.MaxTextLen = readInt("GROUPWATCH_MAX_TEXT_LEN", defaultMaxTextLen)
	cfg.Filter.MaxNewlines = readInt("GROUPWATCH_MAX_NEWLINES", defaultMaxNewlines)
	cfg.Filter.Blacklist = splitCSV(os.Getenv("GROUPWATCH_NICK_BLACKLIST"))
	if len(cfg.Filter.Blacklist) == 0 {
		cfg.Filter.Blacklist = append([]string(nil), defaultBlacklist...)
	}
	cfg.Filter.VerboseDrops = readBool("GROUPWATCH_DROP_LOG_VERBOSE", false)
	cfg.Filter.Trace = readBool("GROUPWATCH_TRACE", false)

	cfg.HTTP.Addr = strings.TrimSpace(os.Getenv("GROUPWATCH_HTTP_ADDR"))
	cfg.HTTP.RateRPS = readInt("GROUPWATCH_HTTP_RATE_RPS", defaultRateRPS)
	cfg.HTTP.RateBurst = readInt("GROUPWATCH_HTTP_RATE_BURST", defaultRateBurst)

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("GROUPWATCH_LOG_LEVEL")))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg
}

// Validate reports settings the listener cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.Push.URL == "" {
		errs = append(errs, errors.New("config: push url is required (GROUPWATCH_PUSH_URL)"))
	}
	switch c.Store.Kind {
	case "sqlite", "file":
	case "postgres":
		if c.Store.PostgresURL == "" {
			errs = append(errs, errors.New("config: postgres store needs GROUPWATCH_POSTGRES_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown store %q", c.Store.Kind))
	}
	return errors.Join(errs...)
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func readInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func readNonNegativeInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func readBool(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func (c Config) PushTimeout() time.Duration {
	if c.Push.TimeoutMS <= 0 {
		return defaultPushTimeoutMS * time.Millisecond
	}
	return time.Duration(c.Push.TimeoutMS) * time.Millisecond
}

func (c Config) RefreshInterval() time.Duration {
	if c.Watch.RefreshSecs <= 0 {
		return defaultRefreshSecs * time.Second
	}
	return time.Duration(c.Watch.RefreshSecs) * time.Second
}

// ProfileTimeout is zero when lookups are unbounded.
func (c Config) ProfileTimeout() time.Duration {
	return time.Duration(c.Store.ProfileTimeout) * time.Millisecond
}

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c Config) Redacted() map[string]any {
	return map[string]any{
		"accounts_file": c.AccountsFile,
		"push": map[string]any{
			"url":        redactURL(c.Push.URL),
			"timeout_ms": c.Push.TimeoutMS,
			"legacy_env": c.Push.LegacyURLEnv,
		},
		"store": map[string]any{
			"kind":               c.Store.Kind,
			"sqlite_path":        c.Store.SQLitePath,
			"postgres_url":       redactString(c.Store.PostgresURL),
			"file":               c.Store.FilePath,
			"profile_timeout_ms": c.Store.ProfileTimeout,
		},
		"watch": map[string]any{
			"refresh_secs": c.Watch.RefreshSecs,
		},
		"filter": map[string]any{
			"max_text_len":  c.Filter.MaxTextLen,
			"max_newlines":  c.Filter.MaxNewlines,
			"blacklist":     append([]string(nil), c.Filter.Blacklist...),
			"verbose_drops": c.Filter.VerboseDrops,
			"trace":         c.Filter.Trace,
		},
		"http": map[string]any{
			"addr":       c.HTTP.Addr,
			"rate_rps":   c.HTTP.RateRPS,
			"rate_burst": c.HTTP.RateBurst,
		},
		"log_level": c.LogLevel,
	}
}

func (c Config) RedactedJSON() []byte {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return data
}

func redactString(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "***REDACTED*** (len=" + strconv.Itoa(len(value)) + ")"
}

// redactURL keeps scheme and host and hides any userinfo.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return redactString(raw)
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		if slash := strings.Index(rest, "/"); slash == -1 || at < slash {
			rest = "***@" + rest[at+1:]
		}
	}
	return scheme + "://" + rest
}
