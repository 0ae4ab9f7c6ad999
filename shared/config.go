package shared

import (
	"encoding/json"
	"errors"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"
	"io/fs"
	"log"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

const (
	configVarName  = "CONFIG"                   // If set, will load config from this path and not from devConfigPath
	secretsVarName = "SECRETS"                  // If set, will load secrets from this path and not from devSecretsPath
	devConfigPath  = "dev/config.dev.jsonc"     // Path to config file in development environment
	devSecretsPath = "dev/secrets.dev.jsonc"    // Path to secrets file in development environment
	envFileName    = ".env"                     // Optional; loaded into the environment before overrides
	envPrefix      = "HERALD_"                  // Prefix of environment overrides
	StoreSqlite    = "sqlite"                   // Durable store backend
	StoreMemory    = "memory"                   // Non-durable store backend
	defaultVersion = "dev"                      // Reported when no version file is present
	versionFile    = "version.txt"              // Deployed next to the binary
	defaultLogFile = ""                         // Empty means stdout only
	defaultDbFile  = "herald.db"                // SQLite database in the working directory
	defaultBaseUrl = "https://mastodon.example" // Placeholder until configured
)

type Config struct {
	Secrets          Secrets          `json:"-"`
	LogFile          string           `json:"log_file" env:"LOG_FILE"`
	LogLevel         string           `json:"log_level" env:"LOG_LEVEL"`
	ServicePort      uint             `json:"service_port" env:"SERVICE_PORT"`
	InstanceName     string           `json:"instance_name" env:"INSTANCE_NAME"`
	StoreBackend     string           `json:"store_backend" env:"STORE_BACKEND"`
	DbFile           string           `json:"db_file" env:"DB_FILE"`
	RedisUrl         string           `json:"redis_url" env:"REDIS_URL"`
	SafeMode         bool             `json:"safe_mode" env:"SAFE_MODE"`
	ApprovalRequired bool             `json:"approval_required" env:"APPROVAL_REQUIRED"`
	ShutdownWaitSec  int              `json:"shutdown_wait_sec" env:"SHUTDOWN_WAIT_SEC"`
	ProfileDir       string           `json:"profile_dir" env:"PROFILE_DIR"`
	ProfileKeepDays  int              `json:"profile_keep_days" env:"PROFILE_KEEP_DAYS"`
	Platform         PlatformConfig   `json:"platform"`
	Generator        GeneratorConfig  `json:"generator"`
	Topics           TopicsConfig     `json:"topics"`
	Ingestion        IngestionConfig  `json:"ingestion"`
	Timeline         TimelineConfig   `json:"timeline"`
	Limits           LimitsConfig     `json:"limits"`
	Drafts           DraftsConfig     `json:"drafts"`
	Coordination     CoordinationConf `json:"coordination"`
}

type PlatformConfig struct {
	BaseUrl    string `json:"base_url" env:"PLATFORM_URL"`
	MaxPostLen int    `json:"max_post_len" env:"MAX_POST_LEN"`
	FetchBatch int    `json:"fetch_batch" env:"FETCH_BATCH"`
	TimeoutSec int    `json:"timeout_sec"`
}

type GeneratorConfig struct {
	BaseUrl    string `json:"base_url" env:"GENERATOR_URL"`
	Model      string `json:"model" env:"GENERATOR_MODEL"`
	Persona    string `json:"persona" env:"PERSONA"`
	TimeoutSec int    `json:"timeout_sec"`
}

type TopicsConfig struct {
	FeedUrl string   `json:"feed_url" env:"TOPIC_FEED_URL"`
	Static  []string `json:"static" env:"TOPICS"`
}

type IngestionConfig struct {
	PollIntervalSec  int `json:"poll_interval_sec" env:"POLL_INTERVAL_SEC"`
	RateLimitWaitSec int `json:"rate_limit_wait_sec" env:"RATE_LIMIT_WAIT_SEC"`
	ErrorBackoffSec  int `json:"error_backoff_sec" env:"ERROR_BACKOFF_SEC"`
	ThreadMaxDepth   int `json:"thread_max_depth" env:"THREAD_MAX_DEPTH"`
}

type TimelineConfig struct {
	IntervalMin int   `json:"interval_min" env:"TIMELINE_INTERVAL_MIN"`
	JitterMin   int   `json:"jitter_min" env:"TIMELINE_JITTER_MIN"`
	HourlyLimit int   `json:"hourly_limit" env:"HOURLY_POST_LIMIT"`
	DailyLimit  int   `json:"daily_limit" env:"DAILY_POST_LIMIT"`
	JitterSeed  int64 `json:"jitter_seed" env:"JITTER_SEED"` // 0: seeded from the clock
	IdleWakeSec int   `json:"idle_wake_sec"`
}

type LimitsConfig struct {
	PerThreadCap     int `json:"per_thread_cap" env:"PER_THREAD_CAP"`
	PerUserDailyCap  int `json:"per_user_daily_cap" env:"PER_USER_DAILY_CAP"`
	QualityThreshold int `json:"quality_threshold" env:"QUALITY_THRESHOLD"`
}

type DraftsConfig struct {
	TtlHours           int `json:"ttl_hours" env:"DRAFT_TTL_HOURS"`
	PublishIntervalSec int `json:"publish_interval_sec"`
}

type CoordinationConf struct {
	LockTtlSec int `json:"lock_ttl_sec" env:"LOCK_TTL_SEC"`
}

type Secrets struct {
	PlatformToken string   `json:"platform_token" env:"PLATFORM_TOKEN"`
	GeneratorKey  string   `json:"generator_key" env:"GENERATOR_KEY"`
	ApiKeys       []string `json:"api_keys" env:"API_KEYS"`
}

// DefaultConfig returns a configuration where every value has its documented default.
func DefaultConfig() *Config {
	return &Config{
		LogFile:          defaultLogFile,
		LogLevel:         "Info",
		ServicePort:      8089,
		InstanceName:     "herald",
		StoreBackend:     StoreSqlite,
		DbFile:           defaultDbFile,
		ApprovalRequired: true,
		ShutdownWaitSec:  20,
		ProfileKeepDays:  3,
		Platform: PlatformConfig{
			BaseUrl:    defaultBaseUrl,
			MaxPostLen: 500,
			FetchBatch: 50,
			TimeoutSec: 15,
		},
		Generator: GeneratorConfig{
			BaseUrl:    "https://api.openai.com",
			Model:      "gpt-4o-mini",
			Persona:    "a friendly, concise assistant",
			TimeoutSec: 60,
		},
		Ingestion: IngestionConfig{
			PollIntervalSec:  45,
			RateLimitWaitSec: 60,
			ErrorBackoffSec:  30,
			ThreadMaxDepth:   10,
		},
		Timeline: TimelineConfig{
			IntervalMin: 180,
			JitterMin:   45,
			HourlyLimit: 2,
			DailyLimit:  8,
			IdleWakeSec: 60,
		},
		Limits: LimitsConfig{
			PerThreadCap:     3,
			PerUserDailyCap:  5,
			QualityThreshold: 30,
		},
		Drafts: DraftsConfig{
			TtlHours:           48,
			PublishIntervalSec: 60,
		},
		Coordination: CoordinationConf{
			LockTtlSec: 120,
		},
	}
}

func LoadConfig() *Config {

	config := DefaultConfig()

	// Where are our config and secrets files?
	cfgPath := os.Getenv(configVarName)
	if len(cfgPath) == 0 {
		cfgPath = devConfigPath
	}
	secretsPath := os.Getenv(secretsVarName)
	if len(secretsPath) == 0 {
		secretsPath = devSecretsPath
	}

	// Files are optional: the environment alone is a valid configuration
	mustDeserializeFileIfExists(cfgPath, config)
	mustDeserializeFileIfExists(secretsPath, &config.Secrets)

	if err := godotenv.Load(envFileName); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal(err)
	}
	if err := applyEnvOverrides(config, env.ToMap(os.Environ())); err != nil {
		log.Fatal(err)
	}
	return config
}

func (cfg *Config) PollInterval() time.Duration {
	return time.Duration(cfg.Ingestion.PollIntervalSec) * time.Second
}

func (cfg *Config) RateLimitWait() time.Duration {
	return time.Duration(cfg.Ingestion.RateLimitWaitSec) * time.Second
}

func (cfg *Config) ErrorBackoff() time.Duration {
	return time.Duration(cfg.Ingestion.ErrorBackoffSec) * time.Second
}

func (cfg *Config) TimelineInterval() time.Duration {
	return time.Duration(cfg.Timeline.IntervalMin) * time.Minute
}

func (cfg *Config) TimelineJitter() time.Duration {
	return time.Duration(cfg.Timeline.JitterMin) * time.Minute
}

func (cfg *Config) DraftTtl() time.Duration {
	return time.Duration(cfg.Drafts.TtlHours) * time.Hour
}

func (cfg *Config) LockTtl() time.Duration {
	return time.Duration(cfg.Coordination.LockTtlSec) * time.Second
}

func (cfg *Config) ShutdownWait() time.Duration {
	return time.Duration(cfg.ShutdownWaitSec) * time.Second
}

// Lenient parsers for the types where env's defaults are too strict for hand-edited env files.
var envParsers = map[reflect.Type]env.ParserFunc{
	reflect.TypeOf(false):         func(v string) (any, error) { return ParseBool(v) },
	reflect.TypeOf(0):             func(v string) (any, error) { return strconv.Atoi(strings.TrimSpace(v)) },
	reflect.TypeOf([]string(nil)): func(v string) (any, error) { return splitList(v), nil },
}

// applyEnvOverrides sets every field tagged env from its HERALD_* variable in environ.
// Unset variables leave the file or default value alone.
func applyEnvOverrides(cfg *Config, environ map[string]string) error {
	return env.ParseWithOptions(cfg, env.Options{
		Prefix:      envPrefix,
		Environment: environ,
		FuncMap:     envParsers,
	})
}

// ParseBool accepts the spellings operators actually type into env files and settings.
func ParseBool(val string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	}
	return strconv.ParseBool(val)
}

func splitList(val string) []string {
	var res []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}

func mustDeserializeFileIfExists[T any](fileName string, obj *T) {
	if _, err := os.Stat(fileName); errors.Is(err, fs.ErrNotExist) {
		return
	}
	mustDeserializeFile(fileName, obj)
}

func mustDeserializeFile[T any](fileName string, obj *T) {
	var err error
	var cfgJson []byte
	cfgJson, err = os.ReadFile(fileName)
	if err != nil {
		log.Fatal(err)
	}
	// JSONC => JSON
	cfgJson, err = standardizeJSON(cfgJson)
	if err != nil {
		log.Fatal(err)
	}
	// Parse
	if err := json.Unmarshal(cfgJson, obj); err != nil {
		log.Fatal(err)
	}
}

func standardizeJSON(b []byte) ([]byte, error) {
	ast, err := hujson.Parse(b)
	if err != nil {
		return b, err
	}
	ast.Standardize()
	return ast.Pack(), nil
}
