package config

import (
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/hjson/hjson-go/v4"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var GlobalConfig DTManConfig

const (
	FORMAT_JSON  string = ".json"
	FORMAT_HJSON string = ".hjson"
	FORMAT_YAML  string = ".yaml"
)

type DTManConfig struct {
	ConfigFile       string `yaml:"-" json:"-"`
	Server           ServerConfig
	Log              LogConfig
	Cache            CacheConfig
	Coordinator      CoordinatorConfig
	Migration        MigrationConfig
	Notify           NotifyConfig
	PersistentConfig map[string]map[string]interface{} `yaml:"persistent_config" json:"persistent_config"`
	Version          string                            `yaml:"-" json:"-"`
}

type ServerConfig struct {
	Ip               string
	Port             int
	Pprof            bool
	PersistentPolicy string `yaml:"persistent_policy" json:"persistent_policy"`
}

type LogConfig struct {
	Level    string
	MaxCount int `yaml:"max_count" json:"max_count"`
	MaxSize  int `yaml:"max_size" json:"max_size"`
	MaxAge   int `yaml:"max_age" json:"max_age"`
}

// CacheConfig drives the cache cluster manager. Endpoint entries use
// host:port[:password][@priority] connection strings; the fallback and
// backup tiers get lower default priorities than the primary tier.
type CacheConfig struct {
	Endpoints           []string `yaml:"endpoints" json:"endpoints"`
	FallbackEndpoints   []string `yaml:"fallback_endpoints" json:"fallback_endpoints"`
	BackupEndpoints     []string `yaml:"backup_endpoints" json:"backup_endpoints"`
	ClusterMode         bool     `yaml:"cluster_mode" json:"cluster_mode"`
	ConnectTimeout      int      `yaml:"connect_timeout" json:"connect_timeout"`             // ms
	CommandTimeout      int      `yaml:"command_timeout" json:"command_timeout"`             // ms
	FailureThreshold    int      `yaml:"failure_threshold" json:"failure_threshold"`         // breaker opens past this
	RecoveryTimeout     int      `yaml:"recovery_timeout" json:"recovery_timeout"`           // seconds until half-open
	SuccessThreshold    int      `yaml:"success_threshold" json:"success_threshold"`         // half-open -> closed
	FailoverEnabled     bool     `yaml:"failover_enabled" json:"failover_enabled"`
	HealthCheckInterval int      `yaml:"health_check_interval" json:"health_check_interval"` // seconds
	OfflineThreshold    int      `yaml:"offline_threshold" json:"offline_threshold"`         // consecutive probe failures
}

type CoordinatorConfig struct {
	SyncInterval        int     `yaml:"sync_interval" json:"sync_interval"`                 // seconds
	MaxSyncBatchSize    int     `yaml:"max_sync_batch_size" json:"max_sync_batch_size"`
	MaxSyncRetries      int     `yaml:"max_sync_retries" json:"max_sync_retries"`
	DualWriteEnabled    bool    `yaml:"dual_write_enabled" json:"dual_write_enabled"`
	FallbackMode        bool    `yaml:"fallback_mode" json:"fallback_mode"`
	DriftWarningPercent float64 `yaml:"drift_warning_percent" json:"drift_warning_percent"` // percent of durable count
	QueueAgeCeiling     int     `yaml:"queue_age_ceiling" json:"queue_age_ceiling"`         // seconds
	AuditInterval       int     `yaml:"audit_interval" json:"audit_interval"`               // seconds
	AuditWindow         int     `yaml:"audit_window" json:"audit_window"`                   // seconds
	RecordTTL           int     `yaml:"record_ttl" json:"record_ttl"`                       // cache TTL, seconds
}

type MigrationConfig struct {
	Dir            string `yaml:"dir" json:"dir"`
	Validate       bool   `yaml:"validate" json:"validate"`
	Parallel       bool   `yaml:"parallel" json:"parallel"`
	MaxConcurrency int    `yaml:"max_concurrency" json:"max_concurrency"`
	DryRun         bool   `yaml:"dry_run" json:"dry_run"`
	Timeout        int    `yaml:"timeout" json:"timeout"`   // seconds, per unit
	LockTTL        int    `yaml:"lock_ttl" json:"lock_ttl"` // seconds
}

type NotifyConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	Channels       []string `yaml:"channels" json:"channels"`
	WebhookUrl     string   `yaml:"webhook_url" json:"webhook_url"`
	ChatWebhookUrl string   `yaml:"chat_webhook_url" json:"chat_webhook_url"`
}

func fillDefault(c *DTManConfig) {
	c.Server.Port = 8838
	c.Server.Pprof = true
	c.Server.PersistentPolicy = "local"
	c.Log.Level = "INFO"
	c.Log.MaxCount = 5
	c.Log.MaxSize = 10
	c.Log.MaxAge = 10
	c.Cache.ConnectTimeout = 2000
	c.Cache.CommandTimeout = 1000
	c.Cache.FailureThreshold = 5
	c.Cache.RecoveryTimeout = 60
	c.Cache.SuccessThreshold = 3
	c.Cache.FailoverEnabled = true
	c.Cache.HealthCheckInterval = 30
	c.Cache.OfflineThreshold = 3
	c.Coordinator.SyncInterval = 10
	c.Coordinator.MaxSyncBatchSize = 100
	c.Coordinator.MaxSyncRetries = 3
	c.Coordinator.DriftWarningPercent = 5
	c.Coordinator.QueueAgeCeiling = 4 * 3600
	c.Coordinator.AuditInterval = 600
	c.Coordinator.AuditWindow = 24 * 3600
	c.Coordinator.RecordTTL = 24 * 3600
	c.Migration.Dir = path.Join(GetWorkDirectory(), "migrations")
	c.Migration.Validate = true
	c.Migration.MaxConcurrency = 4
	c.Migration.Timeout = 300
	c.Migration.LockTTL = 600
	c.Notify.Channels = []string{"console"}
}

func ParseConfigFile(p, version string) error {
	f, err := os.Open(p)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "")
	}

	GlobalConfig.ConfigFile = p
	GlobalConfig.Version = version

	fillDefault(&GlobalConfig)
	configFmt := path.Ext(p)
	switch configFmt {
	case FORMAT_JSON, FORMAT_HJSON:
		err = hjson.Unmarshal(data, &GlobalConfig)
	case FORMAT_YAML:
		err = yaml.Unmarshal(data, &GlobalConfig)
	default:
		err = errors.Errorf("unsupported config format %s", configFmt)
	}
	if err != nil {
		return errors.Wrap(err, "")
	}
	MergeEnv()
	return Validate(&GlobalConfig)
}

// MergeEnv overlays environment variables onto the parsed config so
// container deployments can override single keys without a config file.
func MergeEnv() {
	mergeEnvConfig(&GlobalConfig)
}

func mergeEnvConfig(c *DTManConfig) {
	if v := os.Getenv("CACHE_ENDPOINTS"); v != "" {
		c.Cache.Endpoints = splitTrim(v)
	}
	if v := os.Getenv("CACHE_FALLBACK_ENDPOINTS"); v != "" {
		c.Cache.FallbackEndpoints = splitTrim(v)
	}
	if v := os.Getenv("CACHE_BACKUP_ENDPOINTS"); v != "" {
		c.Cache.BackupEndpoints = splitTrim(v)
	}
	envBool(&c.Cache.ClusterMode, "CACHE_CLUSTER_MODE")
	envInt(&c.Cache.ConnectTimeout, "CACHE_CONNECT_TIMEOUT")
	envInt(&c.Cache.CommandTimeout, "CACHE_COMMAND_TIMEOUT")
	envInt(&c.Cache.FailureThreshold, "BREAKER_FAILURE_THRESHOLD")
	envInt(&c.Cache.RecoveryTimeout, "BREAKER_RECOVERY_TIMEOUT")
	envInt(&c.Cache.SuccessThreshold, "BREAKER_SUCCESS_THRESHOLD")
	envBool(&c.Cache.FailoverEnabled, "FAILOVER_ENABLED")
	envInt(&c.Cache.HealthCheckInterval, "HEALTH_CHECK_INTERVAL")
	envInt(&c.Coordinator.SyncInterval, "SYNC_INTERVAL")
	envInt(&c.Coordinator.MaxSyncBatchSize, "MAX_SYNC_BATCH_SIZE")
	envInt(&c.Coordinator.MaxSyncRetries, "MAX_SYNC_RETRIES")
	envBool(&c.Coordinator.DualWriteEnabled, "DUAL_WRITE_ENABLED")
	envBool(&c.Coordinator.FallbackMode, "FALLBACK_MODE")
	envInt(&c.Coordinator.AuditInterval, "AUDIT_INTERVAL")
	envBool(&c.Migration.Validate, "MIGRATION_VALIDATE")
	envBool(&c.Migration.Parallel, "MIGRATION_PARALLEL")
	envInt(&c.Migration.MaxConcurrency, "MIGRATION_MAX_CONCURRENCY")
	envBool(&c.Migration.DryRun, "MIGRATION_DRY_RUN")
	envInt(&c.Migration.Timeout, "MIGRATION_TIMEOUT")
	if v := os.Getenv("MIGRATION_DIR"); v != "" {
		c.Migration.Dir = v
	}
	if v := os.Getenv("HOST_IP"); v != "" {
		c.Server.Ip = v
	}
}

func Validate(c *DTManConfig) error {
	if len(c.Cache.Endpoints) == 0 && !c.Coordinator.FallbackMode {
		return errors.New("no cache endpoints configured and fallback mode disabled")
	}
	if c.Cache.FailureThreshold <= 0 || c.Cache.SuccessThreshold <= 0 {
		return errors.New("breaker thresholds must be positive")
	}
	if c.Cache.RecoveryTimeout <= 0 {
		return errors.New("breaker recovery timeout must be positive")
	}
	if c.Coordinator.MaxSyncBatchSize <= 0 {
		return errors.New("max sync batch size must be positive")
	}
	if c.Coordinator.DriftWarningPercent < 0 {
		return errors.New("drift warning percent must not be negative")
	}
	if c.Migration.MaxConcurrency <= 0 {
		return errors.New("migration max concurrency must be positive")
	}
	return nil
}

func envInt(value *int, key string) {
	if v, found := os.LookupEnv(key); found {
		if n, err := strconv.Atoi(v); err == nil {
			*value = n
		}
	}
}

func envBool(value *bool, key string) {
	if v, found := os.LookupEnv(key); found {
		if b, err := strconv.ParseBool(v); err == nil {
			*value = b
		}
	}
}

func splitTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func GetWorkDirectory() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return dir
}
