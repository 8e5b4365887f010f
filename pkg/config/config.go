package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is the prefix for environment variable overrides, e.g.
	// CIRCLEBOARD_SYNC_MIN_PIPELINE_NUMBER.
	EnvPrefix = "CIRCLEBOARD"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultCircleCIBaseURL is the public CircleCI API host.
	DefaultCircleCIBaseURL = "https://circleci.com"

	// DefaultCircleCITimeout is the default per-request timeout.
	DefaultCircleCITimeout = "15s"

	// DefaultJobExecutionsMaxHistory bounds the history kept per job.
	DefaultJobExecutionsMaxHistory = 10

	// DefaultMinPipelineNumber is the number of pipelines fetched per sync.
	DefaultMinPipelineNumber = 20

	// DefaultPipelineWorkflowFetchSleepMs is the pause before each
	// workflow's job listing.
	DefaultPipelineWorkflowFetchSleepMs = 100

	// DefaultSyncInterval is the default background sync interval.
	DefaultSyncInterval = "60s"

	// DefaultSyncConcurrency is the number of projects synced in parallel.
	DefaultSyncConcurrency = 2

	// DefaultStorageDriver is the default persistence backend.
	DefaultStorageDriver = "sqlite"

	// DefaultStorageMode is the default value encoding policy.
	DefaultStorageMode = ModeDevelopment

	// DefaultMaxValueSize bounds a single persisted value.
	DefaultMaxValueSize = "4MB"

	// DefaultSQLitePath is the default SQLite database file.
	DefaultSQLitePath = "./circleboard.db"

	// DefaultFileDir is the default directory of the file backend.
	DefaultFileDir = "./data"

	// DefaultListen is the default API listen address.
	DefaultListen = ":8080"

	// DefaultRequestsPerMinute is the default per-IP API rate limit.
	DefaultRequestsPerMinute = 120
)

// Storage modes.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Config is the root configuration for circleboard.
type Config struct {
	Global   GlobalConfig   `yaml:"global" mapstructure:"global"`
	CircleCI CircleCIConfig `yaml:"circleci" mapstructure:"circleci"`
	Sync     SyncConfig     `yaml:"sync" mapstructure:"sync"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	API      APIConfig      `yaml:"api" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// CircleCIConfig contains CircleCI API client settings.
type CircleCIConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Token             string  `yaml:"token,omitempty" mapstructure:"token"`
	Timeout           string  `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" mapstructure:"requests_per_second"`
}

// SyncConfig controls how pipelines are synchronized.
type SyncConfig struct {
	JobExecutionsMaxHistory      int    `yaml:"job_executions_max_history" mapstructure:"job_executions_max_history"`
	MinPipelineNumber            int    `yaml:"min_pipeline_number" mapstructure:"min_pipeline_number"`
	PipelineWorkflowFetchSleepMs *int   `yaml:"pipeline_workflow_fetch_sleep_ms,omitempty" mapstructure:"pipeline_workflow_fetch_sleep_ms"`
	IncludeBuildJobs             *bool  `yaml:"include_build_jobs,omitempty" mapstructure:"include_build_jobs"`
	Interval                     string `yaml:"interval" mapstructure:"interval"`
	Concurrency                  int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// IncludeBuildJobsOrDefault returns IncludeBuildJobs if set, otherwise true.
func (c SyncConfig) IncludeBuildJobsOrDefault() bool {
	if c.IncludeBuildJobs == nil {
		return true
	}

	return *c.IncludeBuildJobs
}

// FetchSleep returns the pause before each workflow's job listing. An
// explicit 0 disables the pause; Load fills in the default when unset.
func (c SyncConfig) FetchSleep() time.Duration {
	if c.PipelineWorkflowFetchSleepMs == nil {
		return 0
	}

	return time.Duration(*c.PipelineWorkflowFetchSleepMs) * time.Millisecond
}

// IntervalDuration returns the parsed background sync interval.
func (c SyncConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0
	}

	return d
}

// Load reads one or more YAML configuration files, later files
// overriding earlier ones, then applies environment overrides and
// defaults. With no paths only the environment and defaults apply.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for i, path := range paths {
		v.SetConfigFile(path)

		var err error
		if i == 0 {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}

		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so every
	// leaf key is bound explicitly.
	bindEnvs(v, "", reflect.TypeOf(Config{}))

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func bindEnvs(v *viper.Viper, prefix string, t reflect.Type) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	for i := range t.NumField() {
		field := t.Field(i)

		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		ft := field.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}

		if ft.Kind() == reflect.Struct {
			bindEnvs(v, key, ft)

			continue
		}

		_ = v.BindEnv(key)
	}
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.CircleCI.BaseURL == "" {
		c.CircleCI.BaseURL = DefaultCircleCIBaseURL
	}

	if c.CircleCI.Timeout == "" {
		c.CircleCI.Timeout = DefaultCircleCITimeout
	}

	if c.Sync.JobExecutionsMaxHistory == 0 {
		c.Sync.JobExecutionsMaxHistory = DefaultJobExecutionsMaxHistory
	}

	if c.Sync.MinPipelineNumber == 0 {
		c.Sync.MinPipelineNumber = DefaultMinPipelineNumber
	}

	if c.Sync.PipelineWorkflowFetchSleepMs == nil {
		sleepMs := DefaultPipelineWorkflowFetchSleepMs
		c.Sync.PipelineWorkflowFetchSleepMs = &sleepMs
	}

	if c.Sync.Interval == "" {
		c.Sync.Interval = DefaultSyncInterval
	}

	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = DefaultSyncConcurrency
	}

	c.Storage.applyDefaults()
	c.API.applyDefaults()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.CircleCI.Timeout); err != nil {
		return fmt.Errorf("circleci.timeout: %w", err)
	}

	if c.CircleCI.RequestsPerSecond < 0 {
		return fmt.Errorf("circleci.requests_per_second must not be negative")
	}

	if c.Sync.JobExecutionsMaxHistory <= 0 {
		return fmt.Errorf(
			"sync.job_executions_max_history must be positive, got %d",
			c.Sync.JobExecutionsMaxHistory,
		)
	}

	if c.Sync.MinPipelineNumber <= 0 {
		return fmt.Errorf(
			"sync.min_pipeline_number must be positive, got %d",
			c.Sync.MinPipelineNumber,
		)
	}

	if c.Sync.PipelineWorkflowFetchSleepMs != nil && *c.Sync.PipelineWorkflowFetchSleepMs < 0 {
		return fmt.Errorf("sync.pipeline_workflow_fetch_sleep_ms must not be negative")
	}

	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("sync.concurrency must be positive, got %d", c.Sync.Concurrency)
	}

	interval, err := time.ParseDuration(c.Sync.Interval)
	if err != nil {
		return fmt.Errorf("sync.interval: %w", err)
	}

	if interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}

// Render returns the configuration as YAML with secrets redacted.
func (c *Config) Render() ([]byte, error) {
	redacted := *c

	if redacted.CircleCI.Token != "" {
		redacted.CircleCI.Token = "<redacted>"
	}

	if redacted.Storage.Postgres.Password != "" {
		redacted.Storage.Postgres.Password = "<redacted>"
	}

	if redacted.Storage.S3 != nil && redacted.Storage.S3.SecretAccessKey != "" {
		s3 := *redacted.Storage.S3
		s3.SecretAccessKey = "<redacted>"
		redacted.Storage.S3 = &s3
	}

	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}

	return out, nil
}
