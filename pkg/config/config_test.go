package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configContent := `
global:
  log_level: info
circleci:
  token: file-token
sync:
  job_executions_max_history: 5
  min_pipeline_number: 10
  pipeline_workflow_fetch_sleep_ms: 250
  interval: 30s
storage:
  driver: sqlite
  sqlite:
    path: /tmp/original.db
api:
  listen: ":9000"
  cors_origins:
    - https://dash.example.com
`

	configPath := writeConfig(t, configContent)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t, "file-token", cfg.CircleCI.Token)
				assert.Equal(t, 5, cfg.Sync.JobExecutionsMaxHistory)
				assert.Equal(t, 10, cfg.Sync.MinPipelineNumber)
				assert.Equal(t, 250*time.Millisecond, cfg.Sync.FetchSleep())
				assert.Equal(t, 30*time.Second, cfg.Sync.IntervalDuration())
				assert.Equal(t, "/tmp/original.db", cfg.Storage.SQLite.Path)
				assert.Equal(t, []string{"https://dash.example.com"}, cfg.API.CORSOrigins)
			},
		},
		{
			name: "string override - log_level",
			envVars: map[string]string{
				"CIRCLEBOARD_GLOBAL_LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Global.LogLevel)
			},
		},
		{
			name: "string override - circleci token",
			envVars: map[string]string{
				"CIRCLEBOARD_CIRCLECI_TOKEN": "env-token",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "env-token", cfg.CircleCI.Token)
			},
		},
		{
			name: "integer override - min_pipeline_number",
			envVars: map[string]string{
				"CIRCLEBOARD_SYNC_MIN_PIPELINE_NUMBER": "42",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 42, cfg.Sync.MinPipelineNumber)
			},
		},
		{
			name: "boolean override - include_build_jobs false",
			envVars: map[string]string{
				"CIRCLEBOARD_SYNC_INCLUDE_BUILD_JOBS": "false",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Sync.IncludeBuildJobsOrDefault())
			},
		},
		{
			name: "nested field override - storage.sqlite.path",
			envVars: map[string]string{
				"CIRCLEBOARD_STORAGE_SQLITE_PATH": "/tmp/env.db",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/tmp/env.db", cfg.Storage.SQLite.Path)
			},
		},
		{
			name: "list override - cors_origins",
			envVars: map[string]string{
				"CIRCLEBOARD_API_CORS_ORIGINS": "https://a.example.com,https://b.example.com",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t,
					[]string{"https://a.example.com", "https://b.example.com"},
					cfg.API.CORSOrigins)
			},
		},
		{
			name: "boolean override - rate_limit enabled",
			envVars: map[string]string{
				"CIRCLEBOARD_API_RATE_LIMIT_ENABLED": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.API.RateLimit.Enabled)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultCircleCIBaseURL, cfg.CircleCI.BaseURL)
	assert.Equal(t, DefaultJobExecutionsMaxHistory, cfg.Sync.JobExecutionsMaxHistory)
	assert.Equal(t, DefaultMinPipelineNumber, cfg.Sync.MinPipelineNumber)
	assert.Equal(t, DefaultPipelineWorkflowFetchSleepMs*time.Millisecond, cfg.Sync.FetchSleep())
	assert.True(t, cfg.Sync.IncludeBuildJobsOrDefault())
	assert.Equal(t, DefaultStorageDriver, cfg.Storage.Driver)
	assert.Equal(t, ModeDevelopment, cfg.Storage.Mode)
	assert.Equal(t, DefaultListen, cfg.API.Listen)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MergesMultipleFiles(t *testing.T) {
	base := writeConfig(t, `
sync:
  min_pipeline_number: 10
  job_executions_max_history: 3
`)
	override := writeConfig(t, `
sync:
  min_pipeline_number: 50
`)

	cfg, err := Load(base, override)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Sync.MinPipelineNumber)
	assert.Equal(t, 3, cfg.Sync.JobExecutionsMaxHistory)
}

func TestLoad_ZeroFetchSleepDisablesPause(t *testing.T) {
	path := writeConfig(t, `
sync:
  pipeline_workflow_fetch_sleep_ms: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Sync.PipelineWorkflowFetchSleepMs)
	assert.Equal(t, 0, *cfg.Sync.PipelineWorkflowFetchSleepMs)
	assert.Zero(t, cfg.Sync.FetchSleep())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "negative history bound",
			mutate:  func(cfg *Config) { cfg.Sync.JobExecutionsMaxHistory = -1 },
			wantErr: "job_executions_max_history",
		},
		{
			name: "negative fetch sleep",
			mutate: func(cfg *Config) {
				sleepMs := -1
				cfg.Sync.PipelineWorkflowFetchSleepMs = &sleepMs
			},
			wantErr: "pipeline_workflow_fetch_sleep_ms",
		},
		{
			name:    "zero concurrency",
			mutate:  func(cfg *Config) { cfg.Sync.Concurrency = -2 },
			wantErr: "sync.concurrency",
		},
		{
			name:    "bad interval",
			mutate:  func(cfg *Config) { cfg.Sync.Interval = "soon" },
			wantErr: "sync.interval",
		},
		{
			name:    "unknown driver",
			mutate:  func(cfg *Config) { cfg.Storage.Driver = "redis" },
			wantErr: "unsupported driver",
		},
		{
			name:    "unknown mode",
			mutate:  func(cfg *Config) { cfg.Storage.Mode = "staging" },
			wantErr: "mode must be",
		},
		{
			name:    "unparseable value size",
			mutate:  func(cfg *Config) { cfg.Storage.MaxValueSize = "lots" },
			wantErr: "max_value_size",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(cfg *Config) { cfg.Storage.Driver = "s3" },
			wantErr: "s3.bucket",
		},
		{
			name: "postgres without host",
			mutate: func(cfg *Config) {
				cfg.Storage.Driver = "postgres"
			},
			wantErr: "postgres.host",
		},
		{
			name: "rate limit without budget",
			mutate: func(cfg *Config) {
				cfg.API.RateLimit.Enabled = true
				cfg.API.RateLimit.RequestsPerMinute = -1
			},
			wantErr: "requests_per_minute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRender_RedactsSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.CircleCI.Token = "super-secret"
	cfg.Storage.S3 = &S3StorageConfig{Bucket: "b", SecretAccessKey: "also-secret"}

	out, err := cfg.Render()
	require.NoError(t, err)

	assert.NotContains(t, string(out), "super-secret")
	assert.NotContains(t, string(out), "also-secret")

	var decoded Config
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, "<redacted>", decoded.CircleCI.Token)
	assert.Equal(t, "b", decoded.Storage.S3.Bucket)

	// The original is left untouched.
	assert.Equal(t, "also-secret", cfg.Storage.S3.SecretAccessKey)
}
