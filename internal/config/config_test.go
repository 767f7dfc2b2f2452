package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "quill.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `version: "1.0"
namespace: staging
redis:
  addr: "redis.internal:6380"
  db: 2
migration:
  target_version: 36
  concurrency: 8
  lock_ttl: 90s
history:
  dsn: /var/lib/quill/history.db
logging:
  level: debug
  format: json
gcloud:
  app: quill-prod
  auxiliary_services: [backend]
`)

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "staging", config.Namespace)
	assert.Equal(t, "redis.internal:6380", config.Redis.Addr)
	assert.Equal(t, 2, config.Redis.DB)
	assert.Equal(t, 36, *config.Migration.TargetVersion)
	assert.Equal(t, 8, config.Migration.Concurrency)
	assert.Equal(t, 90*time.Second, config.Migration.LockTTL)
	assert.Equal(t, "/var/lib/quill/history.db", config.History.DSN)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	assert.Equal(t, "quill-prod", config.Gcloud.App)
	assert.Equal(t, []string{"backend"}, config.Gcloud.AuxiliaryServices)
	assert.Equal(t, "index.yaml", config.Gcloud.IndexesFile)
	assert.Equal(t, "app.yaml", config.Gcloud.AppYAML)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	config, err := Load(writeConfig(t, `version: "1.0"`))
	require.NoError(t, err)

	assert.Equal(t, DefaultNamespace, config.Namespace)
	assert.Equal(t, DefaultRedisAddr, config.Redis.Addr)
	assert.Equal(t, 40, *config.Migration.TargetVersion)
	assert.Equal(t, DefaultConcurrency, config.Migration.Concurrency)
	assert.Equal(t, DefaultLockTTL, config.Migration.LockTTL)
	assert.Equal(t, DefaultHistoryDSN, config.History.DSN)
	assert.Equal(t, DefaultLogLevel, config.Logging.Level)
	assert.Equal(t, DefaultLogFormat, config.Logging.Format)
	assert.Nil(t, config.Gcloud)

	assert.Equal(t, config, Default())
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/quill.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `version: "1.0"
redis:
  - this is invalid
    yaml syntax
`)

	config, err := Load(configPath)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unsupported version",
			yaml:    `version: "2.0"`,
			wantErr: "unsupported version: 2.0",
		},
		{
			name:    "missing version",
			yaml:    `namespace: x`,
			wantErr: "unsupported version",
		},
		{
			name: "target version too new",
			yaml: `version: "1.0"
migration:
  target_version: 41`,
			wantErr: "migration.target_version must be between 27 and 40, got 41",
		},
		{
			name: "target version too old",
			yaml: `version: "1.0"
migration:
  target_version: 12`,
			wantErr: "migration.target_version must be between 27 and 40",
		},
		{
			name: "negative concurrency",
			yaml: `version: "1.0"
migration:
  concurrency: -1`,
			wantErr: "migration.concurrency must be >= 1",
		},
		{
			name: "lock ttl too short",
			yaml: `version: "1.0"
migration:
  lock_ttl: 10ms`,
			wantErr: "migration.lock_ttl must be at least 1s",
		},
		{
			name: "negative redis db",
			yaml: `version: "1.0"
redis:
  db: -1`,
			wantErr: "redis.db must be >= 0",
		},
		{
			name: "bad log level",
			yaml: `version: "1.0"
logging:
  level: verbose`,
			wantErr: "invalid logging.level: verbose",
		},
		{
			name: "bad log format",
			yaml: `version: "1.0"
logging:
  format: xml`,
			wantErr: "invalid logging.format: xml",
		},
		{
			name: "gcloud without app",
			yaml: `version: "1.0"
gcloud:
  auxiliary_services: [backend]`,
			wantErr: "gcloud.app is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Nil(t, config)
			assert.Contains(t, err.Error(), "invalid configuration")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_TargetVersionZeroIsRejected(t *testing.T) {
	target := 0
	c := &QuillConfig{Version: "1.0", Migration: &MigrationConfig{TargetVersion: &target}}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target_version")
}
