package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "/ws", cfg.Server.WSPath)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 3*time.Second, cfg.Business.TypingTTL)
	assert.Equal(t, 7, cfg.Business.HistoryDays)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.HTTPAddr, cfg.Server.HTTPAddr)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Database.Driver, cfg.Database.Driver)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  http_addr: ":9090"
database:
  driver: postgres
  dsn: "host=localhost user=chat dbname=chat"
business:
  history_days: 14
  typing_ttl: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// 文件中的值覆盖默认值，未出现的字段保持默认
	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 14, cfg.Business.HistoryDays)
	assert.Equal(t, 5*time.Second, cfg.Business.TypingTTL)
	assert.Equal(t, "/ws", cfg.Server.WSPath)
	assert.Equal(t, int64(1), cfg.Business.NodeID)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "default config is valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unsupported driver",
			mutate:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: true,
		},
		{
			name:    "node id too large",
			mutate:  func(c *Config) { c.Business.NodeID = 1024 },
			wantErr: true,
		},
		{
			name:    "negative node id",
			mutate:  func(c *Config) { c.Business.NodeID = -1 },
			wantErr: true,
		},
		{
			name:    "zero history days",
			mutate:  func(c *Config) { c.Business.HistoryDays = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: mongodb\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
