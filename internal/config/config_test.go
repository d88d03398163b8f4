package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Support.InactivityThreshold)
	assert.Equal(t, 3, cfg.Support.EscalationThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Support.PendingSLA)
	assert.Equal(t, "@every 1m", cfg.Support.SweepCron)
	assert.Equal(t, int64(30), cfg.RateLimit.Limit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 24*time.Hour, cfg.JWT.AccessExpire)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "admin", cfg.Admin.Username)
	assert.Empty(t, cfg.Admin.Password)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9090
database:
  driver: sqlite
  sqlite:
    path: /tmp/support.db
support:
  escalation_threshold: 5
  pending_sla: 10m
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("JWT_SECRET", "from-env-secret")
	t.Setenv("DISCORD_CHANNEL_ID", "123456")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/support.db", cfg.Database.SQLite.Path)
	assert.Equal(t, 5, cfg.Support.EscalationThreshold)
	assert.Equal(t, 10*time.Minute, cfg.Support.PendingSLA)
	assert.Equal(t, 2*time.Minute, cfg.Support.InactivityThreshold)
	assert.Equal(t, "from-env-secret", cfg.JWT.Secret)
	assert.Equal(t, "123456", cfg.Discord.ChannelID)
}

func TestMySQLConfig_DSN(t *testing.T) {
	c := MySQLConfig{Username: "root", Password: "pw", Host: "db", Port: 3306, Database: "support", Charset: "utf8mb4"}
	assert.Equal(t, "root:pw@tcp(db:3306)/support?charset=utf8mb4&parseTime=True&loc=Local", c.DSN())
}
