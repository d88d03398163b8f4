package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir))

	_, err := os.Stat(Path())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", GetServerURL())
	assert.False(t, IsLoggedIn())
}

func TestSaveAuthPersists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir))

	require.NoError(t, SaveAuth(AccountConfig{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Username:     "maria",
		DisplayName:  "Maria",
		Role:         "agent",
	}))
	require.NoError(t, SaveAccessToken("access-2"))

	// 重新加载后仍然存在
	require.NoError(t, Init(dir))
	assert.True(t, IsLoggedIn())
	assert.Equal(t, "access-2", GetAccessToken())
	assert.Equal(t, "refresh", GetRefreshToken())
	assert.Equal(t, "Maria", Get().Account.DisplayName)

	require.NoError(t, ClearAuth())
	require.NoError(t, Init(dir))
	assert.False(t, IsLoggedIn())
}

func TestServerURLFromEnv(t *testing.T) {
	t.Setenv("SUPPORTCTL_SERVER_URL", "https://support.example.com/")
	require.NoError(t, Init(t.TempDir()))

	assert.Equal(t, "https://support.example.com", GetServerURL())
	assert.Equal(t, "wss://support.example.com", WSURL())
}

func TestSetServerURL(t *testing.T) {
	require.NoError(t, Init(t.TempDir()))
	SetServerURL("http://10.0.0.5:9000")
	assert.Equal(t, "ws://10.0.0.5:9000", WSURL())
}
