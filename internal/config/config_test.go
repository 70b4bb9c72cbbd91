package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	c, err := FromEnv(env(nil))
	require.NoError(t, err)
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "climax.db", c.DBPath)
	assert.Empty(t, c.RedisURL)
	assert.Empty(t, c.PostgresDSN)
	assert.Equal(t, logrus.InfoLevel, c.LogLevel)
	assert.Equal(t, "text", c.LogFormat)
	assert.Equal(t, 4*time.Second, c.RoundEndDelay)
	assert.Equal(t, 1.0, c.AIDelayScale)
	assert.Equal(t, time.Hour, c.SessionMaxAge)
	assert.Equal(t, time.Minute, c.CleanupInterval)
	assert.Equal(t, 24*time.Hour, c.TokenTTL)
}

func TestOverrides(t *testing.T) {
	c, err := FromEnv(env(map[string]string{
		"PORT":            "9000",
		"REDIS_URL":       "redis://localhost:6379/0",
		"LOG_LEVEL":       "debug",
		"LOG_FORMAT":      "json",
		"ROUND_END_DELAY": "1500ms",
		"AI_DELAY_SCALE":  "0",
	}))
	require.NoError(t, err)
	assert.Equal(t, "9000", c.Port)
	assert.Equal(t, "redis://localhost:6379/0", c.RedisURL)
	assert.Equal(t, logrus.DebugLevel, c.LogLevel)
	assert.Equal(t, 1500*time.Millisecond, c.RoundEndDelay)
	assert.Zero(t, c.AIDelayScale)

	log := c.NewLogger()
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
}

func TestInvalidValues(t *testing.T) {
	_, err := FromEnv(env(map[string]string{
		"ROUND_END_DELAY": "soon",
		"AI_DELAY_SCALE":  "fast",
		"LOG_LEVEL":       "loud",
		"LOG_FORMAT":      "xml",
	}))
	require.Error(t, err)
	for _, key := range []string{"ROUND_END_DELAY", "AI_DELAY_SCALE", "LOG_LEVEL", "LOG_FORMAT"} {
		assert.Contains(t, err.Error(), key)
	}

	_, err = FromEnv(env(map[string]string{"AI_DELAY_SCALE": "-1"}))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CLIMAX_CFG_TEST_PORT=7070\nDB_PATH=/tmp/from-file.db\n"), 0o600))

	t.Setenv("DB_PATH", "/tmp/from-env.db")
	c, err := Load(path)
	require.NoError(t, err)
	// variables already in the environment win over the file
	assert.Equal(t, "/tmp/from-env.db", c.DBPath)
	assert.Equal(t, "7070", os.Getenv("CLIMAX_CFG_TEST_PORT"))
	os.Unsetenv("CLIMAX_CFG_TEST_PORT")

	_, err = Load(filepath.Join(dir, "missing.env"))
	assert.NoError(t, err)
}
