package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.NotNil(t, cfg)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 10, cfg.Reviews.HistoryPageSize)
	assert.Equal(t, 30*time.Second, cfg.Reviews.QueueCacheTTL)
	assert.Equal(t, 60*time.Second, cfg.Notifications.LockTTL)
	assert.Equal(t, 5, cfg.Notifications.MaxAttempts)
	assert.Equal(t, int64(10*1024*1024), cfg.Attachments.MaxFileSizeBytes)
	assert.Contains(t, cfg.Attachments.AllowedMIMEs, "application/pdf")
	assert.Equal(t, 15*time.Minute, cfg.Attachments.LinkTTL)
	assert.Equal(t, 5.0, cfg.Reviews.DecisionRPS)
	assert.Equal(t, 10, cfg.Reviews.DecisionBurst)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("HISTORY_PAGE_SIZE", 0)
	v.Set("NOTIFY_LOCK_TTL", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := fromViper(v)
	assert.Equal(t, 10, cfg.Reviews.HistoryPageSize)
	assert.Equal(t, 60*time.Second, cfg.Notifications.LockTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}
