package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig_EmbeddedDefaults(t *testing.T) {
	t.Setenv("GEONAMES_USERNAME", "demo-user")
	t.Setenv("POSTGRES_PASSWORD", "s3cret")

	cfg, err := InitConfig()
	require.NoError(t, err)

	assert.Equal(t, "demo-user", cfg.Location.APIKey)
	assert.Equal(t, "s3cret", cfg.Repositories.Postgres.Password)
	assert.Equal(t, 5*time.Minute, cfg.Location.CacheTimeout)
	assert.Equal(t, 1000, cfg.Location.MaxCacheSize)
	assert.Equal(t, 24*time.Hour, cfg.Location.SourceCacheTimeout)
	assert.Equal(t, 100, cfg.Location.SourceCacheSize)
	assert.Equal(t, 4*time.Second, cfg.Location.SourceTimeout)
	assert.True(t, cfg.Location.FallbackToStatic)
	assert.Equal(t, "India", cfg.Location.DefaultCountry)
	assert.Equal(t, "http://api.geonames.org", cfg.Location.BaseURL)
}

func TestLocationConfig_Validate(t *testing.T) {
	valid := LocationConfig{
		CacheTimeout:       time.Minute,
		MaxCacheSize:       10,
		SourceCacheTimeout: time.Hour,
		SourceCacheSize:    10,
		SourceTimeout:      time.Second,
		DefaultCountry:     "India",
	}
	require.NoError(t, valid.Validate())

	broken := valid
	broken.MaxCacheSize = 0
	assert.Error(t, broken.Validate())

	broken = valid
	broken.CacheTimeout = -time.Second
	assert.Error(t, broken.Validate())

	broken = valid
	broken.DefaultCountry = " "
	assert.Error(t, broken.Validate())
}
