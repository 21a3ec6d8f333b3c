package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, DriverMemory, cfg.MessageStore)
	assert.Equal(t, 10*time.Minute, cfg.TrackingIdleTimeout)
	assert.False(t, cfg.TrackingSimulate)
	assert.Empty(t, cfg.AdminIDs)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("MESSAGE_STORE", "redis")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("ADMIN_IDS", " admin-1, ,admin-2 ")
	t.Setenv("TRACKING_SIMULATE", "true")
	t.Setenv("TRACKING_SIMULATE_INTERVAL", "500ms")
	t.Setenv("DEPOT_LAT", "51.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, DriverRedis, cfg.MessageStore)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, []string{"admin-1", "admin-2"}, cfg.AdminIDs)
	assert.True(t, cfg.TrackingSimulate)
	assert.Equal(t, 500*time.Millisecond, cfg.TrackingSimulateInterval)
	assert.InDelta(t, 51.5, cfg.DepotLat, 1e-9)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{"JWT_SECRET": ""}},
		{name: "bad port", env: map[string]string{"PORT": "eighty"}},
		{name: "bad idle timeout", env: map[string]string{"TRACKING_IDLE_TIMEOUT": "soon"}},
		{name: "unknown store", env: map[string]string{"STORE_DRIVER": "mysql"}},
		{name: "unknown message store", env: map[string]string{"MESSAGE_STORE": "kafka"}},
		{name: "depot out of range", env: map[string]string{"DEPOT_LNG": "200"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "s3cret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
