package di

import (
	"context"
	"net"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"user-service/internal/config"
	"user-service/internal/usecase/user"
)

func sqliteConfig() *config.Config {
	return &config.Config{
		DB: config.DatabaseConfig{
			Driver:      config.DriverSQLite,
			SQLitePath:  ":memory:",
			AutoMigrate: true,
		},
		App: config.AppConfig{
			HTTPPort:               "8080",
			ShutdownTimeoutSeconds: 5,
		},
		RateLimit: config.RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 10,
			BurstCapacity:     20,
		},
		Logger: config.LoggerConfig{Level: "debug", SlowQuerySeconds: 0.2},
	}
}

func TestNewContainer_SQLiteWithoutRedis(t *testing.T) {
	c, err := NewContainer(sqliteConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Nil(t, c.RedisClient)
	assert.Nil(t, c.RateLimiter)
	require.NotNil(t, c.GinHandler)

	ctx := context.Background()
	created, err := c.UserUC.CreateUser(ctx, user.CreateUserRequest{Name: "Ann", Email: "ann@example.com", Age: 22})
	require.NoError(t, err)

	got, err := c.UserUC.GetUser(ctx, user.GetUserRequest{ID: created.ID})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", got.Email)
	assert.Equal(t, int64(1), c.UserUC.CountUsers(ctx))
}

func TestNewContainer_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, _ := splitAddr(mr.Addr())

	cfg := sqliteConfig()
	cfg.Redis = config.RedisConfig{Enabled: true, Host: host, Port: port, PoolSize: 2, CacheTTL: 60}

	c, err := NewContainer(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NotNil(t, c.RedisClient)
	require.NotNil(t, c.RateLimiter)

	ctx := context.Background()
	created, err := c.UserUC.CreateUser(ctx, user.CreateUserRequest{Name: "Bob", Email: "bob@example.com", Age: 40})
	require.NoError(t, err)

	_, err = c.UserUC.GetUser(ctx, user.GetUserRequest{ID: created.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys(), "read-through populated the cache")
}

func TestNewContainer_UnreachableRedisIsTolerated(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, _ := splitAddr(mr.Addr())
	mr.Close()

	cfg := sqliteConfig()
	cfg.Redis = config.RedisConfig{Enabled: true, Host: host, Port: port, MaxRetries: -1, CacheTTL: 60}

	c, err := NewContainer(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Nil(t, c.RedisClient)
	assert.Nil(t, c.RateLimiter)
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	cfg := sqliteConfig()
	cfg.DB.Driver = "oracle"

	_, err := NewContainer(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func splitAddr(addr string) (string, string, error) {
	return net.SplitHostPort(addr)
}
