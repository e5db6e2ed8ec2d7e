// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flamego/userdata"
	"github.com/flamego/userdata/postgres"
	"github.com/flamego/userdata/redis"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.Nil(t, err)

		assert.Equal(t, "Native", cfg.Driver)
		assert.Equal(t, "memory", cfg.Store)
		assert.Equal(t, 2*time.Hour, cfg.Expiration)
		assert.Equal(t, 5*time.Minute, cfg.TimeToUpdate)
		assert.Equal(t, time.Hour, cfg.Lifetime)
		assert.Equal(t, ":8080", cfg.HTTPAddr)

		level, err := cfg.Level()
		require.Nil(t, err)
		assert.Equal(t, log.InfoLevel, level)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("SESS_DRIVER", "Cookie")
		t.Setenv("SESS_VALID_DRIVERS", "Native,Cookie,Custom")
		t.Setenv("SESS_EXPIRATION", "30m")
		t.Setenv("SESS_MATCH_IP", "true")

		cfg, err := Load()
		require.Nil(t, err)

		assert.Equal(t, "Cookie", cfg.Driver)
		assert.Equal(t, []string{"Native", "Cookie", "Custom"}, cfg.ValidDrivers)
		assert.Equal(t, 30*time.Minute, cfg.Expiration)
		assert.True(t, cfg.MatchIP)
	})

	t.Run("env file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		err := os.WriteFile(path, []byte("SESS_LOG_LEVEL=debug\n"), 0600)
		require.Nil(t, err)
		t.Cleanup(func() { _ = os.Unsetenv("SESS_LOG_LEVEL") })

		cfg, err := Load(path)
		require.Nil(t, err)

		level, err := cfg.Level()
		require.Nil(t, err)
		assert.Equal(t, log.DebugLevel, level)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("SESS_EXPIRATION", "soon")

		_, err := Load()
		assert.NotNil(t, err)
	})
}

func TestConfig_StoreIniter(t *testing.T) {
	cfg := Config{Store: "file", FileRoot: "/tmp/userdata", Lifetime: time.Minute}
	initer, storeConfig, err := cfg.StoreIniter()
	require.Nil(t, err)
	assert.NotNil(t, initer)
	assert.Equal(t, userdata.FileConfig{Lifetime: time.Minute, RootDir: "/tmp/userdata"}, storeConfig)

	cfg = Config{Store: "Postgres", StoreDSN: "postgres://localhost/userdata", StoreTable: "sessions"}
	_, storeConfig, err = cfg.StoreIniter()
	require.Nil(t, err)
	assert.Equal(t,
		postgres.Config{DSN: "postgres://localhost/userdata", Table: "sessions", InitTable: true},
		storeConfig,
	)

	cfg = Config{Store: "redis", StoreDSN: "redis://localhost:6379/2"}
	_, storeConfig, err = cfg.StoreIniter()
	require.Nil(t, err)
	redisConfig, ok := storeConfig.(redis.Config)
	require.True(t, ok)
	assert.Equal(t, "localhost:6379", redisConfig.Options.Addr)
	assert.Equal(t, 2, redisConfig.Options.DB)

	for _, store := range []string{"redis", "postgres", "mysql", "sqlite", "mongo"} {
		_, _, err = Config{Store: store}.StoreIniter()
		assert.NotNil(t, err, store)
	}

	_, _, err = Config{Store: "etcd"}.StoreIniter()
	assert.NotNil(t, err)
}

func TestConfig_Options(t *testing.T) {
	cfg := Config{
		Driver:     "Cookie",
		CookieName: "sid",
		Secret:     "s3cr3t",
		Store:      "file",
		FileRoot:   t.TempDir(),
	}
	opts, err := cfg.Options(log.New(os.Stderr))
	require.Nil(t, err)

	assert.Equal(t, "Cookie", opts.Driver)
	assert.Equal(t, "sid", opts.Native.Cookie.Name)
	assert.Equal(t, "sid", opts.Cookie.Cookie.Name)
	assert.Equal(t, "s3cr3t", opts.Cookie.Secret)
	assert.NotNil(t, opts.Cookie.Initer)

	cfg.Store = "memory"
	opts, err = cfg.Options(nil)
	require.Nil(t, err)
	assert.Nil(t, opts.Cookie.Initer)
}
