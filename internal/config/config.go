// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the settings of the demo server from environment
// variables, optionally from .env files.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/flamego/userdata"
	"github.com/flamego/userdata/mongo"
	"github.com/flamego/userdata/mysql"
	"github.com/flamego/userdata/postgres"
	"github.com/flamego/userdata/redis"
	"github.com/flamego/userdata/sqlite"
)

// Config contains settings of the userdata middleware and the store it uses.
type Config struct {
	Driver         string        `env:"SESS_DRIVER" envDefault:"Native"`
	ValidDrivers   []string      `env:"SESS_VALID_DRIVERS" envSeparator:","`
	CookieName     string        `env:"SESS_COOKIE_NAME"`
	Secret         string        `env:"SESS_SECRET"`
	OldSecrets     []string      `env:"SESS_OLD_SECRETS" envSeparator:","`
	Encrypt        bool          `env:"SESS_ENCRYPT"`
	Expiration     time.Duration `env:"SESS_EXPIRATION" envDefault:"2h"`
	ExpireOnClose  bool          `env:"SESS_EXPIRE_ON_CLOSE"`
	MatchIP        bool          `env:"SESS_MATCH_IP"`
	MatchUserAgent bool          `env:"SESS_MATCH_USERAGENT"`
	TimeToUpdate   time.Duration `env:"SESS_TIME_TO_UPDATE" envDefault:"5m"`

	Store      string        `env:"SESS_STORE" envDefault:"memory"`
	StoreDSN   string        `env:"SESS_STORE_DSN"`
	StoreTable string        `env:"SESS_STORE_TABLE" envDefault:"sessions"`
	FileRoot   string        `env:"SESS_FILE_ROOT" envDefault:"sessions"`
	Lifetime   time.Duration `env:"SESS_LIFETIME" envDefault:"1h"`
	GCInterval time.Duration `env:"SESS_GC_INTERVAL" envDefault:"5m"`

	LogLevel string `env:"SESS_LOG_LEVEL" envDefault:"info"`
	HTTPAddr string `env:"SESS_HTTP_ADDR" envDefault:":8080"`
}

// Load returns the configuration parsed from environment variables. Variables
// in given .env files are loaded first without overriding existing ones,
// missing files are skipped.
func Load(files ...string) (Config, error) {
	for _, f := range files {
		err := godotenv.Load(f)
		if err != nil && !os.IsNotExist(errors.Cause(err)) {
			return Config{}, errors.Wrapf(err, "load %q", f)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	return cfg, nil
}

// Level returns the parsed log level.
func (c Config) Level() (log.Level, error) {
	return log.ParseLevel(c.LogLevel)
}

// StoreIniter returns the initer and its configuration object of the store
// named by the Store setting.
func (c Config) StoreIniter() (userdata.Initer, interface{}, error) {
	needDSN := func() error {
		if c.StoreDSN == "" {
			return errors.Errorf("store %q requires SESS_STORE_DSN", c.Store)
		}
		return nil
	}

	switch strings.ToLower(c.Store) {
	case "memory", "":
		return userdata.MemoryIniter(), userdata.MemoryConfig{Lifetime: c.Lifetime}, nil

	case "file":
		return userdata.FileIniter(), userdata.FileConfig{
			Lifetime: c.Lifetime,
			RootDir:  c.FileRoot,
		}, nil

	case "redis":
		if err := needDSN(); err != nil {
			return nil, nil, err
		}
		opts, err := goredis.ParseURL(c.StoreDSN)
		if err != nil {
			return nil, nil, errors.Wrap(err, "parse redis URL")
		}
		return redis.Initer(), redis.Config{
			Options:  opts,
			Lifetime: c.Lifetime,
		}, nil

	case "postgres":
		if err := needDSN(); err != nil {
			return nil, nil, err
		}
		return postgres.Initer(), postgres.Config{
			DSN:       c.StoreDSN,
			Table:     c.StoreTable,
			Lifetime:  c.Lifetime,
			InitTable: true,
		}, nil

	case "mysql":
		if err := needDSN(); err != nil {
			return nil, nil, err
		}
		return mysql.Initer(), mysql.Config{
			DSN:       c.StoreDSN,
			Table:     c.StoreTable,
			Lifetime:  c.Lifetime,
			InitTable: true,
		}, nil

	case "sqlite":
		if err := needDSN(); err != nil {
			return nil, nil, err
		}
		return sqlite.Initer(), sqlite.Config{
			DSN:       c.StoreDSN,
			Table:     c.StoreTable,
			Lifetime:  c.Lifetime,
			InitTable: true,
		}, nil

	case "mongo":
		if err := needDSN(); err != nil {
			return nil, nil, err
		}
		return mongo.Initer(), mongo.Config{
			URI:        c.StoreDSN,
			Collection: c.StoreTable,
			Lifetime:   c.Lifetime,
			InitIndex:  true,
		}, nil
	}
	return nil, nil, errors.Errorf("unknown store %q", c.Store)
}

// Options returns the options of the userdata middleware. The store is used by
// the Native driver, and by the Cookie driver when it is the configured driver
// to keep data on the server side.
func (c Config) Options(logger *log.Logger) (userdata.Options, error) {
	initer, storeConfig, err := c.StoreIniter()
	if err != nil {
		return userdata.Options{}, err
	}

	opts := userdata.Options{
		Driver:       c.Driver,
		ValidDrivers: c.ValidDrivers,
		Native: userdata.NativeConfig{
			Initer: initer,
			Config: storeConfig,
		},
		Cookie: userdata.CookieConfig{
			Secret:         c.Secret,
			OldSecrets:     c.OldSecrets,
			Encrypt:        c.Encrypt,
			Expiration:     c.Expiration,
			ExpireOnClose:  c.ExpireOnClose,
			MatchIP:        c.MatchIP,
			MatchUserAgent: c.MatchUserAgent,
			TimeToUpdate:   c.TimeToUpdate,
		},
		GCInterval: c.GCInterval,
		Logger:     logger,
	}
	if strings.EqualFold(c.Driver, "cookie") && !strings.EqualFold(c.Store, "memory") {
		opts.Cookie.Initer = initer
		opts.Cookie.Config = storeConfig
	}
	if c.CookieName != "" {
		cookie := userdata.CookieOptions{
			Name:     c.CookieName,
			HTTPOnly: true,
		}
		opts.Native.Cookie = cookie
		opts.Cookie.Cookie = cookie
	}
	return opts, nil
}
