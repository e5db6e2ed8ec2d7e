// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/flamego/userdata"
	"github.com/flamego/userdata/internal/sqlstore"
)

// dialect is the MySQL flavor of the SQL store.
var dialect = sqlstore.Dialect{
	Quote:       quoteWithBackticks,
	Placeholder: func(int) string { return "?" },
	Upsert:      `ON DUPLICATE KEY UPDATE data = VALUES(data), expires_at = VALUES(expires_at)`,
	Schema: `
CREATE TABLE IF NOT EXISTS %s (
	id         VARCHAR(255) NOT NULL,
	data       BLOB NOT NULL,
	expires_at DATETIME NOT NULL,
	PRIMARY KEY (id),
	KEY (expires_at)
) DEFAULT CHARSET=utf8mb4`,
	Time: func(t time.Time) interface{} {
		return t.UTC()
	},
}

// Config contains options for the MySQL store.
type Config struct {
	// For tests only
	nowFunc func() time.Time
	db      *sql.DB

	// Lifetime is the duration to have no access to a record before being
	// recycled. Default is 3600 seconds.
	Lifetime time.Duration
	// DSN is the database source name to the MySQL.
	DSN string
	// Table is the table name for storing session data. Default is "sessions".
	Table string
	// Encoder is the encoder to encode session data. Default is
	// userdata.GobEncoder.
	Encoder userdata.Encoder
	// Decoder is the decoder to decode session data. Default is
	// userdata.GobDecoder.
	Decoder userdata.Decoder
	// InitTable indicates whether to create the table when not exists
	// automatically.
	InitTable bool
}

func quoteWithBackticks(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// Initer returns the userdata.Initer for the MySQL store.
func Initer() userdata.Initer {
	return func(ctx context.Context, args ...interface{}) (userdata.Store, error) {
		var cfg *Config
		for i := range args {
			switch v := args[i].(type) {
			case Config:
				cfg = &v
			}
		}

		if cfg == nil {
			return nil, fmt.Errorf("config object with the type '%T' not found", Config{})
		} else if cfg.DSN == "" && cfg.db == nil {
			return nil, errors.New("empty DSN")
		}

		if cfg.db == nil {
			db, err := sql.Open("mysql", cfg.DSN)
			if err != nil {
				return nil, errors.Wrap(err, "open database")
			}
			cfg.db = db
		}

		if cfg.nowFunc == nil {
			cfg.nowFunc = time.Now
		}
		if cfg.Lifetime.Seconds() < 1 {
			cfg.Lifetime = 3600 * time.Second
		}
		if cfg.Table == "" {
			cfg.Table = "sessions"
		}
		if cfg.Encoder == nil {
			cfg.Encoder = userdata.GobEncoder
		}
		if cfg.Decoder == nil {
			cfg.Decoder = userdata.GobDecoder
		}

		store, err := sqlstore.New(ctx, cfg.db, dialect, sqlstore.Options{
			NowFunc:   cfg.nowFunc,
			Lifetime:  cfg.Lifetime,
			Table:     cfg.Table,
			Encoder:   cfg.Encoder,
			Decoder:   cfg.Decoder,
			InitTable: cfg.InitTable,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
