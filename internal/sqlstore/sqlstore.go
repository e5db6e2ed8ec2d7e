// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sqlstore implements userdata.Store on top of database/sql. Database
// specific packages only provide a Dialect and the connection.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/flamego/userdata"
)

// Dialect describes how a database spells the statements of the store.
type Dialect struct {
	// Quote returns the quoted form of given identifier.
	Quote func(ident string) string
	// Placeholder returns the bind parameter at given position, starting at 1.
	Placeholder func(n int) string
	// Upsert is appended to the INSERT statement to update "data" and
	// "expires_at" of the row with the same ID.
	Upsert string
	// Schema is the CREATE TABLE statement, "%s" is the quoted table name.
	Schema string
	// Time returns the bind value of given time as stored in the table.
	Time func(t time.Time) interface{}
}

// Options contains options for the SQL store.
type Options struct {
	// NowFunc is the function to return the current time.
	NowFunc func() time.Time
	// Lifetime is the duration to have no access to a record before being
	// recycled.
	Lifetime time.Duration
	// Table is the table name for storing session data.
	Table string
	// Encoder is the encoder to encode session data.
	Encoder userdata.Encoder
	// Decoder is the decoder to decode session data.
	Decoder userdata.Decoder
	// InitTable indicates whether to create the table when not exists.
	InitTable bool
}

var _ userdata.Store = (*Store)(nil)

// Store is a SQL implementation of the userdata store. A record is a row of
// the session ID, the encoded data and the time it expires at.
type Store struct {
	db       *sql.DB
	dialect  Dialect
	nowFunc  func() time.Time
	lifetime time.Duration
	encoder  userdata.Encoder
	decoder  userdata.Decoder

	existQuery   string
	readQuery    string
	destroyQuery string
	touchQuery   string
	saveQuery    string
	gcQuery      string
}

// New returns a new SQL store with given connection, dialect and options. The
// table is created first when opts.InitTable is true.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts Options) (*Store, error) {
	table := dialect.Quote(opts.Table)
	p := dialect.Placeholder

	if opts.InitTable {
		_, err := db.ExecContext(ctx, fmt.Sprintf(dialect.Schema, table))
		if err != nil {
			return nil, errors.Wrap(err, "create table")
		}
	}

	return &Store{
		db:       db,
		dialect:  dialect,
		nowFunc:  opts.NowFunc,
		lifetime: opts.Lifetime,
		encoder:  opts.Encoder,
		decoder:  opts.Decoder,

		existQuery:   fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = %s AND expires_at > %s`, table, p(1), p(2)),
		readQuery:    fmt.Sprintf(`SELECT data FROM %s WHERE id = %s AND expires_at > %s`, table, p(1), p(2)),
		destroyQuery: fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, table, p(1)),
		touchQuery:   fmt.Sprintf(`UPDATE %s SET expires_at = %s WHERE id = %s`, table, p(1), p(2)),
		saveQuery:    fmt.Sprintf(`INSERT INTO %s (id, data, expires_at) VALUES (%s, %s, %s) %s`, table, p(1), p(2), p(3), dialect.Upsert),
		gcQuery:      fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= %s`, table, p(1)),
	}, nil
}

// now returns the current time as stored in the table.
func (s *Store) now() interface{} {
	return s.dialect.Time(s.nowFunc())
}

// expiresAt returns the expiry of a record accessed now as stored in the table.
func (s *Store) expiresAt() interface{} {
	return s.dialect.Time(s.nowFunc().Add(s.lifetime))
}

func (s *Store) Exist(ctx context.Context, sid string) bool {
	var n int
	err := s.db.QueryRowContext(ctx, s.existQuery, sid, s.now()).Scan(&n)
	return err == nil && n > 0
}

// Read returns empty data for missing and expired records alike, expired rows
// are left to GC.
func (s *Store) Read(ctx context.Context, sid string) (userdata.Data, error) {
	var binary []byte
	err := s.db.QueryRowContext(ctx, s.readQuery, sid, s.now()).Scan(&binary)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return make(userdata.Data), nil
		}
		return nil, errors.Wrap(err, "select")
	}

	data, err := s.decoder(binary)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return data, nil
}

func (s *Store) Destroy(ctx context.Context, sid string) error {
	_, err := s.db.ExecContext(ctx, s.destroyQuery, sid)
	if err != nil {
		return errors.Wrap(err, "delete")
	}
	return nil
}

func (s *Store) Touch(ctx context.Context, sid string) error {
	_, err := s.db.ExecContext(ctx, s.touchQuery, s.expiresAt(), sid)
	if err != nil {
		return errors.Wrap(err, "update")
	}
	return nil
}

func (s *Store) Save(ctx context.Context, sid string, data userdata.Data) error {
	binary, err := s.encoder(data)
	if err != nil {
		return errors.Wrap(err, "encode")
	}

	_, err = s.db.ExecContext(ctx, s.saveQuery, sid, binary, s.expiresAt())
	if err != nil {
		return errors.Wrap(err, "upsert")
	}
	return nil
}

func (s *Store) GC(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.gcQuery, s.now())
	if err != nil {
		return errors.Wrap(err, "delete expired")
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
