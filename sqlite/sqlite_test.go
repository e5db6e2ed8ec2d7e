// Copyright 2023 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flamego/flamego"

	"github.com/flamego/userdata"
	"github.com/flamego/userdata/internal/storetest"
)

func newTestDB(t *testing.T, ctx context.Context) (testDB *sql.DB, cleanup func() error) {
	dbname := filepath.Join(t.TempDir(), "flamego-test-userdata.db")
	testDB, err := sql.Open("sqlite", dbname)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("DATABASE %s left intact for inspection", dbname)
		}

		err := testDB.Close()
		if err != nil {
			t.Fatalf("Failed to close test connection: %v", err)
		}
	})
	return testDB, func() error {
		if t.Failed() {
			return nil
		}

		_, err = testDB.ExecContext(ctx, `DELETE FROM sessions`)
		if err != nil {
			return err
		}
		return nil
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	db, cleanup := newTestDB(t, ctx)
	t.Cleanup(func() {
		assert.Nil(t, cleanup())
	})

	clock := storetest.NewClock()
	store, err := Initer()(ctx,
		Config{
			nowFunc:   clock.Now,
			db:        db,
			Lifetime:  storetest.Lifetime,
			InitTable: true,
		},
	)
	require.Nil(t, err)

	storetest.Run(t, store)
	storetest.RunExpiry(t, store, clock)
}

func TestSQLiteStore_Sessioner(t *testing.T) {
	ctx := context.Background()
	db, cleanup := newTestDB(t, ctx)
	t.Cleanup(func() {
		assert.Nil(t, cleanup())
	})

	f := flamego.NewWithLogger(&bytes.Buffer{})
	f.Use(userdata.Sessioner(
		userdata.Options{
			Native: userdata.NativeConfig{
				Initer: Initer(),
				Config: Config{
					db:        db,
					InitTable: true,
				},
			},
		},
	))
	f.Get("/set", func(s *userdata.Session) {
		s.SetUserdata("username", "flamego")
		s.SetFlashdata("notice", "Saved")
	})
	f.Get("/get", func(s *userdata.Session) string {
		username, _ := s.Userdata("username")
		notice, _ := s.Flashdata("notice")
		return fmt.Sprintf("%v %v", username, notice)
	})

	resp := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/set", nil)
	require.Nil(t, err)
	f.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	cookie := resp.Header().Get("Set-Cookie")
	require.NotEmpty(t, cookie)

	resp = httptest.NewRecorder()
	req, err = http.NewRequest(http.MethodGet, "/get", nil)
	require.Nil(t, err)
	req.Header.Set("Cookie", cookie)
	f.ServeHTTP(resp, req)
	assert.Equal(t, "flamego Saved", resp.Body.String())
}

func TestIniter(t *testing.T) {
	ctx := context.Background()

	_, err := Initer()(ctx)
	assert.EqualError(t, err, "config object with the type 'sqlite.Config' not found")

	_, err = Initer()(ctx, Config{})
	assert.EqualError(t, err, "empty DSN")
}
