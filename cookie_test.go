// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieCodec(t *testing.T) {
	for _, encrypt := range []bool{false, true} {
		codec, err := newCookieCodec([]string{"s3cr3t"}, encrypt)
		require.Nil(t, err)

		want := cookiePayload{
			ID:           "id",
			IPAddress:    "192.0.2.1",
			UserAgent:    "test",
			LastActivity: 1700000000,
			Data:         Data{"name": "flamego-secret"},
		}
		value, err := codec.encode(want)
		require.Nil(t, err)

		body, _, ok := strings.Cut(value, ".")
		require.True(t, ok)
		raw, err := base64.RawURLEncoding.DecodeString(body)
		require.Nil(t, err)
		assert.Equal(t, !encrypt, strings.Contains(string(raw), "flamego-secret"))

		got, err := codec.decode(value)
		require.Nil(t, err)
		assert.Equal(t, want, got)

		_, err = codec.decode(value[:len(value)-1])
		assert.Equal(t, ErrInvalidCookie, err)
		_, err = codec.decode("no-signature")
		assert.Equal(t, ErrInvalidCookie, err)

		other, err := newCookieCodec([]string{"other"}, encrypt)
		require.Nil(t, err)
		_, err = other.decode(value)
		assert.Equal(t, ErrInvalidCookie, err)
	}

	_, err := newCookieCodec([]string{"", ""}, false)
	assert.Equal(t, ErrEmptySecret, err)
}

func TestCookieDriver(t *testing.T) {
	c := newTestClient(t, Options{
		Driver: "Cookie",
		Cookie: CookieConfig{
			Secret: "s3cr3t",
		},
	})

	var id string
	resp := c.do(func(s *Session) {
		id = s.ID()
		_, err := uuid.Parse(id)
		assert.Nil(t, err)

		s.SetUserdata("name", "flamego")
		s.SetFlashdata("notice", "Saved")
	})
	assert.Len(t, resp.Header().Values("Set-Cookie"), 1)
	assert.Contains(t, resp.Header().Get("Set-Cookie"), "userdata_cookie=")
	assert.Contains(t, resp.Header().Get("Set-Cookie"), "Max-Age=7200")

	c.do(func(s *Session) {
		assert.Equal(t, id, s.ID())

		val, ok := s.Userdata("name")
		assert.True(t, ok)
		assert.Equal(t, "flamego", val)

		val, ok = s.Flashdata("notice")
		assert.True(t, ok)
		assert.Equal(t, "Saved", val)
	})

	// Tampering with the cookie starts a new session.
	cookie := c.cookies["userdata_cookie"]
	cookie.Value = strings.Replace(cookie.Value, ".", ".x", 1)
	c.do(func(s *Session) {
		assert.NotEqual(t, id, s.ID())
		assert.False(t, s.HasUserdata("name"))
	})
}

func TestCookieDriver_EmptySecret(t *testing.T) {
	m, err := NewManager(context.Background(), Options{Driver: "Cookie"})
	require.Nil(t, err)

	req, err := http.NewRequest(http.MethodGet, "/", nil)
	require.Nil(t, err)
	_, err = m.Open(req.Context(), nil, req)
	assert.True(t, errors.Is(err, ErrEmptySecret))
}

func TestCookieDriver_TooLarge(t *testing.T) {
	var got []error
	c := newTestClient(t, Options{
		Driver: "Cookie",
		Cookie: CookieConfig{
			Secret: "s3cr3t",
		},
		ErrorFunc: func(err error) { got = append(got, err) },
	})

	c.do(func(s *Session) {
		s.SetUserdata("blob", strings.Repeat("x", 5000))
	})
	require.Len(t, got, 1)
	assert.True(t, errors.Is(got[0], ErrCookieTooLarge))

	c.do(func(s *Session) {
		assert.False(t, s.HasUserdata("blob"))
	})
}

func TestCookieDriver_Match(t *testing.T) {
	c := newTestClient(t, Options{
		Driver: "Cookie",
		Cookie: CookieConfig{
			Secret:         "s3cr3t",
			MatchIP:        true,
			MatchUserAgent: true,
		},
	})

	var id string
	c.do(
		func(s *Session) {
			id = s.ID()
			s.SetUserdata("name", "flamego")
		},
		func(r *http.Request) { r.Header.Set("User-Agent", "flamego-test") },
	)

	c.do(
		func(s *Session) { assert.Equal(t, id, s.ID()) },
		func(r *http.Request) { r.Header.Set("User-Agent", "flamego-test") },
	)

	c.do(
		func(s *Session) {
			assert.NotEqual(t, id, s.ID())
			assert.False(t, s.HasUserdata("name"))
			id = s.ID()
		},
		func(r *http.Request) { r.Header.Set("User-Agent", "other-agent") },
	)

	c.do(
		func(s *Session) { assert.NotEqual(t, id, s.ID()) },
		func(r *http.Request) {
			r.Header.Set("User-Agent", "other-agent")
			r.RemoteAddr = "198.51.100.7:4321"
		},
	)
}

func TestCookieDriver_Expiration(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := newTestClient(t, Options{
		nowFunc: func() time.Time { return now },
		Driver:  "Cookie",
		Cookie: CookieConfig{
			Secret:       "s3cr3t",
			Expiration:   time.Hour,
			TimeToUpdate: 10 * time.Minute,
		},
	})

	var id string
	c.do(func(s *Session) {
		id = s.ID()
		s.SetUserdata("name", "flamego")
	})

	// The ID is rotated with data kept once the time to update has passed.
	now = now.Add(11 * time.Minute)
	c.do(func(s *Session) {
		assert.NotEqual(t, id, s.ID())
		id = s.ID()

		val, _ := s.Userdata("name")
		assert.Equal(t, "flamego", val)
	})

	now = now.Add(time.Hour + time.Second)
	c.do(func(s *Session) {
		assert.NotEqual(t, id, s.ID())
		assert.False(t, s.HasUserdata("name"))
	})
}

func TestCookieDriver_ExpireOnClose(t *testing.T) {
	c := newTestClient(t, Options{
		Driver: "Cookie",
		Cookie: CookieConfig{
			Secret:        "s3cr3t",
			ExpireOnClose: true,
		},
	})

	resp := c.do(nil)
	assert.NotContains(t, resp.Header().Get("Set-Cookie"), "Max-Age")
}

func TestCookieDriver_Store(t *testing.T) {
	c := newTestClient(t, Options{
		Driver: "Cookie",
		Cookie: CookieConfig{
			Secret:  "s3cr3t",
			Encrypt: true,
			Initer:  MemoryIniter(),
		},
	})
	store := c.m.stores[1]

	var id string
	c.do(func(s *Session) {
		id = s.ID()
		s.SetUserdata("name", strings.Repeat("flamego", 1000))
	})
	assert.True(t, store.Exist(context.Background(), id))

	c.do(func(s *Session) {
		assert.Equal(t, id, s.ID())
		val, _ := s.Userdata("name")
		assert.Equal(t, strings.Repeat("flamego", 1000), val)

		require.Nil(t, s.Destroy())
	})
	assert.False(t, store.Exist(context.Background(), id))
	assert.NotContains(t, c.cookies, "userdata_cookie")
}

func TestCookieDriver_OldSecrets(t *testing.T) {
	c := newTestClient(t, Options{
		Driver: "Cookie",
		Cookie: CookieConfig{
			Secret: "old",
		},
	})

	var id string
	c.do(func(s *Session) {
		id = s.ID()
		s.SetUserdata("name", "flamego")
	})

	rotated := newTestClient(t, Options{
		Driver: "Cookie",
		Cookie: CookieConfig{
			Secret:     "new",
			OldSecrets: []string{"old"},
		},
	})
	rotated.cookies = c.cookies
	rotated.do(func(s *Session) {
		assert.Equal(t, id, s.ID())
		val, _ := s.Userdata("name")
		assert.Equal(t, "flamego", val)
	})

	fresh := newTestClient(t, Options{
		Driver: "Cookie",
		Cookie: CookieConfig{
			Secret: "new",
		},
	})
	fresh.cookies = c.cookies
	fresh.do(func(s *Session) {
		assert.NotEqual(t, id, s.ID())
	})
}
