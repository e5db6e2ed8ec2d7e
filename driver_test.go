// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverHandle(t *testing.T) {
	c := newTestClient(t, Options{
		Cookie: CookieConfig{
			Secret: "s3cr3t",
		},
	})

	c.do(func(s *Session) {
		h, err := s.Driver("Cookie")
		require.Nil(t, err)
		assert.Equal(t, "Cookie", h.Name())

		// Loading through a handle does not switch the current driver.
		assert.Equal(t, "Native", s.Current())

		h.SetUserdata("name", "cookie")
		assert.Equal(t, "Cookie", s.Current())

		// The selection outlives the call made through the handle.
		val, ok := s.Userdata("name")
		assert.True(t, ok)
		assert.Equal(t, "cookie", val)

		native, err := s.Driver("Native")
		require.Nil(t, err)
		assert.False(t, native.HasUserdata("name"))
		assert.Equal(t, "Native", s.Current())

		val, ok = h.Userdata("name")
		assert.True(t, ok)
		assert.Equal(t, "cookie", val)
		assert.Equal(t, s.ID(), h.ID())

		h.SetFlashdata("notice", "Saved")
		h.SetTempdata("code", 42, time.Minute)
		v, ok := h.Tempdata("code")
		assert.True(t, ok)
		assert.Equal(t, 42, v)
	})

	c.do(func(s *Session) {
		h, err := s.Driver("cookie")
		require.Nil(t, err)

		val, ok := h.Flashdata("notice")
		assert.True(t, ok)
		assert.Equal(t, "Saved", val)

		all, ok := h.AllUserdata()
		assert.True(t, ok)
		assert.Equal(t, "cookie", all["name"])
	})
}

func TestSession_Driver_Invalid(t *testing.T) {
	c := newTestClient(t, Options{})

	c.do(func(s *Session) {
		_, err := s.Driver("userdata")
		assert.Equal(t, ErrInvalidDriverName, err)

		_, err = s.Driver("Unknown")
		assert.NotNil(t, err)
		assert.Equal(t, "Native", s.Current())
	})
}
