// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flamego/flamego"
)

func TestSessioner(t *testing.T) {
	f := flamego.NewWithLogger(&bytes.Buffer{})
	f.Use(Sessioner())
	f.Get("/", func(s *Session) string {
		s.SetFlashdata("notice", "Welcome")
		return s.ID()
	})
	f.Get("/flash", func(s *Session, m *Manager) string {
		val, _ := s.Flashdata("notice")
		return fmt.Sprintf("%v", val)
	})

	resp := httptest.NewRecorder()
	req, err := http.NewRequest("GET", "/", nil)
	require.Nil(t, err)

	f.ServeHTTP(resp, req)

	want := fmt.Sprintf("userdata_session=%s; Path=/; HttpOnly; SameSite=Lax", resp.Body.String())
	assert.Equal(t, want, resp.Header().Get("Set-Cookie"))
	cookie := resp.Header().Get("Set-Cookie")

	resp = httptest.NewRecorder()
	req, err = http.NewRequest("GET", "/flash", nil)
	require.Nil(t, err)

	req.Header.Set("Cookie", cookie)
	f.ServeHTTP(resp, req)
	assert.Equal(t, "Welcome", resp.Body.String())
	assert.Empty(t, resp.Header().Get("Set-Cookie"))
}

func TestSessioner_InvalidOptions(t *testing.T) {
	assert.Panics(t, func() {
		Sessioner(Options{
			Native: NativeConfig{
				Initer: FileIniter(),
			},
		})
	})
}
