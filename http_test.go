// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	m, err := NewManager(context.Background(), Options{})
	require.Nil(t, err)

	r := chi.NewRouter()
	r.Use(Handler(m))
	r.Get("/set/{name}", func(w http.ResponseWriter, r *http.Request) {
		s, ok := FromContext(r.Context())
		require.True(t, ok)
		s.SetUserdata("name", chi.URLParam(r, "name"))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/get", func(w http.ResponseWriter, r *http.Request) {
		s, ok := FromContext(r.Context())
		require.True(t, ok)
		val, _ := s.Userdata("name")
		_, _ = w.Write([]byte(val.(string)))
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/set/flamego", nil))
	assert.Equal(t, http.StatusNoContent, resp.Code)

	cookies := resp.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "userdata_session", cookies[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/get", nil)
	req.AddCookie(cookies[0])
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, "flamego", resp.Body.String())
}

func TestHandler_OpenError(t *testing.T) {
	var got error
	m, err := NewManager(context.Background(), Options{
		Driver:    "Cookie",
		ErrorFunc: func(err error) { got = err },
	})
	require.Nil(t, err)

	called := false
	h := Handler(m)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.False(t, called)
	assert.NotNil(t, got)
}

func TestFromContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
