// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

type contextKey struct{}

// Handler returns a net/http middleware that opens the session of every request
// with given manager. The session is retrieved by FromContext.
func Handler(m *Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := m.Open(r.Context(), w, r)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					w.WriteHeader(http.StatusUnprocessableEntity)
					return
				}
				m.opts.ErrorFunc(errors.Wrap(err, "open"))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, sess)))
		})
	}
}

// FromContext returns the session injected by Handler.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(*Session)
	return sess, ok
}
