// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flamego/flamego"
)

// CookieOptions contains options for setting HTTP cookies.
type CookieOptions struct {
	// Name is the name of the cookie. Default depends on the driver.
	Name string
	// Path is the Path attribute of the cookie. Default is "/".
	Path string
	// Domain is the Domain attribute of the cookie. Default is not set.
	Domain string
	// MaxAge is the MaxAge attribute of the cookie. Default is not set.
	MaxAge int
	// Secure specifies whether to set Secure for the cookie.
	Secure bool
	// HTTPOnly specifies whether to set HTTPOnly for the cookie.
	HTTPOnly bool
	// SameSite is the SameSite attribute of the cookie. Default is
	// http.SameSiteLaxMode.
	SameSite http.SameSite
}

// withDefaults returns a copy of the options with default values applied.
func (opts CookieOptions) withDefaults(name string) CookieOptions {
	if reflect.DeepEqual(opts, CookieOptions{}) {
		opts = CookieOptions{
			HTTPOnly: true,
		}
	}
	if opts.Name == "" {
		opts.Name = name
	}
	if opts.SameSite < http.SameSiteDefaultMode || opts.SameSite > http.SameSiteNoneMode {
		opts.SameSite = http.SameSiteLaxMode
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	return opts
}

// cookie returns a cookie with given value and MaxAge attribute.
func (opts CookieOptions) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     opts.Name,
		Value:    value,
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   maxAge,
		Secure:   opts.Secure,
		HttpOnly: opts.HTTPOnly,
		SameSite: opts.SameSite,
	}
}

// readCookie returns the value of the named cookie of the request, or an empty
// string if no such cookie exists.
func readCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// setCookie adds the Set-Cookie header for given cookie to the response,
// replacing any header previously set for a cookie of the same name in this
// response.
func setCookie(w http.ResponseWriter, cookie *http.Cookie) {
	header := w.Header()
	prefix := cookie.Name + "="

	var kept []string
	for _, v := range header.Values("Set-Cookie") {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	header.Del("Set-Cookie")
	for _, v := range kept {
		header.Add("Set-Cookie", v)
	}
	http.SetCookie(w, cookie)
}

// Options contains options for the Manager and the userdata.Sessioner
// middleware.
type Options struct {
	// For tests only
	nowFunc func() time.Time

	// Driver is the name of the driver loaded for every request. Default is
	// "Native".
	Driver string
	// ValidDrivers are names of additional drivers that are allowed to be loaded.
	// "Native", "Cookie" and the Driver are always allowed.
	ValidDrivers []string
	// Drivers are custom drivers keyed by name. A custom driver also needs to be
	// listed in ValidDrivers (or be the Driver) to be loaded.
	Drivers map[string]DriverFactory
	// Native is the configuration of the Native driver.
	Native NativeConfig
	// Cookie is the configuration of the Cookie driver.
	Cookie CookieConfig
	// GCInterval is the time interval for GC operations. Default is 5 minutes.
	GCInterval time.Duration
	// Logger is the logger for debug messages and errors. Default is to discard
	// all messages.
	Logger *log.Logger
	// ErrorFunc is the function used to report errors that cannot be returned,
	// e.g. failures of saving data or GC operations. Default is to log the errors
	// at error level.
	ErrorFunc func(err error)
	// Registerer is used to register metrics when set.
	Registerer prometheus.Registerer
}

// Sessioner returns a middleware handler that injects *userdata.Session into
// the request context, which is used for manipulating user data.
//
// Data is written as soon as it is changed, so handlers must change data
// before writing the response body for cookies to be delivered.
func Sessioner(opts ...Options) flamego.Handler {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}

	ctx := context.Background()
	mgr, err := NewManager(ctx, opt)
	if err != nil {
		panic("userdata: " + err.Error())
	}
	mgr.StartGC(ctx)

	return flamego.ContextInvoker(func(c flamego.Context) {
		sess, err := mgr.Open(c.Request().Context(), c.ResponseWriter(), c.Request().Request)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				c.ResponseWriter().WriteHeader(http.StatusUnprocessableEntity)
				return
			}
			panic("userdata: open: " + err.Error())
		}

		c.Map(mgr, sess)
		c.Next()
	})
}
