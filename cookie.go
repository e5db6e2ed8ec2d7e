// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// maxCookieSize is the maximum size of a cookie value that browsers are
// guaranteed to keep.
const maxCookieSize = 4093

// CookieConfig contains options for the Cookie driver, which keeps data in a
// signed client-side cookie, optionally with the data itself kept in a store.
type CookieConfig struct {
	// For tests only
	nowFunc func() time.Time

	// Secret is the secret to sign (and encrypt) the cookie.
	Secret string
	// OldSecrets are previous secrets that are still accepted when reading
	// cookies, for secret rotation.
	OldSecrets []string
	// Encrypt indicates whether to encrypt the cookie in addition to signing it.
	Encrypt bool
	// Initer is the initialization function of the store to keep data on the
	// server side. The cookie then only carries the session metadata. Default is
	// to keep data in the cookie.
	Initer Initer
	// Config is the configuration object to be passed to the Initer.
	Config interface{}
	// Cookie is a set of options for the cookie. Default name is
	// "userdata_cookie".
	Cookie CookieOptions
	// Expiration is the duration of inactivity before the session expires.
	// Default is 7200 seconds.
	Expiration time.Duration
	// ExpireOnClose indicates whether the cookie expires when the browser is
	// closed.
	ExpireOnClose bool
	// MatchIP indicates whether to discard sessions that come from a different IP
	// address.
	MatchIP bool
	// MatchUserAgent indicates whether to discard sessions that come from a
	// different user agent.
	MatchUserAgent bool
	// TimeToUpdate is how often the session ID is rotated. Default is 300
	// seconds.
	TimeToUpdate time.Duration
}

var _ Driver = (*cookieDriver)(nil)

// cookieDriver is the driver that keeps data in a cookie.
type cookieDriver struct {
	cfg    CookieConfig
	codec  *cookieCodec
	store  Store // The optional store to keep data
	logger *log.Logger

	w http.ResponseWriter
	r *http.Request

	payload   cookiePayload // The metadata of the session
	data      Data          // The live data
	snap      snapshot      // The data of the last write
	destroyed bool          // Whether the session has been destroyed in this request
}

// newCookieFactory returns the DriverFactory of the Cookie driver.
func newCookieFactory(store Store, cfg CookieConfig, logger *log.Logger) DriverFactory {
	codec, codecErr := newCookieCodec(append([]string{cfg.Secret}, cfg.OldSecrets...), cfg.Encrypt)
	return func(w http.ResponseWriter, r *http.Request) (Driver, error) {
		if codecErr != nil {
			return nil, codecErr
		}
		return &cookieDriver{
			cfg:    cfg,
			codec:  codec,
			store:  store,
			logger: logger,
			w:      w,
			r:      r,
			data:   make(Data),
		}, nil
	}
}

// remoteIP returns the IP address of the client without the port.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// read returns the payload of the request cookie if it is present and valid.
func (d *cookieDriver) read(ctx context.Context) (cookiePayload, bool) {
	value := readCookie(d.r, d.cfg.Cookie.Name)
	if value == "" {
		return cookiePayload{}, false
	}

	p, err := d.codec.decode(value)
	if err != nil {
		d.logger.Debug("Discarded cookie", "reason", err)
		return cookiePayload{}, false
	}

	reason := ""
	switch {
	case time.Unix(p.LastActivity, 0).Add(d.cfg.Expiration).Before(d.cfg.nowFunc()):
		reason = "expired"
	case d.cfg.MatchIP && p.IPAddress != remoteIP(d.r):
		reason = "IP address mismatch"
	case d.cfg.MatchUserAgent && p.UserAgent != d.r.UserAgent():
		reason = "user agent mismatch"
	}
	if reason != "" {
		d.logger.Debug("Discarded cookie", "reason", reason, "id", p.ID)
		if d.store != nil {
			_ = d.store.Destroy(ctx, p.ID)
		}
		return cookiePayload{}, false
	}
	return p, true
}

func (d *cookieDriver) Initialize(ctx context.Context) error {
	p, ok := d.read(ctx)
	if !ok {
		return d.create(ctx)
	}

	data := p.Data
	if d.store != nil {
		if !d.store.Exist(ctx, p.ID) {
			return d.create(ctx)
		}

		var err error
		data, err = d.store.Read(ctx, p.ID)
		if err != nil {
			return errors.Wrap(err, "read")
		}
	}

	p.Data = nil
	d.payload = p
	d.data.replace(data)
	d.snap.commit(d.data)

	if time.Unix(p.LastActivity, 0).Add(d.cfg.TimeToUpdate).Before(d.cfg.nowFunc()) {
		return d.Regenerate(ctx, false)
	}
	return nil
}

// create starts a new session with empty data.
func (d *cookieDriver) create(ctx context.Context) error {
	d.payload = cookiePayload{
		ID:        uuid.NewString(),
		IPAddress: remoteIP(d.r),
		UserAgent: d.r.UserAgent(),
	}
	d.data.reset()
	d.snap.forget()
	return d.Save(ctx)
}

func (d *cookieDriver) ID() string {
	return d.payload.ID
}

func (d *cookieDriver) Userdata() Data {
	return d.data
}

func (d *cookieDriver) Save(ctx context.Context) error {
	if d.destroyed || !d.snap.changed(d.data) {
		return nil
	}

	p := d.payload
	p.LastActivity = d.cfg.nowFunc().Unix()
	if d.store != nil {
		err := d.store.Save(ctx, p.ID, d.data)
		if err != nil {
			return errors.Wrap(err, "save")
		}
	} else {
		p.Data = d.data
	}

	value, err := d.codec.encode(p)
	if err != nil {
		return err
	}
	if len(value) > maxCookieSize {
		return ErrCookieTooLarge
	}

	maxAge := int(d.cfg.Expiration.Seconds())
	if d.cfg.ExpireOnClose {
		maxAge = 0
	}
	setCookie(d.w, d.cfg.Cookie.cookie(value, maxAge))

	p.Data = nil
	d.payload = p
	d.snap.commit(d.data)
	return nil
}

func (d *cookieDriver) Destroy(ctx context.Context) error {
	if d.store != nil {
		err := d.store.Destroy(ctx, d.payload.ID)
		if err != nil {
			return errors.Wrap(err, "destroy")
		}
	}

	d.data.reset()
	d.snap.forget()
	d.destroyed = true
	setCookie(d.w, d.cfg.Cookie.cookie("", -1))
	return nil
}

func (d *cookieDriver) Regenerate(ctx context.Context, destroy bool) error {
	if d.store != nil {
		err := d.store.Destroy(ctx, d.payload.ID)
		if err != nil {
			return errors.Wrap(err, "destroy")
		}
	}

	d.payload.ID = uuid.NewString()
	if destroy {
		d.data.reset()
	}
	d.destroyed = false
	d.snap.forget()
	return d.Save(ctx)
}
