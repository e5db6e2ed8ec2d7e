// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

// NativeConfig contains options for the Native driver, which keeps data in a
// server-side store and identifies the visitor by a session ID cookie.
type NativeConfig struct {
	// Initer is the initialization function of the store. Default is
	// MemoryIniter.
	Initer Initer
	// Config is the configuration object to be passed to the Initer.
	Config interface{}
	// Cookie is a set of options for the session ID cookie. Default name is
	// "userdata_session".
	Cookie CookieOptions
	// IDLength specifies the length of session IDs. Default is 16.
	IDLength int
}

var _ Driver = (*nativeDriver)(nil)

// nativeDriver is the driver that keeps data in a Store.
type nativeDriver struct {
	store    Store         // The store to keep data
	cookie   CookieOptions // The options of the session ID cookie
	idLength int           // The length of session IDs

	w http.ResponseWriter
	r *http.Request

	sid       string   // The session ID
	data      Data     // The live data
	snap      snapshot // The data of the last write
	destroyed bool     // Whether the session has been destroyed in this request
}

// newNativeFactory returns the DriverFactory of the Native driver.
func newNativeFactory(store Store, cfg NativeConfig) DriverFactory {
	return func(w http.ResponseWriter, r *http.Request) (Driver, error) {
		return &nativeDriver{
			store:    store,
			cookie:   cfg.Cookie,
			idLength: cfg.IDLength,
			w:        w,
			r:        r,
			data:     make(Data),
		}, nil
	}
}

func (d *nativeDriver) Initialize(ctx context.Context) error {
	sid := readCookie(d.r, d.cookie.Name)
	if !isValidSessionID(sid, d.idLength) || !d.store.Exist(ctx, sid) {
		return d.renew(ctx)
	}

	data, err := d.store.Read(ctx, sid)
	if err != nil {
		return errors.Wrap(err, "read")
	}

	d.sid = sid
	d.data.replace(data)
	d.snap.commit(d.data)

	err = d.store.Touch(ctx, sid)
	if err != nil {
		return errors.Wrap(err, "touch")
	}
	return nil
}

// renew assigns a new session ID, persists the current data under it and sends
// the ID to the client.
func (d *nativeDriver) renew(ctx context.Context) error {
	sid, err := randomChars(d.idLength)
	if err != nil {
		return errors.Wrap(err, "new ID")
	}

	d.sid = sid
	d.snap.forget()
	err = d.Save(ctx)
	if err != nil {
		return err
	}

	setCookie(d.w, d.cookie.cookie(d.sid, d.cookie.MaxAge))
	return nil
}

func (d *nativeDriver) ID() string {
	return d.sid
}

func (d *nativeDriver) Userdata() Data {
	return d.data
}

func (d *nativeDriver) Save(ctx context.Context) error {
	if d.destroyed || !d.snap.changed(d.data) {
		return nil
	}

	err := d.store.Save(ctx, d.sid, d.data)
	if err != nil {
		return errors.Wrap(err, "save")
	}
	d.snap.commit(d.data)
	return nil
}

func (d *nativeDriver) Destroy(ctx context.Context) error {
	err := d.store.Destroy(ctx, d.sid)
	if err != nil {
		return errors.Wrap(err, "destroy")
	}

	d.data.reset()
	d.snap.forget()
	d.destroyed = true
	setCookie(d.w, d.cookie.cookie("", -1))
	return nil
}

func (d *nativeDriver) Regenerate(ctx context.Context, destroy bool) error {
	err := d.store.Destroy(ctx, d.sid)
	if err != nil {
		return errors.Wrap(err, "destroy")
	}

	if destroy {
		d.data.reset()
	}
	d.destroyed = false
	return d.renew(ctx)
}
