// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"context"
	"net/http"
	"time"
)

// Driver is a storage backend of a Session. A driver owns the actual key/value
// data of the visitor and decides how it is persisted across requests.
type Driver interface {
	// Initialize is called once right after the driver is loaded by a Session,
	// e.g. to read the session ID from the request and load existing data.
	Initialize(ctx context.Context) error
	// ID returns the identifier of the visitor's storage.
	ID() string
	// Userdata returns the live data of the driver. Mutations to the returned map
	// are visible to the driver without copying back.
	Userdata() Data
	// Save persists the current data. It is safe to call any number of times.
	Save(ctx context.Context) error
	// Destroy clears all storage of the visitor.
	Destroy(ctx context.Context) error
	// Regenerate rotates the storage identifier of the visitor. Existing data is
	// discarded when destroy is true, otherwise it is migrated to the new
	// identifier.
	Regenerate(ctx context.Context, destroy bool) error
}

// DriverFactory returns a new driver bound to given request.
type DriverFactory func(w http.ResponseWriter, r *http.Request) (Driver, error)

// DriverHandle gives access to session operations through a specific driver.
//
// Every call made through a handle first selects the handle's driver as the
// current driver of the session. The selection outlives the call: subsequent
// calls made directly on the session, or through handles of other drivers that
// do not select themselves, keep operating on the last selected driver.
type DriverHandle struct {
	session *Session
	name    string
}

// dispatch selects the driver of the handle and returns the session to call.
func (h *DriverHandle) dispatch() *Session {
	if err := h.session.SelectDriver(h.name); err != nil {
		h.session.errorFunc(err)
	}
	return h.session
}

// Name returns the name of the driver.
func (h *DriverHandle) Name() string {
	return h.name
}

func (h *DriverHandle) ID() string {
	return h.dispatch().ID()
}

func (h *DriverHandle) Userdata(key string) (interface{}, bool) {
	return h.dispatch().Userdata(key)
}

func (h *DriverHandle) AllUserdata() (Data, bool) {
	return h.dispatch().AllUserdata()
}

func (h *DriverHandle) HasUserdata(key string) bool {
	return h.dispatch().HasUserdata(key)
}

func (h *DriverHandle) SetUserdata(key string, val interface{}) {
	h.dispatch().SetUserdata(key, val)
}

func (h *DriverHandle) SetUserdataBatch(data Data) {
	h.dispatch().SetUserdataBatch(data)
}

func (h *DriverHandle) UnsetUserdata(keys ...string) {
	h.dispatch().UnsetUserdata(keys...)
}

func (h *DriverHandle) Flashdata(key string) (interface{}, bool) {
	return h.dispatch().Flashdata(key)
}

func (h *DriverHandle) SetFlashdata(key string, val interface{}) {
	h.dispatch().SetFlashdata(key, val)
}

func (h *DriverHandle) KeepFlashdata(keys ...string) {
	h.dispatch().KeepFlashdata(keys...)
}

func (h *DriverHandle) Tempdata(key string) (interface{}, bool) {
	return h.dispatch().Tempdata(key)
}

func (h *DriverHandle) SetTempdata(key string, val interface{}, ttl time.Duration) {
	h.dispatch().SetTempdata(key, val, ttl)
}

func (h *DriverHandle) UnsetTempdata(keys ...string) {
	h.dispatch().UnsetTempdata(keys...)
}

func (h *DriverHandle) Destroy() error {
	return h.dispatch().Destroy()
}

func (h *DriverHandle) Regenerate(destroy bool) error {
	return h.dispatch().Regenerate(destroy)
}
