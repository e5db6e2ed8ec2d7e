// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// reservedDriverName collides with the userdata accessor and can never be used
// as a driver name.
const reservedDriverName = "userdata"

// Session is the driver-agnostic access point to the data of the visitor for
// the current request. All operations act on the data of the current driver.
//
// A Session is created per request by Manager.Open and must not be shared
// between goroutines.
type Session struct {
	ctx       context.Context  // The context of the request
	w         http.ResponseWriter
	r         *http.Request
	nowFunc   func() time.Time // The function to return the current time
	logger    *log.Logger
	errorFunc func(err error) // The function to report errors that cannot be returned
	metrics   *metrics

	factories map[string]DriverFactory // Registered drivers keyed by lower-cased name
	valid     []string                 // Names of drivers that are allowed to be loaded
	loaded    map[string]Driver        // Loaded drivers keyed by lower-cased name

	// current is the driver all operations act on. It changes whenever a driver
	// is loaded or selected, including through a DriverHandle.
	current     Driver
	currentName string
}

// Current returns the name of the current driver.
func (s *Session) Current() string {
	return s.currentName
}

// ID returns the identifier of the current driver's storage.
func (s *Session) ID() string {
	if s.current == nil {
		return ""
	}
	return s.current.ID()
}

// isValid returns true if given name is in the list of valid drivers.
func (s *Session) isValid(name string) bool {
	return containsFold(s.valid, name)
}

// LoadDriver loads the driver with given name and makes it the current driver.
// Once initialized, flashdata of the previous request is deleted, flashdata set
// in the previous request is marked as readable and expired tempdata is deleted.
// A driver that has been loaded before is returned as-is without being
// initialized again.
func (s *Session) LoadDriver(name string) (Driver, error) {
	if strings.EqualFold(name, reservedDriverName) {
		s.metrics.loadFailures.WithLabelValues(name).Inc()
		return nil, ErrInvalidDriverName
	}
	if !s.isValid(name) {
		s.metrics.loadFailures.WithLabelValues(name).Inc()
		return nil, errors.Wrapf(ErrDriverNotAllowed, "load %q", name)
	}

	key := strings.ToLower(name)
	if d, ok := s.loaded[key]; ok {
		s.current, s.currentName = d, name
		return d, nil
	}

	factory, ok := s.factories[key]
	if !ok {
		s.metrics.loadFailures.WithLabelValues(name).Inc()
		return nil, errors.Wrapf(ErrDriverNotFound, "load %q", name)
	}

	d, err := factory(s.w, s.r)
	if err != nil {
		s.metrics.loadFailures.WithLabelValues(name).Inc()
		return nil, errors.Wrapf(err, "new %q", name)
	}

	err = d.Initialize(s.ctx)
	if err != nil {
		s.metrics.loadFailures.WithLabelValues(name).Inc()
		return nil, errors.Wrapf(err, "initialize %q", name)
	}

	s.loaded[key] = d
	s.current, s.currentName = d, name

	// The order matters: flashdata marked in this request must survive the sweep.
	s.sweepFlashdata()
	s.markFlashdata()
	s.sweepTempdata()

	s.logger.Debug("Driver loaded", "driver", name, "id", d.ID())
	return d, nil
}

// SelectDriver makes the driver with given name the current driver, loading it
// if necessary. Names that are not in the list of valid drivers are ignored and
// the current driver stays unchanged.
func (s *Session) SelectDriver(name string) error {
	if !s.isValid(name) {
		return nil
	}

	if d, ok := s.loaded[strings.ToLower(name)]; ok {
		s.current, s.currentName = d, name
		return nil
	}

	_, err := s.LoadDriver(name)
	return err
}

// Driver returns a handle to operate through the driver with given name. The
// driver is loaded if necessary, but the current driver is only switched once a
// method of the handle is called.
func (s *Session) Driver(name string) (*DriverHandle, error) {
	key := strings.ToLower(name)
	if _, ok := s.loaded[key]; !ok {
		current, currentName := s.current, s.currentName
		_, err := s.LoadDriver(name)
		if err != nil {
			return nil, err
		}
		s.current, s.currentName = current, currentName
	}
	return &DriverHandle{
		session: s,
		name:    name,
	}, nil
}

// Destroy clears all storage of the current driver.
func (s *Session) Destroy() error {
	if s.current == nil {
		return ErrNoDriver
	}
	return s.current.Destroy(s.ctx)
}

// Regenerate rotates the storage identifier of the current driver. Existing data
// is discarded when destroy is true.
func (s *Session) Regenerate(destroy bool) error {
	if s.current == nil {
		return ErrNoDriver
	}
	return s.current.Regenerate(s.ctx, destroy)
}

// userdata returns the live data of the current driver.
func (s *Session) userdata() Data {
	if s.current == nil {
		return nil
	}
	return s.current.Userdata()
}

// save tells the current driver that data has changed.
func (s *Session) save() {
	if s.current == nil {
		return
	}

	err := s.current.Save(s.ctx)
	if err != nil {
		s.errorFunc(errors.Wrapf(err, "save %q", s.currentName))
	}
}

// Userdata returns the value of given key. It returns false if no such key
// exists.
func (s *Session) Userdata(key string) (interface{}, bool) {
	val, ok := s.userdata()[key]
	return val, ok
}

// AllUserdata returns the entire data of the current driver. It returns false if
// there is no data to return.
func (s *Session) AllUserdata() (Data, bool) {
	data := s.userdata()
	if data == nil {
		return nil, false
	}
	return data, true
}

// HasUserdata returns true if given key exists.
func (s *Session) HasUserdata(key string) bool {
	_, ok := s.userdata()[key]
	return ok
}

// SetUserdata sets the value of given key.
func (s *Session) SetUserdata(key string, val interface{}) {
	s.SetUserdataBatch(Data{key: val})
}

// SetUserdataBatch sets all key-value pairs of given data. It does nothing if
// the data is empty.
func (s *Session) SetUserdataBatch(data Data) {
	userdata := s.userdata()
	if len(data) == 0 || userdata == nil {
		return
	}

	for k, v := range data {
		userdata[k] = v
	}
	s.save()
}

// UnsetUserdata deletes given keys. It does nothing if no key is given.
func (s *Session) UnsetUserdata(keys ...string) {
	userdata := s.userdata()
	if len(keys) == 0 || userdata == nil {
		return
	}

	for _, k := range keys {
		delete(userdata, k)
	}
	s.save()
}
