// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"strings"
	"time"
)

const (
	flashdataKey = "flash"
	flashdataNew = ":new:"
	flashdataOld = ":old:"
	// NOTE: Tempdata keys live under the "flash" prefix as well, only the marker
	// tells the two kinds apart.
	flashdataExp = ":exp:"

	// expirationsKey is the key of the side mapping from tempdata keys to their
	// expiry in unix seconds.
	expirationsKey = "__expirations"

	// DefaultTempdataTTL is the lifetime of tempdata when no valid TTL is given.
	DefaultTempdataTTL = 300 * time.Second
)

func newFlashdataKey(key string) string { return flashdataKey + flashdataNew + key }
func oldFlashdataKey(key string) string { return flashdataKey + flashdataOld + key }
func tempdataKey(key string) string     { return flashdataKey + flashdataExp + key }

// SetFlashdata sets the value of given key to be available in the next request
// only.
func (s *Session) SetFlashdata(key string, val interface{}) {
	s.SetFlashdataBatch(Data{key: val})
}

// SetFlashdataBatch sets all key-value pairs of given data as flashdata.
func (s *Session) SetFlashdataBatch(data Data) {
	if len(data) == 0 {
		return
	}

	batch := make(Data, len(data))
	for k, v := range data {
		batch[newFlashdataKey(k)] = v
	}
	s.SetUserdataBatch(batch)
}

// Flashdata returns the value of given key that was set as flashdata in the
// previous request.
func (s *Session) Flashdata(key string) (interface{}, bool) {
	return s.Userdata(oldFlashdataKey(key))
}

// KeepFlashdata makes flashdata of given keys available for one more request.
// Keys without flashdata from the previous request are ignored.
func (s *Session) KeepFlashdata(keys ...string) {
	batch := make(Data, len(keys))
	for _, k := range keys {
		val, ok := s.Userdata(oldFlashdataKey(k))
		if ok {
			batch[newFlashdataKey(k)] = val
		}
	}
	s.SetUserdataBatch(batch)
}

// expirations returns a copy of the tempdata expirations mapping.
func (s *Session) expirations() map[string]int64 {
	expirations := make(map[string]int64)
	val, ok := s.Userdata(expirationsKey)
	if !ok {
		return expirations
	}

	switch v := val.(type) {
	case map[string]int64:
		for k, exp := range v {
			expirations[k] = exp
		}
	case map[string]interface{}:
		// Encoders without type information (e.g. JSON) hand back generic maps.
		for k, exp := range v {
			switch n := exp.(type) {
			case int64:
				expirations[k] = n
			case int:
				expirations[k] = int64(n)
			case float64:
				expirations[k] = int64(n)
			}
		}
	}
	return expirations
}

// SetTempdata sets the value of given key to be available until the TTL has
// passed. A TTL less than a second means DefaultTempdataTTL.
func (s *Session) SetTempdata(key string, val interface{}, ttl time.Duration) {
	s.SetTempdataBatch(Data{key: val}, ttl)
}

// SetTempdataBatch sets all key-value pairs of given data as tempdata with the
// same TTL.
func (s *Session) SetTempdataBatch(data Data, ttl time.Duration) {
	if len(data) == 0 {
		return
	}

	if ttl.Seconds() < 1 {
		ttl = DefaultTempdataTTL
	}
	expire := s.nowFunc().Add(ttl).Unix()

	expirations := s.expirations()
	batch := make(Data, len(data)+1)
	for k, v := range data {
		key := tempdataKey(k)
		expirations[key] = expire
		batch[key] = v
	}
	batch[expirationsKey] = expirations
	s.SetUserdataBatch(batch)
}

// Tempdata returns the value of given key that was set as tempdata.
func (s *Session) Tempdata(key string) (interface{}, bool) {
	return s.Userdata(tempdataKey(key))
}

// UnsetTempdata deletes tempdata of given keys.
func (s *Session) UnsetTempdata(keys ...string) {
	expirations := s.expirations()
	userdata := s.userdata()
	if len(expirations) == 0 || len(keys) == 0 || userdata == nil {
		return
	}

	for _, k := range keys {
		key := tempdataKey(k)
		delete(expirations, key)
		delete(userdata, key)
	}
	userdata[expirationsKey] = expirations
	s.save()
}

// sweepFlashdata deletes flashdata that was already readable in the previous
// request.
func (s *Session) sweepFlashdata() {
	var old []string
	for k := range s.userdata() {
		if strings.HasPrefix(k, flashdataKey+flashdataOld) {
			old = append(old, k)
		}
	}
	s.UnsetUserdata(old...)
}

// markFlashdata renames flashdata set in the previous request so it is readable
// in this request and deleted by the sweep of the next one.
func (s *Session) markFlashdata() {
	userdata := s.userdata()
	marked := make(Data)
	var stale []string
	for k, v := range userdata {
		key, ok := strings.CutPrefix(k, flashdataKey+flashdataNew)
		if ok {
			marked[oldFlashdataKey(key)] = v
			stale = append(stale, k)
		}
	}
	if len(marked) == 0 {
		return
	}

	for _, k := range stale {
		delete(userdata, k)
	}
	s.SetUserdataBatch(marked)
}

// sweepTempdata deletes tempdata whose expiry has passed.
func (s *Session) sweepTempdata() {
	expirations := s.expirations()
	userdata := s.userdata()
	if len(expirations) == 0 || userdata == nil {
		return
	}

	now := s.nowFunc().Unix()
	expired := 0
	for k, exp := range expirations {
		if exp < now {
			delete(expirations, k)
			delete(userdata, k)
			expired++
		}
	}

	userdata[expirationsKey] = expirations
	s.save()
	s.metrics.tempdataExpired.Add(float64(expired))
}
