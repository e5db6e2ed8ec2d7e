// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"context"
)

// Store is a backing store of session data with capabilities of checking,
// reading, saving, destroying and GC session records. Drivers use a Store to
// keep data on the server side.
type Store interface {
	// Exist returns true if the record with given session ID exists.
	Exist(ctx context.Context, sid string) bool
	// Read returns the data of the record with given session ID. It returns an
	// empty Data if the record does not exist or is expired.
	Read(ctx context.Context, sid string) (Data, error)
	// Destroy deletes the record with given session ID from the store completely.
	Destroy(ctx context.Context, sid string) error
	// Touch updates the expiry time of the record with given session ID. It does
	// nothing if there is no record associated with the ID.
	Touch(ctx context.Context, sid string) error
	// Save persists data of given session ID to the store.
	Save(ctx context.Context, sid string, data Data) error
	// GC performs a GC operation on the store.
	GC(ctx context.Context) error
}

// Initer takes arbitrary number of arguments needed for initialization and
// returns an initialized store.
type Initer func(ctx context.Context, args ...interface{}) (Store, error)
