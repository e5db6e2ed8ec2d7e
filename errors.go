// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidDriverName is returned when loading a driver with the reserved
	// name "userdata", which would shadow the userdata accessor.
	ErrInvalidDriverName = errors.New("invalid driver name: \"userdata\" is reserved")
	// ErrDriverNotAllowed is returned when loading a driver that is not in the
	// list of valid drivers.
	ErrDriverNotAllowed = errors.New("driver is not in the list of valid drivers")
	// ErrDriverNotFound is returned when loading a valid driver that has no
	// registered factory.
	ErrDriverNotFound = errors.New("driver not found")
	// ErrNoDriver is returned by operations that need a current driver before
	// any driver has been loaded.
	ErrNoDriver = errors.New("no driver loaded")
	// ErrEmptySecret is returned when the cookie driver is loaded without a
	// secret.
	ErrEmptySecret = errors.New("empty cookie secret")
	// ErrCookieTooLarge is returned when the encoded cookie exceeds the size a
	// browser is guaranteed to keep.
	ErrCookieTooLarge = errors.New("cookie data exceeds 4KB")
	// ErrInvalidCookie is returned when a cookie fails signature or decryption
	// checks.
	ErrInvalidCookie = errors.New("invalid cookie")
)

const minimumSIDLength = 3

var ErrMinimumSIDLength = errors.Errorf("the SID does not have the minimum required length %d", minimumSIDLength)
