// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package storetest checks the behavior every userdata.Store implementation
// must have.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flamego/userdata"
)

// Lifetime is the record lifetime RunExpiry expects the store to be configured
// with.
const Lifetime = 2 * time.Second

// Clock is a manually advanced clock to be used as the time source of a store.
type Clock struct {
	now time.Time
}

// NewClock returns a clock at the current time truncated to the second, so
// stores with second precision see every step.
func NewClock() *Clock {
	return &Clock{now: time.Now().Truncate(time.Second)}
}

// Now returns the time of the clock.
func (c *Clock) Now() time.Time {
	return c.now
}

// Add moves the clock by given duration.
func (c *Clock) Add(d time.Duration) {
	c.now = c.now.Add(d)
}

// Run checks reading, writing and removing records of the store.
func Run(t *testing.T, store userdata.Store) {
	t.Helper()
	ctx := context.Background()
	const sid = "storetest0001"

	assert.False(t, store.Exist(ctx, sid))
	data, err := store.Read(ctx, sid)
	require.Nil(t, err)
	assert.NotNil(t, data)
	assert.Empty(t, data)

	err = store.Save(ctx, sid, userdata.Data{"name": "flamego"})
	require.Nil(t, err)
	assert.True(t, store.Exist(ctx, sid))

	data, err = store.Read(ctx, sid)
	require.Nil(t, err)
	assert.Equal(t, userdata.Data{"name": "flamego"}, data)

	// Saving again replaces the data as a whole.
	err = store.Save(ctx, sid, userdata.Data{"visits": 3})
	require.Nil(t, err)
	data, err = store.Read(ctx, sid)
	require.Nil(t, err)
	assert.Equal(t, userdata.Data{"visits": 3}, data)

	require.Nil(t, store.Touch(ctx, sid))

	require.Nil(t, store.Destroy(ctx, sid))
	assert.False(t, store.Exist(ctx, sid))
	data, err = store.Read(ctx, sid)
	require.Nil(t, err)
	assert.Empty(t, data)

	// Operations on missing records are not errors.
	assert.Nil(t, store.Touch(ctx, sid))
	assert.Nil(t, store.Destroy(ctx, sid))
}

// RunExpiry checks records expire after Lifetime without access, and that GC
// removes them. The store must take its time from the clock.
func RunExpiry(t *testing.T, store userdata.Store, clock *Clock) {
	t.Helper()
	ctx := context.Background()

	err := store.Save(ctx, "storetest0001", userdata.Data{})
	require.Nil(t, err)

	clock.Add(-Lifetime - time.Second)
	err = store.Save(ctx, "storetest0002", userdata.Data{"name": "flamego"})
	require.Nil(t, err)
	err = store.Save(ctx, "storetest0003", userdata.Data{})
	require.Nil(t, err)
	clock.Add(Lifetime + time.Second)

	assert.False(t, store.Exist(ctx, "storetest0002"))
	data, err := store.Read(ctx, "storetest0002")
	require.Nil(t, err)
	assert.Empty(t, data)

	err = store.GC(ctx)
	require.Nil(t, err)
	assert.True(t, store.Exist(ctx, "storetest0001"))
	assert.False(t, store.Exist(ctx, "storetest0003"))

	// Touching keeps a record alive for another lifetime.
	clock.Add(Lifetime / 2)
	require.Nil(t, store.Touch(ctx, "storetest0001"))
	clock.Add(Lifetime / 2)
	assert.True(t, store.Exist(ctx, "storetest0001"))

	clock.Add(Lifetime)
	assert.False(t, store.Exist(ctx, "storetest0001"))
	require.Nil(t, store.GC(ctx))
}
