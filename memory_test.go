// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := newMemoryStore(
		MemoryConfig{
			nowFunc:  func() time.Time { return now },
			Lifetime: time.Second,
		},
	)

	assert.False(t, store.Exist(ctx, "1"))
	data, err := store.Read(ctx, "1")
	require.Nil(t, err)
	assert.Equal(t, Data{}, data)

	err = store.Save(ctx, "1", Data{"name": "flamego"})
	require.Nil(t, err)
	assert.True(t, store.Exist(ctx, "1"))

	// Changes to the returned data do not reach the store without saving.
	data, err = store.Read(ctx, "1")
	require.Nil(t, err)
	data["name"] = "changed"

	data, err = store.Read(ctx, "1")
	require.Nil(t, err)
	assert.Equal(t, Data{"name": "flamego"}, data)

	err = store.Destroy(ctx, "1")
	require.Nil(t, err)
	assert.False(t, store.Exist(ctx, "1"))
}

func TestMemoryStore_GC(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := newMemoryStore(
		MemoryConfig{
			nowFunc:  func() time.Time { return now },
			Lifetime: time.Second,
		},
	)

	err := store.Save(ctx, "1", Data{})
	require.Nil(t, err)

	now = now.Add(-time.Second)
	err = store.Save(ctx, "2", Data{})
	require.Nil(t, err)

	now = now.Add(-2 * time.Second)
	err = store.Save(ctx, "3", Data{})
	require.Nil(t, err)

	now = now.Add(2 * time.Second)
	err = store.GC(ctx) // "3" should be recycled
	require.Nil(t, err)

	require.Equal(t, 2, store.Len())
	assert.Equal(t, "2", store.heap[0].sid)
	assert.Equal(t, "1", store.heap[1].sid)
	assert.Len(t, store.index, 2)
	assert.NotContains(t, store.index, "3")

	// Touching keeps a record alive.
	now = now.Add(1500 * time.Millisecond)
	err = store.Touch(ctx, "2")
	require.Nil(t, err)

	now = now.Add(700 * time.Millisecond)
	assert.True(t, store.Exist(ctx, "2"))
	assert.False(t, store.Exist(ctx, "1"))

	// Reading an expired record removes it.
	data, err := store.Read(ctx, "1")
	require.Nil(t, err)
	assert.Empty(t, data)
	assert.NotContains(t, store.index, "1")
}
