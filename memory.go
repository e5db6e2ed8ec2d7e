// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// memoryRecord is a record of session data kept in memory.
type memoryRecord struct {
	sid            string    // The session ID
	data           Data      // The data of the session
	lastAccessedAt time.Time // The last time of the record being accessed

	index int // The index in the heap
}

var _ Store = (*memoryStore)(nil)

// memoryStore is an in-memory implementation of the store.
type memoryStore struct {
	nowFunc  func() time.Time // The function to return the current time
	lifetime time.Duration    // The duration to have no access to a record before being recycled

	lock  sync.Mutex               // The mutex to guard accesses to the heap and index
	heap  []*memoryRecord          // The heap to be managed by operations of heap.Interface
	index map[string]*memoryRecord // The index to be managed by operations of heap.Interface
}

// newMemoryStore returns a new memory store based on given configuration.
func newMemoryStore(cfg MemoryConfig) *memoryStore {
	return &memoryStore{
		nowFunc:  cfg.nowFunc,
		lifetime: cfg.Lifetime,
		index:    make(map[string]*memoryRecord),
	}
}

// Len implements `heap.Interface.Len`. It is not concurrent-safe and is the
// caller's responsibility to ensure they're being guarded by a mutex during any
// heap operation, i.e. heap.Fix, heap.Remove, heap.Push, heap.Pop.
func (s *memoryStore) Len() int {
	return len(s.heap)
}

// Less implements `heap.Interface.Less`.
func (s *memoryStore) Less(i, j int) bool {
	return s.heap[i].lastAccessedAt.Before(s.heap[j].lastAccessedAt)
}

// Swap implements `heap.Interface.Swap`.
func (s *memoryStore) Swap(i, j int) {
	s.heap[i], s.heap[j] = s.heap[j], s.heap[i]
	s.heap[i].index = i
	s.heap[j].index = j
}

// Push implements `heap.Interface.Push`.
func (s *memoryStore) Push(x interface{}) {
	n := s.Len()
	rec := x.(*memoryRecord)
	rec.index = n
	s.heap = append(s.heap, rec)
	s.index[rec.sid] = rec
}

// Pop implements `heap.Interface.Pop`.
func (s *memoryStore) Pop() interface{} {
	n := s.Len()
	rec := s.heap[n-1]

	s.heap[n-1] = nil // Avoid memory leak
	rec.index = -1    // For safety

	s.heap = s.heap[:n-1]
	delete(s.index, rec.sid)
	return rec
}

// expired returns true if the record has not been accessed within the lifetime.
// The caller must hold the lock.
func (s *memoryStore) expired(rec *memoryRecord) bool {
	return !s.nowFunc().Before(rec.lastAccessedAt.Add(s.lifetime))
}

func (s *memoryStore) Exist(_ context.Context, sid string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	rec, ok := s.index[sid]
	return ok && !s.expired(rec)
}

func (s *memoryStore) Read(_ context.Context, sid string) (Data, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	rec, ok := s.index[sid]
	if !ok {
		return make(Data), nil
	}

	// Only return the data if it is not expired, because the GC may have not
	// caught up.
	if s.expired(rec) {
		heap.Remove(s, rec.index)
		return make(Data), nil
	}

	rec.lastAccessedAt = s.nowFunc()
	heap.Fix(s, rec.index)
	return rec.data.clone(), nil
}

func (s *memoryStore) Destroy(_ context.Context, sid string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	rec, ok := s.index[sid]
	if !ok {
		return nil
	}

	heap.Remove(s, rec.index)
	return nil
}

func (s *memoryStore) Touch(_ context.Context, sid string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	rec, ok := s.index[sid]
	if !ok {
		return nil
	}

	rec.lastAccessedAt = s.nowFunc()
	heap.Fix(s, rec.index)
	return nil
}

func (s *memoryStore) Save(_ context.Context, sid string, data Data) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	rec, ok := s.index[sid]
	if ok {
		rec.data = data.clone()
		rec.lastAccessedAt = s.nowFunc()
		heap.Fix(s, rec.index)
		return nil
	}

	heap.Push(s, &memoryRecord{
		sid:            sid,
		data:           data.clone(),
		lastAccessedAt: s.nowFunc(),
	})
	return nil
}

func (s *memoryStore) GC(ctx context.Context) error {
	// Removing expired records from top of the heap until there is no more expired
	// records found.
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		done := func() bool {
			s.lock.Lock()
			defer s.lock.Unlock()

			if s.Len() == 0 {
				return true
			}

			// If the least accessed record is not expired, there is no need to continue
			rec := s.heap[0]
			if !s.expired(rec) {
				return true
			}

			heap.Remove(s, rec.index)
			return false
		}()
		if done {
			break
		}
	}
	return nil
}

// MemoryConfig contains options for the memory store.
type MemoryConfig struct {
	nowFunc func() time.Time // For tests only

	// Lifetime is the duration to have no access to a record before being
	// recycled. Default is 3600 seconds.
	Lifetime time.Duration
}

// MemoryIniter returns the Initer for the memory store.
func MemoryIniter() Initer {
	return func(_ context.Context, args ...interface{}) (Store, error) {
		var cfg *MemoryConfig
		for i := range args {
			switch v := args[i].(type) {
			case MemoryConfig:
				cfg = &v
			}
		}

		if cfg == nil {
			cfg = &MemoryConfig{}
		}

		if cfg.nowFunc == nil {
			cfg.nowFunc = time.Now
		}
		if cfg.Lifetime.Seconds() < 1 {
			cfg.Lifetime = 3600 * time.Second
		}

		return newMemoryStore(*cfg), nil
	}
}
