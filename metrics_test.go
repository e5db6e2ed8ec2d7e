// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatheredValue returns the sum of all counters with given name.
func gatheredValue(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()

	families, err := g.Gather()
	require.Nil(t, err)

	var sum float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	now := time.Unix(1700000000, 0)
	c := newTestClient(t, Options{
		nowFunc:    func() time.Time { return now },
		Registerer: registry,
	})

	c.do(func(s *Session) {
		s.SetTempdataBatch(Data{"a": 1, "b": 2}, time.Minute)

		_, err := s.LoadDriver("userdata")
		assert.NotNil(t, err)
	})

	now = now.Add(2 * time.Minute)
	c.do(nil)

	assert.Equal(t, float64(2), gatheredValue(t, registry, "userdata_sessions_opened_total"))
	assert.Equal(t, float64(1), gatheredValue(t, registry, "userdata_driver_load_failures_total"))
	assert.Equal(t, float64(2), gatheredValue(t, registry, "userdata_tempdata_expired_total"))

	// Registering twice with the same registerer fails.
	_, err := NewManager(context.Background(), Options{Registerer: registry})
	assert.NotNil(t, err)
}
