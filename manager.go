// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"context"
	"crypto/rand"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// Manager wires HTTP requests to sessions. It owns the stores of the built-in
// drivers and the registry of drivers, and is safe for concurrent use.
type Manager struct {
	opts      Options
	factories map[string]DriverFactory // Registered drivers keyed by lower-cased name
	valid     []string                 // Names of drivers that are allowed to be loaded
	stores    []Store                  // The stores to be GC-ed
	metrics   *metrics
}

// parseOptions applies default values to given options.
func parseOptions(opts Options) Options {
	if opts.Driver == "" {
		opts.Driver = "Native"
	}

	if opts.Native.Initer == nil {
		opts.Native.Initer = MemoryIniter()
	}
	opts.Native.Cookie = opts.Native.Cookie.withDefaults("userdata_session")
	// NOTE: The file store requires at least 3 characters for the filename.
	if opts.Native.IDLength < minimumSIDLength {
		opts.Native.IDLength = 16
	}

	opts.Cookie.Cookie = opts.Cookie.Cookie.withDefaults("userdata_cookie")
	if opts.Cookie.Expiration.Seconds() < 1 {
		opts.Cookie.Expiration = 7200 * time.Second
	}
	if opts.Cookie.TimeToUpdate.Seconds() < 1 {
		opts.Cookie.TimeToUpdate = 300 * time.Second
	}

	if opts.GCInterval.Seconds() < 1 {
		opts.GCInterval = 5 * time.Minute
	}

	if opts.nowFunc == nil {
		opts.nowFunc = time.Now
	}
	if opts.Cookie.nowFunc == nil {
		opts.Cookie.nowFunc = opts.nowFunc
	}

	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.ErrorFunc == nil {
		logger := opts.Logger
		opts.ErrorFunc = func(err error) {
			logger.Error("Session error", "err", err)
		}
	}
	return opts
}

// NewManager returns a new manager with given options. It initializes the
// stores of the built-in drivers.
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	opts = parseOptions(opts)

	m := &Manager{
		opts:      opts,
		factories: make(map[string]DriverFactory),
		metrics:   newMetrics(),
	}
	if opts.Registerer != nil {
		err := m.metrics.register(opts.Registerer)
		if err != nil {
			return nil, errors.Wrap(err, "register metrics")
		}
	}

	nativeStore, err := opts.Native.Initer(ctx, opts.Native.Config)
	if err != nil {
		return nil, errors.Wrap(err, "init native store")
	}
	m.stores = append(m.stores, nativeStore)
	m.factories["native"] = newNativeFactory(nativeStore, opts.Native)

	var cookieStore Store
	if opts.Cookie.Initer != nil {
		cookieStore, err = opts.Cookie.Initer(ctx, opts.Cookie.Config)
		if err != nil {
			return nil, errors.Wrap(err, "init cookie store")
		}
		m.stores = append(m.stores, cookieStore)
	}
	m.factories["cookie"] = newCookieFactory(cookieStore, opts.Cookie, opts.Logger)

	for name, factory := range opts.Drivers {
		m.factories[strings.ToLower(name)] = factory
	}

	m.valid = []string{"Native", "Cookie"}
	names := append(append([]string{}, opts.ValidDrivers...), opts.Driver)
	for _, name := range names {
		if !containsFold(m.valid, name) {
			m.valid = append(m.valid, name)
		}
	}
	return m, nil
}

// containsFold returns true if the list contains given name in any case.
func containsFold(list []string, name string) bool {
	for _, v := range list {
		if strings.EqualFold(v, name) {
			return true
		}
	}
	return false
}

// Open returns the session for given request with the configured driver
// loaded.
func (m *Manager) Open(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, error) {
	s := &Session{
		ctx:       ctx,
		w:         w,
		r:         r,
		nowFunc:   m.opts.nowFunc,
		logger:    m.opts.Logger,
		errorFunc: m.opts.ErrorFunc,
		metrics:   m.metrics,
		factories: m.factories,
		valid:     m.valid,
		loaded:    make(map[string]Driver),
	}

	_, err := s.LoadDriver(m.opts.Driver)
	if err != nil {
		return nil, errors.Wrap(err, "load driver")
	}

	m.metrics.opened.WithLabelValues(s.Current()).Inc()
	s.logger.Debug("Session opened", "driver", s.Current(), "id", s.ID())
	return s, nil
}

// GC performs a GC operation on every store of the manager.
func (m *Manager) GC(ctx context.Context) error {
	for _, store := range m.stores {
		err := store.GC(ctx)
		if err != nil {
			m.metrics.gcErrors.Inc()
			return err
		}
	}
	return nil
}

// StartGC starts a background goroutine to trigger GC of the stores in the
// configured time interval. Errors are reported using the ErrorFunc. It returns
// a send-only channel for stopping the background goroutine.
func (m *Manager) StartGC(ctx context.Context) chan<- struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(m.opts.GCInterval)
		defer ticker.Stop()
		for {
			err := m.GC(ctx)
			if err != nil {
				m.opts.ErrorFunc(errors.Wrap(err, "GC"))
			}

			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return stop
}

// randomChars returns a generated string in given number of random characters.
func randomChars(n int) (string, error) {
	const alphanum = "0123456789abcdefghijklmnopqrstuvwxyz"

	randomInt := func(max *big.Int) (int, error) {
		r, err := rand.Int(rand.Reader, max)
		if err != nil {
			return 0, err
		}

		return int(r.Int64()), nil
	}

	buffer := make([]byte, n)
	max := big.NewInt(int64(len(alphanum)))
	for i := 0; i < n; i++ {
		index, err := randomInt(max)
		if err != nil {
			return "", err
		}

		buffer[i] = alphanum[index]
	}

	return string(buffer), nil
}

// isValidSessionID returns true if given session ID looks like a valid ID.
func isValidSessionID(sid string, idLength int) bool {
	if len(sid) != idLength {
		return false
	}

	for i := range sid {
		switch {
		case '0' <= sid[i] && sid[i] <= '9':
		case 'a' <= sid[i] && sid[i] <= 'z':
		default:
			return false
		}
	}
	return true
}
