// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

var _ Store = (*fileStore)(nil)

// fileStore is a file implementation of the store. Each record is a file under
// the root directory, sharded by the first two characters of the session ID.
type fileStore struct {
	nowFunc  func() time.Time // The function to return the current time
	lifetime time.Duration    // The duration to have no access to a record before being recycled
	rootDir  string           // The root directory of records stored on the local file system
	encoder  Encoder          // The encoder to encode the data before saving
	decoder  Decoder          // The decoder to decode binary to data after reading
}

// newFileStore returns a new file store based on given configuration.
func newFileStore(cfg FileConfig) *fileStore {
	return &fileStore{
		nowFunc:  cfg.nowFunc,
		lifetime: cfg.Lifetime,
		rootDir:  cfg.RootDir,
		encoder:  cfg.Encoder,
		decoder:  cfg.Decoder,
	}
}

// filename returns the computed file name with given sid.
func (s *fileStore) filename(sid string) string {
	return filepath.Join(s.rootDir, string(sid[0]), string(sid[1]), sid)
}

// expired returns true if the record has not been accessed within the lifetime.
func (s *fileStore) expired(fi fs.FileInfo) bool {
	return !fi.ModTime().Add(s.lifetime).After(s.nowFunc())
}

// stat returns the file info of the record with given session ID, or nil when
// the record does not exist.
func (s *fileStore) stat(sid string) (fs.FileInfo, error) {
	fi, err := os.Stat(s.filename(sid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if fi.IsDir() {
		return nil, nil
	}
	return fi, nil
}

func (s *fileStore) Exist(_ context.Context, sid string) bool {
	if len(sid) < minimumSIDLength {
		return false
	}

	fi, err := s.stat(sid)
	return err == nil && fi != nil && !s.expired(fi)
}

func (s *fileStore) Read(_ context.Context, sid string) (Data, error) {
	if len(sid) < minimumSIDLength {
		return nil, ErrMinimumSIDLength
	}

	fi, err := s.stat(sid)
	if err != nil {
		return nil, errors.Wrap(err, "stat file")
	} else if fi == nil || s.expired(fi) {
		return make(Data), nil
	}

	binary, err := os.ReadFile(s.filename(sid))
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	data, err := s.decoder(binary)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return data, nil
}

func (s *fileStore) Destroy(_ context.Context, sid string) error {
	if len(sid) < minimumSIDLength {
		return nil
	}

	err := os.Remove(s.filename(sid))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove file")
	}
	return nil
}

func (s *fileStore) Touch(_ context.Context, sid string) error {
	if len(sid) < minimumSIDLength {
		return nil
	}

	fi, err := s.stat(sid)
	if err != nil || fi == nil {
		return nil
	}

	now := s.nowFunc()
	err = os.Chtimes(s.filename(sid), now, now)
	if err != nil {
		return errors.Wrap(err, "change times")
	}
	return nil
}

// Save writes the record to a temporary file first and renames it into place,
// so concurrent reads never see partial data.
func (s *fileStore) Save(_ context.Context, sid string, data Data) error {
	if len(sid) < minimumSIDLength {
		return ErrMinimumSIDLength
	}

	binary, err := s.encoder(data)
	if err != nil {
		return errors.Wrap(err, "encode")
	}

	filename := s.filename(sid)
	dir := filepath.Dir(filename)
	err = os.MkdirAll(dir, 0700)
	if err != nil {
		return errors.Wrap(err, "create parent directory")
	}

	f, err := os.CreateTemp(dir, "."+sid+".*")
	if err != nil {
		return errors.Wrap(err, "create temporary file")
	}
	defer func() { _ = os.Remove(f.Name()) }()

	_, err = f.Write(binary)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrap(err, "write file")
	}

	now := s.nowFunc()
	err = os.Chtimes(f.Name(), now, now)
	if err != nil {
		return errors.Wrap(err, "change times")
	}

	err = os.Rename(f.Name(), filename)
	if err != nil {
		return errors.Wrap(err, "rename file")
	}
	return nil
}

func (s *fileStore) GC(ctx context.Context) error {
	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		if !s.expired(fi) {
			return nil
		}
		return os.Remove(path)
	})
	if err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	return nil
}

// FileConfig contains options for the file store.
type FileConfig struct {
	// For tests only
	nowFunc func() time.Time

	// Lifetime is the duration to have no access to a record before being
	// recycled. Default is 3600 seconds.
	Lifetime time.Duration
	// RootDir is the root directory of records stored on the local file system.
	// Default is "sessions".
	RootDir string
	// Encoder is the encoder to encode session data. Default is GobEncoder.
	Encoder Encoder
	// Decoder is the decoder to decode session data. Default is GobDecoder.
	Decoder Decoder
}

// FileIniter returns the Initer for the file store.
func FileIniter() Initer {
	return func(ctx context.Context, args ...interface{}) (Store, error) {
		var cfg *FileConfig
		for i := range args {
			switch v := args[i].(type) {
			case FileConfig:
				cfg = &v
			}
		}

		if cfg == nil {
			return nil, fmt.Errorf("config object with the type '%T' not found", FileConfig{})
		}
		if cfg.nowFunc == nil {
			cfg.nowFunc = time.Now
		}
		if cfg.Lifetime.Seconds() < 1 {
			cfg.Lifetime = 3600 * time.Second
		}
		if cfg.RootDir == "" {
			cfg.RootDir = "sessions"
		}
		if cfg.Encoder == nil {
			cfg.Encoder = GobEncoder
		}
		if cfg.Decoder == nil {
			cfg.Decoder = GobDecoder
		}

		return newFileStore(*cfg), nil
	}
}
