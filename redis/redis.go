// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/flamego/userdata"
)

var _ userdata.Store = (*redisStore)(nil)

// redisStore is a Redis implementation of the userdata store. Records are
// plain keys that Redis expires after the lifetime without access.
type redisStore struct {
	client    redis.UniversalClient // The client connection
	keyPrefix string                // The prefix to use for keys
	lifetime  time.Duration         // The duration to have no access to a record before being recycled

	encoder userdata.Encoder
	decoder userdata.Decoder
}

func (s *redisStore) key(sid string) string {
	return s.keyPrefix + sid
}

func (s *redisStore) Exist(ctx context.Context, sid string) bool {
	n, err := s.client.Exists(ctx, s.key(sid)).Result()
	return err == nil && n == 1
}

// Read returns the data of the session and renews its expiry in the same
// round trip.
func (s *redisStore) Read(ctx context.Context, sid string) (userdata.Data, error) {
	binary, err := s.client.GetEx(ctx, s.key(sid), s.lifetime).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return make(userdata.Data), nil
		}
		return nil, errors.Wrap(err, "get")
	}

	data, err := s.decoder(binary)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return data, nil
}

func (s *redisStore) Destroy(ctx context.Context, sid string) error {
	err := s.client.Del(ctx, s.key(sid)).Err()
	if err != nil {
		return errors.Wrap(err, "delete")
	}
	return nil
}

func (s *redisStore) Touch(ctx context.Context, sid string) error {
	err := s.client.Expire(ctx, s.key(sid), s.lifetime).Err()
	if err != nil {
		return errors.Wrap(err, "expire")
	}
	return nil
}

func (s *redisStore) Save(ctx context.Context, sid string, data userdata.Data) error {
	binary, err := s.encoder(data)
	if err != nil {
		return errors.Wrap(err, "encode")
	}

	err = s.client.Set(ctx, s.key(sid), binary, s.lifetime).Err()
	if err != nil {
		return errors.Wrap(err, "set")
	}
	return nil
}

// GC is a no-op, Redis expires keys by itself.
func (s *redisStore) GC(_ context.Context) error {
	return nil
}

// Options keeps the settings to set up Redis client connection.
type Options = redis.Options

// Config contains options for the Redis store.
type Config struct {
	// For tests only
	client redis.UniversalClient

	// Options is the settings to set up a single-node Redis client connection.
	Options *Options
	// UniversalOptions is the settings to set up a Redis client connection to a
	// cluster or sentinel-managed failover setup. It takes precedence over the
	// Options.
	UniversalOptions *redis.UniversalOptions
	// KeyPrefix is the prefix to use for keys in Redis. Default is "userdata:".
	KeyPrefix string
	// Lifetime is the duration to have no access to a record before being
	// recycled. Default is 3600 seconds.
	Lifetime time.Duration
	// Encoder is the encoder to encode session data. Default is
	// userdata.GobEncoder.
	Encoder userdata.Encoder
	// Decoder is the decoder to decode session data. Default is
	// userdata.GobDecoder.
	Decoder userdata.Decoder
}

// Initer returns the userdata.Initer for the Redis store.
func Initer() userdata.Initer {
	return func(ctx context.Context, args ...interface{}) (userdata.Store, error) {
		var cfg *Config
		for i := range args {
			switch v := args[i].(type) {
			case Config:
				cfg = &v
			}
		}

		if cfg == nil {
			return nil, fmt.Errorf("config object with the type '%T' not found", Config{})
		} else if cfg.Options == nil && cfg.UniversalOptions == nil && cfg.client == nil {
			return nil, errors.New("empty Options")
		}

		if cfg.client == nil {
			if cfg.UniversalOptions != nil {
				cfg.client = redis.NewUniversalClient(cfg.UniversalOptions)
			} else {
				cfg.client = redis.NewClient(cfg.Options)
			}
			err := cfg.client.Ping(ctx).Err()
			if err != nil {
				return nil, errors.Wrap(err, "ping")
			}
		}
		if cfg.KeyPrefix == "" {
			cfg.KeyPrefix = "userdata:"
		}
		if cfg.Lifetime.Seconds() < 1 {
			cfg.Lifetime = 3600 * time.Second
		}
		if cfg.Encoder == nil {
			cfg.Encoder = userdata.GobEncoder
		}
		if cfg.Decoder == nil {
			cfg.Decoder = userdata.GobDecoder
		}

		return &redisStore{
			client:    cfg.client,
			keyPrefix: cfg.KeyPrefix,
			lifetime:  cfg.Lifetime,
			encoder:   cfg.Encoder,
			decoder:   cfg.Decoder,
		}, nil
	}
}
