// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flamego/userdata"
)

// record is the document of a session.
type record struct {
	ID        string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	ExpiresAt time.Time `bson:"expires_at"`
}

var _ userdata.Store = (*mongoStore)(nil)

// mongoStore is a MongoDB implementation of the userdata store.
type mongoStore struct {
	nowFunc    func() time.Time  // The function to return the current time
	lifetime   time.Duration     // The duration to have no access to a record before being recycled
	collection *mongo.Collection // The collection for storing session data
	encoder    userdata.Encoder  // The encoder to encode the data before saving
	decoder    userdata.Decoder  // The decoder to decode binary to data after reading
}

// alive returns the filter matching the unexpired document of given session.
func (s *mongoStore) alive(sid string) bson.M {
	return bson.M{
		"_id":        sid,
		"expires_at": bson.M{"$gt": s.nowFunc().UTC()},
	}
}

func (s *mongoStore) Exist(ctx context.Context, sid string) bool {
	n, err := s.collection.CountDocuments(ctx, s.alive(sid), options.Count().SetLimit(1))
	return err == nil && n > 0
}

func (s *mongoStore) Read(ctx context.Context, sid string) (userdata.Data, error) {
	var rec record
	err := s.collection.FindOne(ctx, s.alive(sid)).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return make(userdata.Data), nil
		}
		return nil, errors.Wrap(err, "find")
	}

	data, err := s.decoder(rec.Data)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return data, nil
}

func (s *mongoStore) Destroy(ctx context.Context, sid string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": sid})
	if err != nil {
		return errors.Wrap(err, "delete")
	}
	return nil
}

func (s *mongoStore) Touch(ctx context.Context, sid string) error {
	_, err := s.collection.UpdateByID(ctx, sid, bson.M{
		"$set": bson.M{"expires_at": s.nowFunc().Add(s.lifetime).UTC()},
	})
	if err != nil {
		return errors.Wrap(err, "update")
	}
	return nil
}

func (s *mongoStore) Save(ctx context.Context, sid string, data userdata.Data) error {
	binary, err := s.encoder(data)
	if err != nil {
		return errors.Wrap(err, "encode")
	}

	rec := record{
		ID:        sid,
		Data:      binary,
		ExpiresAt: s.nowFunc().Add(s.lifetime).UTC(),
	}
	_, err = s.collection.ReplaceOne(ctx, bson.M{"_id": sid}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, "upsert")
	}
	return nil
}

func (s *mongoStore) GC(ctx context.Context) error {
	_, err := s.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": s.nowFunc().UTC()}})
	if err != nil {
		return errors.Wrap(err, "delete expired")
	}
	return nil
}

// Options keeps the settings to set up MongoDB client connection.
type Options = options.ClientOptions

// Config contains options for the MongoDB store.
type Config struct {
	// For tests only
	nowFunc func() time.Time
	db      *mongo.Database

	// Options is the settings to set up MongoDB client connection. It takes
	// precedence over the URI.
	Options *Options
	// URI is the connection string to the MongoDB.
	URI string
	// Database is the database name for storing session data. Default is
	// "userdata".
	Database string
	// Collection is the collection name for storing session data. Default is
	// "sessions".
	Collection string
	// Lifetime is the duration to have no access to a record before being
	// recycled. Default is 3600 seconds.
	Lifetime time.Duration
	// Encoder is the encoder to encode session data. Default is
	// userdata.GobEncoder.
	Encoder userdata.Encoder
	// Decoder is the decoder to decode session data. Default is
	// userdata.GobDecoder.
	Decoder userdata.Decoder
	// InitIndex indicates whether to create a TTL index on the expiry, which
	// makes the server remove expired documents between GC runs.
	InitIndex bool
}

// Initer returns the userdata.Initer for the MongoDB store.
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
		} else if cfg.Options == nil && cfg.URI == "" && cfg.db == nil {
			return nil, errors.New("empty URI")
		}

		if cfg.db == nil {
			if cfg.Options == nil {
				cfg.Options = options.Client().ApplyURI(cfg.URI)
			}
			client, err := mongo.Connect(ctx, cfg.Options)
			if err != nil {
				return nil, errors.Wrap(err, "connect")
			}
			if cfg.Database == "" {
				cfg.Database = "userdata"
			}
			cfg.db = client.Database(cfg.Database)
		}

		if cfg.nowFunc == nil {
			cfg.nowFunc = time.Now
		}
		if cfg.Lifetime.Seconds() < 1 {
			cfg.Lifetime = 3600 * time.Second
		}
		if cfg.Collection == "" {
			cfg.Collection = "sessions"
		}
		if cfg.Encoder == nil {
			cfg.Encoder = userdata.GobEncoder
		}
		if cfg.Decoder == nil {
			cfg.Decoder = userdata.GobDecoder
		}

		collection := cfg.db.Collection(cfg.Collection)
		if cfg.InitIndex {
			_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0),
			})
			if err != nil {
				return nil, errors.Wrap(err, "create index")
			}
		}

		return &mongoStore{
			nowFunc:    cfg.nowFunc,
			lifetime:   cfg.Lifetime,
			collection: collection,
			encoder:    cfg.Encoder,
			decoder:    cfg.Decoder,
		}, nil
	}
}
