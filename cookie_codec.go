// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/gob"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// cookiePayload is the content of the cookie sent by the Cookie driver.
type cookiePayload struct {
	ID           string
	IPAddress    string
	UserAgent    string
	LastActivity int64
	// Data is only set when the driver has no store to keep data.
	Data Data
}

// codecKey is a pair of keys derived from one secret.
type codecKey struct {
	hashKey  []byte // The key to sign the cookie value
	blockKey []byte // The key to encrypt the cookie value
}

// cookieCodec signs and optionally encrypts cookie payloads. The first key is
// used for encoding, all keys are tried for decoding.
type cookieCodec struct {
	keys    []codecKey
	encrypt bool
}

// deriveKey derives the signing and encryption keys from given secret.
func deriveKey(secret string) (codecKey, error) {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("userdata cookie"))
	buf := make([]byte, sha256.Size+chacha20poly1305.KeySize)
	_, err := io.ReadFull(r, buf)
	if err != nil {
		return codecKey{}, errors.Wrap(err, "derive key")
	}
	return codecKey{
		hashKey:  buf[:sha256.Size],
		blockKey: buf[sha256.Size:],
	}, nil
}

// newCookieCodec returns a new codec with given secrets, the first secret is the
// current one.
func newCookieCodec(secrets []string, encrypt bool) (*cookieCodec, error) {
	c := &cookieCodec{encrypt: encrypt}
	for _, secret := range secrets {
		if secret == "" {
			continue
		}

		key, err := deriveKey(secret)
		if err != nil {
			return nil, err
		}
		c.keys = append(c.keys, key)
	}
	if len(c.keys) == 0 {
		return nil, ErrEmptySecret
	}
	return c, nil
}

func (c *cookieCodec) mac(key codecKey, value string) string {
	h := hmac.New(sha256.New, key.hashKey)
	h.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// encode returns the cookie value of given payload.
func (c *cookieCodec) encode(p cookiePayload) (string, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(p)
	if err != nil {
		return "", errors.Wrap(err, "encode")
	}

	body := buf.Bytes()
	if c.encrypt {
		aead, err := chacha20poly1305.NewX(c.keys[0].blockKey)
		if err != nil {
			return "", errors.Wrap(err, "new cipher")
		}

		nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(body)+aead.Overhead())
		_, err = rand.Read(nonce)
		if err != nil {
			return "", errors.Wrap(err, "read nonce")
		}
		body = aead.Seal(nonce, nonce, body, nil)
	}

	value := base64.RawURLEncoding.EncodeToString(body)
	return value + "." + c.mac(c.keys[0], value), nil
}

// decode returns the payload of given cookie value. It returns ErrInvalidCookie
// if the value was not produced by a known key.
func (c *cookieCodec) decode(cookie string) (cookiePayload, error) {
	value, signature, ok := strings.Cut(cookie, ".")
	if !ok {
		return cookiePayload{}, ErrInvalidCookie
	}

	for _, key := range c.keys {
		if !hmac.Equal([]byte(signature), []byte(c.mac(key, value))) {
			continue
		}

		body, err := base64.RawURLEncoding.DecodeString(value)
		if err != nil {
			return cookiePayload{}, ErrInvalidCookie
		}

		if c.encrypt {
			aead, err := chacha20poly1305.NewX(key.blockKey)
			if err != nil {
				return cookiePayload{}, errors.Wrap(err, "new cipher")
			}
			if len(body) < aead.NonceSize() {
				return cookiePayload{}, ErrInvalidCookie
			}

			nonce, sealed := body[:aead.NonceSize()], body[aead.NonceSize():]
			body, err = aead.Open(nil, nonce, sealed, nil)
			if err != nil {
				return cookiePayload{}, ErrInvalidCookie
			}
		}

		var p cookiePayload
		err = gob.NewDecoder(bytes.NewReader(body)).Decode(&p)
		if err != nil {
			return cookiePayload{}, errors.Wrap(ErrInvalidCookie, err.Error())
		}
		return p, nil
	}
	return cookiePayload{}, ErrInvalidCookie
}
