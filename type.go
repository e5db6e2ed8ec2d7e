// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"bytes"
	"encoding/gob"
	"reflect"
	"time"
)

func init() {
	// Values stored in Data travel as interface values, gob needs their concrete
	// types registered before they can be decoded.
	gob.Register(Data{})
	gob.Register(map[string]interface{}{})
	gob.Register(map[string]int64{})
	gob.Register([]interface{}{})
	gob.Register(time.Time{})
}

// Data is the data structure for storing user data of a session.
type Data map[string]interface{}

// clone returns a shallow copy of the data.
func (d Data) clone() Data {
	c := make(Data, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// reset removes all entries in place so that every holder of the map sees an
// empty data set.
func (d Data) reset() {
	clear(d)
}

// replace swaps the content of the data with given data in place.
func (d Data) replace(src Data) {
	clear(d)
	for k, v := range src {
		d[k] = v
	}
}

// Encoder is an encoder to encode session data to binary.
type Encoder func(Data) ([]byte, error)

// Decoder is a decoder to decode binary to session data.
type Decoder func([]byte) (Data, error)

// GobEncoder is a session data encoder using Gob.
func GobEncoder(data Data) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(data)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecoder is a session data decoder using Gob.
func GobDecoder(binary []byte) (Data, error) {
	buf := bytes.NewBuffer(binary)
	var data Data
	err := gob.NewDecoder(buf).Decode(&data)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = make(Data)
	}
	return data, nil
}

// snapshot remembers the data of the last successful write so that drivers can
// skip writes of unmodified data.
type snapshot struct {
	last Data
}

// changed returns true if given data differs from the last committed data.
func (s *snapshot) changed(data Data) bool {
	if s.last == nil {
		return true
	}
	return !reflect.DeepEqual(s.last, data)
}

// commit records a deep copy of given data. Nested values are copied through
// the Gob codec, a failure simply forces the next write.
func (s *snapshot) commit(data Data) {
	binary, err := GobEncoder(data)
	if err != nil {
		s.last = nil
		return
	}
	last, err := GobDecoder(binary)
	if err != nil {
		s.last = nil
		return
	}
	s.last = last
}

// forget drops the recorded data, the next write always goes through.
func (s *snapshot) forget() {
	s.last = nil
}
