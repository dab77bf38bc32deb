// Package storage holds the record backends a Domain persists through.
//
// Every backend keeps one opaque record per (object id, storage bucket)
// and reports missing records as objgraph_errors.ErrNotStored.
package storage

import (
	"encoding/binary"

	"github.com/drpcorg/objgraph"
)

type key struct {
	id      objgraph.ObjID
	storage objgraph.Storage
}

const recordPrefix = 'O'

// OKey is the ordered byte key of a record: 'O', big-endian id, bucket.
func OKey(id objgraph.ObjID, storage objgraph.Storage) []byte {
	var k [6]byte
	k[0] = recordPrefix
	binary.BigEndian.PutUint32(k[1:5], uint32(id))
	k[5] = byte(storage)
	return k[:]
}

// OKeyIDStorage is the inverse of OKey.
func OKeyIDStorage(k []byte) (id objgraph.ObjID, storage objgraph.Storage, ok bool) {
	if len(k) != 6 || k[0] != recordPrefix {
		return objgraph.NoID, 0, false
	}
	return objgraph.ObjID(binary.BigEndian.Uint32(k[1:5])), objgraph.Storage(k[5]), true
}
