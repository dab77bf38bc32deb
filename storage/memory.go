package storage

import (
	"sort"

	"github.com/drpcorg/objgraph"
	"github.com/drpcorg/objgraph/objgraph_errors"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// Memory keeps records in a concurrent map. Records are copied in and
// out, callers may reuse their buffers.
type Memory struct {
	records *xsync.MapOf[key, []byte]
}

func NewMemory() *Memory {
	return &Memory{records: xsync.NewMapOf[key, []byte]()}
}

func (m *Memory) Store(id objgraph.ObjID, storage objgraph.Storage, data []byte) error {
	m.records.Store(key{id, storage}, append([]byte(nil), data...))
	return nil
}

func (m *Memory) Load(id objgraph.ObjID, storage objgraph.Storage) ([]byte, error) {
	data, ok := m.records.Load(key{id, storage})
	if !ok {
		return nil, errors.Wrapf(objgraph_errors.ErrNotStored, "memory %s/%d", id, storage)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Enumerate(id objgraph.ObjID) (buckets []objgraph.Storage, err error) {
	m.records.Range(func(k key, _ []byte) bool {
		if k.id == id {
			buckets = append(buckets, k.storage)
		}
		return true
	})
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })
	return
}

// Delete drops a record, a missing one is not an error.
func (m *Memory) Delete(id objgraph.ObjID, storage objgraph.Storage) {
	m.records.Delete(key{id, storage})
}

func (m *Memory) Len() int {
	return m.records.Size()
}
