package objgraph

import (
	"sort"
	"testing"

	"github.com/drpcorg/objgraph/objgraph_errors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type node struct {
	Base
	I int
	A []Ptr[*node]
}

var (
	erased      = map[int]bool{}
	fieldsCalls int
)

func (n *node) OnDestroy() { erased[n.I] = true }

func nodeFields(n *node, ar *Archive) {
	if ar.Reading() || ar.Writing() {
		fieldsCalls++
	}
	ar.Int(&n.I)
	Refs(ar, &n.A)
}

func newNodeRegistry(t *testing.T) *Registry {
	reg := NewRegistry()
	_, err := reg.Register(Class{
		Name:   "node",
		New:    func() Object { return &node{I: 123} },
		Fields: FieldsOf(nodeFields),
	})
	require.NoError(t, err)
	return reg
}

func mkNode(t *testing.T, d *Domain, id ObjID, i int) Ptr[*node] {
	p, err := Create[*node](d, id)
	require.NoError(t, err)
	p.Get().I = i
	return p
}

func takeErased() (ids []int) {
	for i := range erased {
		ids = append(ids, i)
	}
	sort.Ints(ids)
	erased = map[int]bool{}
	return
}

// mapBackend is a map with failure injection, plugged in via Facilities.
type mapBackend struct {
	records map[Identity][]byte
	stores  int
	fail    error
}

func newMapBackend() *mapBackend {
	return &mapBackend{records: make(map[Identity][]byte)}
}

func (m *mapBackend) facilities() Facilities {
	return Facilities{
		StoreFunc: func(id ObjID, storage Storage, data []byte) error {
			if m.fail != nil {
				return m.fail
			}
			m.stores++
			m.records[Identity{ID: id, Storage: storage}] = append([]byte(nil), data...)
			return nil
		},
		LoadFunc: func(id ObjID, storage Storage) ([]byte, error) {
			if m.fail != nil {
				return nil, m.fail
			}
			data, ok := m.records[Identity{ID: id, Storage: storage}]
			if !ok {
				return nil, errors.Wrapf(objgraph_errors.ErrNotStored, "%s", id)
			}
			return data, nil
		},
		EnumerateFunc: func(id ObjID) (buckets []Storage, err error) {
			for k := range m.records {
				if k.ID == id {
					buckets = append(buckets, k.Storage)
				}
			}
			return
		},
	}
}
