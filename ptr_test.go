package objgraph

import (
	"testing"

	"github.com/drpcorg/objgraph/objgraph_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type getter1 interface {
	Object
	Get1() int
}

type getter2 interface {
	Object
	Get2() int
}

type implA struct {
	Base
	Val1 int
}

func (a *implA) Get1() int { return a.Val1 }

type implB struct {
	Base
	Val1, Val2 int
}

func (b *implB) Get1() int { return b.Val1 }
func (b *implB) Get2() int { return b.Val2 }

// implC has both methods but declares getter1 only.
type implC struct {
	Base
}

func (c *implC) Get1() int { return 1 }
func (c *implC) Get2() int { return 2 }

func newIfaceRegistry(t *testing.T) *Registry {
	reg := NewRegistry()
	i1, err := RegisterInterface[getter1](reg, "getter1")
	require.NoError(t, err)
	i2, err := RegisterInterface[getter2](reg, "getter2")
	require.NoError(t, err)
	reg.MustRegister(Class{
		Name:       "implA",
		New:        func() Object { return &implA{Val1: 123} },
		Interfaces: []ClassID{i1},
		Fields:     FieldsOf(func(a *implA, ar *Archive) { ar.Int(&a.Val1) }),
	})
	reg.MustRegister(Class{
		Name:       "implB",
		New:        func() Object { return &implB{Val1: 234, Val2: 456} },
		Interfaces: []ClassID{i1, i2},
		Fields: FieldsOf(func(b *implB, ar *Archive) {
			ar.Int(&b.Val1)
			ar.Int(&b.Val2)
		}),
	})
	reg.MustRegister(Class{
		Name:       "implC",
		New:        func() Object { return &implC{} },
		Interfaces: []ClassID{i1},
	})
	return reg
}

func TestNullHandles(t *testing.T) {
	var a1 Ptr[*node]
	a2 := New[*node](nil)
	a3 := a1.Share()
	assert.True(t, a1.IsNil())
	assert.True(t, a2.IsNil())
	assert.True(t, a3.IsNil())

	a1.Assign(a2)
	a1.Assign(a1)
	a3.AssignMove(&a2)
	a3.AssignMove(&a3)
	a5 := a3.Move()
	assert.True(t, a5.IsNil())
	assert.True(t, a1.Equal(a5))
	a5.Release()
	a5.Unload()
	assert.True(t, a5.IsNil())
}

func TestCreateCastSerialize(t *testing.T) {
	reg := newIfaceRegistry(t)
	mb := newMapBackend()
	d := NewDomain(reg, mb.facilities(), Options{})

	a, err := Create[*implA](d, 0)
	require.NoError(t, err)
	p, ok := Cast[getter1](a)
	assert.True(t, ok)
	assert.Equal(t, 123, p.Get().Get1())
	assert.Equal(t, 2, a.Get().RefCount())

	o, ok := Cast[Object](p)
	assert.True(t, ok)
	assert.Nil(t, o.Serialize(d, 0))
	assert.Equal(t, 1, mb.stores)

	d2 := NewDomain(reg, mb.facilities(), Options{})
	o1 := Placeholder[Object](a.ID(), 0)
	assert.Nil(t, o1.Load(d2))
	a1, ok := Cast[*implA](o1)
	assert.True(t, ok)
	assert.Equal(t, 123, a1.Get().Get1())
	assert.False(t, Equal(a, a1))

	_, ok = Cast[getter2](a)
	assert.False(t, ok)
	for _, h := range []*Ptr[*implA]{&a, &a1} {
		h.Release()
	}
	p.Release()
	o.Release()
	o1.Release()
	assert.Equal(t, 0, d.Len())
	assert.Equal(t, 0, d2.Len())
}

func TestUndeclaredInterface(t *testing.T) {
	d := NewDomain(newIfaceRegistry(t), nil, Options{})
	c, err := Create[*implC](d, 0)
	require.NoError(t, err)
	defer c.Release()

	_, ok := Cast[getter1](c)
	assert.True(t, ok)
	_, ok = Cast[getter2](c)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Get().RefCount())
}

func TestMultiInterface(t *testing.T) {
	reg := newIfaceRegistry(t)
	mb := newMapBackend()
	d := NewDomain(reg, mb.facilities(), Options{})
	b, err := Create[*implB](d, 0)
	require.NoError(t, err)
	assert.Nil(t, b.Serialize(d, 0))

	d2 := NewDomain(reg, mb.facilities(), Options{})
	b1 := Placeholder[*implB](b.ID(), 0)
	assert.Nil(t, b1.Load(d2))

	p1, ok := Cast[getter1](b1)
	assert.True(t, ok)
	assert.Equal(t, 234, p1.Get().Get1())
	p2, ok := Cast[getter2](b1)
	assert.True(t, ok)
	assert.Equal(t, 456, p2.Get().Get2())

	o, ok := Cast[Object](b)
	require.True(t, ok)
	p3, ok := Cast[getter1](o)
	assert.True(t, ok)
	p4, ok := Cast[getter2](o)
	assert.True(t, ok)
	assert.Equal(t, 456, p4.Get().Get2())

	p5, ok := Cast[getter2](p3)
	assert.True(t, ok)
	assert.Equal(t, 456, p5.Get().Get2())
	b2, ok := CastMove[*implB](&p3)
	assert.True(t, ok)
	assert.True(t, p3.IsNil())
	assert.Equal(t, 456, b2.Get().Get2())

	// b, o, p4, p5, b2
	assert.Equal(t, 5, b.Get().RefCount())
	for _, h := range []*Ptr[getter2]{&p2, &p4, &p5} {
		h.Release()
	}
	p1.Release()
	b1.Release()
	b2.Release()
	o.Release()
	assert.Equal(t, 1, b.Get().RefCount())
	b.Release()
}

func TestHandleEquality(t *testing.T) {
	reg := newIfaceRegistry(t)
	mb := newMapBackend()
	d := NewDomain(reg, mb.facilities(), Options{})

	b1, err := Create[*implB](d, 0)
	require.NoError(t, err)
	p1, _ := Cast[getter1](b1)
	assert.True(t, Equal(b1, p1))
	p2, _ := Cast[getter2](b1)
	assert.True(t, Equal(p1, p2))
	p3, _ := Cast[getter2](p1)
	assert.True(t, Equal(p1, p3))

	b2, err := Create[*implB](d, 0)
	require.NoError(t, err)
	assert.False(t, b1.Equal(b2))
	assert.False(t, Equal(p1, b2))
	p4, _ := Cast[getter1](b2)
	assert.False(t, p4.Equal(p1))
	assert.False(t, Equal(p4, b1))

	var p5 Ptr[getter1]
	var p6 Ptr[getter2]
	assert.False(t, Equal(p5, b1))
	assert.False(t, p5.Equal(p1))
	assert.True(t, Equal(p5, p6))

	b3 := b1.Share()
	b3.Unload()
	assert.False(t, Equal(b3, b1))
	assert.True(t, Equal(b3, Placeholder[Object](b1.ID(), 0)))
}

func TestSharedObjectsSurviveRoundTrip(t *testing.T) {
	reg := newIfaceRegistry(t)
	mb := newMapBackend()
	d := NewDomain(reg, mb.facilities(), Options{})
	f1, err := Create[*implA](d, 0)
	require.NoError(t, err)
	f2 := f1.Share()
	assert.True(t, f1.Equal(f2))
	f3, err := Create[*implA](d, 0)
	require.NoError(t, err)
	assert.False(t, f1.Equal(f3))

	assert.Nil(t, f1.Serialize(d, 0))
	f4 := Placeholder[*implA](f1.ID(), 0)
	assert.Nil(t, f4.Load(NewDomain(reg, mb.facilities(), Options{})))
	assert.False(t, f1.Equal(f4))

	// the same domain shares the resident object
	f5 := Placeholder[*implA](f1.ID(), 0)
	assert.Nil(t, f5.Load(d))
	assert.True(t, f1.Equal(f5))
	assert.Equal(t, 3, f1.Get().RefCount())
}

func TestAssign(t *testing.T) {
	d := NewDomain(newNodeRegistry(t), nil, Options{})
	takeErased()
	a := mkNode(t, d, 0, 1)
	b := mkNode(t, d, 0, 2)

	a2 := a.Share()
	a2.Assign(a)
	assert.Equal(t, 2, a.Get().RefCount())

	a2.Assign(b)
	assert.Equal(t, 1, a.Get().RefCount())
	assert.Equal(t, 2, b.Get().RefCount())

	a.Assign(b)
	assert.Equal(t, []int{1}, takeErased())
	assert.Equal(t, 3, b.Get().RefCount())

	a.AssignMove(&a2)
	assert.True(t, a2.IsNil())
	assert.Equal(t, 2, b.Get().RefCount())

	c := mkNode(t, d, 0, 3)
	a.AssignMove(&c)
	assert.True(t, c.IsNil())
	assert.Equal(t, 1, b.Get().RefCount())
	assert.Equal(t, 3, a.Get().I)

	a.Release()
	b.Release()
	assert.Equal(t, []int{2, 3}, takeErased())
}

func TestIdentityAccessors(t *testing.T) {
	d := NewDomain(newNodeRegistry(t), nil, Options{})
	a := mkNode(t, d, 0, 1)
	defer a.Release()
	assert.True(t, a.Flags().Has(Loaded))

	a.SetID(5000)
	assert.Equal(t, ObjID(5000), a.ID())
	assert.Equal(t, a.Get(), d.Find(5000))
	assert.True(t, GenerateID() > 5000)

	a.SetFlags(Const)
	assert.Equal(t, Const|Loaded, a.Flags())
	a.SetStorage(3)
	assert.Equal(t, Storage(3), a.Storage())

	b := mkNode(t, d, 0, 2)
	defer b.Release()
	assert.Panics(t, func() { b.SetID(5000) })
	assert.Equal(t, a.Get(), d.Find(5000))
	_, err := Create[*node](d, 5000)
	assert.ErrorIs(t, err, objgraph_errors.ErrDuplicateObjID)
	assert.Equal(t, 2, d.Len())

	p := Placeholder[*node](7, 1)
	assert.True(t, p.IsPlaceholder())
	p.SetID(8)
	p.SetStorage(2)
	p.SetFlags(Loadable | Const)
	assert.Equal(t, Identity{ID: 8, Flags: Loadable | Const, Storage: 2}, p.Identity())
}
