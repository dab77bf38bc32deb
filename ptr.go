package objgraph

import (
	"reflect"

	"github.com/drpcorg/objgraph/objgraph_errors"
	"github.com/pkg/errors"
)

// Ptr is a counted reference to an object of type T, which is either an
// object pointer type or an interface embedding Object.
//
// A Ptr is in exactly one of two states. Attached, it holds a live object
// and contributes one to its reference count. Detached, it holds only an
// Identity: the zero identity for a null handle, a loadable one for a
// placeholder that Load can resolve later.
//
// Go has no destructors, so owners call Release (or Assign over it) when a
// handle goes away. Copying a Ptr value by assignment does not count;
// use Share.
type Ptr[T Object] struct {
	obj T
	b   *Base
	// ident is only meaningful while detached
	ident Identity
}

// New attaches a handle to a live object.
func New[T Object](obj T) (p Ptr[T]) {
	if isNil(obj) {
		return
	}
	p.attach(obj)
	return
}

// Create makes a new object of the class bound to T in the domain.
// A zero id picks a fresh one.
func Create[T Object](d *Domain, id ObjID) (Ptr[T], error) {
	cls, ok := d.reg.TypeID(reflect.TypeOf((*T)(nil)).Elem())
	if !ok {
		return Ptr[T]{}, errors.Wrapf(objgraph_errors.ErrClassNotFound, "type %s", reflect.TypeOf((*T)(nil)).Elem())
	}
	obj, err := d.CreateObj(cls, id)
	if err != nil {
		return Ptr[T]{}, err
	}
	t, ok := bindAs[T](obj)
	if !ok {
		d.forget(obj.base())
		return Ptr[T]{}, errors.Wrapf(objgraph_errors.ErrBadClass, "%T is not %s", obj, reflect.TypeOf((*T)(nil)).Elem())
	}
	return New(t), nil
}

// Placeholder makes a detached handle that Load resolves from storage.
func Placeholder[T Object](id ObjID, storage Storage) Ptr[T] {
	return Ptr[T]{ident: Identity{ID: id, Flags: Loadable, Storage: storage}}
}

func (p *Ptr[T]) attach(obj T) {
	p.obj = obj
	p.b = obj.base()
	p.ident = Identity{}
	if p.b.dead {
		panic(objgraph_errors.ErrObjectDestroyed)
	}
	p.b.refs++
}

// Get returns the live object, the zero T when detached.
func (p Ptr[T]) Get() T { return p.obj }

// Attached reports whether a live object is held.
func (p Ptr[T]) Attached() bool { return p.b != nil }

// IsNil reports a null handle: nothing attached and no identity to load.
func (p Ptr[T]) IsNil() bool { return p.b == nil && !p.ident.ID.Valid() }

// IsPlaceholder reports a detached handle that names an object.
func (p Ptr[T]) IsPlaceholder() bool { return p.b == nil && p.ident.ID.Valid() }

// Share returns another counted handle to the same object.
func (p Ptr[T]) Share() Ptr[T] {
	if p.b != nil {
		p.b.refs++
	}
	return p
}

// Move transfers the reference out, leaving p null.
func (p *Ptr[T]) Move() Ptr[T] {
	ret := *p
	*p = Ptr[T]{}
	return ret
}

// Release drops the reference. The object is destroyed when nothing
// else holds it, cyclic garbage left behind is collected too.
func (p *Ptr[T]) Release() {
	b := p.b
	*p = Ptr[T]{}
	if b != nil {
		releaseRef(b)
	}
}

// Assign makes p share src's object. Assigning the object p already
// holds changes nothing.
func (p *Ptr[T]) Assign(src Ptr[T]) {
	if p.b != nil && p.b == src.b {
		return
	}
	next := src.Share()
	p.Release()
	*p = next
}

// AssignMove is Assign that consumes src.
func (p *Ptr[T]) AssignMove(src *Ptr[T]) {
	if p == src {
		return
	}
	if p.b != nil && p.b == src.b {
		src.Release()
		return
	}
	next := src.Move()
	p.Release()
	*p = next
}

// Cast views the object as U. The cast succeeds when the class of the
// object declares U (itself, a version ancestor or a declared capability)
// and the Go value can be bound to U. Types U that are not registered
// are checked by Go type assertion alone. Null handles and placeholders
// cast to handles with the same identity.
func Cast[U, T Object](p Ptr[T]) (Ptr[U], bool) {
	if p.b == nil {
		return Ptr[U]{ident: p.ident}, true
	}
	if !implements[U](p.b) {
		return Ptr[U]{}, false
	}
	u, ok := bindAs[U](p.obj)
	if !ok {
		return Ptr[U]{}, false
	}
	return New(u), true
}

// CastMove casts and consumes p on success.
func CastMove[U, T Object](p *Ptr[T]) (Ptr[U], bool) {
	u, ok := Cast[U](*p)
	if ok {
		p.Release()
	}
	return u, ok
}

func implements[U Object](b *Base) bool {
	reg := b.registry()
	if reg == nil {
		return true
	}
	target, ok := reg.TypeID(reflect.TypeOf((*U)(nil)).Elem())
	if !ok {
		return true
	}
	return reg.Implements(b.class, target)
}

// bindAs finds the Go value of type T for an object: the outermost
// object, the given view, or one of the embedded version levels.
func bindAs[T Object](obj Object) (T, bool) {
	self := obj.base().self
	if self == nil {
		self = obj
	}
	if t, ok := self.(T); ok {
		return t, true
	}
	if t, ok := obj.(T); ok {
		return t, true
	}
	if lvl, ok := levelOf(self, reflect.TypeOf((*T)(nil)).Elem()); ok {
		if t, ok := lvl.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// Equal reports whether both handles denote the same object. Null
// handles equal each other, placeholders compare by id.
func Equal[A, B Object](a Ptr[A], b Ptr[B]) bool {
	if a.b != nil || b.b != nil {
		return a.b == b.b
	}
	return a.ident.ID == b.ident.ID
}

func (p Ptr[T]) Equal(o Ptr[T]) bool { return Equal(p, o) }

func (p Ptr[T]) Identity() Identity {
	if p.b != nil {
		return p.b.Identity()
	}
	return p.ident
}

func (p Ptr[T]) ID() ObjID { return p.Identity().ID }

// SetID renames the object; a live object is re-keyed in its domain.
// Taking the id of another resident object panics.
func (p *Ptr[T]) SetID(id ObjID) {
	if p.b == nil {
		p.ident.ID = id
		return
	}
	if p.b.domain != nil {
		p.b.domain.rekey(p.b, id)
		reserveID(id)
		return
	}
	reserveID(id)
	p.b.id = id
}

func (p Ptr[T]) Flags() Flags { return p.Identity().Flags }

func (p *Ptr[T]) SetFlags(f Flags) {
	if p.b != nil {
		p.b.flags = f | Loaded
		return
	}
	p.ident.Flags = f
}

func (p Ptr[T]) Storage() Storage { return p.Identity().Storage }

func (p *Ptr[T]) SetStorage(s Storage) {
	if p.b != nil {
		p.b.storage = s
		return
	}
	p.ident.Storage = s
}

// Serialize writes every object reachable from p to storage. Records go
// to the domain owning each object, d serves objects owning none.
func (p Ptr[T]) Serialize(d *Domain, flags SerializeFlags) error {
	enc := newEncoder(d, flags)
	_, err := enc.writeRef(nil, p.b, p.ident)
	if err != nil {
		return err
	}
	d.log.Debug("serialized", "root", p.ID(), "objects", enc.stored)
	return nil
}

// Load resolves a placeholder through d: objects already resident in d
// or its parents are shared, the rest is read from storage. Loading an
// attached handle is a no-op.
func (p *Ptr[T]) Load(d *Domain) error {
	if p.b != nil {
		return nil
	}
	if !p.ident.ID.Valid() {
		return objgraph_errors.ErrNullHandle
	}
	if err := d.checkStored(p.ident); err != nil {
		return err
	}
	dec := newDecoder(d, d.loadRecord)
	obj, err := dec.run(p.ident)
	if err != nil {
		return err
	}
	t, ok := bindAs[T](obj)
	if !ok {
		dec.abort()
		return errors.Wrapf(objgraph_errors.ErrBadClass, "object %s is %T", p.ident.ID, obj)
	}
	p.attach(t)
	dec.finish()
	return nil
}

// Unload turns an attached handle into a placeholder with the same
// identity and releases the object.
func (p *Ptr[T]) Unload() {
	if p.b == nil {
		return
	}
	ident := p.b.Identity().placeholder()
	p.Release()
	p.ident = ident
	ObjectsUnloaded.Inc()
}

// Clone deep copies the subgraph reachable from p into d under fresh
// ids. A placeholder is copied from d's storage, a live handle from
// memory; stored records and live originals are left untouched.
func (p Ptr[T]) Clone(d *Domain) (Ptr[T], error) {
	if p.IsNil() {
		return Ptr[T]{}, nil
	}
	scratch := d.scratch()
	var dec *decoder
	ident := p.Identity()
	if p.b == nil {
		dec = newDecoder(scratch, d.loadRecord)
	} else {
		mem := make(memRecords)
		enc := newEncoder(d, SerializeConsts)
		enc.sink = mem.store
		if _, err := enc.writeRef(nil, p.b, Identity{}); err != nil {
			return Ptr[T]{}, err
		}
		dec = newDecoder(scratch, mem.load)
	}
	obj, err := dec.run(ident)
	if err != nil {
		return Ptr[T]{}, err
	}
	t, ok := bindAs[T](obj)
	if !ok {
		dec.abort()
		return Ptr[T]{}, errors.Wrapf(objgraph_errors.ErrBadClass, "clone of %s is %T", ident.ID, obj)
	}
	for _, b := range dec.loaded {
		scratch.forget(b)
		b.id = GenerateID()
		d.adopt(b)
	}
	ret := New(t)
	dec.finish()
	return ret, nil
}
