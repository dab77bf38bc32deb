package objgraph

import (
	stderrors "errors"

	"github.com/drpcorg/objgraph/objgraph_errors"
	"github.com/drpcorg/objgraph/utils"
	"github.com/pkg/errors"
)

// Backend holds object records, one per (id, storage bucket).
// A missing record is reported as ErrNotStored.
type Backend interface {
	Store(id ObjID, storage Storage, data []byte) error
	Load(id ObjID, storage Storage) ([]byte, error)
	// Enumerate lists the buckets holding a record of the object.
	Enumerate(id ObjID) ([]Storage, error)
}

// Facilities adapts plain functions to a Backend. Nil functions report
// ErrNoFacility.
type Facilities struct {
	StoreFunc     func(id ObjID, storage Storage, data []byte) error
	LoadFunc      func(id ObjID, storage Storage) ([]byte, error)
	EnumerateFunc func(id ObjID) ([]Storage, error)
}

func (f Facilities) Store(id ObjID, storage Storage, data []byte) error {
	if f.StoreFunc == nil {
		return objgraph_errors.ErrNoFacility
	}
	return f.StoreFunc(id, storage, data)
}

func (f Facilities) Load(id ObjID, storage Storage) ([]byte, error) {
	if f.LoadFunc == nil {
		return nil, objgraph_errors.ErrNoFacility
	}
	return f.LoadFunc(id, storage)
}

func (f Facilities) Enumerate(id ObjID) ([]Storage, error) {
	if f.EnumerateFunc == nil {
		return nil, objgraph_errors.ErrNoFacility
	}
	return f.EnumerateFunc(id)
}

// Domain is a storage scope: a backend, the objects created or loaded
// through it, and an optional parent scope. A domain does not own its
// objects, handles do; destroyed objects leave the domain.
//
// Domains are not safe for concurrent use. A domain tree is driven by
// one goroutine at a time.
type Domain struct {
	reg     *Registry
	backend Backend
	parent  *Domain
	objects map[ObjID]*Base
	opts    Options
	log     utils.Logger
	// suspend counts reads in progress, see releaseRef
	suspend int
}

// NewDomain creates a root domain. The backend may be nil for a purely
// in-memory graph.
func NewDomain(reg *Registry, backend Backend, opts Options) *Domain {
	opts.SetDefaults()
	return &Domain{
		reg:     reg,
		backend: backend,
		objects: make(map[ObjID]*Base),
		opts:    opts,
		log:     opts.Logger.With("domain", opts.Name),
	}
}

// Sub creates a nested domain persisting to its own backend. Objects
// resident in d stay visible to reads through the child.
func (d *Domain) Sub(name string, backend Backend) *Domain {
	opts := d.opts
	opts.Name = name
	return &Domain{
		reg:     d.reg,
		backend: backend,
		parent:  d,
		objects: make(map[ObjID]*Base),
		opts:    opts,
		log:     opts.Logger.With("domain", name),
	}
}

// scratch is an isolated domain for building copies.
func (d *Domain) scratch() *Domain {
	return &Domain{
		reg:     d.reg,
		objects: make(map[ObjID]*Base),
		opts:    d.opts,
		log:     d.log,
	}
}

func (d *Domain) Parent() *Domain      { return d.parent }
func (d *Domain) Registry() *Registry  { return d.reg }
func (d *Domain) Logger() utils.Logger { return d.log }
func (d *Domain) Name() string         { return d.opts.Name }
func (d *Domain) Backend() Backend     { return d.backend }
func (d *Domain) Len() int             { return len(d.objects) }

// CreateObj instantiates a class (resolved to its newest registered
// version) as a resident object of d. A zero id picks a fresh one.
// The object has no references until a handle is attached.
func (d *Domain) CreateObj(cls ClassID, id ObjID) (Object, error) {
	if id.Valid() && d.find(id) != nil {
		return nil, errors.Wrapf(objgraph_errors.ErrDuplicateObjID, "%s in %s", id, d.opts.Name)
	}
	obj, err := d.reg.CreateByID(cls)
	if err != nil {
		return nil, err
	}
	b := obj.base()
	if id.Valid() {
		reserveID(id)
	} else {
		id = GenerateID()
	}
	b.id = id
	d.adopt(b)
	d.log.Debug("created", "id", id, "class", d.reg.Class(b.class).Name)
	return obj, nil
}

// Find returns the object resident in d or its parents, nil if none.
func (d *Domain) Find(id ObjID) Object {
	if b := d.find(id); b != nil {
		return b.self
	}
	return nil
}

// Each calls fn for the objects resident in d itself, in no particular order.
func (d *Domain) Each(fn func(o Object) bool) {
	for _, b := range d.objects {
		if !fn(b.self) {
			return
		}
	}
}

func (d *Domain) find(id ObjID) *Base {
	for cur := d; cur != nil; cur = cur.parent {
		if b, ok := cur.objects[id]; ok {
			return b
		}
	}
	return nil
}

func (d *Domain) adopt(b *Base) {
	b.domain = d
	d.objects[b.id] = b
}

func (d *Domain) forget(b *Base) {
	if d.objects[b.id] == b {
		delete(d.objects, b.id)
	}
}

// rekey panics when another object already has id.
func (d *Domain) rekey(b *Base, id ObjID) {
	if other := d.find(id); other != nil && other != b {
		panic(errors.Wrapf(objgraph_errors.ErrDuplicateObjID, "%s in %s", id, d.opts.Name))
	}
	d.forget(b)
	b.id = id
	d.adopt(b)
}

func (d *Domain) root() *Domain {
	cur := d
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

func (d *Domain) suspended() bool {
	return d.root().suspend > 0
}

// storer returns the nearest domain, d included, with a backend.
func (d *Domain) storer() *Domain {
	for cur := d; cur != nil; cur = cur.parent {
		if cur.backend != nil {
			return cur
		}
	}
	return nil
}

func (d *Domain) storeRecord(id ObjID, storage Storage, data []byte) error {
	s := d.storer()
	if s == nil {
		return errors.Wrapf(objgraph_errors.ErrNoFacility, "domain %s cannot store %s", d.opts.Name, id)
	}
	if err := s.backend.Store(id, storage, data); err != nil {
		return unavailable(err, "store %s/%d in %s", id, storage, s.opts.Name)
	}
	return nil
}

// loadRecord reads through d and then its parents until a backend has
// the record.
func (d *Domain) loadRecord(id ObjID, storage Storage) ([]byte, error) {
	err := error(errors.Wrapf(objgraph_errors.ErrNoFacility, "domain %s cannot load %s", d.opts.Name, id))
	for cur := d; cur != nil; cur = cur.parent {
		if cur.backend == nil {
			continue
		}
		data, lerr := cur.backend.Load(id, storage)
		if lerr == nil {
			return data, nil
		}
		if !errors.Is(lerr, objgraph_errors.ErrNotStored) && !errors.Is(lerr, objgraph_errors.ErrNoFacility) {
			return nil, unavailable(lerr, "load %s/%d from %s", id, storage, cur.opts.Name)
		}
		err = errors.WithMessagef(lerr, "load %s/%d from %s", id, storage, cur.opts.Name)
	}
	return nil, err
}

// checkStored consults Enumerate, where supported, before a Load.
func (d *Domain) checkStored(ident Identity) error {
	if d.find(ident.ID) != nil {
		return nil
	}
	s := d.storer()
	if s == nil {
		return nil
	}
	buckets, err := s.backend.Enumerate(ident.ID)
	if errors.Is(err, objgraph_errors.ErrNoFacility) {
		return nil
	} else if err != nil {
		return unavailable(err, "enumerate %s in %s", ident.ID, s.opts.Name)
	}
	for _, b := range buckets {
		if b == ident.Storage {
			return nil
		}
	}
	if s.parent != nil {
		// the record may live further up
		return nil
	}
	return errors.Wrapf(objgraph_errors.ErrNotStored, "%s/%d in %s", ident.ID, ident.Storage, s.opts.Name)
}

// unavailable marks a backend failure as ErrStorageUnavailable while
// keeping the cause visible to errors.Is.
func unavailable(err error, format string, args ...any) error {
	if errors.Is(err, objgraph_errors.ErrNotStored) || errors.Is(err, objgraph_errors.ErrNoFacility) {
		return errors.WithMessagef(err, format, args...)
	}
	return errors.WithMessagef(stderrors.Join(objgraph_errors.ErrStorageUnavailable, err), format, args...)
}

// memRecords keeps the records of a live subgraph being cloned.
type memRecords map[Identity][]byte

func (m memRecords) store(id ObjID, storage Storage, data []byte) error {
	m[Identity{ID: id, Storage: storage}] = data
	return nil
}

func (m memRecords) load(id ObjID, storage Storage) ([]byte, error) {
	data, ok := m[Identity{ID: id, Storage: storage}]
	if !ok {
		return nil, errors.Wrapf(objgraph_errors.ErrNotStored, "%s/%d", id, storage)
	}
	return data, nil
}
