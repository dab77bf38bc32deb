package objgraph

import (
	"reflect"

	"github.com/cespare/xxhash"
	"github.com/drpcorg/objgraph/objgraph_errors"
	"github.com/pkg/errors"
)

// ClassID is a stable hash of a class or capability name.
type ClassID uint32

const NoClass ClassID = 0

// ClassIDOf derives the class id from its name.
func ClassIDOf(name string) ClassID {
	return ClassID(xxhash.Sum64([]byte(name)))
}

// FieldsFunc encodes, decodes or walks the fields a class adds on top of
// its versioned ancestor. The same function serves every direction;
// see Archive.
type FieldsFunc func(o Object, ar *Archive)

// Class describes one class (or one version of a class).
// A class can supersede another: Base names the previous version,
// whose fields are kept and written first. Fields are never removed
// from a version, new versions append.
type Class struct {
	Name string
	// ID defaults to ClassIDOf(Name).
	ID ClassID
	// Base is the immediate versioned ancestor, NoClass for none.
	// Base == ID marks a class that must never be upgraded.
	Base ClassID
	// New returns a fresh object with in-memory defaults.
	// Nil for pure capabilities.
	New func() Object
	// Interfaces lists the capability ids the class implements
	// besides its own id and those of its ancestors.
	Interfaces []ClassID
	Fields     FieldsFunc

	typ reflect.Type
}

// Registry maps class ids to factories and keeps the base->derived
// version links. It is not safe for concurrent mutation.
type Registry struct {
	classes   map[ClassID]*Class
	factories map[ClassID]func() Object
	derived   map[ClassID]ClassID
	types     map[reflect.Type]ClassID
}

func NewRegistry() *Registry {
	return &Registry{
		classes:   make(map[ClassID]*Class),
		factories: make(map[ClassID]func() Object),
		derived:   make(map[ClassID]ClassID),
		types:     make(map[reflect.Type]ClassID),
	}
}

// Register adds a class. Registering an id twice fails with
// ErrDuplicateClassID, which is also how name hash collisions surface.
// A class removed by Unregister may be registered again.
func (r *Registry) Register(c Class) (ClassID, error) {
	if c.Name == "" || c.New == nil {
		return NoClass, errors.Wrapf(objgraph_errors.ErrBadClass, "class %q", c.Name)
	}
	if c.ID == NoClass {
		c.ID = ClassIDOf(c.Name)
	}
	if old, ok := r.classes[c.ID]; ok {
		if old.Name != c.Name || old.New == nil || r.factories[c.ID] != nil {
			return NoClass, errors.Wrapf(objgraph_errors.ErrDuplicateClassID,
				"%q vs %q (%08x)", c.Name, old.Name, uint32(c.ID))
		}
	}
	if c.Base != NoClass && c.Base != c.ID && r.reaches(c.ID, c.Base) {
		return NoClass, errors.Wrapf(objgraph_errors.ErrBadClass, "class %q closes a version cycle", c.Name)
	}
	c.typ = reflect.TypeOf(c.New())
	if prev, ok := r.types[c.typ]; ok && prev != c.ID {
		return NoClass, errors.Wrapf(objgraph_errors.ErrBadClass, "type %s already bound to %08x", c.typ, uint32(prev))
	}
	stored := c
	r.classes[c.ID] = &stored
	r.factories[c.ID] = c.New
	r.types[c.typ] = c.ID
	switch c.Base {
	case NoClass:
	case c.ID:
		r.derived[c.ID] = c.ID
	default:
		r.derived[c.Base] = c.ID
	}
	return c.ID, nil
}

// RegisterInterface binds the Go type T (normally an interface) to a
// capability id. Capabilities may extend other capabilities.
func RegisterInterface[T any](r *Registry, name string, extends ...ClassID) (ClassID, error) {
	id := ClassIDOf(name)
	if old, ok := r.classes[id]; ok {
		return NoClass, errors.Wrapf(objgraph_errors.ErrDuplicateClassID, "%q vs %q", name, old.Name)
	}
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if _, ok := r.types[typ]; ok {
		return NoClass, errors.Wrapf(objgraph_errors.ErrBadClass, "type %s already bound", typ)
	}
	r.classes[id] = &Class{Name: name, ID: id, Interfaces: extends, typ: typ}
	r.types[typ] = id
	return id, nil
}

// MustRegister panics on registration errors; meant for package init.
func (r *Registry) MustRegister(c Class) ClassID {
	id, err := r.Register(c)
	if err != nil {
		panic(err)
	}
	return id
}

// Unregister forgets the factory of a class, as if this version of the
// class was never compiled in. Descriptors stay so that objects of
// derived versions still know their field layout.
func (r *Registry) Unregister(id ClassID) {
	delete(r.factories, id)
	for base, derived := range r.derived {
		if derived == id && base != id {
			delete(r.derived, base)
		}
	}
}

// reaches reports whether to is reachable from from over derived links.
func (r *Registry) reaches(from, to ClassID) bool {
	for i, cur := 0, from; i <= len(r.derived); i++ {
		if cur == to {
			return true
		}
		next, ok := r.derived[cur]
		if !ok || next == cur {
			return false
		}
		cur = next
	}
	panic("objgraph: version cycle in the class registry")
}

// Resolve follows the version chain from id to the most specific
// registered descendant. Falls back to id itself when the next
// version is unknown.
func (r *Registry) Resolve(id ClassID) (ClassID, error) {
	cur := id
	for i := 0; ; i++ {
		if i > len(r.derived) {
			panic("objgraph: version cycle in the class registry")
		}
		next, ok := r.derived[cur]
		if !ok || next == cur {
			break
		}
		if _, ok := r.factories[next]; !ok {
			break
		}
		cur = next
	}
	if _, ok := r.factories[cur]; !ok {
		return NoClass, errors.Wrapf(objgraph_errors.ErrClassNotFound, "class %08x", uint32(id))
	}
	return cur, nil
}

// CreateByID instantiates the resolved class. The object is not bound
// to any domain and carries no id; see Domain.CreateObj.
func (r *Registry) CreateByID(id ClassID) (Object, error) {
	cls, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}
	obj := r.factories[cls]()
	b := obj.base()
	b.class = cls
	b.reg = r
	b.self = obj
	b.flags = Loaded
	return obj, nil
}

// Class returns the descriptor, nil if unknown.
func (r *Registry) Class(id ClassID) *Class {
	return r.classes[id]
}

// Registered reports whether a factory is present.
func (r *Registry) Registered(id ClassID) bool {
	_, ok := r.factories[id]
	return ok
}

// Chain returns the version chain of a class, oldest ancestor first.
func (r *Registry) Chain(id ClassID) (chain []*Class) {
	for cur := id; cur != NoClass; {
		c, ok := r.classes[cur]
		if !ok || len(chain) > len(r.classes) {
			break
		}
		chain = append(chain, c)
		if c.Base == cur {
			break
		}
		cur = c.Base
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return
}

// Implements reports whether objects of class cls may be viewed as
// target: target is the class itself, one of its version ancestors, or a
// capability any of them declares (transitively).
func (r *Registry) Implements(cls, target ClassID) bool {
	seen := make(map[ClassID]bool)
	var walk func(id ClassID) bool
	walk = func(id ClassID) bool {
		if id == target {
			return true
		}
		if seen[id] {
			return false
		}
		seen[id] = true
		c, ok := r.classes[id]
		if !ok {
			return false
		}
		for _, i := range c.Interfaces {
			if walk(i) {
				return true
			}
		}
		return c.Base != NoClass && c.Base != id && walk(c.Base)
	}
	return walk(cls)
}

// TypeID returns the class or capability id bound to a Go type.
func (r *Registry) TypeID(t reflect.Type) (ClassID, bool) {
	id, ok := r.types[t]
	return id, ok
}
