package objgraph

import "reflect"

// Object is any pointer to a struct that embeds Base.
//
//	type Node struct {
//		objgraph.Base
//		Value string
//		Next  objgraph.Ptr[*Node]
//	}
type Object interface {
	base() *Base
}

// Base is the header every object embeds: identity, reference count,
// class and the domain the object lives in. Objects never move once
// constructed, handles keep a pointer to the header.
type Base struct {
	id      ObjID
	flags   Flags
	storage Storage
	class   ClassID
	refs    int
	dead    bool
	domain  *Domain
	reg     *Registry
	// self is the outermost object; handles may point at an
	// embedded level of it.
	self Object
}

func (b *Base) base() *Base { return b }

func (b *Base) ObjID() ObjID        { return b.id }
func (b *Base) ObjFlags() Flags     { return b.flags }
func (b *Base) ObjStorage() Storage { return b.storage }
func (b *Base) ObjClass() ClassID   { return b.class }
func (b *Base) ObjDomain() *Domain  { return b.domain }
func (b *Base) RefCount() int       { return b.refs }
func (b *Base) Destroyed() bool     { return b.dead }
func (b *Base) Identity() Identity  { return Identity{ID: b.id, Flags: b.flags, Storage: b.storage} }
func (b *Base) registry() *Registry { return b.reg }

// Loader is implemented by objects that want to know a Load that
// materialized them has completed.
type Loader interface {
	OnLoaded()
}

// Destroyer is implemented by objects that want to know they are
// destroyed. Called once, before the object releases its own references.
type Destroyer interface {
	OnDestroy()
}

func isNil(o Object) bool {
	if o == nil {
		return true
	}
	v := reflect.ValueOf(o)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
