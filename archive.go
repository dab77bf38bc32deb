package objgraph

import (
	"math"
	"reflect"

	"github.com/drpcorg/objgraph/objgraph_errors"
	"github.com/drpcorg/objgraph/protocol"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

type archiveMode uint8

const (
	modeWrite archiveMode = iota
	modeRead
	// modeVisit reports attached references, other fields are skipped.
	modeVisit
	// modeRelease drops every reference of an object being destroyed.
	modeRelease
)

// Record types used inside a class section.
const (
	litUint   = 'u'
	litInt    = 'i'
	litFloat  = 'f'
	litBool   = 't'
	litString = 's'
	litBytes  = 'b'
	litRef    = 'r'
)

// Archive is the field channel a FieldsFunc talks to. The same calls
// write fields when serializing, read them back when loading, and walk
// references during release. A field missing at the end of a section
// (written by an older version of the class) keeps its in-memory value.
//
//	func(n *Node, ar *objgraph.Archive) {
//		ar.String(&n.Value)
//		objgraph.Ref(ar, &n.Next)
//	}
type Archive struct {
	mode  archiveMode
	buf   []byte
	err   error
	enc   *encoder
	dec   *decoder
	visit func(b *Base)
}

func (ar *Archive) Reading() bool { return ar.mode == modeRead }
func (ar *Archive) Writing() bool { return ar.mode == modeWrite }

// Err returns the first failure, further calls are no-ops after it.
func (ar *Archive) Err() error { return ar.err }

// Fail aborts the archive with a class specific error.
func (ar *Archive) Fail(err error) {
	if ar.err == nil {
		ar.err = err
	}
}

func (ar *Archive) put(lit byte, body []byte) {
	if ar.err == nil {
		ar.buf = protocol.Append(ar.buf, lit, body)
	}
}

// take returns the next field body; ok is false when the section is
// exhausted or broken.
func (ar *Archive) take(lit byte) (body []byte, ok bool) {
	if ar.err != nil || len(ar.buf) == 0 {
		return nil, false
	}
	body, rest, err := protocol.TakeWary(lit&^protocol.CaseBit, ar.buf)
	if err != nil {
		ar.err = errors.Wrapf(objgraph_errors.ErrBadRecord, "field %c: %v", lit&^protocol.CaseBit, err)
		return nil, false
	}
	ar.buf = rest
	return body, true
}

func (ar *Archive) Uint64(v *uint64) {
	switch ar.mode {
	case modeWrite:
		ar.put(litUint, protocol.ZipUint64(*v))
	case modeRead:
		if body, ok := ar.take(litUint); ok {
			*v = protocol.UnzipUint64(body)
		}
	}
}

func (ar *Archive) Uint32(v *uint32) {
	u := uint64(*v)
	ar.Uint64(&u)
	*v = uint32(u)
}

func (ar *Archive) Uint8(v *uint8) {
	u := uint64(*v)
	ar.Uint64(&u)
	*v = uint8(u)
}

func (ar *Archive) Int64(v *int64) {
	switch ar.mode {
	case modeWrite:
		ar.put(litInt, protocol.ZipInt64(*v))
	case modeRead:
		if body, ok := ar.take(litInt); ok {
			*v = protocol.UnzipInt64(body)
		}
	}
}

func (ar *Archive) Int32(v *int32) {
	i := int64(*v)
	ar.Int64(&i)
	*v = int32(i)
}

func (ar *Archive) Int(v *int) {
	i := int64(*v)
	ar.Int64(&i)
	*v = int(i)
}

func (ar *Archive) Bool(v *bool) {
	switch ar.mode {
	case modeWrite:
		var b []byte
		if *v {
			b = []byte{1}
		}
		ar.put(litBool, b)
	case modeRead:
		if body, ok := ar.take(litBool); ok {
			*v = len(body) > 0 && body[0] != 0
		}
	}
}

func (ar *Archive) Float64(v *float64) {
	switch ar.mode {
	case modeWrite:
		ar.put(litFloat, protocol.ZipFloat64(*v))
	case modeRead:
		if body, ok := ar.take(litFloat); ok {
			*v = protocol.UnzipFloat64(body)
		}
	}
}

// Float32 is stored as float32 bits so values survive exactly.
func (ar *Archive) Float32(v *float32) {
	u := uint64(math.Float32bits(*v))
	ar.Uint64(&u)
	*v = math.Float32frombits(uint32(u))
}

func (ar *Archive) String(v *string) {
	switch ar.mode {
	case modeWrite:
		ar.put(litString, []byte(*v))
	case modeRead:
		if body, ok := ar.take(litString); ok {
			*v = string(body)
		}
	}
}

func (ar *Archive) Bytes(v *[]byte) {
	switch ar.mode {
	case modeWrite:
		ar.put(litBytes, *v)
	case modeRead:
		if body, ok := ar.take(litBytes); ok {
			*v = append([]byte(nil), body...)
		}
	}
}

// Ref writes, reads or walks a single reference field.
func Ref[T Object](ar *Archive, p *Ptr[T]) {
	if ar.err != nil {
		return
	}
	switch ar.mode {
	case modeWrite:
		ar.buf, ar.err = ar.enc.writeRef(ar.buf, p.b, p.ident)
	case modeRead:
		body, ok := ar.take(litRef)
		if !ok {
			return
		}
		obj, ident, err := ar.dec.readRef(body)
		if err != nil {
			ar.err = err
			return
		}
		p.Release()
		if obj == nil {
			p.ident = ident
			return
		}
		if t, ok := bindAs[T](obj); ok {
			p.attach(t)
			return
		}
		ar.dec.domain.log.Warn("reference of unexpected class left unloaded",
			"id", ident.ID, "class", obj.base().class)
		p.ident = ident.placeholder()
	case modeVisit:
		if p.b != nil {
			ar.visit(p.b)
		}
	case modeRelease:
		p.Release()
	}
}

// Refs handles a slice of references: a count followed by each element.
func Refs[T Object](ar *Archive, ps *[]Ptr[T]) {
	switch ar.mode {
	case modeWrite:
		n := uint64(len(*ps))
		ar.Uint64(&n)
		for i := range *ps {
			Ref(ar, &(*ps)[i])
		}
	case modeRead:
		body, ok := ar.take(litUint)
		if !ok {
			return
		}
		n := protocol.UnzipUint64(body)
		if n > uint64(len(ar.buf)) {
			ar.err = errors.Wrapf(objgraph_errors.ErrBadRecord, "%d references in %d bytes", n, len(ar.buf))
			return
		}
		for i := range *ps {
			(*ps)[i].Release()
		}
		refs := make([]Ptr[T], n)
		for i := range refs {
			Ref(ar, &refs[i])
		}
		*ps = refs
	case modeVisit:
		for i := range *ps {
			Ref(ar, &(*ps)[i])
		}
	case modeRelease:
		for i := range *ps {
			(*ps)[i].Release()
		}
		*ps = nil
	}
}

// FieldsOf adapts a function over a concrete level struct T to a
// FieldsFunc. Objects of derived versions embed T, the level is found
// among their embedded structs.
func FieldsOf[T any](fn func(t *T, ar *Archive)) FieldsFunc {
	typ := reflect.TypeOf((**T)(nil)).Elem()
	return func(o Object, ar *Archive) {
		if t, ok := any(o).(*T); ok {
			fn(t, ar)
			return
		}
		lvl, ok := levelOf(o, typ)
		if !ok {
			ar.Fail(errors.Wrapf(objgraph_errors.ErrBadClass, "%T does not embed %s", o, typ.Elem()))
			return
		}
		fn(lvl.(*T), ar)
	}
}

type levelKey struct {
	outer, level reflect.Type
}

var levelPaths = xsync.NewMapOf[levelKey, []int]()

// levelOf finds a struct of type want (a pointer type) embedded, at any
// depth, in the object o and returns a pointer to it.
func levelOf(o Object, want reflect.Type) (any, bool) {
	v := reflect.ValueOf(o)
	if want.Kind() != reflect.Pointer || want.Elem().Kind() != reflect.Struct ||
		v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, false
	}
	key := levelKey{outer: v.Type(), level: want}
	path, ok := levelPaths.Load(key)
	if !ok {
		path = findEmbedded(v.Type().Elem(), want.Elem())
		levelPaths.Store(key, path)
	}
	if path == nil {
		return nil, false
	}
	return v.Elem().FieldByIndex(path).Addr().Interface(), true
}

func findEmbedded(outer, want reflect.Type) []int {
	type step struct {
		t    reflect.Type
		path []int
	}
	queue := []step{{t: outer}}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for i := 0; i < s.t.NumField(); i++ {
			f := s.t.Field(i)
			if !f.Anonymous || !f.IsExported() || f.Type.Kind() != reflect.Struct {
				continue
			}
			path := append(append([]int{}, s.path...), i)
			if f.Type == want {
				return path
			}
			queue = append(queue, step{t: f.Type, path: path})
		}
	}
	return nil
}
