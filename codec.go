package objgraph

import (
	"github.com/drpcorg/objgraph/objgraph_errors"
	"github.com/drpcorg/objgraph/protocol"
	"github.com/pkg/errors"
)

// Object record layout:
//
//	K class id of the object
//	C section per class level, oldest ancestor first:
//	  K class id of the level
//	  ... fields, as written by the level's FieldsFunc
//
// A reference is an 'r' record holding ZipUint64Pair(id, flags|storage<<8).
const (
	litClass   = 'K'
	litSection = 'C'
)

func appendIdentity(buf []byte, ident Identity) []byte {
	return protocol.Append(buf, litRef,
		protocol.ZipUint64Pair(uint64(ident.ID), uint64(ident.Flags)|uint64(ident.Storage)<<8))
}

func parseIdentity(body []byte) (Identity, error) {
	id, meta, ok := protocol.UnzipUint64Pair(body)
	if !ok || id > 0xffffffff || meta > 0xffff {
		return Identity{}, errors.Wrapf(objgraph_errors.ErrBadRecord, "reference %x", body)
	}
	return Identity{ID: ObjID(id), Flags: Flags(meta), Storage: Storage(meta >> 8)}, nil
}

type storeFunc func(id ObjID, storage Storage, data []byte) error

type loadFunc func(id ObjID, storage Storage) ([]byte, error)

// encoder runs one Serialize pass.
type encoder struct {
	root  *Domain
	flags SerializeFlags
	// visited counts the references met per object
	visited map[*Base]int
	// sink, when set, takes every record instead of the domains
	sink   storeFunc
	stored int
}

func newEncoder(root *Domain, flags SerializeFlags) *encoder {
	return &encoder{
		root:    root,
		flags:   flags,
		visited: make(map[*Base]int),
	}
}

// writeRef appends the reference identity and stores the object behind
// it, once per pass.
func (e *encoder) writeRef(buf []byte, b *Base, ident Identity) ([]byte, error) {
	if b == nil {
		if !ident.Flags.Has(Loadable) {
			ident = Identity{}
		}
		return appendIdentity(buf, ident), nil
	}
	ident = b.Identity()
	if ident.Flags.Has(UnloadedByDefault) {
		ident = ident.placeholder()
	}
	buf = appendIdentity(buf, ident)
	if e.visited[b]++; e.visited[b] > 1 {
		return buf, nil
	}
	if b.flags.Has(Const) && e.flags&SerializeConsts == 0 {
		return buf, nil
	}
	rec, err := e.encodeObject(b)
	if err != nil {
		return buf, err
	}
	if e.sink != nil {
		err = e.sink(b.id, b.storage, rec)
	} else {
		d := e.root
		if b.domain != nil && b.domain.storer() != nil {
			d = b.domain
		}
		err = d.storeRecord(b.id, b.storage, rec)
	}
	if err != nil {
		return buf, err
	}
	e.stored++
	ObjectsStored.Inc()
	return buf, nil
}

func (e *encoder) encodeObject(b *Base) ([]byte, error) {
	reg := b.registry()
	if reg == nil {
		return nil, errors.Wrapf(objgraph_errors.ErrBadClass, "object %s has no class", b.id)
	}
	rec := protocol.Append(nil, litClass, protocol.ZipUint64(uint64(b.class)))
	for _, c := range reg.Chain(b.class) {
		bm, buf := protocol.OpenHeader(rec, litSection)
		buf = protocol.Append(buf, litClass, protocol.ZipUint64(uint64(c.ID)))
		ar := Archive{mode: modeWrite, buf: buf, enc: e}
		if c.Fields != nil {
			c.Fields(b.self, &ar)
		}
		if ar.err != nil {
			return nil, errors.WithMessagef(ar.err, "object %s level %s", b.id, c.Name)
		}
		rec = ar.buf
		protocol.CloseHeader(rec, bm)
	}
	return rec, nil
}

// decoder runs one Load pass. New objects become resident in domain,
// records come from load.
type decoder struct {
	domain *Domain
	load   loadFunc
	loaded []*Base
}

func newDecoder(domain *Domain, load loadFunc) *decoder {
	return &decoder{domain: domain, load: load}
}

// run materializes the object named by ident together with everything
// it references. On failure the objects loaded so far leave the domain.
func (dec *decoder) run(ident Identity) (Object, error) {
	root := dec.domain.root()
	root.suspend++
	obj, err := dec.materialize(ident)
	root.suspend--
	if err != nil {
		dec.abort()
		return nil, err
	}
	return obj, nil
}

// abort discards the objects loaded so far. The references they took
// are given back, Destroyer hooks do not run.
func (dec *decoder) abort() {
	root := dec.domain.root()
	root.suspend++
	for _, b := range dec.loaded {
		b.refs = 0
		b.dead = true
	}
	for _, b := range dec.loaded {
		teardown(b)
		dec.domain.forget(b)
	}
	root.suspend--
	dec.loaded = nil
}

// finish runs the OnLoaded hooks, once per object loaded by this pass.
func (dec *decoder) finish() {
	for _, b := range dec.loaded {
		ObjectsLoaded.Inc()
		if l, ok := b.self.(Loader); ok {
			l.OnLoaded()
		}
	}
	dec.domain.log.Debug("loaded", "objects", len(dec.loaded))
	dec.loaded = nil
}

// readRef decodes a reference body: nil object with the identity for
// null handles and placeholders.
func (dec *decoder) readRef(body []byte) (Object, Identity, error) {
	ident, err := parseIdentity(body)
	if err != nil {
		return nil, Identity{}, err
	}
	if !ident.ID.Valid() {
		return nil, Identity{}, nil
	}
	if !ident.Flags.Has(Loaded) {
		return nil, ident, nil
	}
	obj, err := dec.materialize(ident)
	if errors.Is(err, objgraph_errors.ErrClassNotFound) {
		dec.domain.log.Warn("unknown class, reference left unloaded", "id", ident.ID, "err", err)
		return nil, ident.placeholder(), nil
	}
	return obj, ident, err
}

type section struct {
	class ClassID
	body  []byte
}

func (dec *decoder) materialize(ident Identity) (Object, error) {
	if b := dec.domain.find(ident.ID); b != nil {
		return b.self, nil
	}
	data, err := dec.load(ident.ID, ident.Storage)
	if err != nil {
		return nil, err
	}
	class, sections, err := splitRecord(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "object %s", ident.ID)
	}
	reg := dec.domain.reg
	cls, err := reg.Resolve(class)
	// an unknown newer version reads as the nearest known ancestor
	for i := len(sections) - 1; err != nil && i >= 0; i-- {
		cls, err = reg.Resolve(sections[i].class)
	}
	if err != nil {
		return nil, errors.Wrapf(objgraph_errors.ErrClassNotFound, "object %s class %08x", ident.ID, uint32(class))
	}
	obj, err := reg.CreateByID(cls)
	if err != nil {
		return nil, err
	}
	b := obj.base()
	b.id = ident.ID
	b.flags = ident.Flags | Loaded
	b.storage = ident.Storage
	reserveID(ident.ID)
	dec.domain.adopt(b)
	dec.loaded = append(dec.loaded, b)

	levels := make(map[ClassID]*Class)
	for _, c := range reg.Chain(b.class) {
		levels[c.ID] = c
	}
	for _, s := range sections {
		c, ok := levels[s.class]
		if !ok || c.Fields == nil {
			continue
		}
		ar := Archive{mode: modeRead, buf: s.body, dec: dec}
		c.Fields(obj, &ar)
		if ar.err != nil {
			return nil, errors.WithMessagef(ar.err, "object %s level %s", ident.ID, c.Name)
		}
	}
	return obj, nil
}

func splitRecord(data []byte) (class ClassID, sections []section, err error) {
	body, rest, err := protocol.TakeWary(litClass, data)
	if err != nil {
		return NoClass, nil, errors.Wrapf(objgraph_errors.ErrBadRecord, "class: %v", err)
	}
	class = ClassID(protocol.UnzipUint64(body))
	for len(rest) > 0 {
		var sec []byte
		sec, rest, err = protocol.TakeWary(litSection, rest)
		if err != nil {
			return NoClass, nil, errors.Wrapf(objgraph_errors.ErrBadRecord, "section: %v", err)
		}
		lvl, fields, err := protocol.TakeWary(litClass, sec)
		if err != nil {
			return NoClass, nil, errors.Wrapf(objgraph_errors.ErrBadRecord, "section class: %v", err)
		}
		sections = append(sections, section{class: ClassID(protocol.UnzipUint64(lvl)), body: fields})
	}
	return class, sections, nil
}
