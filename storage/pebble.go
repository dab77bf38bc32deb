package storage

import (
	"log/slog"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/objgraph"
	"github.com/drpcorg/objgraph/objgraph_errors"
	"github.com/drpcorg/objgraph/utils"
	"github.com/pkg/errors"
)

type PebbleOptions struct {
	pebble.Options
	// Sync makes every Store wait for the WAL to hit the disk.
	Sync   bool
	Logger utils.Logger
}

func (o *PebbleOptions) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
}

// Pebble keeps records in a pebble database under OKey keys.
type Pebble struct {
	db   *pebble.DB
	dir  string
	opts PebbleOptions
	wo   pebble.WriteOptions
}

// OpenPebble opens or creates the database at dir.
func OpenPebble(dir string, opts PebbleOptions) (*Pebble, error) {
	opts.SetDefaults()
	popts := opts.Options
	db, err := pebble.Open(dir, &popts)
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble at %s", dir)
	}
	opts.Logger.Debug("pebble opened", "dir", dir)
	return &Pebble{db: db, dir: dir, opts: opts, wo: pebble.WriteOptions{Sync: opts.Sync}}, nil
}

func (p *Pebble) Store(id objgraph.ObjID, storage objgraph.Storage, data []byte) error {
	return p.db.Set(OKey(id, storage), data, &p.wo)
}

func (p *Pebble) Load(id objgraph.ObjID, storage objgraph.Storage) ([]byte, error) {
	val, closer, err := p.db.Get(OKey(id, storage))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, errors.Wrapf(objgraph_errors.ErrNotStored, "pebble %s/%d", id, storage)
	} else if err != nil {
		return nil, err
	}
	data := append([]byte(nil), val...)
	_ = closer.Close()
	return data, nil
}

func (p *Pebble) Enumerate(id objgraph.ObjID) (buckets []objgraph.Storage, err error) {
	// the upper bound sorts right after the last bucket of id
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: OKey(id, 0),
		UpperBound: append(OKey(id, 0xff), 0),
	})
	if err != nil {
		return nil, err
	}
	for valid := it.First(); valid; valid = it.Next() {
		if _, st, ok := OKeyIDStorage(it.Key()); ok {
			buckets = append(buckets, st)
		}
	}
	return buckets, it.Close()
}

// Delete drops a record.
func (p *Pebble) Delete(id objgraph.ObjID, storage objgraph.Storage) error {
	return p.db.Delete(OKey(id, storage), &p.wo)
}

// Collector exposes the database metrics to prometheus.
func (p *Pebble) Collector() *PebbleCollector {
	return NewPebbleCollector(p.db)
}

func (p *Pebble) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	if err != nil {
		p.opts.Logger.Error("pebble close failed", "dir", p.dir, "err", err)
	}
	return err
}
