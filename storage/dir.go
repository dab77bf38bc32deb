package storage

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/drpcorg/objgraph"
	"github.com/drpcorg/objgraph/objgraph_errors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const tmpPrefix = ".tmp-"

// Dir keeps every record in its own file, root/<id>/<storage>.
// Records are written to a temporary file and renamed in place.
type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "state dir %s", root)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Root() string { return d.root }

func (d *Dir) objectDir(id objgraph.ObjID) string {
	return filepath.Join(d.root, id.String())
}

func (d *Dir) Store(id objgraph.ObjID, storage objgraph.Storage, data []byte) error {
	dir := d.objectDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, tmpPrefix+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, strconv.Itoa(int(storage))))
}

func (d *Dir) Load(id objgraph.ObjID, storage objgraph.Storage) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.objectDir(id), strconv.Itoa(int(storage))))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(objgraph_errors.ErrNotStored, "dir %s/%d", id, storage)
	}
	return data, err
}

func (d *Dir) Enumerate(id objgraph.ObjID) (buckets []objgraph.Storage, err error) {
	entries, err := os.ReadDir(d.objectDir(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		n, perr := strconv.ParseUint(e.Name(), 10, 8)
		if perr != nil {
			continue
		}
		buckets = append(buckets, objgraph.Storage(n))
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })
	return buckets, nil
}
