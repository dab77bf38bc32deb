package objgraph

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ObjID names an object; 0 is the null id and never denotes a real object.
type ObjID uint32

const NoID ObjID = 0

var lastID atomic.Uint32

// GenerateID returns a process-wide unique id.
func GenerateID() ObjID {
	return ObjID(lastID.Add(1))
}

// reserveID keeps generated ids from colliding with explicitly chosen ones.
func reserveID(id ObjID) {
	for {
		last := lastID.Load()
		if uint32(id) <= last || lastID.CompareAndSwap(last, uint32(id)) {
			return
		}
	}
}

func (id ObjID) Valid() bool {
	return id != NoID
}

func (id ObjID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

type Flags uint8

const (
	// Loadable marks a reference that may be resolved from storage even
	// while no live object is attached.
	Loadable Flags = 1 << iota
	// Loaded is set on every live object.
	Loaded
	// Const objects are stored by their creator only.
	Const
	// UnloadedByDefault objects are referenced as placeholders when written.
	UnloadedByDefault
)

func (f Flags) Has(m Flags) bool {
	return f&m == m
}

func (f Flags) String() string {
	var parts []string
	names := []string{"loadable", "loaded", "const", "unloaded-by-default"}
	for i, name := range names {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}

// Storage selects a storage bucket of a backend.
type Storage uint8

// Identity is the (id, flags, storage) triple carried by handles and
// written for every reference.
type Identity struct {
	ID      ObjID
	Flags   Flags
	Storage Storage
}

func (i Identity) IsNull() bool {
	return !i.ID.Valid()
}

func (i Identity) String() string {
	return i.ID.String() + "/" + strconv.Itoa(int(i.Storage)) + "(" + i.Flags.String() + ")"
}

// placeholder is the identity a detached handle keeps for a loadable object.
func (i Identity) placeholder() Identity {
	i.Flags = (i.Flags | Loadable) &^ Loaded
	return i
}
