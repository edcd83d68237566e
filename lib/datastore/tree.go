package datastore

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/ValentinKolb/dTX/lib/tx"
)

// OpType is the kind of a buffered modification.
type OpType uint8

const (
	OpPut    OpType = iota // replace the subtree
	OpMerge                // merge into the existing node
	OpDelete               // remove the subtree
)

func (o OpType) String() string {
	switch o {
	case OpPut:
		return "put"
	case OpMerge:
		return "merge"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("unknown(%d)", o)
	}
}

// Modification is one entry of a transaction's modification log.
type Modification struct {
	Op    OpType
	Store tx.LogicalStore
	Path  tx.Path
	Data  tx.Node // unset for OpDelete
}

// Tree holds the nodes of both logical stores. A tree that has been
// published (as a broker head or a snapshot) must not be modified,
// writers work on a Clone.
type Tree struct {
	version uint64
	stores  [2]map[tx.Path]tx.Node
}

func NewTree() *Tree {
	return &Tree{stores: [2]map[tx.Path]tx.Node{{}, {}}}
}

// Version counts the commits applied to the tree.
func (t *Tree) Version() uint64 {
	return t.version
}

// SetVersion is used by brokers after applying a commit.
func (t *Tree) SetVersion(v uint64) {
	t.version = v
}

func (t *Tree) Clone() *Tree {
	c := &Tree{version: t.version}
	for i, s := range t.stores {
		c.stores[i] = make(map[tx.Path]tx.Node, len(s))
		for p, n := range s {
			c.stores[i][p] = n
		}
	}
	return c
}

// Read returns the node stored exactly at path.
func (t *Tree) Read(store tx.LogicalStore, path tx.Path) tx.Optional[tx.Node] {
	if !store.Valid() {
		return tx.None[tx.Node]()
	}
	if n, ok := t.stores[store][path]; ok {
		return tx.Some(n)
	}
	return tx.None[tx.Node]()
}

// Exists reports whether a node is stored at path or anywhere below it.
func (t *Tree) Exists(store tx.LogicalStore, path tx.Path) bool {
	if !store.Valid() {
		return false
	}
	if _, ok := t.stores[store][path]; ok {
		return true
	}
	for p := range t.stores[store] {
		if path.IsAncestorOf(p) {
			return true
		}
	}
	return false
}

// Len returns the number of nodes in store.
func (t *Tree) Len(store tx.LogicalStore) int {
	if !store.Valid() {
		return 0
	}
	return len(t.stores[store])
}

// Walk visits the nodes of store in path order until fn returns false.
func (t *Tree) Walk(store tx.LogicalStore, fn func(tx.Path, tx.Node) bool) {
	if !store.Valid() {
		return
	}
	paths := make([]tx.Path, 0, len(t.stores[store]))
	for p := range t.stores[store] {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	for _, p := range paths {
		if !fn(p, t.stores[store][p]) {
			return
		}
	}
}

// Apply performs m on the tree in place.
func (t *Tree) Apply(m Modification) error {
	if !m.Store.Valid() {
		return NewError(RetCInvalidOperation, fmt.Sprintf("unknown logical store %d", m.Store))
	}
	nodes := t.stores[m.Store]

	switch m.Op {
	case OpPut:
		t.removeSubtree(nodes, m.Path)
		nodes[m.Path] = m.Data
	case OpMerge:
		existing, ok := nodes[m.Path]
		if !ok {
			nodes[m.Path] = m.Data
			return nil
		}
		merged, err := tx.MergeNodes(existing, m.Data)
		if err != nil {
			return NewError(RetCInternalError, err.Error())
		}
		nodes[m.Path] = merged
	case OpDelete:
		t.removeSubtree(nodes, m.Path)
	default:
		return NewError(RetCInvalidOperation, fmt.Sprintf("unknown modification %s", m.Op))
	}
	return nil
}

func (t *Tree) removeSubtree(nodes map[tx.Path]tx.Node, path tx.Path) {
	delete(nodes, path)
	for p := range nodes {
		if path.IsAncestorOf(p) {
			delete(nodes, p)
		}
	}
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

type treeSnapshot struct {
	Version     uint64            `json:"version"`
	Config      map[string][]byte `json:"configuration"`
	Operational map[string][]byte `json:"operational"`
}

// Save writes the tree as a JSON document.
func (t *Tree) Save(w io.Writer) error {
	snap := treeSnapshot{
		Version:     t.version,
		Config:      make(map[string][]byte, len(t.stores[tx.Configuration])),
		Operational: make(map[string][]byte, len(t.stores[tx.Operational])),
	}
	for p, n := range t.stores[tx.Configuration] {
		snap.Config[string(p)] = n.Bytes()
	}
	for p, n := range t.stores[tx.Operational] {
		snap.Operational[string(p)] = n.Bytes()
	}
	return json.NewEncoder(w).Encode(snap)
}

// LoadTree reads a tree written by Save.
func LoadTree(r io.Reader) (*Tree, error) {
	var snap treeSnapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode tree snapshot: %w", err)
	}
	t := NewTree()
	t.version = snap.Version
	for p, b := range snap.Config {
		t.stores[tx.Configuration][tx.Path(p)] = tx.NewNode(b)
	}
	for p, b := range snap.Operational {
		t.stores[tx.Operational][tx.Path(p)] = tx.NewNode(b)
	}
	return t, nil
}
