package tx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Logical Store
// --------------------------------------------------------------------------

// LogicalStore selects one of the two data trees a transaction can address.
type LogicalStore uint8

const (
	Configuration LogicalStore = iota // intended configuration, written by clients
	Operational                       // observed state
)

func (s LogicalStore) String() string {
	switch s {
	case Configuration:
		return "configuration"
	case Operational:
		return "operational"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Valid reports whether s is one of the known stores.
func (s LogicalStore) Valid() bool {
	return s == Configuration || s == Operational
}

// ParseLogicalStore converts the textual form (as returned by String) back
// into a LogicalStore. The short forms "config" and "oper" are accepted.
func ParseLogicalStore(s string) (LogicalStore, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "configuration", "config":
		return Configuration, nil
	case "operational", "oper":
		return Operational, nil
	default:
		return 0, fmt.Errorf("invalid logical store: %q (expected configuration or operational)", s)
	}
}

// --------------------------------------------------------------------------
// Path
// --------------------------------------------------------------------------

// Path is a hierarchical identifier such as "/interfaces/eth0".
// The zero value is not a valid path, use RootPath or NewPath.
type Path string

// RootPath addresses the whole tree.
const RootPath Path = "/"

// NewPath builds a path from its segments. Empty segments are skipped.
func NewPath(segments ...string) Path {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return Path("/" + strings.Join(parts, "/"))
}

// ParsePath validates and normalizes the textual form of a path.
func ParsePath(s string) (Path, error) {
	if !strings.HasPrefix(s, "/") {
		return "", fmt.Errorf("invalid path %q: must start with '/'", s)
	}
	if s == "/" {
		return RootPath, nil
	}
	trimmed := strings.TrimSuffix(s, "/")
	for _, seg := range strings.Split(trimmed[1:], "/") {
		if seg == "" {
			return "", fmt.Errorf("invalid path %q: empty segment", s)
		}
	}
	return Path(trimmed), nil
}

// Segments returns the path elements, root has none.
func (p Path) Segments() []string {
	if p.IsRoot() {
		return nil
	}
	return strings.Split(string(p)[1:], "/")
}

func (p Path) IsRoot() bool {
	return p == RootPath || p == ""
}

// Parent returns the enclosing path. The parent of the root is the root.
func (p Path) Parent() Path {
	if p.IsRoot() {
		return RootPath
	}
	idx := strings.LastIndexByte(string(p), '/')
	if idx <= 0 {
		return RootPath
	}
	return p[:idx]
}

// Child appends a single segment.
func (p Path) Child(name string) Path {
	if p.IsRoot() {
		return NewPath(name)
	}
	return NewPath(string(p), name)
}

// IsAncestorOf reports whether o lies strictly below p.
func (p Path) IsAncestorOf(o Path) bool {
	if p.IsRoot() {
		return !o.IsRoot()
	}
	return len(o) > len(p) && strings.HasPrefix(string(o), string(p)) && o[len(p)] == '/'
}

// Contains reports whether o equals p or lies below it.
func (p Path) Contains(o Path) bool {
	return p == o || p.IsAncestorOf(o)
}

func (p Path) String() string {
	if p == "" {
		return string(RootPath)
	}
	return string(p)
}

// --------------------------------------------------------------------------
// Node
// --------------------------------------------------------------------------

// Node is an immutable payload stored at a path. The bytes are normally a
// JSON document, but nothing at this layer requires that.
type Node struct {
	data []byte
}

// NewNode copies data into a new node.
func NewNode(data []byte) Node {
	if data == nil {
		return Node{data: []byte{}}
	}
	return Node{data: bytes.Clone(data)}
}

// NewNodeString is a convenience constructor for literal payloads.
func NewNodeString(s string) Node {
	return Node{data: []byte(s)}
}

// Bytes returns a copy of the payload.
func (n Node) Bytes() []byte {
	return bytes.Clone(n.data)
}

func (n Node) Len() int {
	return len(n.data)
}

func (n Node) Equal(o Node) bool {
	return bytes.Equal(n.data, o.data)
}

func (n Node) String() string {
	return string(n.data)
}

// MergeNodes combines patch into base. When both payloads are JSON objects
// the result is their recursive union with patch winning on conflicts.
// In every other case patch replaces base.
func MergeNodes(base, patch Node) (Node, error) {
	var b, p any
	if json.Unmarshal(base.data, &b) != nil || json.Unmarshal(patch.data, &p) != nil {
		return patch, nil
	}
	bObj, bOk := b.(map[string]any)
	pObj, pOk := p.(map[string]any)
	if !bOk || !pOk {
		return patch, nil
	}
	merged, err := json.Marshal(mergeObjects(bObj, pObj))
	if err != nil {
		return Node{}, fmt.Errorf("merge: %w", err)
	}
	return Node{data: merged}, nil
}

func mergeObjects(base, patch map[string]any) map[string]any {
	for k, pv := range patch {
		bv, ok := base[k]
		if !ok {
			base[k] = pv
			continue
		}
		bObj, bOk := bv.(map[string]any)
		pObj, pOk := pv.(map[string]any)
		if bOk && pOk {
			base[k] = mergeObjects(bObj, pObj)
		} else {
			base[k] = pv
		}
	}
	return base
}

// --------------------------------------------------------------------------
// Optional
// --------------------------------------------------------------------------

// Optional is the result of a read: a value that may be absent.
type Optional[T any] struct {
	value   T
	present bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, present: true}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.present
}

func (o Optional[T]) IsPresent() bool {
	return o.present
}

func (o Optional[T]) OrElse(def T) T {
	if o.present {
		return o.value
	}
	return def
}
