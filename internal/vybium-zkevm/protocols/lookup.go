package protocols

import (
	"strings"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
)

// RangeTable holds the single-column values [0, bound)
type RangeTable struct {
	name  string
	bound uint64
}

// NewRangeTable creates a range table
func NewRangeTable(name string, bound uint64) *RangeTable {
	return &RangeTable{name: name, bound: bound}
}

// U32Table is the range table used for every 32-bit check
var U32Table = NewRangeTable("u32", 1<<32)

// Name returns the table name
func (t *RangeTable) Name() string { return t.name }

// Contains reports whether every tuple entry is below the bound
func (t *RangeTable) Contains(tuple []field.Element) bool {
	if len(tuple) == 0 {
		return false
	}
	for _, v := range tuple {
		if v.Value() >= t.bound {
			return false
		}
	}
	return true
}

// TupleTable is an explicit set of fixed-width tuples
type TupleTable struct {
	name  string
	width int
	rows  map[string]struct{}
	list  [][]field.Element
}

// NewTupleTable creates an empty table of the given width
func NewTupleTable(name string, width int) *TupleTable {
	return &TupleTable{name: name, width: width, rows: make(map[string]struct{})}
}

func tupleKey(tuple []field.Element) string {
	var b strings.Builder
	for i, v := range tuple {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(v.String())
	}
	return b.String()
}

// Insert adds a row; rows of the wrong width are ignored
func (t *TupleTable) Insert(tuple ...field.Element) {
	if len(tuple) != t.width {
		return
	}
	key := tupleKey(tuple)
	if _, ok := t.rows[key]; ok {
		return
	}
	t.rows[key] = struct{}{}
	t.list = append(t.list, append([]field.Element(nil), tuple...))
}

// Name returns the table name
func (t *TupleTable) Name() string { return t.name }

// Width returns the tuple width
func (t *TupleTable) Width() int { return t.width }

// Len returns the number of rows
func (t *TupleTable) Len() int { return len(t.list) }

// Rows returns the rows in insertion order
func (t *TupleTable) Rows() [][]field.Element { return t.list }

// Contains reports whether tuple is a row of the table
func (t *TupleTable) Contains(tuple []field.Element) bool {
	if len(tuple) != t.width {
		return false
	}
	_, ok := t.rows[tupleKey(tuple)]
	return ok
}

// FuncTable is a relation decided by a predicate, used for tables too large
// to enumerate.
type FuncTable struct {
	name string
	fn   func(tuple []field.Element) bool
}

// NewFuncTable creates a predicate table
func NewFuncTable(name string, fn func(tuple []field.Element) bool) *FuncTable {
	return &FuncTable{name: name, fn: fn}
}

// Name returns the table name
func (t *FuncTable) Name() string { return t.name }

// Contains evaluates the predicate
func (t *FuncTable) Contains(tuple []field.Element) bool { return t.fn(tuple) }
