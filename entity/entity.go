// Package entity discovers device entities from per-service ioc.yaml
// documents and groups them by channel prefix.
package entity

import (
	"sort"
	"strings"
)

// Entity is a device record discovered in a service configuration.
// Empty M or R means the qualifier is absent.
type Entity struct {
	Type string
	Desc string
	P    string
	M    string
	R    string
}

// New builds an entity, stripping a single leading ':' from the qualifiers.
func New(typ, desc, p, m, r string) Entity {
	return Entity{
		Type: typ,
		Desc: desc,
		P:    p,
		M:    strings.TrimPrefix(m, ":"),
		R:    strings.TrimPrefix(r, ":"),
	}
}

// DisplayName returns M, else R, else the entity type.
func (e Entity) DisplayName() string {
	switch {
	case e.M != "":
		return e.M
	case e.R != "":
		return e.R
	default:
		return e.Type
	}
}

// Env exposes the entity fields to component filter expressions.
func (e Entity) Env() map[string]interface{} {
	return map[string]interface{}{
		"Type": e.Type,
		"Desc": e.Desc,
		"P":    e.P,
		"M":    e.M,
		"R":    e.R,
	}
}

// Table groups entities by P. Prefixes keep their discovery order and
// entities keep their insertion order inside a prefix.
type Table struct {
	order   []string
	buckets map[string][]Entity
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{buckets: make(map[string][]Entity)}
}

// Add appends an entity to the bucket of its prefix.
func (t *Table) Add(e Entity) {
	if t.buckets == nil {
		t.buckets = make(map[string][]Entity)
	}
	if _, ok := t.buckets[e.P]; !ok {
		t.order = append(t.order, e.P)
	}
	t.buckets[e.P] = append(t.buckets[e.P], e)
}

// Get returns a copy of the bucket for prefix.
func (t *Table) Get(prefix string) []Entity {
	if t == nil {
		return nil
	}
	bucket := t.buckets[prefix]
	if len(bucket) == 0 {
		return nil
	}
	return append([]Entity(nil), bucket...)
}

// Has reports whether any entity was discovered for prefix.
func (t *Table) Has(prefix string) bool {
	if t == nil {
		return false
	}
	_, ok := t.buckets[prefix]
	return ok
}

// Prefixes returns the known prefixes in discovery order.
func (t *Table) Prefixes() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.order...)
}

// SortedPrefixes returns the known prefixes in lexical order.
func (t *Table) SortedPrefixes() []string {
	prefixes := t.Prefixes()
	sort.Strings(prefixes)
	return prefixes
}

// Len returns the number of distinct prefixes.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Count returns the total number of entities.
func (t *Table) Count() int {
	if t == nil {
		return 0
	}
	total := 0
	for _, bucket := range t.buckets {
		total += len(bucket)
	}
	return total
}
