// Package schema describes every generation of the on-disk model.
//
// Each generation is a Model: an immutable set of entity descriptors built by
// a constructor in catalogue.go. Descriptors drive both the DDL the migration
// engine emits and the column set the store reads and writes, so a store never
// has to guess which shape it is looking at.
package schema

import (
	"github.com/hyperengineering/marquee/internal/sortkey"
)

// AttributeType is the logical type of an attribute.
type AttributeType int

const (
	TypeText AttributeType = iota + 1
	TypeInteger
	TypeBoolean
	// TypeStringList is an ordered list of strings stored as a JSON array.
	TypeStringList
)

// SQL returns the SQLite column type for t.
func (t AttributeType) SQL() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// Attribute describes one stored column of an entity.
type Attribute struct {
	Name     string
	Type     AttributeType
	Nullable bool
	// Default is a SQL literal used for existing rows when the column is added.
	Default string
	// Stable is true when the storage representation is unchanged from the
	// previous generation. A carried-over attribute that is not stable forces
	// a table rebuild.
	Stable  bool
	Indexed bool
	Unique  bool
}

// IdentityStrategy is how an entity's primary key is assigned.
type IdentityStrategy int

const (
	// IdentityUUID keys rows by a client-generated UUID string.
	IdentityUUID IdentityStrategy = iota + 1
	// IdentitySurrogate keys rows by a store-assigned integer.
	IdentitySurrogate
)

// Cardinality of a relationship.
type Cardinality int

const (
	OneToMany Cardinality = iota + 1
	ManyToMany
)

// JoinTable is the explicit join representation of a many-to-many relationship.
type JoinTable struct {
	Name         string
	SourceColumn string
	TargetColumn string
	// OrderColumn keeps the per-source ordering of targets. Optional.
	OrderColumn string
}

// Relationship describes a named, typed edge from one entity to another.
// For many-to-many relationships exactly one side is the Owner; the owner
// side's join table is the one created in storage and both sides read it.
type Relationship struct {
	Name        string
	Target      string
	Inverse     string
	Cardinality Cardinality
	Join        JoinTable
	Owner       bool
}

// Entity describes one stored entity type.
type Entity struct {
	Name          string
	Table         string
	Identity      IdentityStrategy
	Attributes    []Attribute
	Relationships []Relationship
}

// Attribute returns the named attribute.
func (e Entity) Attribute(name string) (Attribute, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// HasAttribute reports whether the entity stores the named attribute.
func (e Entity) HasAttribute(name string) bool {
	_, ok := e.Attribute(name)
	return ok
}

// Relationship returns the named relationship.
func (e Entity) Relationship(name string) (Relationship, bool) {
	for _, r := range e.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return Relationship{}, false
}

// Columns returns the entity's column names, identity first.
func (e Entity) Columns() []string {
	cols := make([]string, 0, len(e.Attributes)+1)
	cols = append(cols, ColumnID)
	for _, a := range e.Attributes {
		cols = append(cols, a.Name)
	}
	return cols
}

// Model is one schema generation.
type Model struct {
	Version  Version
	Entities []Entity
	// Articles is the leading-article set used to derive sortable titles in
	// this generation. Empty when the generation stores no sortable title.
	Articles []string
}

// Entity returns the named entity descriptor.
func (m Model) Entity(name string) (Entity, bool) {
	for _, e := range m.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

// IsEmpty reports whether m describes a store with no tables.
func (m Model) IsEmpty() bool { return len(m.Entities) == 0 }

// Deriver returns the sortable-key deriver for this generation.
func (m Model) Deriver() sortkey.Deriver {
	return sortkey.New(m.Articles...)
}

// JoinTables returns the join tables owned by entities of m.
func (m Model) JoinTables() []JoinTable {
	var joins []JoinTable
	for _, e := range m.Entities {
		for _, r := range e.Relationships {
			if r.Cardinality == ManyToMany && r.Owner {
				joins = append(joins, r.Join)
			}
		}
	}
	return joins
}
