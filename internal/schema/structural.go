package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotLightweight is returned when two generations differ in a way the
// storage engine cannot apply mechanically: identity strategy, relationship
// shape, or a column that cannot be added in place.
var ErrNotLightweight = errors.New("schema: change requires a custom stage")

// Structural returns the statements that mechanically transform storage
// shaped like from into storage shaped like to. Tables are created and
// dropped, columns added and dropped, indexes created and dropped, and a
// table whose carried-over attribute lost its Stable flag is rebuilt by copy.
func Structural(from, to Model) ([]string, error) {
	return diff(from, to, false)
}

// Rebuild is Structural for the swap step of a custom stage: entities that
// cannot be transformed mechanically are dropped and recreated empty. The
// caller is responsible for having preserved their rows.
func Rebuild(from, to Model) ([]string, error) {
	return diff(from, to, true)
}

type ddlPlan struct {
	dropIndexes  []string
	dropJoins    []string
	dropTables   []string
	copies       []string
	alters       []string
	createTables []string
	createJoins  []string
	createIndex  []string
}

func (p *ddlPlan) statements() []string {
	var out []string
	for _, group := range [][]string{
		p.dropIndexes, p.dropJoins, p.dropTables, p.copies,
		p.alters, p.createTables, p.createJoins, p.createIndex,
	} {
		out = append(out, group...)
	}
	return out
}

func (p *ddlPlan) merge(o ddlPlan) {
	p.dropIndexes = append(p.dropIndexes, o.dropIndexes...)
	p.dropJoins = append(p.dropJoins, o.dropJoins...)
	p.dropTables = append(p.dropTables, o.dropTables...)
	p.copies = append(p.copies, o.copies...)
	p.alters = append(p.alters, o.alters...)
	p.createTables = append(p.createTables, o.createTables...)
	p.createJoins = append(p.createJoins, o.createJoins...)
	p.createIndex = append(p.createIndex, o.createIndex...)
}

type ownedJoin struct {
	owner Entity
	rel   Relationship
}

func joinsByName(m Model) map[string]ownedJoin {
	joins := make(map[string]ownedJoin)
	for _, e := range m.Entities {
		for _, r := range e.Relationships {
			if r.Cardinality == ManyToMany && r.Owner {
				joins[r.Join.Name] = ownedJoin{owner: e, rel: r}
			}
		}
	}
	return joins
}

func diff(from, to Model, rebuild bool) ([]string, error) {
	var p ddlPlan
	// Entities whose table is dropped or recreated; join tables touching
	// them must be recreated too.
	replaced := make(map[string]bool)
	fromJoins := joinsByName(from)

	for _, fe := range from.Entities {
		if _, ok := to.Entity(fe.Name); !ok {
			p.dropTables = append(p.dropTables, dropTableSQL(fe.Table))
			replaced[fe.Name] = true
		}
	}

	for _, te := range to.Entities {
		fe, ok := from.Entity(te.Name)
		if !ok {
			p.createTables = append(p.createTables, te.CreateTableSQL())
			p.createIndex = append(p.createIndex, te.IndexSQL()...)
			replaced[te.Name] = true
			continue
		}

		step, err := alterEntity(fe, te, fromJoins)
		if err == nil {
			p.merge(step)
			continue
		}
		if !rebuild || !errors.Is(err, ErrNotLightweight) {
			return nil, err
		}
		p.dropTables = append(p.dropTables, dropTableSQL(fe.Table))
		p.createTables = append(p.createTables, te.CreateTableSQL())
		p.createIndex = append(p.createIndex, te.IndexSQL()...)
		replaced[te.Name] = true
	}

	toJoins := joinsByName(to)
	dropped := make(map[string]bool)
	for _, name := range sortedNames(fromJoins) {
		fj := fromJoins[name]
		tj, keep := toJoins[name]
		if keep && tj.rel == fj.rel && !replaced[fj.owner.Name] && !replaced[fj.rel.Target] {
			continue
		}
		p.dropJoins = append(p.dropJoins, dropTableSQL(name))
		dropped[name] = true
	}
	for _, name := range sortedNames(toJoins) {
		tj := toJoins[name]
		if _, existed := fromJoins[name]; existed && !dropped[name] {
			continue
		}
		stmts, err := to.JoinTableSQL(tj.owner, tj.rel)
		if err != nil {
			return nil, err
		}
		p.createJoins = append(p.createJoins, stmts...)
	}

	return p.statements(), nil
}

func sortedNames(joins map[string]ownedJoin) []string {
	names := make([]string, 0, len(joins))
	for name := range joins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// alterEntity transforms one entity in place.
func alterEntity(fe, te Entity, fromJoins map[string]ownedJoin) (ddlPlan, error) {
	var p ddlPlan
	if fe.Identity != te.Identity {
		return p, fmt.Errorf("%w: %s identity strategy changed", ErrNotLightweight, te.Name)
	}
	if fe.Table != te.Table {
		return p, fmt.Errorf("%w: %s table renamed", ErrNotLightweight, te.Name)
	}
	if !sameRelationships(fe, te) {
		return p, fmt.Errorf("%w: %s relationship shape changed", ErrNotLightweight, te.Name)
	}

	needCopy := false
	for _, ta := range te.Attributes {
		if fa, ok := fe.Attribute(ta.Name); ok && (!ta.Stable || fa.Type != ta.Type) {
			needCopy = true
		}
	}
	if needCopy {
		for _, j := range fromJoins {
			if j.owner.Name == fe.Name || j.rel.Target == fe.Name {
				return p, fmt.Errorf("%w: %s is referenced by join table %s", ErrNotLightweight, fe.Name, j.rel.Join.Name)
			}
		}
		return copyEntity(fe, te)
	}

	for _, fa := range fe.Attributes {
		ta, ok := te.Attribute(fa.Name)
		if fa.Indexed && (!ok || !ta.Indexed) {
			p.dropIndexes = append(p.dropIndexes, dropIndexSQL(fe.Table, fa.Name))
		}
		if !ok {
			if fa.Unique {
				return p, fmt.Errorf("%w: %s.%s is unique and cannot be dropped in place", ErrNotLightweight, fe.Name, fa.Name)
			}
			p.alters = append(p.alters, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", fe.Table, fa.Name))
		}
	}
	for _, ta := range te.Attributes {
		fa, existed := fe.Attribute(ta.Name)
		if !existed {
			if err := checkAddable(te, ta); err != nil {
				return p, err
			}
			p.alters = append(p.alters, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", te.Table, columnDefinition(ta)))
		}
		if ta.Indexed && (!existed || !fa.Indexed) {
			p.createIndex = append(p.createIndex, createIndexSQL(te.Table, ta.Name))
		}
	}
	return p, nil
}

// copyEntity rebuilds a table by copying the columns both shapes share.
func copyEntity(fe, te Entity) (ddlPlan, error) {
	var p ddlPlan
	scratch := te.Table + "__rebuild"
	shared := []string{ColumnID}
	for _, ta := range te.Attributes {
		if fe.HasAttribute(ta.Name) {
			shared = append(shared, ta.Name)
			continue
		}
		if err := checkAddable(te, ta); err != nil {
			return p, err
		}
	}
	cols := strings.Join(shared, ", ")
	p.copies = append(p.copies,
		te.createTableSQL(scratch),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", scratch, cols, cols, fe.Table),
		dropTableSQL(fe.Table),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", scratch, te.Table),
	)
	p.createIndex = append(p.createIndex, te.IndexSQL()...)
	return p, nil
}

func checkAddable(e Entity, a Attribute) error {
	if !a.Nullable && a.Default == "" {
		return fmt.Errorf("%w: %s.%s is NOT NULL without a default", ErrNotLightweight, e.Name, a.Name)
	}
	if a.Unique {
		return fmt.Errorf("%w: %s.%s is unique and cannot be added in place", ErrNotLightweight, e.Name, a.Name)
	}
	return nil
}

func sameRelationships(fe, te Entity) bool {
	if len(fe.Relationships) != len(te.Relationships) {
		return false
	}
	for _, tr := range te.Relationships {
		fr, ok := fe.Relationship(tr.Name)
		if !ok || fr != tr {
			return false
		}
	}
	return true
}
