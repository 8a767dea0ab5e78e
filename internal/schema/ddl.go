package schema

import (
	"fmt"
	"strings"
)

// CreateTableSQL returns the CREATE TABLE statement for e.
func (e Entity) CreateTableSQL() string {
	return e.createTableSQL(e.Table)
}

func (e Entity) createTableSQL(table string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n\t%s", table, identityColumn(e.Identity))
	for _, a := range e.Attributes {
		fmt.Fprintf(&b, ",\n\t%s", columnDefinition(a))
	}
	b.WriteString("\n)")
	return b.String()
}

// IndexSQL returns the CREATE INDEX statements for e's indexed attributes.
func (e Entity) IndexSQL() []string {
	var stmts []string
	for _, a := range e.Attributes {
		if a.Indexed {
			stmts = append(stmts, createIndexSQL(e.Table, a.Name))
		}
	}
	return stmts
}

// JoinTableSQL returns the statements creating the join table of the owned
// many-to-many relationship r of owner.
func (m Model) JoinTableSQL(owner Entity, r Relationship) ([]string, error) {
	target, ok := m.Entity(r.Target)
	if !ok {
		return nil, fmt.Errorf("schema: relationship %s.%s: unknown target %q", owner.Name, r.Name, r.Target)
	}
	j := r.Join
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", j.Name)
	fmt.Fprintf(&b, "\t%s INTEGER NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,\n", j.SourceColumn, owner.Table, ColumnID)
	fmt.Fprintf(&b, "\t%s INTEGER NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,\n", j.TargetColumn, target.Table, ColumnID)
	if j.OrderColumn != "" {
		fmt.Fprintf(&b, "\t%s INTEGER NOT NULL DEFAULT 0,\n", j.OrderColumn)
	}
	fmt.Fprintf(&b, "\tPRIMARY KEY (%s, %s)\n)", j.SourceColumn, j.TargetColumn)
	return []string{b.String(), createIndexSQL(j.Name, j.TargetColumn)}, nil
}

func identityColumn(s IdentityStrategy) string {
	if s == IdentitySurrogate {
		return ColumnID + " INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return ColumnID + " TEXT PRIMARY KEY"
}

func columnDefinition(a Attribute) string {
	parts := []string{a.Name, a.Type.SQL()}
	if !a.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if a.Default != "" {
		parts = append(parts, "DEFAULT "+a.Default)
	}
	if a.Unique {
		parts = append(parts, "UNIQUE")
	}
	return strings.Join(parts, " ")
}

func indexName(table, column string) string {
	return "idx_" + table + "_" + column
}

func createIndexSQL(table, column string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", indexName(table, column), table, column)
}

func dropIndexSQL(table, column string) string {
	return "DROP INDEX IF EXISTS " + indexName(table, column)
}

func dropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + table
}
