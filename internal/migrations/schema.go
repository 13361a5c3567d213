package migrations

import (
	"fmt"
	"strings"
)

const (
	sqlite = iota
	postgres
	mysql
)

func kindOf(dialect string) (int, error) {
	switch dialect {
	case "sqlite":
		return sqlite, nil
	case "postgresql":
		return postgres, nil
	case "mysql":
		return mysql, nil
	}
	return 0, fmt.Errorf("unsupported dialect %q", dialect)
}

type sqlColumn struct {
	Name                    string
	Type                    sqlDataType
	AutoIncrementPrimaryKey bool
	NotNull                 bool
	Default                 string
}

type sqlDataType interface {
	SQL(kind int) string
}

type sqlInteger struct{}
type sqlText struct{}
type sqlVarChar struct{}

func (sqlInteger) SQL(kind int) string {
	switch kind {
	case sqlite, postgres:
		return "INTEGER"
	case mysql:
		return "INT"
	}

	panic("unknown kind")
}

func (sqlText) SQL(_ int) string {
	return "TEXT"
}

func (sqlVarChar) SQL(kind int) string {
	switch kind {
	case sqlite:
		return "TEXT"
	case postgres, mysql:
		return "VARCHAR(255)"
	}

	panic("unknown kind")
}

func (c sqlColumn) SQL(kind int) string {
	var parts []string

	if c.AutoIncrementPrimaryKey {
		switch kind {
		case sqlite:
			parts = append(parts, c.Name, sqlInteger{}.SQL(kind))
		case postgres:
			parts = append(parts, c.Name, "SERIAL")
		case mysql:
			parts = append(parts, c.Name, sqlInteger{}.SQL(kind), "AUTO_INCREMENT")
		}
	} else {
		parts = append(parts, c.Name, c.Type.SQL(kind))
		if c.NotNull {
			parts = append(parts, "NOT NULL")
		}
		if c.Default != "" {
			parts = append(parts, "DEFAULT", c.Default)
		}
	}

	return strings.Join(parts, " ")
}

type sqlIndex struct {
	Columns []string
}

type sqlTable struct {
	name      string
	columns   []sqlColumn
	indexes   []sqlIndex
	iteration string // prefix for constraints and indexes
}

func createSQLTable(name string) *sqlTable {
	return &sqlTable{
		name:      name,
		iteration: "bundlectl_v1",
	}
}

func (t *sqlTable) IntegerPrimaryKeyAutoincrementColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlInteger{}, AutoIncrementPrimaryKey: true})
	return t
}

func (t *sqlTable) IntegerNonNullColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlInteger{}, NotNull: true})
	return t
}

func (t *sqlTable) IntegerNonNullDefaultColumn(name string, value int) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlInteger{}, NotNull: true, Default: fmt.Sprint(value)})
	return t
}

func (t *sqlTable) VarCharColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlVarChar{}})
	return t
}

func (t *sqlTable) VarCharNonNullColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlVarChar{}, NotNull: true})
	return t
}

func (t *sqlTable) TextColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlText{}})
	return t
}

func (t *sqlTable) Index(columns ...string) *sqlTable {
	t.indexes = append(t.indexes, sqlIndex{Columns: columns})
	return t
}

func (t *sqlTable) SQL(kind int) string {
	c := make([]string, len(t.columns))
	for i := range t.columns {
		c[i] = t.columns[i].SQL(kind)
	}

	// NOTE: constraint names are ours, so later migrations can refer to them
	// on every dialect.
	for i := range t.columns {
		if t.columns[i].AutoIncrementPrimaryKey {
			c = append(c, fmt.Sprintf("CONSTRAINT %[1]s_%[2]s_%[3]s_pkey PRIMARY KEY (%[3]s)", t.iteration, t.name, t.columns[i].Name))
		}
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.name, strings.Join(c, ", "))
}

// IndexSQL returns one CREATE INDEX statement per declared index.
func (t *sqlTable) IndexSQL(_ int) []string {
	stmts := make([]string, len(t.indexes))
	for i, idx := range t.indexes {
		stmts[i] = fmt.Sprintf("CREATE INDEX %s_%s_%s_idx ON %s (%s)",
			t.iteration, t.name, strings.Join(idx.Columns, "_"), t.name, strings.Join(idx.Columns, ", "))
	}
	return stmts
}
