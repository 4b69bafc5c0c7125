package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/artpar/stratum/core/model"
	"github.com/artpar/stratum/core/schema"
)

func pkColumn(m *model.Model) string {
	if m.PKDeclared() {
		return m.PKFieldName()
	}
	return model.PKName
}

// fkColumn names the foreign key column a many-to-one field keeps on its
// own table.
func fkColumn(field string) string {
	return "_" + field + "_pk"
}

// ownerFKColumn names the foreign key column a one-to-many relation puts on
// the target's table.
func ownerFKColumn(owner *model.Model) string {
	return "_" + owner.UniqueName() + "_pk"
}

func junctionTable(owner *model.Model, field string) string {
	return owner.UniqueName() + "_" + field
}

// schemaSQL derives the statements creating a model's physical schema:
// its own table, foreign key columns owed to already-registered targets,
// junction tables for scalar collections, and indexes. Columns owed to
// not-yet-registered targets are parked in b.pending and emitted when the
// target registers.
func (b *Backend) schemaSQL(ctx context.Context, m *model.Model, info *tableInfo) ([]string, error) {
	var stmts []string
	var cols []string
	var indexes []string

	for _, f := range m.Fields() {
		switch {
		case f.Resolved.Options.PrimaryKey:
			cols = append(cols, identityColumn(f))

		case f.Resolved.Relation == schema.RelationNone:
			col := f.Name + " " + f.Resolved.Type.SQLType()
			if f.Resolved.Options.Unique {
				col += " UNIQUE"
			}
			if f.Resolved.Options.NonNullable {
				col += " NOT NULL"
			}
			cols = append(cols, col)
			for i, idx := range f.Resolved.Indexes {
				indexes = append(indexes, indexSQL(info.name, f.Name, i, idx))
			}

		case f.Resolved.Relation == schema.RelationManyToOne:
			target := f.Target
			col := fkColumn(f.Name)
			cols = append(cols, fmt.Sprintf("%s %s REFERENCES %s(%s)",
				col, target.PKField().Resolved.Type.SQLType(), target.UniqueName(), pkColumn(target)))
			indexes = append(indexes, fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", info.name, col, info.name, col))

		case f.IsJunction():
			jt := junctionTable(m, f.Name)
			info.junctions[f.Name] = jt
			stmts = append(stmts, fmt.Sprintf(
				"CREATE TABLE IF NOT EXISTS %s (pk INTEGER PRIMARY KEY AUTOINCREMENT, _owner_pk %s REFERENCES %s(%s), value %s)",
				jt, m.PKField().Resolved.Type.SQLType(), info.name, info.pkColumn, f.Resolved.Type.SQLType()))
			indexes = append(indexes, fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s(_owner_pk)", jt, jt))

		case f.Resolved.Relation == schema.RelationOneToMany:
			// Foreign key lives on the target's table.
			col := ownerFKColumn(m)
			if f.Target == m {
				cols = append(cols, fmt.Sprintf("%s %s REFERENCES %s(%s)",
					col, m.PKField().Resolved.Type.SQLType(), info.name, info.pkColumn))
				continue
			}
			targetName := f.Target.UniqueName()
			if _, registered := b.tables[targetName]; registered {
				alters, err := b.addColumnSQL(ctx, targetName, col, m, info)
				if err != nil {
					return nil, err
				}
				stmts = append(stmts, alters...)
			} else {
				b.pending[targetName] = append(b.pending[targetName], pendingColumn{column: col, ownsFK: info.name})
			}
		}
	}

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", info.name, strings.Join(cols, ", "))

	// Columns other models owed this table before it existed.
	var owed []string
	for _, pc := range b.pending[info.name] {
		owner := b.tables[pc.ownsFK]
		owed = append(owed, fmt.Sprintf("%s %s REFERENCES %s(%s)",
			pc.column, owner.model.PKField().Resolved.Type.SQLType(), pc.ownsFK, owner.pkColumn))
	}
	delete(b.pending, info.name)
	if len(owed) > 0 {
		create = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", info.name,
			strings.Join(append(cols, owed...), ", "))
	}

	out := append([]string{create}, stmts...)
	return append(out, indexes...), nil
}

func identityColumn(f model.Field) string {
	col := f.Name + " " + f.Resolved.Type.SQLType() + " PRIMARY KEY"
	if f.Resolved.Options.AutoIncrement != nil && *f.Resolved.Options.AutoIncrement &&
		f.Resolved.Type.SQLType() == "INTEGER" {
		// AUTOINCREMENT keeps SQLite from ever reusing a removed identity.
		col += " AUTOINCREMENT"
	}
	return col
}

func indexSQL(table, field string, n int, idx schema.IndexSpec) string {
	name := fmt.Sprintf("idx_%s_%s", table, field)
	if n > 0 {
		name = fmt.Sprintf("%s_%d", name, n)
	}
	expr := field
	if idx.PrefixLength > 0 {
		expr = fmt.Sprintf("substr(%s, 1, %d)", field, idx.PrefixLength)
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", name, table, expr)
}

// addColumnSQL emits an ALTER TABLE for a foreign key owed to an already
// existing table, skipping it when the column is already there.
func (b *Backend) addColumnSQL(ctx context.Context, table, col string, owner *model.Model, ownerInfo *tableInfo) ([]string, error) {
	exists, err := b.hasColumn(ctx, table, col)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}
	return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s REFERENCES %s(%s)",
		table, col, owner.PKField().Resolved.Type.SQLType(), ownerInfo.name, ownerInfo.pkColumn)}, nil
}

func (b *Backend) hasColumn(ctx context.Context, table, col string) (bool, error) {
	rows, err := b.q().QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == col {
			return true, nil
		}
	}
	return false, rows.Err()
}
