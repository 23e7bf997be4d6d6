package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"viewsets/internal/registry"
)

type OnDeletePolicy string

const (
	OnDeleteRestrict OnDeletePolicy = "RESTRICT"
	OnDeleteSetNull  OnDeletePolicy = "SET NULL"
	OnDeleteCascade  OnDeletePolicy = "CASCADE"
)

// Ключи фаз DDL; ApplyDDL исполняет их по порядку ключей.
const (
	PhaseTables = "000_schemas_and_tables"
	PhaseFKs    = "200_foreign_keys"
	PhaseLinks  = "300_link_tables"
)

func onDeletePolicy(f *registry.Field) OnDeletePolicy {
	switch strings.ToLower(strings.TrimSpace(f.Options["on_delete"])) {
	case "set_null":
		return OnDeleteSetNull
	case "cascade":
		return OnDeleteCascade
	default:
		return OnDeleteRestrict
	}
}

func columnType(d Dialect, f *registry.Field) string {
	return d.ColumnType(f.Type)
}

// defaultLiteral: DEFAULT в DDL; значения уже проверены реестром
func defaultLiteral(d Dialect, f *registry.Field) string {
	switch v := f.Default.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		if _, ok := d.(SQLite); ok {
			if v {
				return "1"
			}
			return "0"
		}
		return strconv.FormatBool(v)
	}
	raw := f.Options["default"]
	return "'" + strings.ReplaceAll(raw, "'", "''") + "'"
}

// GenerateDDL возвращает карту фаза -> SQL DDL (CREATE TABLE + индексы + FK + таблицы связей).
// Только create ... if not exists: миграций нет.
func GenerateDDL(reg *registry.Registry, d Dialect) (map[string]string, error) {
	out := make(map[string]string, 3)
	_, sqlite := d.(SQLite)

	// --- Phase A: schemas + tables + unique ---
	var phaseA strings.Builder
	seenSchemas := map[string]struct{}{}

	type fkStmt struct {
		table, name, col, refTable, refCol string
		onDelete                           OnDeletePolicy
	}
	var fks []fkStmt

	for _, s := range reg.Schemas() {
		table := d.Table(s)
		if !sqlite {
			if _, ok := seenSchemas[s.Module]; !ok {
				fmt.Fprintf(&phaseA, "create schema if not exists %s;\n", sqlIdent(s.Module))
				seenSchemas[s.Module] = struct{}{}
			}
		}

		var cols []string
		for _, f := range s.Fields() {
			switch {
			case f.PK && f.Type == registry.TypeInt && f.Auto:
				cols = append(cols, d.AutoPK(f.Column))
			case f.PK:
				cols = append(cols, fmt.Sprintf("%s %s primary key", sqlIdent(f.Column), columnType(d, f)))
			case f.Kind == registry.Stored:
				null := "null"
				if f.Required {
					null = "not null"
				}
				def := ""
				if f.HasDefault {
					def = " default " + defaultLiteral(d, f)
				}
				cols = append(cols, fmt.Sprintf("%s %s %s%s", sqlIdent(f.Column), columnType(d, f), null, def))
			case f.Kind == registry.ToOne:
				null := "null"
				if f.Required {
					null = "not null"
				}
				c := fmt.Sprintf("%s %s %s", sqlIdent(f.Column), d.ColumnType(f.Target.PK.Type), null)
				fk := fkStmt{
					table:    table,
					name:     strings.ToLower(s.Entity + "_" + f.Name + "_fk"),
					col:      f.Column,
					refTable: d.Table(f.Target),
					refCol:   f.Target.PK.Column,
					onDelete: onDeletePolicy(f),
				}
				if sqlite {
					// ALTER TABLE ADD CONSTRAINT в SQLite нет: ссылка прямо в колонке
					c += fmt.Sprintf(" references %s(%s) on delete %s", fk.refTable, sqlIdent(fk.refCol), fk.onDelete)
				} else {
					fks = append(fks, fk)
				}
				cols = append(cols, c)
			}
		}

		fmt.Fprintf(&phaseA, "create table if not exists %s (\n  %s\n);\n", table, strings.Join(cols, ",\n  "))

		for _, f := range s.Fields() {
			if f.Unique && !f.PK && f.Kind == registry.Stored {
				fmt.Fprintf(&phaseA, "create unique index if not exists %s on %s(%s);\n",
					sqlIdent(indexName(d, s, f.Column)), table, sqlIdent(f.Column))
			}
		}
		for _, set := range s.Unique {
			if len(set) == 0 {
				continue
			}
			parts := make([]string, len(set))
			for i, name := range set {
				parts[i] = sqlIdent(s.Field(name).Column)
			}
			fmt.Fprintf(&phaseA, "create unique index if not exists %s on %s(%s);\n",
				sqlIdent(indexName(d, s, strings.Join(set, "_"))), table, strings.Join(parts, ", "))
		}
	}
	out[PhaseTables] = phaseA.String()

	// --- Phase B: foreign keys (после создания всех таблиц) ---
	var phaseB strings.Builder
	for _, fk := range fks {
		fmt.Fprintf(&phaseB,
			"alter table %s add constraint %s foreign key (%s) references %s(%s) on delete %s;\n",
			fk.table, sqlIdent(fk.name), sqlIdent(fk.col), fk.refTable, sqlIdent(fk.refCol), fk.onDelete)
	}
	if phaseB.Len() > 0 {
		out[PhaseFKs] = phaseB.String()
	}

	// --- Phase C: таблицы связей many[...] through= ---
	var phaseC strings.Builder
	seenLinks := map[string]struct{}{}
	for _, s := range reg.Schemas() {
		for _, f := range s.Fields() {
			if f.Kind != registry.ToMany || f.Link == nil || f.Link.Through == "" {
				continue
			}
			table := d.LinkTable(s, f.Link.Through)
			if _, ok := seenLinks[table]; ok {
				continue
			}
			seenLinks[table] = struct{}{}
			l := f.Link
			fmt.Fprintf(&phaseC, "create table if not exists %s (\n  %s %s not null references %s(%s) on delete cascade,\n  %s %s not null references %s(%s) on delete cascade,\n  primary key (%s, %s)\n);\n",
				table,
				sqlIdent(l.OwnerColumn), d.ColumnType(s.PK.Type), d.Table(s), sqlIdent(s.PK.Column),
				sqlIdent(l.TargetColumn), d.ColumnType(f.Target.PK.Type), d.Table(f.Target), sqlIdent(f.Target.PK.Column),
				sqlIdent(l.OwnerColumn), sqlIdent(l.TargetColumn))
		}
	}
	if phaseC.Len() > 0 {
		out[PhaseLinks] = phaseC.String()
	}
	return out, nil
}

// indexName: в Postgres индекс живёт в схеме таблицы, в SQLite имена глобальные
func indexName(d Dialect, s *registry.Schema, suffix string) string {
	if _, ok := d.(SQLite); ok {
		return strings.ToLower(s.Module + "_" + s.Entity + "_" + suffix + "_uq")
	}
	return strings.ToLower(s.Entity + "_" + suffix + "_uq")
}
