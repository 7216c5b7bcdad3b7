// Package sqlite is a dal.Executor storing entities in SQLite tables derived
// from the entity metadata. It runs on gorm over the pure-Go modernc driver.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
)

// Open connects to the database at dsn.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        dsn,
	}, &gorm.Config{Logger: logger.Discard})
}

// Store implements dal.Executor.
type Store struct {
	db       *gorm.DB
	provider entity.Provider
}

var _ dal.Executor = (*Store)(nil)

func New(db *gorm.DB, provider entity.Provider) *Store {
	return &Store{db: db, provider: provider}
}

// Migrate creates a table for every entity that does not have one yet and
// adds the columns of fields added since. Columns are never dropped.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range s.provider.Definitions() {
			if err := tx.Exec(createTable(def)).Error; err != nil {
				return fmt.Errorf("migrate %s: %w", def.Name, err)
			}
			if err := addColumns(tx, def); err != nil {
				return fmt.Errorf("migrate %s: %w", def.Name, err)
			}
		}
		return nil
	})
}

func addColumns(tx *gorm.DB, def *entity.Definition) error {
	m := tx.Migrator()
	for _, f := range def.StoredFields() {
		if m.HasColumn(def.Name, f.Name) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(def.Name), quote(f.Name), columnType(f.Kind))
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("add column %s: %w", f.Name, err)
		}
	}
	return nil
}

func createTable(def *entity.Definition) string {
	var cols, pk []string
	for _, f := range def.StoredFields() {
		col := quote(f.Name) + " " + columnType(f.Kind)
		if f.PrimaryKey && f.Kind != entity.KindVersion {
			col += " NOT NULL"
			pk = append(pk, quote(f.Name))
		}
		cols = append(cols, col)
	}
	if len(pk) > 0 {
		cols = append(cols, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", quote(def.Name), strings.Join(cols, ",\n  "))
}

func columnType(k entity.Kind) string {
	switch k {
	case entity.KindBool, entity.KindInt:
		return "INTEGER"
	case entity.KindFloat:
		return "REAL"
	}
	return "TEXT"
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Search runs c against the table of def, then loads the requested
// associations through nested searches.
func (s *Store) Search(ctx context.Context, def *entity.Definition, c *criteria.Criteria) (*dal.SearchResult, error) {
	if c == nil {
		c = criteria.New()
	}
	res, err := s.search(ctx, def, c)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", def.Name, err)
	}
	if err := dal.LoadAssociations(ctx, s, s.provider, def, res.Elements, c); err != nil {
		return nil, fmt.Errorf("search %s: %w", def.Name, err)
	}
	return res, nil
}

// Create writes payloads and their nested associations in one transaction.
func (s *Store) Create(ctx context.Context, def *entity.Definition, payloads []map[string]any) ([]string, error) {
	return s.write(ctx, def, dal.WriteCreate, payloads)
}

// Update merges payloads into the rows addressed by their primary keys.
func (s *Store) Update(ctx context.Context, def *entity.Definition, payloads []map[string]any) ([]string, error) {
	return s.write(ctx, def, dal.WriteUpdate, payloads)
}

func (s *Store) write(ctx context.Context, def *entity.Definition, op dal.WriteOp, payloads []map[string]any) ([]string, error) {
	plan, err := dal.PlanWrites(s.provider, def, op, payloads)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, def.Name, err)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range plan.Writes {
			if err := apply(tx, w); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, def.Name, err)
	}
	return plan.IDs, nil
}

func apply(tx *gorm.DB, w dal.Write) error {
	where, args := keyCondition(w.Entity, w.Row)
	exists, err := rowExists(tx, w.Entity, where, args)
	if err != nil {
		return err
	}
	switch {
	case w.Op == dal.WriteCreate && exists:
		return fmt.Errorf("%s %q: %w", w.Entity.Name, dal.PrimaryKey(w.Entity, w.Row), dal.ErrConflict)
	case w.Op == dal.WriteUpdate && !exists:
		return fmt.Errorf("%s %q: %w", w.Entity.Name, dal.PrimaryKey(w.Entity, w.Row), dal.ErrNotFound)
	}

	var cols []string
	var vals []any
	for _, f := range w.Entity.StoredFields() {
		v, ok := w.Row[f.Name]
		if !ok {
			continue
		}
		enc, err := encode(f, v)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", w.Entity.Name, f.Name, err)
		}
		cols = append(cols, quote(f.Name))
		vals = append(vals, enc)
	}

	if exists {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = c + " = ?"
		}
		if len(sets) == 0 {
			return nil
		}
		sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s", quote(w.Entity.Name), strings.Join(sets, ", "), where)
		return tx.Exec(sql, append(vals, args...)...).Error
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(w.Entity.Name), strings.Join(cols, ", "), marks)
	return tx.Exec(sql, vals...).Error
}

// keyCondition matches the row addressed by the primary key of row.
func keyCondition(def *entity.Definition, row entity.Record) (string, []any) {
	var conds []string
	var args []any
	for _, f := range def.PrimaryKeys() {
		if f.Kind == entity.KindVersion {
			continue
		}
		conds = append(conds, quote(f.Name)+" = ?")
		args = append(args, row[f.Name])
	}
	return strings.Join(conds, " AND "), args
}

func rowExists(tx *gorm.DB, def *entity.Definition, where string, args []any) (bool, error) {
	var n int64
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", quote(def.Name), where)
	if err := tx.Raw(sql, args...).Scan(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes the rows addressed by keys together with the mapping rows
// pointing at them.
func (s *Store) Delete(ctx context.Context, def *entity.Definition, keys []map[string]any) ([]string, error) {
	ids := make([]string, len(keys))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, k := range keys {
			row := entity.Record{}
			for name, v := range k {
				f := def.Field(name)
				if f == nil {
					return fmt.Errorf("unknown field %q", name)
				}
				row[f.Name] = v
			}
			where, args := keyCondition(def, row)
			exists, err := rowExists(tx, def, where, args)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%q: %w", dal.PrimaryKey(def, row), dal.ErrNotFound)
			}
			if err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s", quote(def.Name), where), args...).Error; err != nil {
				return err
			}
			ids[i] = row.ID()
			if def.Field("id") == nil {
				continue
			}
			if err := unlinkMappings(tx, s.provider, def, ids[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", def.Name, err)
	}
	return ids, nil
}

func unlinkMappings(tx *gorm.DB, provider entity.Provider, def *entity.Definition, id string) error {
	for _, m := range provider.Definitions() {
		if !m.Mapping {
			continue
		}
		for _, f := range m.Fields {
			if f.Kind != entity.KindFK || f.Reference != def.Name {
				continue
			}
			sql := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(m.Name), quote(f.Name))
			if err := tx.Exec(sql, id).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
