package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
)

const root = "t0"

// compiler turns criteria into SQL over aliased tables. Association paths
// become IN subqueries in filters and correlated subqueries in sorting and
// aggregation expressions.
type compiler struct {
	provider entity.Provider
	n        int
}

func (c *compiler) alias() string {
	c.n++
	return "t" + strconv.Itoa(c.n)
}

func column(alias string, f *entity.Field) string {
	return alias + "." + quote(f.Name)
}

// where combines filters with AND. An empty list matches every row.
func (c *compiler) where(def *entity.Definition, alias string, op criteria.Operator, filters []criteria.Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(filters))
	var args []any
	for _, f := range filters {
		sql, a, err := c.filter(def, alias, f)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		args = append(args, a...)
	}
	glue := " AND "
	if op == criteria.OperatorOr {
		glue = " OR "
	}
	return "(" + strings.Join(parts, glue) + ")", args, nil
}

func (c *compiler) filter(def *entity.Definition, alias string, f criteria.Filter) (string, []any, error) {
	switch f := f.(type) {
	case *criteria.Multi:
		return c.where(def, alias, f.Operator, f.Queries)
	case *criteria.Not:
		sql, args, err := c.where(def, alias, f.Operator, f.Queries)
		return "NOT " + sql, args, err
	}

	var leaf func(col string, field *entity.Field) (string, []any)
	switch f := f.(type) {
	case *criteria.Equals:
		leaf = func(col string, field *entity.Field) (string, []any) {
			if f.Value == nil {
				return col + " IS NULL", nil
			}
			return col + " = ?", []any{argument(field, f.Value)}
		}
	case *criteria.EqualsAny:
		leaf = func(col string, field *entity.Field) (string, []any) {
			if len(f.Values) == 0 {
				return "1 = 0", nil
			}
			args := make([]any, len(f.Values))
			for i, v := range f.Values {
				args[i] = argument(field, v)
			}
			return col + " IN (" + placeholders(len(args)) + ")", args
		}
	case *criteria.Contains:
		leaf = func(col string, _ *entity.Field) (string, []any) {
			return col + ` LIKE ? ESCAPE '\'`, []any{"%" + escapeLike(f.Value) + "%"}
		}
	case *criteria.Range:
		leaf = func(col string, _ *entity.Field) (string, []any) {
			var conds []string
			var args []any
			for _, op := range []criteria.RangeOperator{criteria.GT, criteria.GTE, criteria.LT, criteria.LTE} {
				bound, ok := f.Parameters[op]
				if !ok {
					continue
				}
				conds = append(conds, col+" "+rangeSQL[op]+" ?")
				args = append(args, bound)
			}
			if len(conds) == 0 {
				return "1 = 1", nil
			}
			return "(" + strings.Join(conds, " AND ") + ")", args
		}
	default:
		return "", nil, fmt.Errorf("unsupported filter %T", f)
	}
	return c.path(def, alias, criteria.Unprefix(def.Name, f.Fields()[0]), leaf)
}

var rangeSQL = map[criteria.RangeOperator]string{
	criteria.GT:  ">",
	criteria.GTE: ">=",
	criteria.LT:  "<",
	criteria.LTE: "<=",
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// path applies leaf to the column path reaches, nesting a subquery for
// every association hop.
func (c *compiler) path(def *entity.Definition, alias, path string, leaf func(string, *entity.Field) (string, []any)) (string, []any, error) {
	head, rest, nested := strings.Cut(path, ".")
	f := def.Field(head)
	if f == nil {
		return "", nil, fmt.Errorf("unknown field %s.%s", def.Name, head)
	}
	if !nested {
		if !f.Kind.IsStored() {
			return "", nil, fmt.Errorf("field %s.%s is not stored", def.Name, f.Name)
		}
		sql, args := leaf(column(alias, f), f)
		return sql, args, nil
	}

	target, err := c.provider.Definition(f.Reference)
	if err != nil {
		return "", nil, err
	}
	inner := c.alias()
	cond, args, err := c.path(target, inner, rest, leaf)
	if err != nil {
		return "", nil, err
	}
	switch f.Kind {
	case entity.KindManyToOne, entity.KindOneToOne:
		return fmt.Sprintf("%s.%s IN (SELECT %s.\"id\" FROM %s AS %s WHERE %s)",
			alias, quote(f.StorageKey), inner, quote(target.Name), inner, cond), args, nil
	case entity.KindOneToMany, entity.KindTranslations:
		return fmt.Sprintf("%s.\"id\" IN (SELECT %s.%s FROM %s AS %s WHERE %s)",
			alias, inner, quote(f.ReferenceField), quote(target.Name), inner, cond), args, nil
	case entity.KindManyToMany:
		link := c.alias()
		return fmt.Sprintf("%s.\"id\" IN (SELECT %s.%s FROM %s AS %s WHERE %s.%s IN (SELECT %s.\"id\" FROM %s AS %s WHERE %s))",
			alias, link, quote(f.MappingLocal), quote(f.Mapping), link,
			link, quote(f.MappingReference), inner, quote(target.Name), inner, cond), args, nil
	}
	return "", nil, fmt.Errorf("field %s.%s is not an association", def.Name, f.Name)
}

// value returns a scalar expression for path and the field it ends at.
// To-many hops pick the first related row and are only allowed when
// toMany is set.
func (c *compiler) value(def *entity.Definition, alias, path string, toMany bool) (string, *entity.Field, error) {
	head, rest, nested := strings.Cut(path, ".")
	f := def.Field(head)
	if f == nil {
		return "", nil, fmt.Errorf("unknown field %s.%s", def.Name, head)
	}
	if !nested {
		if !f.Kind.IsStored() {
			return "", nil, fmt.Errorf("field %s.%s is not stored", def.Name, f.Name)
		}
		return column(alias, f), f, nil
	}
	if f.Kind.IsToMany() || f.Kind == entity.KindTranslations {
		if !toMany {
			return "", nil, fmt.Errorf("path %s.%s crosses a to-many association", def.Name, path)
		}
	}

	target, err := c.provider.Definition(f.Reference)
	if err != nil {
		return "", nil, err
	}
	inner := c.alias()
	expr, leaf, err := c.value(target, inner, rest, toMany)
	if err != nil {
		return "", nil, err
	}
	from := quote(target.Name) + " AS " + inner
	switch f.Kind {
	case entity.KindManyToOne, entity.KindOneToOne:
		return fmt.Sprintf("(SELECT %s FROM %s WHERE %s.\"id\" = %s.%s)", expr, from, inner, alias, quote(f.StorageKey)), leaf, nil
	case entity.KindOneToMany, entity.KindTranslations:
		return fmt.Sprintf("(SELECT %s FROM %s WHERE %s.%s = %s.\"id\" ORDER BY %s.rowid LIMIT 1)",
			expr, from, inner, quote(f.ReferenceField), alias, inner), leaf, nil
	case entity.KindManyToMany:
		link := c.alias()
		return fmt.Sprintf("(SELECT %s FROM %s WHERE %s.\"id\" IN (SELECT %s.%s FROM %s AS %s WHERE %s.%s = %s.\"id\") ORDER BY %s.rowid LIMIT 1)",
			expr, from, inner, link, quote(f.MappingReference), quote(f.Mapping), link, link, quote(f.MappingLocal), alias, inner), leaf, nil
	}
	return "", nil, fmt.Errorf("field %s.%s is not an association", def.Name, f.Name)
}

func (s *Store) search(ctx context.Context, def *entity.Definition, c *criteria.Criteria) (*dal.SearchResult, error) {
	comp := &compiler{provider: s.provider}
	where, args, err := comp.where(def, root, criteria.OperatorAnd, c.Filters)
	if err != nil {
		return nil, err
	}
	from := quote(def.Name) + " AS " + root
	db := s.db.WithContext(ctx)
	res := &dal.SearchResult{Criteria: c}

	if c.TotalCountMode != criteria.TotalCountNone {
		var total int64
		if err := db.Raw("SELECT COUNT(*) FROM "+from+" WHERE "+where, args...).Scan(&total).Error; err != nil {
			return nil, err
		}
		res.Total = int(total)
	}

	var order []string
	for _, srt := range c.Sorting {
		expr, _, err := comp.value(def, root, srt.Field, true)
		if err != nil {
			return nil, err
		}
		dir := "ASC"
		if srt.Direction == criteria.Descending {
			dir = "DESC"
		}
		order = append(order, expr+" "+dir)
	}
	order = append(order, root+".rowid")

	fields := def.StoredFields()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = column(root, f)
	}
	limit := -1
	if c.Limit != nil {
		limit = *c.Limit
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT ? OFFSET ?",
		strings.Join(cols, ", "), from, where, strings.Join(order, ", "))

	rows, err := db.Raw(query, append(slices.Clone(args), limit, c.Offset)...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		vals, err := scan(rows, len(fields))
		if err != nil {
			return nil, err
		}
		rec := make(entity.Record, len(fields))
		for i, f := range fields {
			if rec[f.Name], err = decode(f, vals[i]); err != nil {
				return nil, err
			}
		}
		res.Elements = append(res.Elements, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if res.Aggregations, err = s.aggregate(db, comp, def, from, where, args, c.AggregationList()); err != nil {
		return nil, err
	}
	return res, nil
}

func scan(rows *sql.Rows, n int) ([]any, error) {
	vals := make([]any, n)
	ptrs := make([]any, n)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}
