// Package querysql compiles snapshot queries to parameterized SQLite SQL
// over the snapshots table.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/gridcalc/internal/queryir"
)

// Columns is the snapshot column list every compiled query selects, in the
// order the store scans them.
const Columns = "id, workbook, seq, workbook_hash, state_hash, cell_values, history"

// SQLCompiler compiles queryir queries to SQL for SQLite.
//
// Every query has an ORDER BY with an id tiebreaker, and every value and
// JSON path is passed as a parameter, never interpolated.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a query to parameterized SQL and its parameters. The
// query is validated first.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	if err := queryir.Validate(q); err != nil {
		return "", nil, err
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	where := "workbook = ?"
	params := []any{q.Workbook}
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where += " AND " + filterSQL
		params = append(params, filterParams...)
	}

	sql := fmt.Sprintf("SELECT %s FROM snapshots WHERE %s ORDER BY %s", Columns, where, stableOrderKey(q.Order))
	if q.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, q.Limit)
	}
	return sql, params, nil
}

// stableOrderKey returns the ORDER BY clause. COLLATE BINARY keeps the id
// tiebreaker identical across SQLite versions.
func stableOrderKey(o queryir.Order) string {
	if o == queryir.NewestFirst {
		return "seq DESC, id ASC COLLATE BINARY"
	}
	return "seq ASC, id ASC COLLATE BINARY"
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return c.compileEquals(pred)
	case *queryir.Equals:
		return c.compileEquals(*pred)
	case queryir.Compare:
		return c.compileCompare(pred)
	case *queryir.Compare:
		return c.compileCompare(*pred)
	case queryir.Entered:
		return "json_type(cell_values, ?) IS NOT NULL", []any{jsonPath(pred.Address)}, nil
	case *queryir.Entered:
		return "json_type(cell_values, ?) IS NOT NULL", []any{jsonPath(pred.Address)}, nil
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals checks the JSON type before the value, so the number 1
// never equals the text "1".
func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	path := jsonPath(eq.Address)
	switch v := eq.Value.(type) {
	case nil:
		return "json_type(cell_values, ?) = 'null'", []any{path}, nil
	case bool:
		if v {
			return "json_type(cell_values, ?) = 'true'", []any{path}, nil
		}
		return "json_type(cell_values, ?) = 'false'", []any{path}, nil
	case string:
		return "(json_type(cell_values, ?) = 'text' AND json_extract(cell_values, ?) = ?)",
			[]any{path, path, v}, nil
	}
	f, ok := queryir.NumberValue(eq.Value)
	if !ok {
		return "", nil, fmt.Errorf("unsupported value type: %T", eq.Value)
	}
	return "(json_type(cell_values, ?) IN ('integer', 'real') AND json_extract(cell_values, ?) = ?)",
		[]any{path, path, f}, nil
}

func (c *SQLCompiler) compileCompare(cmp queryir.Compare) (string, []any, error) {
	op := string(cmp.Op)
	if cmp.Op == queryir.OpNotEqual {
		op = "<>"
	}
	path := jsonPath(cmp.Address)
	sql := fmt.Sprintf("(json_type(cell_values, ?) IN ('integer', 'real') AND json_extract(cell_values, ?) %s ?)", op)
	return sql, []any{path, path, cmp.Value}, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}
	return "(" + strings.Join(sqlParts, " AND ") + ")", allParams, nil
}

// jsonPath addresses one key of the cell_values object. Validated
// addresses hold no double quotes or backslashes.
func jsonPath(addr string) string {
	return `$."` + addr + `"`
}
