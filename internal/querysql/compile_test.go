package querysql

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridcalc/internal/queryir"
)

func TestCompile_SimpleSelect(t *testing.T) {
	compiler := NewSQLCompiler()

	sql, params, err := compiler.Compile(queryir.Select{
		Workbook: "loan",
		Filter:   queryir.Equals{Address: "Inputs!A1", Value: "widgets"},
	})
	require.NoError(t, err)

	assert.Contains(t, sql, "SELECT "+Columns+" FROM snapshots")
	assert.Contains(t, sql, "WHERE workbook = ? AND (json_type(cell_values, ?) = 'text'")
	assert.Contains(t, sql, "ORDER BY seq ASC, id ASC COLLATE BINARY")
	assert.NotContains(t, sql, "widgets")
	assert.NotContains(t, sql, "Inputs!A1")
	assert.Equal(t, []any{"loan", `$."Inputs!A1"`, `$."Inputs!A1"`, "widgets"}, params)
}

func TestCompile_Pointers(t *testing.T) {
	compiler := NewSQLCompiler()

	sql, params, err := compiler.Compile(&queryir.Select{
		Workbook: "loan",
		Filter:   &queryir.Entered{Address: "Inputs!A1"},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "json_type(cell_values, ?) IS NOT NULL")
	assert.Equal(t, []any{"loan", `$."Inputs!A1"`}, params)
}

func TestCompile_OrderAndLimit(t *testing.T) {
	compiler := NewSQLCompiler()

	sql, params, err := compiler.Compile(queryir.Select{Workbook: "loan", Order: queryir.NewestFirst, Limit: 5})
	require.NoError(t, err)
	assert.Contains(t, sql, "ORDER BY seq DESC, id ASC COLLATE BINARY LIMIT ?")
	assert.Equal(t, []any{"loan", 5}, params)

	sql, _, err = compiler.Compile(queryir.Select{Workbook: "loan"})
	require.NoError(t, err)
	assert.NotContains(t, sql, "LIMIT")
}

func TestCompile_Predicates(t *testing.T) {
	compiler := NewSQLCompiler()

	tests := []struct {
		name   string
		pred   queryir.Predicate
		sql    string
		params []any
	}{
		{
			name:   "blank",
			pred:   queryir.Equals{Address: "S!A1", Value: nil},
			sql:    "json_type(cell_values, ?) = 'null'",
			params: []any{`$."S!A1"`},
		},
		{
			name:   "true",
			pred:   queryir.Equals{Address: "S!A1", Value: true},
			sql:    "json_type(cell_values, ?) = 'true'",
			params: []any{`$."S!A1"`},
		},
		{
			name:   "false",
			pred:   queryir.Equals{Address: "S!A1", Value: false},
			sql:    "json_type(cell_values, ?) = 'false'",
			params: []any{`$."S!A1"`},
		},
		{
			name:   "int is a number",
			pred:   queryir.Equals{Address: "S!A1", Value: 3},
			sql:    "(json_type(cell_values, ?) IN ('integer', 'real') AND json_extract(cell_values, ?) = ?)",
			params: []any{`$."S!A1"`, `$."S!A1"`, 3.0},
		},
		{
			name:   "not equal",
			pred:   queryir.Compare{Address: "S!A1", Op: queryir.OpNotEqual, Value: 1},
			sql:    "(json_type(cell_values, ?) IN ('integer', 'real') AND json_extract(cell_values, ?) <> ?)",
			params: []any{`$."S!A1"`, `$."S!A1"`, 1.0},
		},
		{
			name:   "empty and",
			pred:   queryir.And{},
			sql:    "1 = 1",
			params: nil,
		},
		{
			name: "and",
			pred: queryir.And{Predicates: []queryir.Predicate{
				queryir.Entered{Address: "S!A1"},
				queryir.Compare{Address: "S!B1", Op: queryir.OpGreaterEqual, Value: 2},
			}},
			sql:    "(json_type(cell_values, ?) IS NOT NULL AND (json_type(cell_values, ?) IN ('integer', 'real') AND json_extract(cell_values, ?) >= ?))",
			params: []any{`$."S!A1"`, `$."S!B1"`, `$."S!B1"`, 2.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := compiler.compilePredicate(tt.pred)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestCompile_QuotedSheet(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(queryir.Select{
		Workbook: "loan",
		Filter:   queryir.Entered{Address: "'My Sheet'!B2"},
	})
	require.NoError(t, err)
	assert.NotContains(t, sql, "My Sheet")
	assert.Equal(t, `$."'My Sheet'!B2"`, params[1])
}

func TestCompile_Invalid(t *testing.T) {
	compiler := NewSQLCompiler()

	_, _, err := compiler.Compile(nil)
	require.Error(t, err)

	_, _, err = compiler.Compile(queryir.Select{})
	var verr *queryir.ValidationError
	require.ErrorAs(t, err, &verr)

	_, _, err = compiler.Compile(queryir.Select{
		Workbook: "loan",
		Filter:   queryir.Entered{Address: `S!A1"); DROP TABLE snapshots; --`},
	})
	require.ErrorAs(t, err, &verr)
}

func TestCompile_Deterministic(t *testing.T) {
	q := queryir.Select{
		Workbook: "loan",
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Address: "S!A1", Value: 1.0},
			queryir.Compare{Address: "S!A2", Op: queryir.OpLess, Value: 9},
		}},
		Order: queryir.NewestFirst,
		Limit: 3,
	}
	first, firstParams, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)
	for range 10 {
		sql, params, err := NewSQLCompiler().Compile(q)
		require.NoError(t, err)
		assert.Equal(t, first, sql)
		assert.Equal(t, firstParams, params)
	}
}

// TestCompile_Executes runs compiled queries against SQLite to pin the
// JSON typing rules that Match mirrors in memory.
func TestCompile_Executes(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE snapshots (
		id TEXT PRIMARY KEY, workbook TEXT, seq INTEGER,
		workbook_hash TEXT, state_hash TEXT, cell_values TEXT, history TEXT)`)
	require.NoError(t, err)

	rows := []struct {
		id     string
		seq    int
		values string
	}{
		{"a", 1, `{"S!A1":2000}`},
		{"b", 2, `{"S!A1":2500.5,"S!A2":"2000"}`},
		{"c", 3, `{"S!A1":null,"S!A2":true}`},
		{"d", 4, `{"S!A2":"x"}`},
	}
	for _, r := range rows {
		_, err := db.Exec(`INSERT INTO snapshots VALUES (?, 'loan', ?, '', '', ?, '')`, r.id, r.seq, r.values)
		require.NoError(t, err)
	}
	_, err = db.Exec(`INSERT INTO snapshots VALUES ('z', 'other', 1, '', '', '{"S!A1":2000}', '')`)
	require.NoError(t, err)

	ids := func(q queryir.Select) []string {
		t.Helper()
		q.Workbook = "loan"
		query, params, err := NewSQLCompiler().Compile(q)
		require.NoError(t, err)
		rs, err := db.Query(query, params...)
		require.NoError(t, err)
		defer rs.Close()
		got := []string{}
		for rs.Next() {
			var id, wb, wh, sh, cv, h string
			var seq int
			require.NoError(t, rs.Scan(&id, &wb, &seq, &wh, &sh, &cv, &h))
			got = append(got, id)
		}
		require.NoError(t, rs.Err())
		return got
	}

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(queryir.Select{}))
	assert.Equal(t, []string{"d", "c"}, ids(queryir.Select{Order: queryir.NewestFirst, Limit: 2}))
	assert.Equal(t, []string{"a"}, ids(queryir.Select{Filter: queryir.Equals{Address: "S!A1", Value: 2000}}))
	assert.Equal(t, []string{"b"}, ids(queryir.Select{Filter: queryir.Equals{Address: "S!A2", Value: "2000"}}))
	assert.Equal(t, []string{"c"}, ids(queryir.Select{Filter: queryir.Equals{Address: "S!A1", Value: nil}}))
	assert.Equal(t, []string{"c"}, ids(queryir.Select{Filter: queryir.Equals{Address: "S!A2", Value: true}}))
	assert.Equal(t, []string{"b"}, ids(queryir.Select{Filter: queryir.Compare{Address: "S!A1", Op: queryir.OpGreater, Value: 2000}}))
	assert.Equal(t, []string{"b"}, ids(queryir.Select{Filter: queryir.Compare{Address: "S!A1", Op: queryir.OpNotEqual, Value: 2000}}))
	assert.Equal(t, []string{"a", "b", "c"}, ids(queryir.Select{Filter: queryir.Entered{Address: "S!A1"}}))
	assert.Empty(t, ids(queryir.Select{Filter: queryir.Compare{Address: "S!A2", Op: queryir.OpGreater, Value: 0}}))
}
