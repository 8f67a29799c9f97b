package queryir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberValue(t *testing.T) {
	for _, v := range []any{2.0, float32(2), 2, int8(2), int64(2), uint(2), uint64(2), json.Number("2")} {
		f, ok := NumberValue(v)
		assert.True(t, ok, "%T", v)
		assert.Equal(t, 2.0, f, "%T", v)
	}
	for _, v := range []any{nil, "2", true, json.Number("x")} {
		_, ok := NumberValue(v)
		assert.False(t, ok, "%v", v)
	}
}

func TestMatch(t *testing.T) {
	values := map[string]any{
		"S!A1": 2000.0,
		"S!A2": "2000",
		"S!A3": true,
		"S!A4": nil,
	}

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"nil matches", nil, true},
		{"number", Equals{Address: "S!A1", Value: 2000}, true},
		{"number vs text", Equals{Address: "S!A2", Value: 2000.0}, false},
		{"text", &Equals{Address: "S!A2", Value: "2000"}, true},
		{"text vs number", Equals{Address: "S!A1", Value: "2000"}, false},
		{"bool", Equals{Address: "S!A3", Value: true}, true},
		{"bool vs number", Equals{Address: "S!A3", Value: 1.0}, false},
		{"blank", Equals{Address: "S!A4", Value: nil}, true},
		{"absent is not blank", Equals{Address: "S!A9", Value: nil}, false},
		{"less", Compare{Address: "S!A1", Op: OpLess, Value: 2001}, true},
		{"less equal", Compare{Address: "S!A1", Op: OpLessEqual, Value: 2000}, true},
		{"greater", &Compare{Address: "S!A1", Op: OpGreater, Value: 2000}, false},
		{"greater equal", Compare{Address: "S!A1", Op: OpGreaterEqual, Value: 2000}, true},
		{"not equal", Compare{Address: "S!A1", Op: OpNotEqual, Value: 1}, true},
		{"compare text", Compare{Address: "S!A2", Op: OpNotEqual, Value: 1}, false},
		{"compare absent", Compare{Address: "S!A9", Op: OpNotEqual, Value: 1}, false},
		{"entered blank", Entered{Address: "S!A4"}, true},
		{"not entered", &Entered{Address: "S!A9"}, false},
		{"empty and", And{}, true},
		{"and", And{Predicates: []Predicate{Entered{Address: "S!A1"}, Equals{Address: "S!A3", Value: true}}}, true},
		{"and short", &And{Predicates: []Predicate{Entered{Address: "S!A1"}, Entered{Address: "S!A9"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pred, values))
		})
	}
}

func TestParsePredicate(t *testing.T) {
	tests := []struct {
		in   string
		want Predicate
	}{
		{"Inputs!A1=2000", Equals{Address: "Inputs!A1", Value: 2000.0}},
		{"Inputs!$a$1 = 2000", Equals{Address: "Inputs!A1", Value: 2000.0}},
		{"Inputs!A1=abc", Equals{Address: "Inputs!A1", Value: "abc"}},
		{`Inputs!A1="2000"`, Equals{Address: "Inputs!A1", Value: "2000"}},
		{"Inputs!A1=true", Equals{Address: "Inputs!A1", Value: true}},
		{"Inputs!A1=null", Equals{Address: "Inputs!A1", Value: nil}},
		{"Inputs!A1<0.3", Compare{Address: "Inputs!A1", Op: OpLess, Value: 0.3}},
		{"Inputs!A1<=1", Compare{Address: "Inputs!A1", Op: OpLessEqual, Value: 1}},
		{"Inputs!A1>1", Compare{Address: "Inputs!A1", Op: OpGreater, Value: 1}},
		{"Inputs!A1>=1", Compare{Address: "Inputs!A1", Op: OpGreaterEqual, Value: 1}},
		{"Inputs!A1!=1", Compare{Address: "Inputs!A1", Op: OpNotEqual, Value: 1}},
		{"'a=b'!A1=1", Equals{Address: "'a=b'!A1", Value: 1.0}},
		{"Inputs!A3", Entered{Address: "Inputs!A3"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePredicate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"A1=1", "Inputs!A1<abc", "Inputs!A1=[1]", "Inputs!A1:B2"} {
		_, err := ParsePredicate(bad)
		assert.Error(t, err, bad)
	}
}
