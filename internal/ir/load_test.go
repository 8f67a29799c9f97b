package ir

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "name": "budget",
  "worksheets": {
    "Sheet1": {
      "cells": [
        {"row": 1, "col": 1, "expression": {"type": "value", "value": 10}},
        {"row": 1, "col": 2, "expression": {"type": "binary", "op": "mul",
          "left": {"type": "reference", "address": "A1"},
          "right": {"type": "namedRangeReference", "name": "Rate"}}, "nf": "0.00"},
        {"row": 2, "col": 1, "f": "=A1*2"},
        {"row": 3, "col": 1, "v": "label"}
      ],
      "namedRanges": {"Rate": {"startRow": 4, "startCol": 1}}
    }
  },
  "namedRanges": {"Inputs": {"startRow": 1, "startCol": 1, "endRow": 3, "endCol": 1, "worksheet": "Sheet1"}}
}`

const sampleYAML = `
name: budget
worksheets:
  Sheet1:
    cells:
      - row: 1
        col: 1
        expression: {type: value, value: 10}
      - row: 2
        col: 1
        f: "=A1*2"
`

func TestLoad_JSON(t *testing.T) {
	wb, err := Load([]byte(sampleJSON), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, "budget", wb.Name)
	require.Contains(t, wb.Worksheets, "Sheet1")
	ws := wb.Worksheets["Sheet1"]
	require.Len(t, ws.Cells, 4)
	assert.Equal(t, NodeBinary, ws.Cells[1].Expression.Type)
	assert.Equal(t, "0.00", ws.Cells[1].NF)
	assert.Equal(t, "=A1*2", ws.Cells[2].F)
	assert.Equal(t, "label", ws.Cells[3].V)
	assert.Equal(t, 10.0, ws.Cells[0].Expression.Value)

	sr, sc, er, ec := wb.NamedRanges["Inputs"].Corners()
	assert.Equal(t, []int{1, 1, 3, 1}, []int{sr, sc, er, ec})
	sr, sc, er, ec = ws.NamedRanges["Rate"].Corners()
	assert.Equal(t, []int{4, 1, 4, 1}, []int{sr, sc, er, ec})
	assert.Equal(t, 4, wb.CellCount())
}

func TestLoad_YAML(t *testing.T) {
	wb, err := Load([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)
	cells := wb.Worksheets["Sheet1"].Cells
	require.Len(t, cells, 2)
	assert.Equal(t, NodeValue, cells[0].Expression.Type)
	assert.Equal(t, 10, cells[0].Expression.Value)
}

func TestLoad_SchemaViolation(t *testing.T) {
	bad := `{"name": "x", "worksheets": {"S": {"cells": [{"row": 0, "col": 1}]}}}`
	_, err := Load([]byte(bad), FormatJSON)
	require.Error(t, err)

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	require.NotEmpty(t, se.Errors)
	assert.Equal(t, ErrCodeSchema, se.Errors[0].Code)
	assert.Contains(t, se.Errors[0].Field, "row")
}

func TestValidate(t *testing.T) {
	assert.Empty(t, Validate([]byte(sampleJSON)))

	errs := Validate([]byte(`{"name": "x", "worksheets": {}, "bogus": 1}`))
	assert.NotEmpty(t, errs)

	errs = Validate([]byte(`{"name": "x", "worksheets": {"S": {"cells": [{"row": 1, "col": 1, "expression": {"type": "lambda"}}]}}}`))
	assert.NotEmpty(t, errs)

	errs = Validate([]byte(`{not json`))
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrCodeSyntax, errs[0].Code)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wb.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	wb, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "budget", wb.Name)

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestSheetNames(t *testing.T) {
	wb := &Workbook{
		Worksheets: map[string]*Worksheet{"b": {}, "a": {}, "c": {}},
		Order:      []string{"c", "missing"},
	}
	assert.Equal(t, []string{"c", "a", "b"}, wb.SheetNames())
}

func TestClone(t *testing.T) {
	wb, err := Decode([]byte(sampleJSON), FormatJSON)
	require.NoError(t, err)
	c := wb.Clone()
	c.Worksheets["Sheet1"].Cells[0].V = 99
	c.NamedRanges["New"] = NamedRange{StartRow: 1, StartCol: 1}
	assert.Nil(t, wb.Worksheets["Sheet1"].Cells[0].V)
	assert.NotContains(t, wb.NamedRanges, "New")
}
