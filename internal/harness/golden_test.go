package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// To regenerate golden files:
//
//	go test ./internal/harness -run TestGolden -update
func TestGolden_LoanRate(t *testing.T) {
	result, err := RunWithGolden(t, mustLoad(t, "testdata/scenarios/loan_rate.yaml"))
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestSnapshot_IsStable(t *testing.T) {
	s := mustLoad(t, "testdata/scenarios/loan_rate.yaml")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := NewSnapshot(s.Name, first).Marshal()
	require.NoError(t, err)
	b, err := NewSnapshot(s.Name, second).Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRoundTrip(t *testing.T) {
	for _, path := range []string{
		"testdata/scenarios/loan_rate.yaml",
		"testdata/scenarios/errors.yaml",
	} {
		t.Run(path, func(t *testing.T) {
			s := mustLoad(t, path)
			result, err := Run(s)
			require.NoError(t, err)

			rt, err := CheckRoundTrip(context.Background(), s, result)
			require.NoError(t, err)
			assert.False(t, rt.Skipped)
			assert.True(t, rt.OK(), "mismatches: %v", rt.Mismatches)
		})
	}
}

func TestRoundTrip_ReportsMismatch(t *testing.T) {
	s := mustLoad(t, "testdata/scenarios/loan_rate.yaml")
	result, err := Run(s)
	require.NoError(t, err)

	result.Cells["Model!A2"] = 1.0
	rt, err := CheckRoundTrip(context.Background(), s, result)
	require.NoError(t, err)
	require.Len(t, rt.Mismatches, 1)
	assert.Equal(t, Mismatch{Address: "Model!A2", Expected: 1.0, Actual: 1125.0}, rt.Mismatches[0])
}

func TestRoundTrip_SkipsFormulaScenarios(t *testing.T) {
	s := mustParse(t, `
name: formula
description: "installs a formula"
workbook: ../workbooks/loan.yaml
flow:
  - ref: Model!B1
    formula: "=1"
`)
	result, err := Run(s)
	require.NoError(t, err)
	rt, err := CheckRoundTrip(context.Background(), s, result)
	require.NoError(t, err)
	assert.True(t, rt.Skipped)
}
