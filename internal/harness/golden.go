package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/gridcalc/internal/ir"
)

// GoldenDir is where golden snapshots live, relative to the test's package.
const GoldenDir = "testdata/golden"

// Snapshot is the byte-stable record of a scenario run stored in golden
// files.
type Snapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Trace        []TraceEvent   `json:"trace"`
	Cells        map[string]any `json:"cells"`
	State        map[string]any `json:"state"`
}

// NewSnapshot captures a result for golden comparison.
func NewSnapshot(name string, result *Result) Snapshot {
	return Snapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Cells:        result.Cells,
		State:        result.State,
	}
}

// Marshal encodes the snapshot as canonical JSON.
func (s Snapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s)
}

// RunWithGolden executes a scenario and compares its snapshot with
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario could not be executed. A mismatch fails
// the test through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
