package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gridcalc/internal/ir"
)

// Scenario describes a workbook, edits applied to it and the expected
// outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Workbook is the path to a JSON or YAML description, relative to the
	// scenario file. Exactly one of Workbook and Definition is set.
	Workbook string `yaml:"workbook,omitempty"`

	// Definition is an inline workbook description.
	Definition yaml.Node `yaml:"definition,omitempty"`

	// Setup holds writes applied before the flow. They are traced but carry
	// no expectations.
	Setup []SetStep `yaml:"setup,omitempty"`

	Flow       []FlowStep  `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`

	// desc is the loaded description.
	desc *ir.Workbook
}

// SetStep writes a value.
type SetStep struct {
	Ref   string `yaml:"ref"`
	Value any    `yaml:"value"`
}

// FlowStep is one step of the main flow.
type FlowStep struct {
	Ref     string `yaml:"ref,omitempty"`
	Value   any    `yaml:"value,omitempty"`
	Formula string `yaml:"formula,omitempty"`
	Reset   bool   `yaml:"reset,omitempty"`

	// Expect maps references to the values they must hold after the step.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Raw compares Expect against unformatted values.
	Raw bool `yaml:"raw,omitempty"`
}

// Assertion validates the workbook after the flow.
type Assertion struct {
	Type string `yaml:"type"`

	// Ref and Value are used by value assertions.
	Ref   string `yaml:"ref,omitempty"`
	Value any    `yaml:"value,omitempty"`
	Raw   bool   `yaml:"raw,omitempty"`

	// Count is used by the diagnostic and passes assertions.
	Count int `yaml:"count,omitempty"`

	// Refs is used by entered assertions.
	Refs []string `yaml:"refs,omitempty"`
}

// Assertion type constants.
const (
	AssertValue             = "value"
	AssertBuildErrors       = "build_errors"
	AssertWarnings          = "warnings"
	AssertCalculationErrors = "calculation_errors"
	AssertEntered           = "entered"
	AssertPasses            = "passes"
)

// WorkbookDescription returns the loaded workbook description.
func (s *Scenario) WorkbookDescription() *ir.Workbook { return s.desc }

// LoadScenario reads a scenario file and the workbook it names. Unknown
// fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML. A relative workbook path is resolved
// against baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	desc, err := scenario.loadWorkbook(baseDir)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	scenario.desc = desc
	return &scenario, nil
}

func (s *Scenario) loadWorkbook(baseDir string) (*ir.Workbook, error) {
	if s.Workbook != "" {
		path := s.Workbook
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		return ir.LoadFile(path)
	}
	// Re-encode the inline block so it goes through schema validation like a
	// workbook file.
	data, err := yaml.Marshal(&s.Definition)
	if err != nil {
		return nil, fmt.Errorf("encode inline definition: %w", err)
	}
	return ir.Load(data, ir.FormatYAML)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}

	hasInline := !s.Definition.IsZero()
	switch {
	case s.Workbook == "" && !hasInline:
		return errors.New("workbook or definition is required")
	case s.Workbook != "" && hasInline:
		return errors.New("workbook and definition are mutually exclusive")
	}

	if len(s.Flow) == 0 {
		return errors.New("flow list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if step.Ref == "" {
			return fmt.Errorf("setup[%d]: ref is required", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step FlowStep) error {
	switch {
	case step.Reset && (step.Ref != "" || step.Formula != ""):
		return errors.New("reset takes no ref or formula")
	case step.Formula != "" && step.Ref == "":
		return errors.New("formula requires a ref")
	case !step.Reset && step.Ref == "" && len(step.Expect) == 0:
		return errors.New("step does nothing: give a ref, reset or expect")
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertValue:
		if a.Ref == "" {
			return fmt.Errorf("assertions[%d]: ref is required for value", index)
		}
	case AssertBuildErrors, AssertWarnings, AssertCalculationErrors, AssertPasses:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertEntered:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
