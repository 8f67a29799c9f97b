package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format names an encoding of a workbook description.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the format from a file extension. Anything that is not
// .yaml/.yml is treated as JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Decode parses a workbook description.
func Decode(data []byte, format Format) (*Workbook, error) {
	var wb Workbook
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &wb); err != nil {
			return nil, fmt.Errorf("decode yaml workbook: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&wb); err != nil {
			return nil, fmt.Errorf("decode json workbook: %w", err)
		}
	}
	if wb.Worksheets == nil {
		wb.Worksheets = map[string]*Worksheet{}
	}
	for name, ws := range wb.Worksheets {
		if ws == nil {
			wb.Worksheets[name] = &Worksheet{}
		}
	}
	return &wb, nil
}

// ToJSON converts a description in the given format to JSON bytes, the form
// the schema validator consumes.
func ToJSON(data []byte, format Format) ([]byte, error) {
	if format != FormatYAML {
		return data, nil
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return out, nil
}

// LoadFile reads, validates and decodes a workbook description file.
// Schema violations are returned as a *SchemaError.
func LoadFile(path string) (*Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	return Load(data, FormatForPath(path))
}

// Load validates and decodes a workbook description.
func Load(data []byte, format Format) (*Workbook, error) {
	jsonData, err := ToJSON(data, format)
	if err != nil {
		return nil, err
	}
	if verrs := Validate(jsonData); len(verrs) > 0 {
		return nil, &SchemaError{Errors: verrs}
	}
	return Decode(data, format)
}

// SchemaError wraps the schema violations found while loading.
type SchemaError struct {
	Errors []ValidationError
}

func (e *SchemaError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid workbook: " + e.Errors[0].Error()
	}
	return fmt.Sprintf("invalid workbook: %s (and %d more)", e.Errors[0].Error(), len(e.Errors)-1)
}
