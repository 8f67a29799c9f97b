package ir

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// Validation error codes.
const (
	ErrCodeSchemaLoad = "E100" // embedded schema failed to compile
	ErrCodeSyntax     = "E101" // input is not well-formed JSON
	ErrCodeSchema     = "E102" // input does not satisfy #Workbook
)

// ValidationError describes one schema violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a JSON workbook description against the embedded CUE
// schema. It reports every violation rather than stopping at the first.
func Validate(data []byte) []ValidationError {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return []ValidationError{{Field: "schema", Message: err.Error(), Code: ErrCodeSchemaLoad}}
	}

	// JSON is valid CUE, so the document compiles directly.
	doc := ctx.CompileBytes(data, cue.Filename("workbook.json"))
	if err := doc.Err(); err != nil {
		return convertCUEErrors(err, ErrCodeSyntax)
	}

	unified := schema.LookupPath(cue.ParsePath("#Workbook")).Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err, ErrCodeSchema)
	}
	return nil
}

func convertCUEErrors(err error, code string) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		ve := ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		}
		if pos := e.Position(); pos.IsValid() {
			ve.Line = pos.Line()
		}
		if ve.Field == "" {
			ve.Field = "workbook"
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Field: "workbook", Message: err.Error(), Code: code})
	}
	return out
}
