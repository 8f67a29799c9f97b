// Package address parses and formats cell addresses.
//
// Accepted forms, each optionally prefixed by a sheet name and '!':
//
//	A1        $A$1        A1:B2
//	R1C1      R1C1:R2C2
//	A:B       (whole columns, rows 1..DefaultMaxRows)
//	1:3       (whole rows, columns 1..DefaultMaxCols)
//	A1:B2,Sheet2!C3       (multi-range)
//
// Column letters are case-insensitive and '$' anchors are ignored. Sheet
// names containing spaces or punctuation are single-quoted, with embedded
// quotes doubled.
package address

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Practical bounds for whole-column and whole-row ranges.
const (
	DefaultMaxRows = 65000
	DefaultMaxCols = 216
)

// Bounds is a parsed range with inclusive 1-based corners. Sheet is empty
// when the address was not sheet-qualified.
type Bounds struct {
	Sheet    string
	StartRow int
	StartCol int
	EndRow   int
	EndCol   int
}

// Cell returns the bounds of a single cell.
func Cell(sheet string, row, col int) Bounds {
	return Bounds{Sheet: sheet, StartRow: row, StartCol: col, EndRow: row, EndCol: col}
}

// IsCell reports whether the bounds cover exactly one cell.
func (b Bounds) IsCell() bool {
	return b.StartRow == b.EndRow && b.StartCol == b.EndCol
}

func (b Bounds) Height() int { return b.EndRow - b.StartRow + 1 }
func (b Bounds) Width() int  { return b.EndCol - b.StartCol + 1 }

// Contains reports whether (row, col) lies inside the bounds.
func (b Bounds) Contains(row, col int) bool {
	return row >= b.StartRow && row <= b.EndRow && col >= b.StartCol && col <= b.EndCol
}

// String formats the bounds in A1 notation.
func (b Bounds) String() string {
	s := ColumnName(b.StartCol) + strconv.Itoa(b.StartRow)
	if !b.IsCell() {
		s += ":" + ColumnName(b.EndCol) + strconv.Itoa(b.EndRow)
	}
	return qualify(b.Sheet, s)
}

// R1C1 formats the bounds in R1C1 notation.
func (b Bounds) R1C1() string {
	s := fmt.Sprintf("R%dC%d", b.StartRow, b.StartCol)
	if !b.IsCell() {
		s += fmt.Sprintf(":R%dC%d", b.EndRow, b.EndCol)
	}
	return qualify(b.Sheet, s)
}

// Format renders a single cell address such as Sheet1!B7.
func Format(sheet string, row, col int) string {
	return Cell(sheet, row, col).String()
}

func qualify(sheet, s string) string {
	if sheet == "" {
		return s
	}
	return QuoteSheet(sheet) + "!" + s
}

var plainSheet = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// QuoteSheet quotes a sheet name when it would not parse bare.
func QuoteSheet(name string) string {
	if plainSheet.MatchString(name) && !cellPattern.MatchString(name) && !r1c1Pattern.MatchString(name) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// ParseError reports an address that could not be parsed.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Input, e.Reason)
}

var (
	cellPattern   = regexp.MustCompile(`^\$?([A-Za-z]{1,3})\$?([0-9]+)$`)
	r1c1Pattern   = regexp.MustCompile(`^[Rr]([0-9]+)[Cc]([0-9]+)$`)
	columnPattern = regexp.MustCompile(`^\$?([A-Za-z]{1,3})$`)
	rowPattern    = regexp.MustCompile(`^\$?([0-9]+)$`)
)

// Parse parses a single or comma-joined multi-range address.
func Parse(s string) ([]Bounds, error) {
	parts, err := splitList(s)
	if err != nil {
		return nil, err
	}
	out := make([]Bounds, 0, len(parts))
	for _, part := range parts {
		b, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// ParseOne parses an address that must denote exactly one range.
func ParseOne(s string) (Bounds, error) {
	all, err := Parse(s)
	if err != nil {
		return Bounds{}, err
	}
	if len(all) != 1 {
		return Bounds{}, &ParseError{Input: s, Reason: "expected a single range"}
	}
	return all[0], nil
}

// splitList splits on commas outside quoted sheet names.
func splitList(s string) ([]string, error) {
	var parts []string
	var cur strings.Builder
	quoted := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			quoted = !quoted
			cur.WriteByte(c)
		case c == ',' && !quoted:
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if quoted {
		return nil, &ParseError{Input: s, Reason: "unterminated sheet quote"}
	}
	parts = append(parts, strings.TrimSpace(cur.String()))
	for _, p := range parts {
		if p == "" {
			return nil, &ParseError{Input: s, Reason: "empty range in list"}
		}
	}
	return parts, nil
}

// SplitSheet separates an optional sheet prefix from the rest of the address.
// Quotes around the sheet name are removed and doubled quotes collapsed.
func SplitSheet(s string) (sheet, rest string, err error) {
	bang := -1
	quoted := false
	for i := 0; i < len(s) && bang < 0; i++ {
		switch s[i] {
		case '\'':
			quoted = !quoted
		case '!':
			if !quoted {
				bang = i
			}
		}
	}
	if bang < 0 {
		return "", s, nil
	}
	sheet, rest = s[:bang], s[bang+1:]
	if strings.HasPrefix(sheet, "'") {
		if len(sheet) < 2 || !strings.HasSuffix(sheet, "'") {
			return "", "", &ParseError{Input: s, Reason: "malformed quoted sheet name"}
		}
		sheet = strings.ReplaceAll(sheet[1:len(sheet)-1], "''", "'")
	}
	if sheet == "" {
		return "", "", &ParseError{Input: s, Reason: "empty sheet name"}
	}
	return sheet, rest, nil
}

func parseRange(s string) (Bounds, error) {
	sheet, rest, err := SplitSheet(s)
	if err != nil {
		return Bounds{}, err
	}
	left, right, isRange := strings.Cut(rest, ":")
	if !isRange {
		row, col, err := parseCell(left)
		if err != nil {
			return Bounds{}, &ParseError{Input: s, Reason: err.Error()}
		}
		return Cell(sheet, row, col), nil
	}

	// the right-hand corner may repeat the sheet name: Sheet1!A1:Sheet1!B2
	if rs, rr, err := SplitSheet(right); err == nil && rs != "" {
		if !strings.EqualFold(rs, sheet) {
			return Bounds{}, &ParseError{Input: s, Reason: "range corners on different sheets"}
		}
		right = rr
	}

	if r1, c1, err := parseCell(left); err == nil {
		r2, c2, err := parseCell(right)
		if err != nil {
			return Bounds{}, &ParseError{Input: s, Reason: err.Error()}
		}
		return normalize(Bounds{Sheet: sheet, StartRow: r1, StartCol: c1, EndRow: r2, EndCol: c2}), nil
	}
	if m1, m2 := columnPattern.FindStringSubmatch(left), columnPattern.FindStringSubmatch(right); m1 != nil && m2 != nil {
		c1, _ := ColumnIndex(m1[1])
		c2, _ := ColumnIndex(m2[1])
		return normalize(Bounds{Sheet: sheet, StartRow: 1, StartCol: c1, EndRow: DefaultMaxRows, EndCol: c2}), nil
	}
	if m1, m2 := rowPattern.FindStringSubmatch(left), rowPattern.FindStringSubmatch(right); m1 != nil && m2 != nil {
		r1, err1 := positive(m1[1])
		r2, err2 := positive(m2[1])
		if err1 != nil || err2 != nil {
			return Bounds{}, &ParseError{Input: s, Reason: "row must be at least 1"}
		}
		return normalize(Bounds{Sheet: sheet, StartRow: r1, StartCol: 1, EndRow: r2, EndCol: DefaultMaxCols}), nil
	}
	return Bounds{}, &ParseError{Input: s, Reason: "unrecognized range"}
}

func parseCell(s string) (row, col int, err error) {
	s = strings.TrimSpace(s)
	if m := r1c1Pattern.FindStringSubmatch(s); m != nil {
		if row, err = positive(m[1]); err != nil {
			return 0, 0, err
		}
		if col, err = positive(m[2]); err != nil {
			return 0, 0, err
		}
		return row, col, nil
	}
	if m := cellPattern.FindStringSubmatch(s); m != nil {
		if col, err = ColumnIndex(m[1]); err != nil {
			return 0, 0, err
		}
		if row, err = positive(m[2]); err != nil {
			return 0, 0, err
		}
		return row, col, nil
	}
	return 0, 0, fmt.Errorf("%q is not a cell", s)
}

func positive(digits string) (int, error) {
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%q must be a positive integer", digits)
	}
	return n, nil
}

func normalize(b Bounds) Bounds {
	if b.EndRow < b.StartRow {
		b.StartRow, b.EndRow = b.EndRow, b.StartRow
	}
	if b.EndCol < b.StartCol {
		b.StartCol, b.EndCol = b.EndCol, b.StartCol
	}
	return b
}

// ColumnIndex converts column letters to a 1-based index: A=1, Z=26, AA=27.
func ColumnIndex(letters string) (int, error) {
	letters = strings.TrimPrefix(letters, "$")
	if letters == "" {
		return 0, fmt.Errorf("empty column")
	}
	n := 0
	for _, r := range strings.ToUpper(letters) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column %q", letters)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n, nil
}

// ColumnName converts a 1-based column index to letters.
func ColumnName(n int) string {
	if n < 1 {
		return ""
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		n--
		i--
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf[i:])
}
