package queryir

// Query represents a snapshot search.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode()
}

// Predicate represents a filter on the saved values of one snapshot.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Order is the sequence order of the results.
type Order int

const (
	// OldestFirst sorts by ascending seq.
	OldestFirst Order = iota
	// NewestFirst sorts by descending seq.
	NewestFirst
)

// Select returns the snapshots of one workbook matching a filter.
//
// Semantics:
//
//	SELECT * FROM snapshots
//	WHERE workbook = <workbook> AND <filter>
//	ORDER BY seq <order>
//	LIMIT <limit>
//
// Example:
//
//	Select{
//	  Workbook: "loan",
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Address: "Inputs!A1", Value: 2000.0},
//	    Compare{Address: "Inputs!A2", Op: OpLess, Value: 0.3},
//	  }},
//	  Order: NewestFirst,
//	  Limit: 10,
//	}
//
// A nil Filter matches every snapshot. Limit 0 means no limit. Seq is
// unique per workbook, so the order is total.
type Select struct {
	Workbook string
	Filter   Predicate
	Order    Order
	Limit    int
}

func (Select) queryNode() {}

// Equals matches snapshots where the cell holds exactly Value.
//
// Value is float64, string, bool or nil. Integer Go types are accepted and
// compared as float64. Equals with a nil Value matches a cell saved as
// blank, not a cell absent from the snapshot; use Entered for presence.
type Equals struct {
	Address string
	Value   any
}

func (Equals) predicateNode() {}

// CompareOp is a numeric ordering operator.
type CompareOp string

const (
	OpLess         CompareOp = "<"
	OpLessEqual    CompareOp = "<="
	OpGreater      CompareOp = ">"
	OpGreaterEqual CompareOp = ">="
	OpNotEqual     CompareOp = "!="
)

// Compare matches snapshots where the cell holds a number that stands in
// relation Op to Value. A cell holding text, a boolean, blank, or nothing
// never matches, whatever the operator.
type Compare struct {
	Address string
	Op      CompareOp
	Value   float64
}

func (Compare) predicateNode() {}

// Entered matches snapshots that saved a value for the cell, blank
// included.
type Entered struct {
	Address string
}

func (Entered) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
// An empty And matches everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
