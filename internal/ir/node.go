package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeType discriminates expression nodes.
type NodeType string

const (
	NodeValue      NodeType = "value"
	NodeString     NodeType = "string"
	NodeBool       NodeType = "bool"
	NodeBinary     NodeType = "binary"
	NodeUnary      NodeType = "unary"
	NodeReference  NodeType = "reference"
	NodeNamedRange NodeType = "namedRangeReference"
	NodeFunc       NodeType = "wsFunc"
	NodeArray      NodeType = "array"
)

// Binary operators.
const (
	OpAdd = "add"
	OpSub = "sub"
	OpMul = "mul"
	OpDiv = "div"
	OpExp = "exp"
	OpEq  = "eq"
	OpNeq = "neq"
	OpLt  = "lt"
	OpGt  = "gt"
	OpLte = "lte"
	OpGte = "gte"
	OpCat = "cat"
)

// Unary operators.
const (
	OpNeg     = "neg"
	OpPos     = "pos"
	OpPercent = "percent"
)

// opSymbols maps operator names to formula text.
var opSymbols = map[string]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpExp: "^",
	OpEq: "=", OpNeq: "<>", OpLt: "<", OpGt: ">", OpLte: "<=", OpGte: ">=",
	OpCat: "&",
}

// OpForSymbol returns the operator name for formula text such as "<=".
func OpForSymbol(sym string) (string, bool) {
	for op, s := range opSymbols {
		if s == sym {
			return op, true
		}
	}
	return "", false
}

// Node is a parsed formula expression. Which fields are set depends on Type:
//
//	value, string, bool    Value
//	binary                 Op, Left, Right
//	unary                  Op, Operand
//	reference              Address (optionally sheet-qualified), Worksheet
//	namedRangeReference    Name
//	wsFunc                 Name, Args
//	array                  Rows
type Node struct {
	Type      NodeType  `json:"type" yaml:"type"`
	Value     any       `json:"value,omitempty" yaml:"value,omitempty"`
	Op        string    `json:"op,omitempty" yaml:"op,omitempty"`
	Left      *Node     `json:"left,omitempty" yaml:"left,omitempty"`
	Right     *Node     `json:"right,omitempty" yaml:"right,omitempty"`
	Operand   *Node     `json:"operand,omitempty" yaml:"operand,omitempty"`
	Address   string    `json:"address,omitempty" yaml:"address,omitempty"`
	Worksheet string    `json:"worksheet,omitempty" yaml:"worksheet,omitempty"`
	Name      string    `json:"name,omitempty" yaml:"name,omitempty"`
	Args      []*Node   `json:"args,omitempty" yaml:"args,omitempty"`
	Rows      [][]*Node `json:"rows,omitempty" yaml:"rows,omitempty"`
}

// Num creates a number literal.
func Num(f float64) *Node { return &Node{Type: NodeValue, Value: f} }

// Str creates a string literal.
func Str(s string) *Node { return &Node{Type: NodeString, Value: s} }

// Boolean creates a logical literal.
func Boolean(b bool) *Node { return &Node{Type: NodeBool, Value: b} }

// Ref creates a reference node.
func Ref(address string) *Node { return &Node{Type: NodeReference, Address: address} }

// NamedRef creates a named-range reference.
func NamedRef(name string) *Node { return &Node{Type: NodeNamedRange, Name: name} }

// Binary creates a binary operator node.
func Binary(op string, left, right *Node) *Node {
	return &Node{Type: NodeBinary, Op: op, Left: left, Right: right}
}

// Unary creates a unary operator node.
func Unary(op string, operand *Node) *Node {
	return &Node{Type: NodeUnary, Op: op, Operand: operand}
}

// Call creates a function call node.
func Call(name string, args ...*Node) *Node {
	return &Node{Type: NodeFunc, Name: name, Args: args}
}

// Array creates an array literal node.
func Array(rows ...[]*Node) *Node {
	return &Node{Type: NodeArray, Rows: rows}
}

// String renders the node as formula text (without the leading '=').
func (n *Node) String() string {
	if n == nil {
		return ""
	}
	switch n.Type {
	case NodeValue:
		switch v := n.Value.(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	case NodeString:
		return `"` + strings.ReplaceAll(fmt.Sprint(n.Value), `"`, `""`) + `"`
	case NodeBool:
		if b, _ := n.Value.(bool); b {
			return "TRUE"
		}
		return "FALSE"
	case NodeBinary:
		return "(" + n.Left.String() + opSymbols[n.Op] + n.Right.String() + ")"
	case NodeUnary:
		switch n.Op {
		case OpNeg:
			return "-" + n.Operand.String()
		case OpPercent:
			return n.Operand.String() + "%"
		}
		return "+" + n.Operand.String()
	case NodeReference:
		if n.Worksheet != "" && !strings.Contains(n.Address, "!") {
			return n.Worksheet + "!" + n.Address
		}
		return n.Address
	case NodeNamedRange:
		return n.Name
	case NodeFunc:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = a.String()
		}
		return strings.ToUpper(n.Name) + "(" + strings.Join(args, ",") + ")"
	case NodeArray:
		rows := make([]string, len(n.Rows))
		for i, row := range n.Rows {
			cells := make([]string, len(row))
			for j, c := range row {
				cells[j] = c.String()
			}
			rows[i] = strings.Join(cells, ",")
		}
		return "{" + strings.Join(rows, ";") + "}"
	}
	return "?" + string(n.Type)
}
