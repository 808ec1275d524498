package onetable

import (
	"fmt"
	"strings"
)

// Operator is a comparison applied to a field in a predicate term.
type Operator int

const (
	OpEqual Operator = iota + 1
	OpNotEqual
	OpLessThan
	OpLessThanEqual
	OpGreaterThan
	OpGreaterThanEqual
	OpBeginsWith
	OpBetween
	OpAllByPrefix
	OpContains
	OpAttributeExists
	OpAttributeNotExists
)

var operatorNames = map[Operator]string{
	OpEqual:              "Equal",
	OpNotEqual:           "NotEqual",
	OpLessThan:           "LessThan",
	OpLessThanEqual:      "LessThanEqual",
	OpGreaterThan:        "GreaterThan",
	OpGreaterThanEqual:   "GreaterThanEqual",
	OpBeginsWith:         "BeginsWith",
	OpBetween:            "Between",
	OpAllByPrefix:        "AllByPrefix",
	OpContains:           "Contains",
	OpAttributeExists:    "AttributeExists",
	OpAttributeNotExists: "AttributeNotExists",
}

func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// comparators renders the plain comparison operators.
var comparators = map[Operator]string{
	OpEqual:            "=",
	OpNotEqual:         "<>",
	OpLessThan:         "<",
	OpLessThanEqual:    "<=",
	OpGreaterThan:      ">",
	OpGreaterThanEqual: ">=",
}

// arity is the number of operands each operator takes.
var arity = map[Operator]int{
	OpEqual:              1,
	OpNotEqual:           1,
	OpLessThan:           1,
	OpLessThanEqual:      1,
	OpGreaterThan:        1,
	OpGreaterThanEqual:   1,
	OpBeginsWith:         1,
	OpBetween:            2,
	OpAllByPrefix:        0,
	OpContains:           1,
	OpAttributeExists:    0,
	OpAttributeNotExists: 0,
}

// Predicate is a boolean expression over the fields of an item type. Predicates are
// immutable values built from [Name], [And], [Or] and [Not].
type Predicate struct {
	node node
}

// IsSet reports whether the predicate holds an expression.
func (p Predicate) IsSet() bool {
	return p.node != nil
}

func (p Predicate) String() string {
	if p.node == nil {
		return "<empty>"
	}
	return p.node.String()
}

type node interface {
	String() string
}

// nullLiteral marks a nil operand so that it stays distinct from a missing operand.
type nullLiteral struct{}

func (nullLiteral) String() string { return "null" }

// NullValue is the operand for comparing a field against NULL.
var NullValue any = nullLiteral{}

type operand struct {
	field string // set for field-to-field comparisons
	value any
}

func (o operand) String() string {
	if o.field != "" {
		return o.field
	}
	return fmt.Sprintf("%#v", o.value)
}

type termNode struct {
	field    string
	op       Operator
	operands []operand
}

func (t *termNode) String() string {
	parts := make([]string, len(t.operands))
	for i, o := range t.operands {
		parts[i] = o.String()
	}
	return fmt.Sprintf("%s.%s(%s)", t.field, t.op, strings.Join(parts, ", "))
}

type logicalOp string

const (
	logicalAnd logicalOp = "AND"
	logicalOr  logicalOp = "OR"
)

type logicalNode struct {
	op          logicalOp
	left, right node
}

func (n *logicalNode) String() string {
	return fmt.Sprintf("(%s %s %s)", n.left, n.op, n.right)
}

type notNode struct {
	inner node
}

func (n *notNode) String() string {
	return fmt.Sprintf("NOT %s", n.inner)
}

// NameBuilder references a mapped field by name.
type NameBuilder struct {
	name string
}

// Name references the mapped field with the given name. A NameBuilder passed as an
// operand compares two fields.
func Name(field string) NameBuilder {
	return NameBuilder{name: field}
}

func toOperand(v any) operand {
	switch x := v.(type) {
	case NameBuilder:
		return operand{field: x.name}
	case nil:
		return operand{value: nullLiteral{}}
	default:
		return operand{value: v}
	}
}

// Compare builds a term applying op to the field. The named methods are preferred.
func (n NameBuilder) Compare(op Operator, operands ...any) Predicate {
	t := &termNode{field: n.name, op: op}
	for _, v := range operands {
		t.operands = append(t.operands, toOperand(v))
	}
	return Predicate{node: t}
}

// Equal matches items whose field equals v.
func (n NameBuilder) Equal(v any) Predicate { return n.Compare(OpEqual, v) }

// NotEqual matches items whose field differs from v.
func (n NameBuilder) NotEqual(v any) Predicate { return n.Compare(OpNotEqual, v) }

// LessThan matches items whose field is less than v.
func (n NameBuilder) LessThan(v any) Predicate { return n.Compare(OpLessThan, v) }

// LessThanEqual matches items whose field is less than or equal to v.
func (n NameBuilder) LessThanEqual(v any) Predicate { return n.Compare(OpLessThanEqual, v) }

// GreaterThan matches items whose field is greater than v.
func (n NameBuilder) GreaterThan(v any) Predicate { return n.Compare(OpGreaterThan, v) }

// GreaterThanEqual matches items whose field is greater than or equal to v.
func (n NameBuilder) GreaterThanEqual(v any) Predicate { return n.Compare(OpGreaterThanEqual, v) }

// BeginsWith matches items whose field starts with v. Key prefixes are applied to v.
func (n NameBuilder) BeginsWith(v any) Predicate { return n.Compare(OpBeginsWith, v) }

// Between matches sort keys between lo and hi inclusive. Only key conditions support it.
func (n NameBuilder) Between(lo, hi any) Predicate { return n.Compare(OpBetween, lo, hi) }

// AllByPrefix matches every sort key carrying the field's key prefix on the queried index.
func (n NameBuilder) AllByPrefix() Predicate { return n.Compare(OpAllByPrefix) }

// Contains matches items whose field contains v.
func (n NameBuilder) Contains(v any) Predicate { return n.Compare(OpContains, v) }

// AttributeExists matches items where the field is stored.
func (n NameBuilder) AttributeExists() Predicate { return n.Compare(OpAttributeExists) }

// AttributeNotExists matches items where the field is not stored.
func (n NameBuilder) AttributeNotExists() Predicate { return n.Compare(OpAttributeNotExists) }

// And joins the predicate with others, left to right.
func (p Predicate) And(right Predicate, more ...Predicate) Predicate {
	return join(logicalAnd, p, right, more)
}

// Or joins the predicate with others, left to right.
func (p Predicate) Or(right Predicate, more ...Predicate) Predicate {
	return join(logicalOr, p, right, more)
}

// And joins predicates, left to right. Unset predicates are skipped.
func And(left, right Predicate, more ...Predicate) Predicate {
	return join(logicalAnd, left, right, more)
}

// Or joins predicates, left to right. Unset predicates are skipped.
func Or(left, right Predicate, more ...Predicate) Predicate {
	return join(logicalOr, left, right, more)
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	if p.node == nil {
		return p
	}
	return Predicate{node: &notNode{inner: p.node}}
}

func join(op logicalOp, left, right Predicate, more []Predicate) Predicate {
	out := left
	for _, p := range append([]Predicate{right}, more...) {
		switch {
		case p.node == nil:
		case out.node == nil:
			out = p
		default:
			out = Predicate{node: &logicalNode{op: op, left: out.node, right: p.node}}
		}
	}
	return out
}

// conjunction flattens a tree of AND nodes into its terms, in predicate order.
func conjunction(p Predicate) ([]*termNode, error) {
	if p.node == nil {
		return nil, compileErrorf("", "predicate is empty")
	}

	var terms []*termNode
	var walk func(n node) error
	walk = func(n node) error {
		switch x := n.(type) {
		case *termNode:
			terms = append(terms, x)
			return nil
		case *logicalNode:
			if x.op != logicalAnd {
				return compileErrorf("", "key expressions only support AND, got %s", x.op)
			}
			if err := walk(x.left); err != nil {
				return err
			}
			return walk(x.right)
		case *notNode:
			return compileErrorf("", "key expressions do not support NOT")
		default:
			return compileErrorf("", "unsupported predicate node %T", n)
		}
	}

	if err := walk(p.node); err != nil {
		return nil, err
	}
	return terms, nil
}

// checkArity validates the operand count of a term.
func (t *termNode) checkArity() error {
	n, ok := arity[t.op]
	if !ok {
		return compileErrorf(t.field, "unknown operator %s", t.op)
	}
	if len(t.operands) != n {
		return compileErrorf(t.field, "%s takes %d operand(s), got %d", t.op, n, len(t.operands))
	}
	return nil
}
