package onetable

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// Condition compiles a predicate into a condition or filter expression. Predicates may
// nest AND, OR and NOT freely. Key fields are rejected unless allowKeys is set, in which
// case a key field is addressed through its lowest index key attribute and literal
// operands carry that role's prefix.
//
// Name placeholders are '#' followed by the lowercased field name. Value placeholders
// append a 1-based ordinal counting every term in predicate order:
//
//	Name("Age").GreaterThan(21).And(Name("Name").BeginsWith("J"))
//	// #age > :age1 AND begins_with(#name,:name2)
func (m *Model[T]) Condition(p Predicate, allowKeys bool) (*CompiledExpression, error) {
	if !p.IsSet() {
		return nil, compileErrorf("", "predicate is empty")
	}

	c := &conditionCompiler[T]{
		model:     m,
		allowKeys: allowKeys,
		out: &CompiledExpression{
			Names:  make(map[string]string),
			Values: make(map[string]types.AttributeValue),
		},
	}

	var sb strings.Builder
	if err := c.render(&sb, p.node, 0); err != nil {
		return nil, err
	}
	c.out.Expression = sb.String()

	m.table.logger.Debug("compiled condition",
		zap.String("type", m.name),
		zap.String("expression", c.out.Expression),
	)
	return c.out, nil
}

type conditionCompiler[T any] struct {
	model     *Model[T]
	allowKeys bool
	ordinal   int
	out       *CompiledExpression
}

func (c *conditionCompiler[T]) render(sb *strings.Builder, n node, level int) error {
	switch x := n.(type) {
	case *logicalNode:
		if level > 0 {
			sb.WriteByte('(')
		}
		if err := c.render(sb, x.left, level+1); err != nil {
			return err
		}
		fmt.Fprintf(sb, " %s ", x.op)
		if err := c.render(sb, x.right, level+1); err != nil {
			return err
		}
		if level > 0 {
			sb.WriteByte(')')
		}
		return nil

	case *notNode:
		sb.WriteString("NOT ")
		return c.render(sb, x.inner, level+1)

	case *termNode:
		return c.term(sb, x)

	default:
		return compileErrorf("", "unsupported predicate node %T", n)
	}
}

func (c *conditionCompiler[T]) term(sb *strings.Builder, t *termNode) error {
	c.ordinal++

	if err := t.checkArity(); err != nil {
		return err
	}
	f, err := c.name(t.field)
	if err != nil {
		return err
	}
	name := namePlaceholder(f.Name)

	switch t.op {
	case OpBetween, OpAllByPrefix:
		return compileErrorf(f.Name, "%s is only supported in key conditions", t.op)
	case OpAttributeExists:
		fmt.Fprintf(sb, "attribute_exists(%s)", name)
		return nil
	case OpAttributeNotExists:
		fmt.Fprintf(sb, "attribute_not_exists(%s)", name)
		return nil
	}

	value, err := c.operand(f, t.operands[0])
	if err != nil {
		return err
	}

	switch t.op {
	case OpBeginsWith:
		fmt.Fprintf(sb, "begins_with(%s,%s)", name, value)
	case OpContains:
		fmt.Fprintf(sb, "contains(%s,%s)", name, value)
	default:
		fmt.Fprintf(sb, "%s %s %s", name, comparators[t.op], value)
	}
	return nil
}

// name registers the name placeholder of a field and returns the field.
func (c *conditionCompiler[T]) name(field string) (*boundField[T], error) {
	f, err := c.model.field(field)
	if err != nil {
		return nil, err
	}
	if f.IsKey() && !c.allowKeys {
		return nil, compileErrorf(f.Name, "key fields are not allowed in this expression")
	}
	c.out.Names[namePlaceholder(f.Name)] = c.storeName(f)
	return f, nil
}

// operand registers an operand and returns its placeholder. Field operands compare
// against another attribute and consume no value placeholder.
func (c *conditionCompiler[T]) operand(f *boundField[T], o operand) (string, error) {
	if o.field != "" {
		other, err := c.name(o.field)
		if err != nil {
			return "", err
		}
		return namePlaceholder(other.Name), nil
	}

	v, null, err := f.acc.literal(o.value)
	if err != nil {
		return "", compileErrorf(f.Name, "%v", err)
	}

	var av types.AttributeValue
	if f.Attribute {
		av, err = f.attributeValue(v, null)
	} else {
		av, err = c.model.keyValue(f, f.lowestRole(), v, null)
	}
	if err != nil {
		return "", err
	}

	placeholder := fmt.Sprintf(":%s%d", strings.ToLower(f.Name), c.ordinal)
	c.out.Values[placeholder] = av
	return placeholder, nil
}

// storeName is the attribute a field is addressed by in conditions.
func (c *conditionCompiler[T]) storeName(f *boundField[T]) string {
	if f.Attribute {
		return f.AttributeName()
	}
	return f.lowestRole().StoreName(c.model.table.config)
}

func namePlaceholder(field string) string {
	return "#" + strings.ToLower(field)
}
