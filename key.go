package onetable

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// KeyFor compiles a conjunction of equality terms on the primary key fields into a key
// map for point lookups and deletes:
//
//	key, err := users.KeyFor(onetable.Name("ID").Equal("42"))
//
// The partition key is required, and so is the sort key when the type maps one.
func (m *Model[T]) KeyFor(p Predicate) (Item, error) {
	terms, err := conjunction(p)
	if err != nil {
		return nil, err
	}

	cfg := m.table.config
	key := make(Item, 2)

	for _, term := range terms {
		f, err := m.field(term.field)
		if err != nil {
			return nil, err
		}
		if term.op != OpEqual {
			return nil, compileErrorf(f.Name, "key lookups only support equality, got %s", term.op)
		}
		if err := term.checkArity(); err != nil {
			return nil, err
		}

		av, err := m.primaryKeyValue(f, term.operands[0])
		if err != nil {
			return nil, err
		}

		matched := false
		for _, role := range f.Keys {
			if role.Index != 0 {
				continue
			}
			name := role.StoreName(cfg)
			if _, dup := key[name]; dup {
				return nil, compileErrorf(f.Name, "key %s is referenced more than once", name)
			}
			v, err := m.formatKey(f, role, av)
			if err != nil {
				return nil, err
			}
			key[name] = v
			matched = true
		}
		if !matched {
			return nil, compileErrorf(f.Name, "field is not a primary key field")
		}
	}

	if _, ok := key[cfg.PKName]; !ok {
		return nil, compileErrorf(m.pk.Name, "partition key equality is required")
	}
	if m.sk != nil {
		if _, ok := key[cfg.SKName]; !ok {
			return nil, compileErrorf(m.sk.Name, "sort key equality is required")
		}
	}

	return key, nil
}

// primaryKeyValue converts a literal key operand with the registry converter, before
// prefix formatting.
func (m *Model[T]) primaryKeyValue(f *boundField[T], op operand) (types.AttributeValue, error) {
	if op.field != "" {
		return nil, compileErrorf(f.Name, "key terms cannot compare against field %q", op.field)
	}
	v, null, err := f.acc.literal(op.value)
	if err != nil {
		return nil, compileErrorf(f.Name, "%v", err)
	}
	if null {
		return nil, compileErrorf(f.Name, "key values cannot be null")
	}
	av, err := f.keyConverter.ToAttributeValue(v)
	if err != nil {
		return nil, &ConversionError{Type: f.Type, Field: f.Name, Err: err}
	}
	return av, nil
}

// formatKey applies a role's prefix to an already converted key value.
func (m *Model[T]) formatKey(f *boundField[T], role KeyRole, av types.AttributeValue) (types.AttributeValue, error) {
	if role.Prefix == "" || isNull(av) {
		return av, nil
	}
	text, ok := attributeText(av)
	if !ok {
		return nil, &ConversionError{Type: f.Type, Field: f.Name, Err: fmt.Errorf("%T cannot be prefixed", av)}
	}
	return &types.AttributeValueMemberS{Value: m.table.config.FormatKey(role.Prefix, text)}, nil
}
