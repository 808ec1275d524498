package onetable

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var nullAttribute = &types.AttributeValueMemberNULL{Value: true}

func isNull(av types.AttributeValue) bool {
	_, ok := av.(*types.AttributeValueMemberNULL)
	return ok
}

// Attributize converts item into its stored attribute map. Every key role of a field is
// written as a separate attribute, and the item type is stamped when the table declares
// an item type attribute.
func (m *Model[T]) Attributize(item *T) (Item, error) {
	if item == nil {
		return nil, fmt.Errorf("cannot attributize nil %s", m.name)
	}

	cfg := m.table.config
	out := make(Item, len(m.fields)+1)

	for _, f := range m.fields {
		v, null := f.acc.get(item)

		if f.Attribute {
			av, err := f.attributeValue(v, null)
			if err != nil {
				return nil, err
			}
			out[f.AttributeName()] = av
		}

		for _, role := range f.Keys {
			av, err := m.keyValue(f, role, v, null)
			if err != nil {
				return nil, err
			}
			out[role.StoreName(cfg)] = av
		}
	}

	if m.itemType != "" && cfg.ItemTypeAttributeName != "" {
		out[cfg.ItemTypeAttributeName] = &types.AttributeValueMemberS{Value: m.itemType}
	}

	return out, nil
}

// Deattributize builds a new T from a stored attribute map. Fields absent from the map
// and fields stored as NULL keep their zero value.
func (m *Model[T]) Deattributize(item Item) (*T, error) {
	cfg := m.table.config
	out := new(T)

	for _, f := range m.fields {
		if f.Attribute {
			if av, ok := item[f.AttributeName()]; ok {
				if err := f.read(out, av, f.attrConverter); err != nil {
					return nil, err
				}
				continue
			}
		}

		for _, role := range f.Keys {
			av, ok := item[role.StoreName(cfg)]
			if !ok {
				continue
			}
			if role.Prefix != "" && !isNull(av) {
				s, isString := av.(*types.AttributeValueMemberS)
				if !isString {
					return nil, &ConversionError{Type: f.Type, Field: f.Name, Err: fmt.Errorf("prefixed key %s is not a string", role.StoreName(cfg))}
				}
				text, found := cfg.StripKey(role.Prefix, s.Value)
				if !found {
					return nil, &ConversionError{Type: f.Type, Field: f.Name, Err: fmt.Errorf("key %q does not start with prefix %q", s.Value, role.Prefix)}
				}
				av = &types.AttributeValueMemberS{Value: text}
			}
			if err := f.read(out, av, f.keyConverter); err != nil {
				return nil, err
			}
			break
		}
	}

	return out, nil
}

// DeattributizeAll converts each item in items.
func (m *Model[T]) DeattributizeAll(items []Item) ([]*T, error) {
	out := make([]*T, 0, len(items))
	for i, item := range items {
		v, err := m.Deattributize(item)
		if err != nil {
			return nil, fmt.Errorf("failed to deattributize item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// attributeValue converts a field value for its attribute role.
func (f *boundField[T]) attributeValue(v any, null bool) (types.AttributeValue, error) {
	if null {
		return nullAttribute, nil
	}
	av, err := f.attrConverter.ToAttributeValue(v)
	if err != nil {
		return nil, &ConversionError{Type: f.Type, Field: f.Name, Err: err}
	}
	return av, nil
}

func (f *boundField[T]) read(out *T, av types.AttributeValue, c Converter) error {
	if isNull(av) {
		f.acc.setNull(out)
		return nil
	}
	v, err := c.FromAttributeValue(av)
	if err != nil {
		return &ConversionError{Type: f.Type, Field: f.Name, Err: err}
	}
	if err := f.acc.set(out, v); err != nil {
		return &ConversionError{Type: f.Type, Field: f.Name, Err: err}
	}
	return nil
}

// keyValue converts a field value for one of its key roles. Null values bypass prefix
// formatting; prefixed values are always stored as strings.
func (m *Model[T]) keyValue(f *boundField[T], role KeyRole, v any, null bool) (types.AttributeValue, error) {
	if null {
		return nullAttribute, nil
	}

	av, err := f.keyConverter.ToAttributeValue(v)
	if err != nil {
		return nil, &ConversionError{Type: f.Type, Field: f.Name, Err: err}
	}
	return m.formatKey(f, role, av)
}

// Key returns the primary key of item: the partition key and, when the type maps one,
// the sort key.
func (m *Model[T]) Key(item *T) (Item, error) {
	if item == nil {
		return nil, fmt.Errorf("cannot build key of nil %s", m.name)
	}

	cfg := m.table.config
	key := make(Item, 2)

	for _, f := range []*boundField[T]{m.pk, m.sk} {
		if f == nil {
			continue
		}
		v, null := f.acc.get(item)
		for _, role := range f.Keys {
			if role.Index != 0 {
				continue
			}
			av, err := m.keyValue(f, role, v, null)
			if err != nil {
				return nil, err
			}
			key[role.StoreName(cfg)] = av
		}
	}

	return key, nil
}
