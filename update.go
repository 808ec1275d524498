package onetable

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// UpdateOperation is a partial update of one item. Attributes in Sets are written and
// attributes in Removes are deleted from the stored item.
type UpdateOperation struct {
	Key     Item
	Sets    Item
	Removes []string
}

// UpdateOperation builds an update that rewrites every non-key attribute of item. Fields
// holding NULL are removed instead of stored.
func (m *Model[T]) UpdateOperation(item *T) (*UpdateOperation, error) {
	attrs, err := m.Attributize(item)
	if err != nil {
		return nil, err
	}
	key, err := m.Key(item)
	if err != nil {
		return nil, err
	}
	return splitUpdate(key, attrs), nil
}

// PatchOperation is like [Model.UpdateOperation] but only touches the named fields.
// Primary key fields may be named; their secondary key roles are updated.
func (m *Model[T]) PatchOperation(item *T, fields ...string) (*UpdateOperation, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("patch of %s names no fields", m.name)
	}

	attrs, err := m.Attributize(item)
	if err != nil {
		return nil, err
	}
	key, err := m.Key(item)
	if err != nil {
		return nil, err
	}

	cfg := m.table.config
	patched := make(Item, len(fields))
	for _, name := range fields {
		f, err := m.field(name)
		if err != nil {
			return nil, err
		}
		for _, storeName := range f.storeNames(cfg) {
			patched[storeName] = attrs[storeName]
		}
	}
	return splitUpdate(key, patched), nil
}

func splitUpdate(key, attrs Item) *UpdateOperation {
	op := &UpdateOperation{Key: key, Sets: make(Item)}
	for name, av := range attrs {
		if _, isKey := key[name]; isKey {
			continue
		}
		if isNull(av) {
			op.Removes = append(op.Removes, name)
		} else {
			op.Sets[name] = av
		}
	}
	sort.Strings(op.Removes)
	return op
}

// IsEmpty reports whether the operation neither sets nor removes anything.
func (u *UpdateOperation) IsEmpty() bool {
	return len(u.Sets) == 0 && len(u.Removes) == 0
}

// Expression renders the update expression with one placeholder pair per attribute,
// named after the lowercased attribute:
//
//	SET #email = :email, #name = :name REMOVE #age
func (u *UpdateOperation) Expression() *CompiledExpression {
	out := &CompiledExpression{
		Names:  make(map[string]string, len(u.Sets)+len(u.Removes)),
		Values: make(map[string]types.AttributeValue, len(u.Sets)),
	}

	sets := make([]string, 0, len(u.Sets))
	for name := range u.Sets {
		sets = append(sets, name)
	}
	sort.Strings(sets)

	var clauses []string
	if len(sets) > 0 {
		parts := make([]string, len(sets))
		for i, name := range sets {
			ph := out.placeholder(name)
			out.Values[":"+ph] = u.Sets[name]
			parts[i] = fmt.Sprintf("#%s = :%s", ph, ph)
		}
		clauses = append(clauses, "SET "+strings.Join(parts, ", "))
	}
	if len(u.Removes) > 0 {
		parts := make([]string, len(u.Removes))
		for i, name := range u.Removes {
			parts[i] = "#" + out.placeholder(name)
		}
		clauses = append(clauses, "REMOVE "+strings.Join(parts, ", "))
	}

	out.Expression = strings.Join(clauses, " ")
	return out
}

// placeholder registers a name placeholder for an attribute and returns it without the
// leading '#'. Characters that are not valid in placeholders become underscores, and a
// counter separates attributes that would otherwise collide.
func (c *CompiledExpression) placeholder(attr string) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, attr)

	ph := base
	for n := 2; ; n++ {
		existing, taken := c.Names["#"+ph]
		if !taken || existing == attr {
			break
		}
		ph = fmt.Sprintf("%s_%d", base, n)
	}
	c.Names["#"+ph] = attr
	return ph
}
