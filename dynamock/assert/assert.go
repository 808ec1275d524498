// Package assert provides fluent assertion utilities for testing DynamoDB operations
// and onetable expressions. It makes tests more readable and maintainable by providing
// expressive assertion methods.
//
// # Usage
//
//	import "github.com/nisimpson/onetable/dynamock/assert"
//
//	// Assert on DynamoDB items
//	assert.Items(t, result.Items).
//		HasCount(3).
//		ContainsKey("USR#1", "USR#1").
//		HasAttribute("ItemType", "user")
//
//	// Assert on a single item
//	assert.Item(t, putInput.Item).
//		HasString("PK", "USR#1").
//		IsNull("Age").
//		Lacks("GPK1")
//
//	// Assert on compiled expressions
//	assert.Expression(t, compiled).
//		HasText("#pk = :pk AND begins_with(#sk,:sk)").
//		HasName("#pk", "GPK1").
//		OnIndex("gsi_1")
package assert

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/onetable"
)

// ItemsAssertion provides fluent assertions for DynamoDB items.
type ItemsAssertion struct {
	t     testing.TB
	items []onetable.Item
}

// Items creates a new ItemsAssertion for the given DynamoDB items.
func Items(t testing.TB, items []onetable.Item) *ItemsAssertion {
	return &ItemsAssertion{
		t:     t,
		items: items,
	}
}

// HasCount asserts that the items collection has the expected count.
func (a *ItemsAssertion) HasCount(expected int) *ItemsAssertion {
	a.t.Helper()
	if len(a.items) != expected {
		a.t.Errorf("expected %d items, got %d", expected, len(a.items))
	}
	return a
}

// IsEmpty asserts that the items collection is empty.
func (a *ItemsAssertion) IsEmpty() *ItemsAssertion {
	a.t.Helper()
	return a.HasCount(0)
}

// IsNotEmpty asserts that the items collection is not empty.
func (a *ItemsAssertion) IsNotEmpty() *ItemsAssertion {
	a.t.Helper()
	if len(a.items) == 0 {
		a.t.Error("expected items to not be empty")
	}
	return a
}

// ContainsKey asserts that an item is stored under the given partition and sort key,
// using the default key attribute names.
func (a *ItemsAssertion) ContainsKey(pk, sk string) *ItemsAssertion {
	a.t.Helper()
	cfg := onetable.DefaultTableConfiguration()
	for _, item := range a.items {
		if stringValue(item, cfg.PKName) == pk && stringValue(item, cfg.SKName) == sk {
			return a
		}
	}
	a.t.Errorf("expected to find item with key (%s, %s) in items", pk, sk)
	return a
}

// HasAttribute asserts that at least one item has the specified string attribute with
// the expected value.
func (a *ItemsAssertion) HasAttribute(attributeName, expectedValue string) *ItemsAssertion {
	a.t.Helper()
	for _, item := range a.items {
		if s, ok := item[attributeName].(*types.AttributeValueMemberS); ok && s.Value == expectedValue {
			return a
		}
	}
	a.t.Errorf("expected to find attribute %s with value %s in items", attributeName, expectedValue)
	return a
}

// AllHaveAttribute asserts that every item has the specified string attribute with the
// expected value.
func (a *ItemsAssertion) AllHaveAttribute(attributeName, expectedValue string) *ItemsAssertion {
	a.t.Helper()
	for i, item := range a.items {
		if got := stringValue(item, attributeName); got != expectedValue {
			a.t.Errorf("item %d: expected attribute %s to be %s, got %q", i, attributeName, expectedValue, got)
		}
	}
	return a
}

// ItemAssertion provides fluent assertions for a single DynamoDB item.
type ItemAssertion struct {
	t    testing.TB
	item onetable.Item
}

// Item creates a new ItemAssertion for the given DynamoDB item.
func Item(t testing.TB, item onetable.Item) *ItemAssertion {
	return &ItemAssertion{t: t, item: item}
}

// HasString asserts that the item holds the S attribute name with the expected value.
func (a *ItemAssertion) HasString(name, expected string) *ItemAssertion {
	a.t.Helper()
	s, ok := a.item[name].(*types.AttributeValueMemberS)
	switch {
	case !ok:
		a.t.Errorf("expected attribute %s to be a string, got %T", name, a.item[name])
	case s.Value != expected:
		a.t.Errorf("expected attribute %s to be %q, got %q", name, expected, s.Value)
	}
	return a
}

// HasNumber asserts that the item holds the N attribute name with the expected text.
func (a *ItemAssertion) HasNumber(name, expected string) *ItemAssertion {
	a.t.Helper()
	n, ok := a.item[name].(*types.AttributeValueMemberN)
	switch {
	case !ok:
		a.t.Errorf("expected attribute %s to be a number, got %T", name, a.item[name])
	case n.Value != expected:
		a.t.Errorf("expected attribute %s to be %s, got %s", name, expected, n.Value)
	}
	return a
}

// HasBool asserts that the item holds the BOOL attribute name with the expected value.
func (a *ItemAssertion) HasBool(name string, expected bool) *ItemAssertion {
	a.t.Helper()
	b, ok := a.item[name].(*types.AttributeValueMemberBOOL)
	switch {
	case !ok:
		a.t.Errorf("expected attribute %s to be a bool, got %T", name, a.item[name])
	case b.Value != expected:
		a.t.Errorf("expected attribute %s to be %t, got %t", name, expected, b.Value)
	}
	return a
}

// IsNull asserts that the item stores NULL under name.
func (a *ItemAssertion) IsNull(name string) *ItemAssertion {
	a.t.Helper()
	if _, ok := a.item[name].(*types.AttributeValueMemberNULL); !ok {
		a.t.Errorf("expected attribute %s to be NULL, got %T", name, a.item[name])
	}
	return a
}

// Lacks asserts that the item has no attribute called name.
func (a *ItemAssertion) Lacks(name string) *ItemAssertion {
	a.t.Helper()
	if _, ok := a.item[name]; ok {
		a.t.Errorf("expected attribute %s to be absent", name)
	}
	return a
}

// HasAttributeCount asserts the number of attributes in the item.
func (a *ItemAssertion) HasAttributeCount(expected int) *ItemAssertion {
	a.t.Helper()
	if len(a.item) != expected {
		a.t.Errorf("expected %d attributes, got %d", expected, len(a.item))
	}
	return a
}

// UnmarshalsInto asserts that the item unmarshals into out with the attributevalue
// package. out is populated for further checks.
func (a *ItemAssertion) UnmarshalsInto(out any) *ItemAssertion {
	a.t.Helper()
	if err := attributevalue.UnmarshalMap(a.item, out); err != nil {
		a.t.Errorf("expected item to unmarshal into %T: %v", out, err)
	}
	return a
}

// ExpressionAssertion provides fluent assertions for compiled expressions.
type ExpressionAssertion struct {
	t    testing.TB
	expr *onetable.CompiledExpression
}

// Expression creates a new ExpressionAssertion. A nil expression fails the test.
func Expression(t testing.TB, expr *onetable.CompiledExpression) *ExpressionAssertion {
	t.Helper()
	if expr == nil {
		t.Fatal("expected a compiled expression, got nil")
	}
	return &ExpressionAssertion{t: t, expr: expr}
}

// HasText asserts the expression text.
func (a *ExpressionAssertion) HasText(expected string) *ExpressionAssertion {
	a.t.Helper()
	if a.expr.Expression != expected {
		a.t.Errorf("expected expression %q, got %q", expected, a.expr.Expression)
	}
	return a
}

// HasName asserts that placeholder resolves to the attribute name.
func (a *ExpressionAssertion) HasName(placeholder, attribute string) *ExpressionAssertion {
	a.t.Helper()
	got, ok := a.expr.Names[placeholder]
	switch {
	case !ok:
		a.t.Errorf("expected name placeholder %s", placeholder)
	case got != attribute:
		a.t.Errorf("expected name placeholder %s to be %q, got %q", placeholder, attribute, got)
	}
	return a
}

// HasString asserts that placeholder holds an S value.
func (a *ExpressionAssertion) HasString(placeholder, expected string) *ExpressionAssertion {
	a.t.Helper()
	s, ok := a.expr.Values[placeholder].(*types.AttributeValueMemberS)
	switch {
	case !ok:
		a.t.Errorf("expected value placeholder %s to be a string, got %T", placeholder, a.expr.Values[placeholder])
	case s.Value != expected:
		a.t.Errorf("expected value placeholder %s to be %q, got %q", placeholder, expected, s.Value)
	}
	return a
}

// HasNumber asserts that placeholder holds an N value.
func (a *ExpressionAssertion) HasNumber(placeholder, expected string) *ExpressionAssertion {
	a.t.Helper()
	n, ok := a.expr.Values[placeholder].(*types.AttributeValueMemberN)
	switch {
	case !ok:
		a.t.Errorf("expected value placeholder %s to be a number, got %T", placeholder, a.expr.Values[placeholder])
	case n.Value != expected:
		a.t.Errorf("expected value placeholder %s to be %s, got %s", placeholder, expected, n.Value)
	}
	return a
}

// HasCounts asserts the number of name and value placeholders.
func (a *ExpressionAssertion) HasCounts(names, values int) *ExpressionAssertion {
	a.t.Helper()
	if len(a.expr.Names) != names {
		a.t.Errorf("expected %d name placeholders, got %d", names, len(a.expr.Names))
	}
	if len(a.expr.Values) != values {
		a.t.Errorf("expected %d value placeholders, got %d", values, len(a.expr.Values))
	}
	return a
}

// OnIndex asserts the selected index.
func (a *ExpressionAssertion) OnIndex(expected string) *ExpressionAssertion {
	a.t.Helper()
	if a.expr.IndexName != expected {
		a.t.Errorf("expected index %q, got %q", expected, a.expr.IndexName)
	}
	return a
}

// OnTable asserts that no secondary index was selected.
func (a *ExpressionAssertion) OnTable() *ExpressionAssertion {
	a.t.Helper()
	return a.OnIndex("")
}

func stringValue(item onetable.Item, name string) string {
	if s, ok := item[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}
