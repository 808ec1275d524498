package onetable

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateOperation(t *testing.T) {
	m := mustModel(t, userMapping())

	op, err := m.UpdateOperation(&user{ID: "42", Email: "ada@example.com", Name: "Ada"})
	require.NoError(t, err)

	assert.Equal(t, Item{"PK": avS("USR#42"), "SK": avS("USR#42")}, op.Key)
	assert.Equal(t, []string{"Age"}, op.Removes)
	assert.NotContains(t, op.Sets, "PK")
	assert.NotContains(t, op.Sets, "SK")
	assert.Equal(t, avS("EML#ada@example.com"), op.Sets["GPK1"])
	assert.Equal(t, avS("user"), op.Sets["ItemType"])
	assert.False(t, op.IsEmpty())

	expr := op.Expression()
	assert.Equal(t,
		"SET #created = :created, #gpk1 = :gpk1, #gsk1 = :gsk1, #itemtype = :itemtype, #name = :name REMOVE #age",
		expr.Expression)
	assert.Equal(t, map[string]string{
		"#created":  "Created",
		"#gpk1":     "GPK1",
		"#gsk1":     "GSK1",
		"#itemtype": "ItemType",
		"#name":     "name",
		"#age":      "Age",
	}, expr.Names)
	assert.Len(t, expr.Values, 5)
	assert.Equal(t, avS("Ada"), expr.Values[":name"])
}

func TestPatchOperation(t *testing.T) {
	m := mustModel(t, userMapping())

	t.Run("only named fields", func(t *testing.T) {
		op, err := m.PatchOperation(&user{ID: "42", Name: "Ada"}, "Name", "Age")
		require.NoError(t, err)

		assert.Equal(t, Item{"name": avS("Ada")}, op.Sets)
		assert.Equal(t, []string{"Age"}, op.Removes)
		assert.Equal(t, "SET #name = :name REMOVE #age", op.Expression().Expression)
	})

	t.Run("primary key fields update secondary roles only", func(t *testing.T) {
		op, err := m.PatchOperation(&user{ID: "42"}, "ID")
		require.NoError(t, err)
		assert.True(t, op.IsEmpty())
	})

	t.Run("no fields", func(t *testing.T) {
		_, err := m.PatchOperation(&user{ID: "42"})
		assert.Error(t, err)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := m.PatchOperation(&user{ID: "42"}, "Nope")
		require.Error(t, err)
		assert.True(t, IsCompilationError(err))
	})
}

func TestUpdateOperation_Expression(t *testing.T) {
	t.Run("placeholders are sanitized and deduplicated", func(t *testing.T) {
		op := &UpdateOperation{
			Sets: Item{
				"first-name": avS("a"),
				"First_Name": avS("b"),
				"x.y":        avN("1"),
			},
		}

		expr := op.Expression()
		assert.Equal(t, "SET #first_name = :first_name, #first_name_2 = :first_name_2, #x_y = :x_y", expr.Expression)
		assert.Equal(t, map[string]string{
			"#first_name":   "First_Name",
			"#first_name_2": "first-name",
			"#x_y":          "x.y",
		}, expr.Names)
		assert.Equal(t, avS("b"), expr.Values[":first_name"])
		assert.Equal(t, avS("a"), expr.Values[":first_name_2"])
	})

	t.Run("remove only", func(t *testing.T) {
		op := &UpdateOperation{Removes: []string{"A", "B"}}

		expr := op.Expression()
		assert.Equal(t, "REMOVE #a, #b", expr.Expression)
		assert.Empty(t, expr.Values)
	})

	t.Run("empty", func(t *testing.T) {
		op := &UpdateOperation{}
		assert.True(t, op.IsEmpty())
		assert.Equal(t, "", op.Expression().Expression)
	})
}

func TestSplitUpdate(t *testing.T) {
	key := Item{"PK": avS("a")}
	op := splitUpdate(key, Item{
		"PK": avS("a"),
		"B":  &types.AttributeValueMemberNULL{Value: true},
		"A":  &types.AttributeValueMemberNULL{Value: true},
		"C":  avN("1"),
	})

	assert.Equal(t, []string{"A", "B"}, op.Removes)
	assert.Equal(t, Item{"C": avN("1")}, op.Sets)
	assert.Equal(t, key, op.Key)
}
