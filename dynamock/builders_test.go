package dynamock

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/onetable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewItem(t *testing.T) {
	cfg := onetable.DefaultTableConfiguration()

	item := NewItem(cfg,
		WithPartitionKey("USR", "1"),
		WithSortKey("ORD", "2024-01-01"),
		WithIndexKeys(1, "EML", "a@example.com", "", "2024"),
		WithItemType("order"),
		WithAttribute("Total", 42),
		WithNull("Note"),
	).MustBuild()

	assert.Equal(t, onetable.Item{
		"PK":       &types.AttributeValueMemberS{Value: "USR#1"},
		"SK":       &types.AttributeValueMemberS{Value: "ORD#2024-01-01"},
		"GPK1":     &types.AttributeValueMemberS{Value: "EML#a@example.com"},
		"GSK1":     &types.AttributeValueMemberS{Value: "2024"},
		"ItemType": &types.AttributeValueMemberS{Value: "order"},
		"Total":    &types.AttributeValueMemberN{Value: "42"},
		"Note":     &types.AttributeValueMemberNULL{Value: true},
	}, item)
}

func TestNewItem_EmptyPrefix(t *testing.T) {
	item := NewItem(onetable.DefaultTableConfiguration(), WithPartitionKey("", "raw")).MustBuild()

	assert.Equal(t, &types.AttributeValueMemberS{Value: "raw"}, item["PK"])
}

func TestNewItem_WithAttributes(t *testing.T) {
	type profile struct {
		Name string
		Age  int
	}

	item := NewItem(onetable.DefaultTableConfiguration(),
		WithPartitionKey("USR", "1"),
		WithAttributes(profile{Name: "Ada", Age: 36}),
	).MustBuild()

	assert.Len(t, item, 3)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "Ada"}, item["Name"])
}

func TestNewItem_WithoutItemTypeAttribute(t *testing.T) {
	cfg := onetable.DefaultTableConfiguration()
	cfg.ItemTypeAttributeName = ""

	_, err := NewItem(cfg, WithItemType("user")).Build()
	require.Error(t, err)
	assert.Panics(t, func() { NewItem(cfg, WithItemType("user")).MustBuild() })
}

func TestItemBuilder_BuildCopies(t *testing.T) {
	b := NewItem(onetable.DefaultTableConfiguration(), WithPartitionKey("USR", "1"))

	first := b.MustBuild()
	first["Extra"] = &types.AttributeValueMemberBOOL{Value: true}

	assert.NotContains(t, b.MustBuild(), "Extra")
}
