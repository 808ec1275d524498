package dynamock

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/onetable"
)

// ItemOption is a functional option for configuring raw items during building.
type ItemOption func(*ItemBuilder)

// ItemBuilder builds raw stored items laid out by a table configuration. It is useful
// for canned mock responses and for seeding items that no registered type describes.
type ItemBuilder struct {
	config onetable.TableConfiguration
	item   onetable.Item
	errs   []error
}

// NewItem creates a new item builder with the given options applied.
func NewItem(cfg onetable.TableConfiguration, opts ...ItemOption) *ItemBuilder {
	b := &ItemBuilder{
		config: cfg,
		item:   make(onetable.Item),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the item, or the first error raised by an option.
func (b *ItemBuilder) Build() (onetable.Item, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	out := make(onetable.Item, len(b.item))
	for k, v := range b.item {
		out[k] = v
	}
	return out, nil
}

// MustBuild is like Build but panics on error.
func (b *ItemBuilder) MustBuild() onetable.Item {
	item, err := b.Build()
	if err != nil {
		panic(err)
	}
	return item
}

func (b *ItemBuilder) key(name, prefix, value string) {
	if prefix != "" {
		value = b.config.FormatKey(prefix, value)
	}
	b.item[name] = &types.AttributeValueMemberS{Value: value}
}

// Functional Options

// WithPartitionKey sets the table partition key to prefix#value. An empty prefix stores
// value unchanged.
func WithPartitionKey(prefix, value string) ItemOption {
	return func(b *ItemBuilder) {
		b.key(b.config.PKName, prefix, value)
	}
}

// WithSortKey sets the table sort key.
func WithSortKey(prefix, value string) ItemOption {
	return func(b *ItemBuilder) {
		b.key(b.config.SKName, prefix, value)
	}
}

// WithIndexKeys sets the partition and sort key of secondary index n.
func WithIndexKeys(n int, pkPrefix, pk, skPrefix, sk string) ItemOption {
	return func(b *ItemBuilder) {
		b.key(b.config.PartitionKeyName(n), pkPrefix, pk)
		b.key(b.config.SortKeyName(n), skPrefix, sk)
	}
}

// WithItemType stamps the item type discriminator.
func WithItemType(itemType string) ItemOption {
	return func(b *ItemBuilder) {
		if b.config.ItemTypeAttributeName == "" {
			b.errs = append(b.errs, fmt.Errorf("configuration declares no item type attribute"))
			return
		}
		b.item[b.config.ItemTypeAttributeName] = &types.AttributeValueMemberS{Value: itemType}
	}
}

// WithAttribute sets a single attribute, marshaled with the attributevalue package.
func WithAttribute(name string, v any) ItemOption {
	return func(b *ItemBuilder) {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			b.errs = append(b.errs, fmt.Errorf("failed to marshal attribute %s: %w", name, err))
			return
		}
		b.item[name] = av
	}
}

// WithAttributes merges the attributes of a struct or map, marshaled with the
// attributevalue package.
func WithAttributes(v any) ItemOption {
	return func(b *ItemBuilder) {
		m, err := attributevalue.MarshalMap(v)
		if err != nil {
			b.errs = append(b.errs, fmt.Errorf("failed to marshal attributes: %w", err))
			return
		}
		for k, av := range m {
			b.item[k] = av
		}
	}
}

// WithNull stores NULL under name.
func WithNull(name string) ItemOption {
	return func(b *ItemBuilder) {
		b.item[name] = &types.AttributeValueMemberNULL{Value: true}
	}
}
