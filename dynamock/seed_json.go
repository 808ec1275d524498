package dynamock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/onetable"
)

// SeedTestData is a helper for seeding test data into a table.
type SeedTestData struct {
	client    onetable.DynamoDBClient
	tableName string
}

// NewSeedTestData creates a new test data seeder.
func NewSeedTestData(client onetable.DynamoDBClient, tableName string) *SeedTestData {
	return &SeedTestData{
		client:    client,
		tableName: tableName,
	}
}

// SeedItems writes raw items in batches of onetable.MaxBatchSize.
func (s *SeedTestData) SeedItems(ctx context.Context, items ...onetable.Item) error {
	for i := 0; i < len(items); i += onetable.MaxBatchSize {
		end := min(i+onetable.MaxBatchSize, len(items))

		requests := make([]types.WriteRequest, 0, end-i)
		for _, item := range items[i:end] {
			requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}

		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.tableName: requests},
		})
		if err != nil {
			return fmt.Errorf("failed to batch write: %w", err)
		}
		if n := len(out.UnprocessedItems[s.tableName]); n > 0 {
			return fmt.Errorf("batch write left %d items unprocessed", n)
		}
	}
	return nil
}

// SeedModels writes typed items through the model's batch put requests. The table
// name of the model's table is replaced by the seeder's.
func SeedModels[T any](ctx context.Context, s *SeedTestData, model *onetable.Model[T], items ...*T) error {
	batches, err := model.MarshalBatchPut(items)
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}

	for _, batch := range batches {
		var raw []onetable.Item
		for _, requests := range batch.RequestItems {
			for _, r := range requests {
				raw = append(raw, r.PutRequest.Item)
			}
		}
		if err := s.SeedItems(ctx, raw...); err != nil {
			return err
		}
	}
	return nil
}

// SeedFromJSON reads a JSON array of objects and writes each object as one raw item.
// Attribute names are used verbatim, so key attributes must be spelled as stored:
//
//	[{"PK": "USR#1", "SK": "USR#1", "ItemType": "user", "Email": "a@example.com"}]
//
// JSON numbers become N attributes and null becomes NULL. Returns the number of items
// saved and any errors generated.
func (s *SeedTestData) SeedFromJSON(ctx context.Context, r io.Reader) (int, error) {
	items, err := ItemsFromJSON(r)
	if err != nil {
		return 0, err
	}
	if err := s.SeedItems(ctx, items...); err != nil {
		return 0, err
	}
	return len(items), nil
}

// ItemsFromJSON parses a JSON array of objects into raw items.
func ItemsFromJSON(r io.Reader) ([]onetable.Item, error) {
	var document []map[string]any
	if err := json.NewDecoder(r).Decode(&document); err != nil {
		return nil, fmt.Errorf("failed to parse JSON document: %w", err)
	}

	items := make([]onetable.Item, 0, len(document))
	for i, object := range document {
		if len(object) == 0 {
			return nil, fmt.Errorf("object at index %d is empty", i)
		}
		item, err := attributevalue.MarshalMap(object)
		if err != nil {
			return nil, fmt.Errorf("failed to convert object at index %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}
