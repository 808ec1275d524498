package onetable

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// Store runs typed operations for one item type against a DynamoDB client.
type Store[T any] struct {
	model     *Model[T]
	client    DynamoDBClient
	paginator Paginator
	logger    *zap.Logger
}

// StoreOptions contains configuration options for a [Store].
type StoreOptions struct {
	Paginator Paginator   // Cursor scheme for continuations. Defaults to TokenPaginator.
	Logger    *zap.Logger // Defaults to the table logger.
}

// WithPaginator sets the paginator used to issue and resolve continuation cursors.
func WithPaginator(p Paginator) func(*StoreOptions) {
	return func(o *StoreOptions) {
		o.Paginator = p
	}
}

// WithStoreLogger sets the store logger.
func WithStoreLogger(logger *zap.Logger) func(*StoreOptions) {
	return func(o *StoreOptions) {
		o.Logger = logger
	}
}

// NewStore creates a Store for the model.
func NewStore[T any](model *Model[T], client DynamoDBClient, opts ...func(*StoreOptions)) *Store[T] {
	options := StoreOptions{
		Paginator: TokenPaginator{},
		Logger:    model.table.logger,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}

	return &Store[T]{
		model:     model,
		client:    client,
		paginator: options.Paginator,
		logger:    options.Logger.With(zap.String("type", model.name)),
	}
}

// Model returns the store's model.
func (s *Store[T]) Model() *Model[T] {
	return s.model
}

// Results is one page of a query or scan.
type Results[T any] struct {
	Items        []*T
	Count        int    // Items matching the filter
	ScannedCount int    // Items evaluated before the filter
	Continuation string // Cursor for the next page, empty on the last page
}

// CanContinue reports whether another page can be fetched.
func (r *Results[T]) CanContinue() bool {
	return r.Continuation != ""
}

// Get fetches the item addressed by a key predicate. It returns ErrItemNotFound when no
// item is stored under the key.
func (s *Store[T]) Get(ctx context.Context, p Predicate, opts ...func(*RequestOptions)) (*T, error) {
	input, err := s.model.MarshalGet(p, opts...)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, s.fail("get", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrItemNotFound
	}

	return s.model.Deattributize(out.Item)
}

// Put writes item, replacing any item stored under the same key.
func (s *Store[T]) Put(ctx context.Context, item *T, opts ...func(*RequestOptions)) error {
	input, err := s.model.MarshalPut(item, opts...)
	if err != nil {
		return err
	}
	if _, err := s.client.PutItem(ctx, input); err != nil {
		return s.fail("put", err)
	}
	return nil
}

// Delete removes the item addressed by a key predicate.
func (s *Store[T]) Delete(ctx context.Context, p Predicate, opts ...func(*RequestOptions)) error {
	input, err := s.model.MarshalDelete(p, opts...)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteItem(ctx, input); err != nil {
		return s.fail("delete", err)
	}
	return nil
}

// Update rewrites every non-key attribute of item. NULL fields are removed.
func (s *Store[T]) Update(ctx context.Context, item *T, opts ...func(*RequestOptions)) error {
	input, err := s.model.MarshalUpdate(item, opts...)
	if err != nil {
		return err
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return s.fail("update", err)
	}
	return nil
}

// Patch updates the named fields of item and returns the stored item after the update.
func (s *Store[T]) Patch(ctx context.Context, item *T, fields []string, opts ...func(*RequestOptions)) (*T, error) {
	input, err := s.model.MarshalPatch(item, fields, opts...)
	if err != nil {
		return nil, err
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return nil, s.fail("patch", err)
	}
	if len(out.Attributes) == 0 {
		return item, nil
	}
	return s.model.Deattributize(out.Attributes)
}

// Query fetches the first page of items matching a key predicate.
func (s *Store[T]) Query(ctx context.Context, p Predicate, opts ...func(*RequestOptions)) (*Results[T], error) {
	input, err := s.model.MarshalQuery(p, opts...)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, input)
}

// QueryNext fetches the page after cursor. It returns ErrUnableToContinue when the
// cursor does not lead anywhere.
func (s *Store[T]) QueryNext(ctx context.Context, cursor string) (*Results[T], error) {
	c, err := s.continuation(ctx, cursor)
	if err != nil {
		return nil, err
	}
	input, err := c.queryInput(s.model.table.TableName)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, input)
}

func (s *Store[T]) query(ctx context.Context, input *dynamodb.QueryInput) (*Results[T], error) {
	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, s.fail("query", err)
	}
	return s.results(ctx, out.Items, out.Count, out.ScannedCount, queryContinuation(input, out.LastEvaluatedKey))
}

// Scan fetches the first page of items of this type in the table.
func (s *Store[T]) Scan(ctx context.Context, opts ...func(*RequestOptions)) (*Results[T], error) {
	input, err := s.model.MarshalScan(opts...)
	if err != nil {
		return nil, err
	}
	return s.scan(ctx, input)
}

// ScanNext fetches the page after cursor. It returns ErrUnableToContinue when the cursor
// does not lead anywhere.
func (s *Store[T]) ScanNext(ctx context.Context, cursor string) (*Results[T], error) {
	c, err := s.continuation(ctx, cursor)
	if err != nil {
		return nil, err
	}
	input, err := c.scanInput(s.model.table.TableName)
	if err != nil {
		return nil, err
	}
	return s.scan(ctx, input)
}

func (s *Store[T]) scan(ctx context.Context, input *dynamodb.ScanInput) (*Results[T], error) {
	out, err := s.client.Scan(ctx, input)
	if err != nil {
		return nil, s.fail("scan", err)
	}
	return s.results(ctx, out.Items, out.Count, out.ScannedCount, scanContinuation(input, out.LastEvaluatedKey))
}

func (s *Store[T]) continuation(ctx context.Context, cursor string) (*Continuation, error) {
	if cursor == "" {
		return nil, ErrUnableToContinue
	}
	c, err := s.paginator.Continuation(ctx, cursor)
	if err != nil {
		return nil, err
	}
	if !c.CanContinue() {
		return nil, ErrUnableToContinue
	}
	return c, nil
}

func (s *Store[T]) results(ctx context.Context, items []Item, count, scanned int32, c *Continuation) (*Results[T], error) {
	decoded, err := s.model.DeattributizeAll(s.model.ownItems(items))
	if err != nil {
		return nil, err
	}

	cursor, err := s.paginator.PageCursor(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to create page cursor: %w", err)
	}

	return &Results[T]{
		Items:        decoded,
		Count:        int(count),
		ScannedCount: int(scanned),
		Continuation: cursor,
	}, nil
}

// BatchPut writes items in batches of MaxBatchSize. Items the service leaves unprocessed
// are reported as an error rather than retried.
func (s *Store[T]) BatchPut(ctx context.Context, items []*T) error {
	batches, err := s.model.MarshalBatchPut(items)
	if err != nil {
		return err
	}

	var unprocessed int
	for _, batch := range batches {
		out, err := s.client.BatchWriteItem(ctx, batch)
		if err != nil {
			return s.fail("batch put", err)
		}
		for _, requests := range out.UnprocessedItems {
			unprocessed += len(requests)
		}
	}

	if unprocessed > 0 {
		return fmt.Errorf("batch put left %d of %d items unprocessed", unprocessed, len(items))
	}
	return nil
}

// fail classifies and logs a client error.
func (s *Store[T]) fail(operation string, err error) error {
	err = classifyError(operation, err)
	if IsConditionFailed(err) {
		s.logger.Info("condition check failed", zap.String("operation", operation))
		return err
	}
	s.logger.Error("dynamodb request failed", zap.String("operation", operation), zap.Error(err))
	return fmt.Errorf("failed to %s %s: %w", operation, s.model.name, err)
}

// ownItems drops items stamped with another item type. Items without a discriminator
// are kept.
func (m *Model[T]) ownItems(items []Item) []Item {
	name := m.table.config.ItemTypeAttributeName
	if m.itemType == "" || name == "" {
		return items
	}

	out := items[:0:0]
	for _, item := range items {
		if s, ok := item[name].(*types.AttributeValueMemberS); ok && s.Value != m.itemType {
			continue
		}
		out = append(out, item)
	}
	return out
}
