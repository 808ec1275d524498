package onetable

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/gob"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

func init() {
	// Register DynamoDB types with gob
	gob.Register(map[string]types.AttributeValue{})
	gob.Register(&types.AttributeValueMemberS{})
	gob.Register(&types.AttributeValueMemberN{})
	gob.Register(&types.AttributeValueMemberB{})
	gob.Register(&types.AttributeValueMemberSS{})
	gob.Register(&types.AttributeValueMemberNS{})
	gob.Register(&types.AttributeValueMemberBS{})
	gob.Register(&types.AttributeValueMemberM{})
	gob.Register(&types.AttributeValueMemberL{})
	gob.Register(&types.AttributeValueMemberNULL{})
	gob.Register(&types.AttributeValueMemberBOOL{})
}

// Operation names carried by a continuation.
const (
	OperationQuery = "Query"
	OperationScan  = "Scan"
)

// Continuation is the state needed to fetch the next page of a query or scan: the shape
// of the original request and the last evaluated key.
type Continuation struct {
	Operation      string
	IndexName      string
	KeyCondition   string
	Filter         string
	Projection     string
	Names          map[string]string
	Values         Item
	Limit          int32
	Descending     bool
	CountOnly      bool
	ConsistentRead bool
	LastKey        Item
}

// CanContinue reports whether another page can be fetched.
func (c *Continuation) CanContinue() bool {
	return c != nil && len(c.LastKey) > 0
}

// Encode serializes the continuation into an opaque, URL safe token.
func (c *Continuation) Encode() (string, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return "", fmt.Errorf("failed to encode continuation: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeContinuation parses a token produced by [Continuation.Encode].
func DecodeContinuation(token string) (*Continuation, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("failed to decode continuation: %w", err)
	}
	var c Continuation
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode continuation: %w", err)
	}
	return &c, nil
}

func queryContinuation(in *dynamodb.QueryInput, lastKey Item) *Continuation {
	if len(lastKey) == 0 {
		return nil
	}
	return &Continuation{
		Operation:      OperationQuery,
		IndexName:      aws.ToString(in.IndexName),
		KeyCondition:   aws.ToString(in.KeyConditionExpression),
		Filter:         aws.ToString(in.FilterExpression),
		Projection:     aws.ToString(in.ProjectionExpression),
		Names:          in.ExpressionAttributeNames,
		Values:         in.ExpressionAttributeValues,
		Limit:          aws.ToInt32(in.Limit),
		Descending:     !aws.ToBool(in.ScanIndexForward),
		CountOnly:      in.Select == types.SelectCount,
		ConsistentRead: aws.ToBool(in.ConsistentRead),
		LastKey:        lastKey,
	}
}

func scanContinuation(in *dynamodb.ScanInput, lastKey Item) *Continuation {
	if len(lastKey) == 0 {
		return nil
	}
	return &Continuation{
		Operation:      OperationScan,
		IndexName:      aws.ToString(in.IndexName),
		Filter:         aws.ToString(in.FilterExpression),
		Projection:     aws.ToString(in.ProjectionExpression),
		Names:          in.ExpressionAttributeNames,
		Values:         in.ExpressionAttributeValues,
		Limit:          aws.ToInt32(in.Limit),
		CountOnly:      in.Select == types.SelectCount,
		ConsistentRead: aws.ToBool(in.ConsistentRead),
		LastKey:        lastKey,
	}
}

// queryInput rebuilds the query that continues after LastKey.
func (c *Continuation) queryInput(tableName string) (*dynamodb.QueryInput, error) {
	if c.Operation != OperationQuery {
		return nil, fmt.Errorf("continuation is for %s, not %s", c.Operation, OperationQuery)
	}
	if !c.CanContinue() {
		return nil, ErrUnableToContinue
	}
	in := &dynamodb.QueryInput{
		TableName:                 aws.String(tableName),
		KeyConditionExpression:    aws.String(c.KeyCondition),
		ExpressionAttributeNames:  c.Names,
		ExpressionAttributeValues: c.Values,
		ScanIndexForward:          aws.Bool(!c.Descending),
		ExclusiveStartKey:         c.LastKey,
	}
	in.IndexName = optionalString(c.IndexName)
	in.FilterExpression = optionalString(c.Filter)
	in.ProjectionExpression = optionalString(c.Projection)
	if c.Limit > 0 {
		in.Limit = aws.Int32(c.Limit)
	}
	if c.CountOnly {
		in.Select = types.SelectCount
	}
	if c.ConsistentRead {
		in.ConsistentRead = aws.Bool(true)
	}
	return in, nil
}

// scanInput rebuilds the scan that continues after LastKey.
func (c *Continuation) scanInput(tableName string) (*dynamodb.ScanInput, error) {
	if c.Operation != OperationScan {
		return nil, fmt.Errorf("continuation is for %s, not %s", c.Operation, OperationScan)
	}
	if !c.CanContinue() {
		return nil, ErrUnableToContinue
	}
	in := &dynamodb.ScanInput{
		TableName:                 aws.String(tableName),
		ExpressionAttributeNames:  c.Names,
		ExpressionAttributeValues: c.Values,
		ExclusiveStartKey:         c.LastKey,
	}
	in.IndexName = optionalString(c.IndexName)
	in.FilterExpression = optionalString(c.Filter)
	in.ProjectionExpression = optionalString(c.Projection)
	if c.Limit > 0 {
		in.Limit = aws.Int32(c.Limit)
	}
	if c.CountOnly {
		in.Select = types.SelectCount
	}
	if c.ConsistentRead {
		in.ConsistentRead = aws.Bool(true)
	}
	return in, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

// Paginator handles pagination by converting continuations into string cursors for
// clients, and in turn converting client cursors back into continuations.
type Paginator interface {
	// PageCursor generates a string token from the provided continuation. Implementors
	// should return an empty token if the continuation cannot continue.
	PageCursor(ctx context.Context, c *Continuation) (string, error)
	// Continuation resolves a cursor. Implementors should return a nil continuation if
	// the cursor is an empty string.
	Continuation(ctx context.Context, cursor string) (*Continuation, error)
}

// TokenPaginator implements Paginator by handing the encoded continuation to clients.
type TokenPaginator struct{}

// PageCursor implements Paginator.
func (TokenPaginator) PageCursor(_ context.Context, c *Continuation) (string, error) {
	if !c.CanContinue() {
		return "", nil
	}
	return c.Encode()
}

// Continuation implements Paginator.
func (TokenPaginator) Continuation(_ context.Context, cursor string) (*Continuation, error) {
	if cursor == "" {
		return nil, nil
	}
	return DecodeContinuation(cursor)
}

// Attribute names of stored page cursors.
const (
	AttributeNamePageToken = "Token"
	AttributeNameExpires   = "expires"
)

// DefaultPageTTL is how long a stored page cursor stays valid.
const DefaultPageTTL = 24 * time.Hour

// TablePaginator implements Paginator by storing continuations in the same table, so
// clients only ever see a short random cursor. Stored cursors carry an "expires" epoch
// seconds attribute for the table's time to live.
type TablePaginator struct {
	table  *Table         // table configuration
	client DynamoDBClient // dynamodb client
	TTL    time.Duration  // Lifetime of stored cursors. Defaults to DefaultPageTTL.
	Clock  Clock          // Time source. Defaults to DefaultClock.
}

// Paginator returns a TablePaginator storing cursors through client.
func (t *Table) Paginator(client DynamoDBClient) *TablePaginator {
	return &TablePaginator{
		table:  t,
		client: client,
		TTL:    DefaultPageTTL,
		Clock:  DefaultClock,
	}
}

func (p *TablePaginator) key(cursor string) Item {
	cfg := p.table.config
	id := &types.AttributeValueMemberS{Value: cfg.FormatKey("page", cursor)}
	return Item{cfg.PKName: id, cfg.SKName: id}
}

// PageCursor implements Paginator by storing the encoded continuation under a new
// random cursor. If the continuation cannot continue, an empty string is returned.
func (p *TablePaginator) PageCursor(ctx context.Context, c *Continuation) (string, error) {
	if !c.CanContinue() {
		return "", nil
	}

	token, err := c.Encode()
	if err != nil {
		return "", err
	}

	cursor := uuid.NewString()
	item := p.key(cursor)
	item[AttributeNamePageToken] = &types.AttributeValueMemberB{Value: []byte(token)}
	item[AttributeNameExpires] = &types.AttributeValueMemberN{
		Value: strconv.FormatInt(p.Clock().Add(p.TTL).Unix(), 10),
	}

	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(p.table.TableName),
		Item:      item,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store page cursor: %w", err)
	}

	return cursor, nil
}

// Continuation implements Paginator by retrieving the continuation stored under cursor.
// Missing and expired cursors resolve to a nil continuation.
func (p *TablePaginator) Continuation(ctx context.Context, cursor string) (*Continuation, error) {
	if cursor == "" {
		return nil, nil
	}

	result, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(p.table.TableName),
		Key:       p.key(cursor),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get page cursor: %w", err)
	}
	if len(result.Item) == 0 {
		return nil, nil
	}

	// Expired items may linger until the table's TTL sweep removes them.
	if expires, ok := result.Item[AttributeNameExpires].(*types.AttributeValueMemberN); ok {
		at, err := strconv.ParseInt(expires.Value, 10, 64)
		if err == nil && p.Clock().Unix() >= at {
			return nil, nil
		}
	}

	token, ok := result.Item[AttributeNamePageToken].(*types.AttributeValueMemberB)
	if !ok || len(token.Value) == 0 {
		return nil, nil
	}
	return DecodeContinuation(string(token.Value))
}
