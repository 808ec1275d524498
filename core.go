package onetable

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// Item is an alias for the dynamodb attribute value map.
type Item = map[string]types.AttributeValue

// Clock is a function type that returns the current time for dependency injection.
type Clock func() time.Time

// DefaultClock returns the current UTC time.
func DefaultClock() time.Time {
	return time.Now().UTC()
}

// Table owns the configuration, converter registry and model cache shared by every
// item type stored in one DynamoDB table. A Table is safe for concurrent use.
type Table struct {
	TableName string // Main table name

	config     TableConfiguration
	converters *ConverterRegistry
	logger     *zap.Logger
	models     sync.Map // reflect.Type -> *Model[T]
}

// Options contains configuration options for a [Table].
type Options struct {
	Configuration TableConfiguration // Naming scheme. Defaults to DefaultTableConfiguration.
	Logger        *zap.Logger        // Structured logger. Defaults to a no-op logger.
	converters    []func(*ConverterRegistry)
}

// WithConfiguration sets the table configuration.
func WithConfiguration(cfg TableConfiguration) func(*Options) {
	return func(o *Options) {
		o.Configuration = cfg
	}
}

// WithLogger sets the table logger.
func WithLogger(logger *zap.Logger) func(*Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithConverter registers c for values of type V, overriding any built-in converter.
func WithConverter[V any](c Converter) func(*Options) {
	return func(o *Options) {
		o.converters = append(o.converters, func(r *ConverterRegistry) {
			RegisterConverter[V](r, c)
		})
	}
}

// NewTable creates a Table after validating its configuration.
func NewTable(tableName string, opts ...func(*Options)) (*Table, error) {
	options := Options{
		Configuration: DefaultTableConfiguration(),
		Logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	if tableName == "" {
		return nil, &ValidationError{Field: "TableName", Code: InvalidConfiguration, Message: "table name is required"}
	}
	if err := options.Configuration.Validate(); err != nil {
		return nil, err
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}

	registry := NewConverterRegistry()
	for _, register := range options.converters {
		register(registry)
	}

	return &Table{
		TableName:  tableName,
		config:     options.Configuration,
		converters: registry.clone(),
		logger:     options.Logger.With(zap.String("table", tableName)),
	}, nil
}

// MustNewTable is like [NewTable] but panics on error.
func MustNewTable(tableName string, opts ...func(*Options)) *Table {
	t, err := NewTable(tableName, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// Configuration returns a copy of the table configuration.
func (t *Table) Configuration() TableConfiguration {
	return t.config
}

// Converters returns the table's converter registry. The registry must not be modified.
func (t *Table) Converters() *ConverterRegistry {
	return t.converters
}

// Logger returns the table logger.
func (t *Table) Logger() *zap.Logger {
	return t.logger
}

// DynamoDBClient interface for easier testing and connection management.
type DynamoDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ DynamoDBClient = (*dynamodb.Client)(nil)

// NewDynamoDBClient loads the default AWS configuration and returns a DynamoDB client.
func NewDynamoDBClient(ctx context.Context, optFns ...func(*config.LoadOptions) error) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}
