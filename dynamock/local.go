package dynamock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/joho/godotenv"
	"github.com/nisimpson/onetable"
)

// DefaultLocalPort is the default port for DynamoDB Local.
const DefaultLocalPort = 8000

// EnvLocalPort names the environment variable holding the DynamoDB Local port.
const EnvLocalPort = "DYNAMODB_LOCAL_PORT"

// LocalDynamoDB represents a connection to a local DynamoDB instance.
type LocalDynamoDB struct {
	Client   *dynamodb.Client
	Endpoint string
	Port     int
}

// NewLocalClient creates a DynamoDB client configured to connect to a local DynamoDB instance.
// This is useful for integration testing with DynamoDB Local.
//
// Example usage:
//
//	client := dynamock.NewLocalClient(8000)
//	// Use client with your tests
func NewLocalClient(port int) *dynamodb.Client {
	return NewLocalClientFromConfig(aws.Config{Region: "us-east-1"}, port)
}

// NewLocalClientFromConfig creates a local DynamoDB client using the provided AWS config.
// This allows for more customization than NewLocalClient.
func NewLocalClientFromConfig(cfg aws.Config, port int) *dynamodb.Client {
	endpoint := fmt.Sprintf("http://localhost:%d", port)

	// Use anonymous credentials for local testing
	cfg.Credentials = aws.AnonymousCredentials{}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}

// NewLocalDynamoDB creates a LocalDynamoDB instance with the specified port.
// This provides additional utilities beyond just the client.
func NewLocalDynamoDB(port int) *LocalDynamoDB {
	return &LocalDynamoDB{
		Client:   NewLocalClient(port),
		Endpoint: fmt.Sprintf("http://localhost:%d", port),
		Port:     port,
	}
}

// NewLocalDynamoDBFromEnv creates a LocalDynamoDB instance on the port named by
// DYNAMODB_LOCAL_PORT. A .env file in the working directory is loaded first when
// present. The default port is used when the variable is unset.
func NewLocalDynamoDBFromEnv() (*LocalDynamoDB, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	port := DefaultLocalPort
	if v := os.Getenv(EnvLocalPort); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", EnvLocalPort, v, err)
		}
		port = p
	}
	return NewLocalDynamoDB(port), nil
}

// NewDefaultLocalDynamoDB creates a LocalDynamoDB instance using the default port (8000).
func NewDefaultLocalDynamoDB() *LocalDynamoDB {
	return NewLocalDynamoDB(DefaultLocalPort)
}

// IsAvailable checks if DynamoDB Local is running on the configured port.
func (l *LocalDynamoDB) IsAvailable(ctx context.Context) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", l.Port), 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()

	// Try to list tables to verify it's actually DynamoDB
	_, err = l.Client.ListTables(ctx, &dynamodb.ListTablesInput{})
	return err == nil
}

// CreateTableInput builds the create table request for a table laid out by cfg: the
// primary key plus one global secondary index per configured index number. Every key
// attribute is a string, since prefixed keys are stored as strings.
func CreateTableInput(tableName string, cfg onetable.TableConfiguration) *dynamodb.CreateTableInput {
	throughput := &types.ProvisionedThroughput{
		ReadCapacityUnits:  aws.Int64(5),
		WriteCapacityUnits: aws.Int64(5),
	}
	attr := func(name string) types.AttributeDefinition {
		return types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: types.ScalarAttributeTypeS,
		}
	}
	schema := func(pk, sk string) []types.KeySchemaElement {
		return []types.KeySchemaElement{
			{AttributeName: aws.String(pk), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(sk), KeyType: types.KeyTypeRange},
		}
	}

	input := &dynamodb.CreateTableInput{
		TableName:             aws.String(tableName),
		AttributeDefinitions:  []types.AttributeDefinition{attr(cfg.PKName), attr(cfg.SKName)},
		KeySchema:             schema(cfg.PKName, cfg.SKName),
		ProvisionedThroughput: throughput,
	}

	for n := 1; n <= cfg.SecondaryIndexCount; n++ {
		pk, sk := cfg.PartitionKeyName(n), cfg.SortKeyName(n)
		input.AttributeDefinitions = append(input.AttributeDefinitions, attr(pk), attr(sk))
		input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName:             aws.String(cfg.IndexName(n)),
			KeySchema:             schema(pk, sk),
			Projection:            &types.Projection{ProjectionType: types.ProjectionTypeAll},
			ProvisionedThroughput: throughput,
		})
	}

	return input
}

// CreateTable creates a table laid out by cfg and waits for it to become active.
func (l *LocalDynamoDB) CreateTable(ctx context.Context, tableName string, cfg onetable.TableConfiguration) error {
	_, err := l.Client.CreateTable(ctx, CreateTableInput(tableName, cfg))
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	return l.WaitForTableActive(ctx, tableName, 30*time.Second)
}

// WaitForTableActive waits for a table to become active.
func (l *LocalDynamoDB) WaitForTableActive(ctx context.Context, tableName string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		output, err := l.Client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(tableName),
		})
		if err != nil {
			return fmt.Errorf("failed to describe table %s: %w", tableName, err)
		}

		if output.Table.TableStatus == types.TableStatusActive {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}

	return fmt.Errorf("table %s did not become active within %v", tableName, timeout)
}

// DeleteTable deletes a table and waits for it to be fully deleted.
func (l *LocalDynamoDB) DeleteTable(ctx context.Context, tableName string) error {
	_, err := l.Client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return fmt.Errorf("failed to delete table %s: %w", tableName, err)
	}

	return l.WaitForTableDeleted(ctx, tableName, 30*time.Second)
}

// WaitForTableDeleted waits for a table to be fully deleted.
func (l *LocalDynamoDB) WaitForTableDeleted(ctx context.Context, tableName string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		_, err := l.Client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(tableName),
		})

		// If we get a ResourceNotFoundException, the table is deleted
		if err != nil {
			var notFoundErr *types.ResourceNotFoundException
			if errors.As(err, &notFoundErr) {
				return nil
			}
			return fmt.Errorf("error checking table deletion status: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}

	return fmt.Errorf("table %s was not deleted within %v", tableName, timeout)
}
