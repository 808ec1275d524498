package dynamock

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nisimpson/onetable"
)

// TableManager manages DynamoDB tables for testing, providing automatic cleanup.
type TableManager struct {
	local  *LocalDynamoDB
	config onetable.TableConfiguration
	tables []string // track created tables for cleanup
}

// NewTableManager creates a table manager that lays out tables according to cfg.
func NewTableManager(local *LocalDynamoDB, cfg onetable.TableConfiguration) *TableManager {
	return &TableManager{
		local:  local,
		config: cfg,
	}
}

// CreateTestTable creates a table and tracks it for cleanup.
func (tm *TableManager) CreateTestTable(ctx context.Context, tableName string) error {
	if err := tm.local.CreateTable(ctx, tableName, tm.config); err != nil {
		return err
	}
	tm.tables = append(tm.tables, tableName)
	return nil
}

// Cleanup deletes all tables created by this manager.
func (tm *TableManager) Cleanup(ctx context.Context) error {
	for _, tableName := range tm.tables {
		if err := tm.local.DeleteTable(ctx, tableName); err != nil {
			return fmt.Errorf("failed to delete table %s: %w", tableName, err)
		}
	}
	tm.tables = tm.tables[:0]
	return nil
}

// TableNames returns the names of all tables managed by this manager.
func (tm *TableManager) TableNames() []string {
	names := make([]string, len(tm.tables))
	copy(names, tm.tables)
	return names
}

// WithLocalDynamoDB runs a test function with a local DynamoDB instance located through
// [NewLocalDynamoDBFromEnv]. The test is skipped in short mode or when DynamoDB Local
// is not running.
func WithLocalDynamoDB(t *testing.T, fn func(local *LocalDynamoDB)) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	local, err := NewLocalDynamoDBFromEnv()
	if err != nil {
		t.Fatalf("Failed to configure DynamoDB Local: %v", err)
	}
	if !local.IsAvailable(context.Background()) {
		t.Skipf("DynamoDB Local not available on port %d", local.Port)
	}

	fn(local)
}

// WithIsolatedTable runs a test function with a fresh table laid out by cfg that is
// deleted afterwards. The table name is unique to the test.
func WithIsolatedTable(t *testing.T, local *LocalDynamoDB, cfg onetable.TableConfiguration, fn func(tableName string)) {
	t.Helper()
	ctx := context.Background()
	tableName := NewTestTableName(t.Name())

	tm := NewTableManager(local, cfg)
	defer func() {
		if err := tm.Cleanup(ctx); err != nil {
			t.Errorf("Failed to cleanup table %s: %v", tableName, err)
		}
	}()

	if err := tm.CreateTestTable(ctx, tableName); err != nil {
		t.Fatalf("Failed to create test table %s: %v", tableName, err)
	}

	fn(tableName)
}

// NewTestTableName generates a unique, valid table name for testing.
func NewTestTableName(prefix string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, prefix)
	return fmt.Sprintf("test-%s-%d", clean, time.Now().UnixNano())
}
