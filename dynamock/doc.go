// Package dynamock provides testing utilities for the onetable library.
//
// This package includes:
//   - Expectation-based mock DynamoDB client for unit testing
//   - Local DynamoDB integration utilities
//   - Raw item builders with functional options
//   - Test data seeding helpers, including JSON fixtures
//   - Integration test utilities with automatic cleanup
//
// # Mock Client
//
// The MockClient provides an expectation-based mock implementation where you set
// expectations for specific operations. Operations without an expectation fail the test:
//
//	mock := dynamock.NewMockClient(t)
//
//	// Capture the request and answer with a canned item
//	var got *dynamodb.GetItemInput
//	mock.GetFunc = dynamock.Returns(&got, &dynamodb.GetItemOutput{Item: item}, nil)
//
//	store := onetable.NewStore(users, mock)
//	user, err := store.Get(ctx, onetable.Name("ID").Equal("1"))
//
// # Item Builders
//
// Raw items laid out by a table configuration are built with functional options:
//
//	item := dynamock.NewItem(cfg,
//		dynamock.WithPartitionKey("USR", "1"),
//		dynamock.WithSortKey("USR", "1"),
//		dynamock.WithItemType("user"),
//		dynamock.WithAttribute("Email", "a@example.com"),
//	).MustBuild()
//
// # Integration Testing
//
// For integration tests against DynamoDB Local:
//
//	dynamock.WithLocalDynamoDB(t, func(local *dynamock.LocalDynamoDB) {
//		dynamock.WithIsolatedTable(t, local, cfg, func(tableName string) {
//			// tableName has the PK/SK schema plus one GSI per configured index
//		})
//	})
//
// The port is read from DYNAMODB_LOCAL_PORT, optionally set in a .env file, and
// defaults to 8000. Tests are skipped when DynamoDB Local is not running.
//
// # Seeding
//
//	seeder := dynamock.NewSeedTestData(local.Client, tableName)
//	err := dynamock.SeedModels(ctx, seeder, users, user1, user2)
//	n, err := seeder.SeedFromJSON(ctx, strings.NewReader(`[{"PK": "USR#1", "SK": "USR#1"}]`))
package dynamock
