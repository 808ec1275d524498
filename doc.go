// Package onetable maps typed Go values onto a single DynamoDB table and compiles
// typed predicates into DynamoDB key condition, condition and update expressions.
//
// # Key Concepts
//
// A [Table] owns the naming scheme of the physical table, the converter registry and
// the registered item types. Every item type declares a [Mapping] that says which
// fields are plain attributes and which feed key attributes. A field may carry several
// key roles, for example the table partition key and the partition key of a secondary
// index.
//
// With the default [TableConfiguration] the table uses this schema:
//   - PK, SK: table partition and sort key
//   - GPK1, GSK1 ... GPKn, GSKn: keys of secondary index gsi_1 ... gsi_n
//   - ItemType: the item type discriminator
//
// Key values may carry a prefix, stored as prefix#value, so that several item types
// share one key space.
//
// # Basic Usage
//
//	type User struct {
//	    ID    string
//	    Email string
//	    Age   *int
//	}
//
//	table := onetable.MustNewTable("my-table")
//	users := onetable.MustRegister(table, onetable.NewMapping[User]().
//	    ItemType("user").
//	    Field("ID", onetable.Ref(func(u *User) *string { return &u.ID }),
//	        onetable.PartitionKey("USR"), onetable.SortKey("USR")).
//	    Field("Email", onetable.Ref(func(u *User) *string { return &u.Email }),
//	        onetable.SecondaryPartitionKey(1, "EMAIL")).
//	    Field("Age", onetable.NullableRef(func(u *User) **int { return &u.Age })))
//
//	putInput, err := users.MarshalPut(user)
//	_, err = ddb.PutItem(ctx, putInput)
//
// # Predicates
//
// Predicates are built from [Name], [And], [Or] and [Not]. The same predicate type
// drives point lookups ([Model.KeyFor]), queries ([Model.KeyCondition]) and filters or
// write conditions ([Model.Condition]):
//
//	users.MarshalQuery(onetable.Name("Email").Equal("a@example.com"),
//	    onetable.WithFilter(onetable.Name("Age").GreaterThan(21)))
//
// Queries pick the table or secondary index whose keys match the referenced fields.
//
// # Store
//
// [Store] runs the marshaled requests against a [DynamoDBClient] and returns typed
// results. Condition failures surface as [ErrConditionFailed].
//
// # Pagination
//
// Query and scan results carry a continuation cursor. By default the cursor is the
// encoded [Continuation]; [TablePaginator] stores continuations in the table instead:
//
//	store := onetable.NewStore(users, ddb, onetable.WithPaginator(table.Paginator(ddb)))
//	page, err := store.Query(ctx, predicate)
//	next, err := store.QueryNext(ctx, page.Continuation)
package onetable
