package onetable

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Test item types shared across the package tests.

type keyItem struct {
	Pk string
	Sk string
}

func keyItemMapping() *Mapping[keyItem] {
	return NewMapping[keyItem]().
		Field("Pk", Ref(func(i *keyItem) *string { return &i.Pk }), PartitionKey("")).
		Field("Sk", Ref(func(i *keyItem) *string { return &i.Sk }), SortKey(""))
}

type prefixedItem struct {
	Pk string
	Sk string
}

func prefixedItemMapping() *Mapping[prefixedItem] {
	return NewMapping[prefixedItem]().
		Field("Pk", Ref(func(i *prefixedItem) *string { return &i.Pk }), PartitionKey("PRF")).
		Field("Sk", Ref(func(i *prefixedItem) *string { return &i.Sk }), SortKey("USR"))
}

type numericKeyItem struct {
	Pk uuid.UUID
	Sk int
}

func numericKeyItemMapping() *Mapping[numericKeyItem] {
	return NewMapping[numericKeyItem]().
		Field("Pk", Ref(func(i *numericKeyItem) *uuid.UUID { return &i.Pk }), PartitionKey("")).
		Field("Sk", Ref(func(i *numericKeyItem) *int { return &i.Sk }), SortKey(""))
}

type guidSortItem struct {
	Pk string
	Sk uuid.UUID
}

func guidSortItemMapping() *Mapping[guidSortItem] {
	return NewMapping[guidSortItem]().
		Field("Pk", Ref(func(i *guidSortItem) *string { return &i.Pk }), PartitionKey("PKP")).
		Field("Sk", Ref(func(i *guidSortItem) *uuid.UUID { return &i.Sk }), SortKey("SKP"))
}

// keyOverlapItem maps fields to several key roles across indexes.
type keyOverlapItem struct {
	PK   string
	SK   string
	GPK1 string
}

func keyOverlapItemMapping() *Mapping[keyOverlapItem] {
	return NewMapping[keyOverlapItem]().
		Field("PK", Ref(func(i *keyOverlapItem) *string { return &i.PK }), PartitionKey(""), SecondaryPartitionKey(2, "G2PREF")).
		Field("SK", Ref(func(i *keyOverlapItem) *string { return &i.SK }), SecondarySortKey(1, "GSPREF"), SortKey("")).
		Field("GPK1", Ref(func(i *keyOverlapItem) *string { return &i.GPK1 }), SecondaryPartitionKey(1, "GPPREF"), SecondarySortKey(2, "G2PREF"))
}

type inverseOverlapItem struct {
	PK string
	SK string
}

func inverseOverlapItemMapping() *Mapping[inverseOverlapItem] {
	return NewMapping[inverseOverlapItem]().
		Field("PK", Ref(func(i *inverseOverlapItem) *string { return &i.PK }), PartitionKey(""), SecondarySortKey(1, "")).
		Field("SK", Ref(func(i *inverseOverlapItem) *string { return &i.SK }), SecondaryPartitionKey(1, ""), SortKey(""))
}

type conditionItem struct {
	Pk    string
	Sk    int
	Other int
}

func conditionItemMapping() *Mapping[conditionItem] {
	return NewMapping[conditionItem]().
		Field("Pk", Ref(func(i *conditionItem) *string { return &i.Pk }), PartitionKey("")).
		Field("Sk", Ref(func(i *conditionItem) *int { return &i.Sk }), SortKey("")).
		Field("Other", Ref(func(i *conditionItem) *int { return &i.Other }))
}

type user struct {
	ID      string
	Email   string
	Name    string
	Age     *int
	Created time.Time
}

func userMapping() *Mapping[user] {
	return NewMapping[user]().
		ItemType("user").
		Field("ID", Ref(func(u *user) *string { return &u.ID }), PartitionKey("USR"), SortKey("USR")).
		Field("Email", Ref(func(u *user) *string { return &u.Email }), SecondaryPartitionKey(1, "EML"), SecondarySortKey(1, "EML")).
		Field("Name", Ref(func(u *user) *string { return &u.Name }), StoreName("name")).
		Field("Age", NullableRef(func(u *user) **int { return &u.Age })).
		Field("Created", Ref(func(u *user) *time.Time { return &u.Created }))
}

func newTestTable(t *testing.T, opts ...func(*Options)) *Table {
	t.Helper()
	table, err := NewTable("test-table", opts...)
	require.NoError(t, err)
	return table
}

func mustModel[T any](t *testing.T, m *Mapping[T], opts ...func(*Options)) *Model[T] {
	t.Helper()
	model, err := Register(newTestTable(t, opts...), m)
	require.NoError(t, err)
	return model
}

func TestNewTable(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		table, err := NewTable("users")
		require.NoError(t, err)

		assert.Equal(t, "users", table.TableName)
		assert.Equal(t, DefaultTableConfiguration(), table.Configuration())
		assert.NotNil(t, table.Logger())
		assert.NotNil(t, table.Converters())
	})

	t.Run("requires a table name", func(t *testing.T) {
		_, err := NewTable("")
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("rejects an invalid configuration", func(t *testing.T) {
		cfg := DefaultTableConfiguration()
		cfg.PKName = ""

		_, err := NewTable("users", WithConfiguration(cfg))
		require.Error(t, err)

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, InvalidConfiguration, ve.Code)
	})

	t.Run("nil logger falls back to no-op", func(t *testing.T) {
		table, err := NewTable("users", WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, table.Logger())
	})

	t.Run("MustNewTable panics", func(t *testing.T) {
		assert.Panics(t, func() { MustNewTable("") })
	})
}

func TestRegister(t *testing.T) {
	t.Run("caches models per type", func(t *testing.T) {
		table := newTestTable(t)

		first, err := Register(table, userMapping())
		require.NoError(t, err)

		second, err := Register(table, NewMapping[user]())
		require.NoError(t, err)
		assert.Same(t, first, second)

		found, err := ModelFor[user](table)
		require.NoError(t, err)
		assert.Same(t, first, found)
	})

	t.Run("ModelFor unregistered type", func(t *testing.T) {
		_, err := ModelFor[keyItem](newTestTable(t))
		assert.Error(t, err)
	})

	t.Run("concurrent registration", func(t *testing.T) {
		table := newTestTable(t)

		var wg sync.WaitGroup
		models := make([]*Model[user], 8)
		for i := range models {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				models[i] = MustRegister(table, userMapping())
			}(i)
		}
		wg.Wait()

		for _, m := range models[1:] {
			assert.Same(t, models[0], m)
		}
	})

	t.Run("logs registration", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		table := newTestTable(t, WithLogger(zap.New(core)))

		MustRegister(table, userMapping())

		entries := logs.FilterMessage("registered item type").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "user", entries[0].ContextMap()["itemType"])
		assert.Equal(t, "test-table", entries[0].ContextMap()["table"])
	})
}

func TestModelAccessors(t *testing.T) {
	m := mustModel(t, userMapping())

	assert.Equal(t, "user", m.Name())
	assert.Equal(t, "user", m.ItemType())
	assert.Len(t, m.Fields(), 5)

	fd, ok := m.Field("Name")
	require.True(t, ok)
	assert.Equal(t, "name", fd.AttributeName())

	_, ok = m.Field("Missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"Age", "Created", "GPK1", "GSK1", "ItemType", "PK", "SK", "name"}, m.StoreNames())
}

func TestDefaultClock(t *testing.T) {
	now := DefaultClock()
	assert.Equal(t, time.UTC, now.Location())
	assert.WithinDuration(t, time.Now(), now, time.Second)
}
