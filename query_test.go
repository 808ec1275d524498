package onetable

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func avS(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

func avN(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

func TestKeyCondition_PartitionKeyOnly(t *testing.T) {
	m := mustModel(t, keyItemMapping())

	expr, err := m.KeyCondition(Name("Pk").Equal("12"))
	require.NoError(t, err)

	assert.Equal(t, "#pk = :pk", expr.Expression)
	assert.Equal(t, map[string]string{"#pk": "PK"}, expr.Names)
	assert.Equal(t, map[string]types.AttributeValue{":pk": avS("12")}, expr.Values)
	assert.Empty(t, expr.IndexName)
}

func TestKeyCondition_StringSortKeyOperators(t *testing.T) {
	m := mustModel(t, keyItemMapping())

	tests := []struct {
		name       string
		sortKey    Predicate
		expression string
		values     map[string]types.AttributeValue
	}{
		{
			name:       "begins with",
			sortKey:    Name("Sk").BeginsWith("4321"),
			expression: "#pk = :pk AND begins_with(#sk,:sk)",
			values:     map[string]types.AttributeValue{":pk": avS("12"), ":sk": avS("4321")},
		},
		{
			name:       "equal",
			sortKey:    Name("Sk").Equal("4321"),
			expression: "#pk = :pk AND #sk = :sk",
			values:     map[string]types.AttributeValue{":pk": avS("12"), ":sk": avS("4321")},
		},
		{
			name:       "between",
			sortKey:    Name("Sk").Between("4321", "5321"),
			expression: "#pk = :pk AND #sk BETWEEN :sk1 AND :sk2",
			values:     map[string]types.AttributeValue{":pk": avS("12"), ":sk1": avS("4321"), ":sk2": avS("5321")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := m.KeyCondition(Name("Pk").Equal("12").And(tt.sortKey))
			require.NoError(t, err)

			assert.Equal(t, tt.expression, expr.Expression)
			assert.Equal(t, map[string]string{"#pk": "PK", "#sk": "SK"}, expr.Names)
			assert.Equal(t, tt.values, expr.Values)
			assert.Empty(t, expr.IndexName)
		})
	}
}

func TestKeyCondition_NumericSortKeyOperators(t *testing.T) {
	m := mustModel(t, numericKeyItemMapping())
	pk := uuid.New()

	tests := []struct {
		sortKey    Predicate
		expression string
	}{
		{Name("Sk").Equal(4321), "#pk = :pk AND #sk = :sk"},
		{Name("Sk").Between(4321, 5321), "#pk = :pk AND #sk BETWEEN :sk1 AND :sk2"},
		{Name("Sk").GreaterThan(4321), "#pk = :pk AND #sk > :sk"},
		{Name("Sk").LessThan(4321), "#pk = :pk AND #sk < :sk"},
		{Name("Sk").GreaterThanEqual(4321), "#pk = :pk AND #sk >= :sk"},
		{Name("Sk").LessThanEqual(4321), "#pk = :pk AND #sk <= :sk"},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			expr, err := m.KeyCondition(Name("Pk").Equal(pk).And(tt.sortKey))
			require.NoError(t, err)
			assert.Equal(t, tt.expression, expr.Expression)
			assert.Equal(t, avS(pk.String()), expr.Values[":pk"])
		})
	}

	t.Run("numbers stay numbers", func(t *testing.T) {
		expr, err := m.KeyCondition(Name("Pk").Equal(pk).And(Name("Sk").Equal(4321)))
		require.NoError(t, err)
		assert.Equal(t, avN("4321"), expr.Values[":sk"])
	})
}

func TestKeyCondition_NumericLiteralConversion(t *testing.T) {
	m := mustModel(t, measureItemMapping())

	t.Run("between on int64 sort key", func(t *testing.T) {
		expr, err := m.KeyCondition(Name("Pk").Equal("12").And(Name("Sk").Between(4321, 5321)))
		require.NoError(t, err)

		assert.Equal(t, "#pk = :pk AND #sk BETWEEN :sk1 AND :sk2", expr.Expression)
		assert.Equal(t, map[string]types.AttributeValue{":pk": avS("12"), ":sk1": avN("4321"), ":sk2": avN("5321")}, expr.Values)
	})

	t.Run("integral float", func(t *testing.T) {
		expr, err := m.KeyCondition(Name("Pk").Equal("12").And(Name("Sk").GreaterThan(10.0)))
		require.NoError(t, err)
		assert.Equal(t, avN("10"), expr.Values[":sk"])
	})

	t.Run("fractional float", func(t *testing.T) {
		_, err := m.KeyCondition(Name("Pk").Equal("12").And(Name("Sk").GreaterThan(10.5)))
		assert.True(t, IsCompilationError(err), "expected a compilation error, got %v", err)
	})
}

func TestKeyCondition_Prefixes(t *testing.T) {
	m := mustModel(t, prefixedItemMapping())

	expr, err := m.KeyCondition(Name("Pk").Equal("12").And(Name("Sk").Equal("321")))
	require.NoError(t, err)

	assert.Equal(t, "#pk = :pk AND #sk = :sk", expr.Expression)
	assert.Equal(t, map[string]string{"#pk": "PK", "#sk": "SK"}, expr.Names)
	assert.Equal(t, avS("PRF#12"), expr.Values[":pk"])
	assert.Equal(t, avS("USR#321"), expr.Values[":sk"])
}

func TestKeyCondition_AllByPrefix(t *testing.T) {
	m := mustModel(t, guidSortItemMapping())

	expr, err := m.KeyCondition(Name("Pk").Equal("12").And(Name("Sk").AllByPrefix()))
	require.NoError(t, err)

	assert.Equal(t, "#pk = :pk AND begins_with(#sk,:sk)", expr.Expression)
	assert.Equal(t, map[string]string{"#pk": "PK", "#sk": "SK"}, expr.Names)
	assert.Equal(t, avS("PKP#12"), expr.Values[":pk"])
	assert.Equal(t, avS("SKP#"), expr.Values[":sk"])
}

func TestKeyCondition_KeyOverlap(t *testing.T) {
	m := mustModel(t, keyOverlapItemMapping())

	tests := []struct {
		name       string
		predicate  Predicate
		expression string
		index      string
		names      map[string]string
		values     map[string]types.AttributeValue
	}{
		{
			name:       "secondary partition with sort key on same index",
			predicate:  Name("GPK1").Equal("12").And(Name("SK").Equal("1234")),
			expression: "#pk = :pk AND #sk = :sk",
			index:      "gsi_1",
			names:      map[string]string{"#pk": "GPK1", "#sk": "GSK1"},
			values:     map[string]types.AttributeValue{":pk": avS("GPPREF#12"), ":sk": avS("GSPREF#1234")},
		},
		{
			name:       "fields paired on the second index",
			predicate:  Name("PK").Equal("12").And(Name("GPK1").Equal("1234")),
			expression: "#pk = :pk AND #sk = :sk",
			index:      "gsi_2",
			names:      map[string]string{"#pk": "GPK2", "#sk": "GSK2"},
			values:     map[string]types.AttributeValue{":pk": avS("G2PREF#12"), ":sk": avS("G2PREF#1234")},
		},
		{
			name:       "all by prefix on the second index",
			predicate:  Name("PK").Equal("12").And(Name("GPK1").AllByPrefix()),
			expression: "#pk = :pk AND begins_with(#sk,:sk)",
			index:      "gsi_2",
			names:      map[string]string{"#pk": "GPK2", "#sk": "GSK2"},
			values:     map[string]types.AttributeValue{":pk": avS("G2PREF#12"), ":sk": avS("G2PREF#")},
		},
		{
			name:       "table partition key alone",
			predicate:  Name("PK").Equal("12"),
			expression: "#pk = :pk",
			index:      "",
			names:      map[string]string{"#pk": "PK"},
			values:     map[string]types.AttributeValue{":pk": avS("12")},
		},
		{
			name:       "table keys",
			predicate:  Name("PK").Equal("12").And(Name("SK").BeginsWith("9")),
			expression: "#pk = :pk AND begins_with(#sk,:sk)",
			index:      "",
			names:      map[string]string{"#pk": "PK", "#sk": "SK"},
			values:     map[string]types.AttributeValue{":pk": avS("12"), ":sk": avS("9")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := m.KeyCondition(tt.predicate)
			require.NoError(t, err)

			assert.Equal(t, tt.expression, expr.Expression)
			assert.Equal(t, tt.index, expr.IndexName)
			assert.Equal(t, tt.names, expr.Names)
			assert.Equal(t, tt.values, expr.Values)
		})
	}
}

func TestKeyCondition_InverseOverlapSelectsIndex(t *testing.T) {
	m := mustModel(t, inverseOverlapItemMapping())

	expr, err := m.KeyCondition(Name("SK").Equal("12"))
	require.NoError(t, err)

	assert.Equal(t, "#pk = :pk", expr.Expression)
	assert.Equal(t, "gsi_1", expr.IndexName)
	assert.Equal(t, map[string]string{"#pk": "GPK1"}, expr.Names)
	assert.Equal(t, map[string]types.AttributeValue{":pk": avS("12")}, expr.Values)
}

func TestKeyCondition_SortOnlyFieldPairsByIndex(t *testing.T) {
	type pairing struct {
		A string
		B string
	}
	m := mustModel(t, NewMapping[pairing]().
		Field("A", Ref(func(p *pairing) *string { return &p.A }), PartitionKey(""), SecondaryPartitionKey(2, "")).
		Field("B", Ref(func(p *pairing) *string { return &p.B }), SecondarySortKey(2, "B")))

	expr, err := m.KeyCondition(Name("A").Equal("x").And(Name("B").BeginsWith("y")))
	require.NoError(t, err)

	assert.Equal(t, "gsi_2", expr.IndexName)
	assert.Equal(t, map[string]string{"#pk": "GPK2", "#sk": "GSK2"}, expr.Names)
	assert.Equal(t, avS("B#y"), expr.Values[":sk"])
}

func TestKeyCondition_Errors(t *testing.T) {
	m := mustModel(t, keyOverlapItemMapping())
	attrs := mustModel(t, conditionItemMapping())
	prefixless := mustModel(t, keyItemMapping())

	tests := []struct {
		name string
		run  func() (*CompiledExpression, error)
	}{
		{name: "empty predicate", run: func() (*CompiledExpression, error) { return m.KeyCondition(Predicate{}) }},
		{name: "no partition equality", run: func() (*CompiledExpression, error) {
			return m.KeyCondition(Name("SK").Equal("1"))
		}},
		{name: "partition key not equal", run: func() (*CompiledExpression, error) {
			return prefixless.KeyCondition(Name("Pk").GreaterThan("1"))
		}},
		{name: "OR", run: func() (*CompiledExpression, error) {
			return m.KeyCondition(Name("PK").Equal("1").Or(Name("SK").Equal("2")))
		}},
		{name: "attribute field", run: func() (*CompiledExpression, error) {
			return attrs.KeyCondition(Name("Pk").Equal("1").And(Name("Other").Equal(2)))
		}},
		{name: "repeated field", run: func() (*CompiledExpression, error) {
			return m.KeyCondition(Name("PK").Equal("1").And(Name("PK").Equal("2")))
		}},
		{name: "unsupported operator", run: func() (*CompiledExpression, error) {
			return prefixless.KeyCondition(Name("Pk").Equal("1").And(Name("Sk").NotEqual("2")))
		}},
		{name: "contains", run: func() (*CompiledExpression, error) {
			return prefixless.KeyCondition(Name("Pk").Equal("1").And(Name("Sk").Contains("2")))
		}},
		{name: "three key fields", run: func() (*CompiledExpression, error) {
			return m.KeyCondition(Name("PK").Equal("1").And(Name("SK").Equal("2"), Name("GPK1").Equal("3")))
		}},
		{name: "all by prefix without prefix", run: func() (*CompiledExpression, error) {
			return prefixless.KeyCondition(Name("Pk").Equal("1").And(Name("Sk").AllByPrefix()))
		}},
		{name: "null operand", run: func() (*CompiledExpression, error) {
			return prefixless.KeyCondition(Name("Pk").Equal(nil))
		}},
		{name: "between arity", run: func() (*CompiledExpression, error) {
			return prefixless.KeyCondition(Name("Pk").Equal("1").And(Name("Sk").Compare(OpBetween, "2")))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.run()
			require.Error(t, err)
			assert.True(t, IsCompilationError(err), "expected a compilation error, got %v", err)
		})
	}
}

func TestKeyCondition_NoPairingIndex(t *testing.T) {
	type unpaired struct {
		A string
		B string
	}
	m := mustModel(t, NewMapping[unpaired]().
		Field("A", Ref(func(u *unpaired) *string { return &u.A }), PartitionKey("")).
		Field("B", Ref(func(u *unpaired) *string { return &u.B }), SecondarySortKey(1, "")))

	_, err := m.KeyCondition(Name("A").Equal("x").And(Name("B").Equal("y")))
	require.Error(t, err)
	assert.True(t, IsCompilationError(err))
}

func TestKeyCondition_Logs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m := mustModel(t, keyItemMapping(), WithLogger(zap.New(core)))

	_, err := m.KeyCondition(Name("Pk").Equal("12"))
	require.NoError(t, err)

	entries := logs.FilterMessage("compiled key condition").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "#pk = :pk", entries[0].ContextMap()["expression"])
}
