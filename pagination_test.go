package onetable_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/onetable"
	"github.com/nisimpson/onetable/dynamock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleContinuation() *onetable.Continuation {
	return &onetable.Continuation{
		Operation:    onetable.OperationQuery,
		IndexName:    "gsi_1",
		KeyCondition: "#pk = :pk",
		Names:        map[string]string{"#pk": "GPK1"},
		Values: onetable.Item{
			":pk": &types.AttributeValueMemberS{Value: "OWN#ada"},
		},
		Limit:      10,
		Descending: true,
		LastKey: onetable.Item{
			"PK":   &types.AttributeValueMemberS{Value: "ACC#1"},
			"SK":   &types.AttributeValueMemberS{Value: "ACC#1"},
			"GPK1": &types.AttributeValueMemberS{Value: "OWN#ada"},
			"N":    &types.AttributeValueMemberN{Value: "7"},
			"L":    &types.AttributeValueMemberL{Value: []types.AttributeValue{&types.AttributeValueMemberBOOL{Value: true}}},
		},
	}
}

func TestContinuation_Encode(t *testing.T) {
	c := sampleContinuation()

	token, err := c.Encode()
	require.NoError(t, err)
	assert.NotContains(t, token, "=")
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")

	decoded, err := onetable.DecodeContinuation(token)
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
	assert.True(t, decoded.CanContinue())
}

func TestContinuation_DecodeErrors(t *testing.T) {
	_, err := onetable.DecodeContinuation("not*base64")
	assert.Error(t, err)

	_, err = onetable.DecodeContinuation("aGVsbG8")
	assert.Error(t, err)
}

func TestContinuation_CanContinue(t *testing.T) {
	var c *onetable.Continuation
	assert.False(t, c.CanContinue())
	assert.False(t, (&onetable.Continuation{Operation: onetable.OperationScan}).CanContinue())
	assert.True(t, sampleContinuation().CanContinue())
}

func TestTokenPaginator(t *testing.T) {
	ctx := context.Background()
	p := onetable.TokenPaginator{}

	cursor, err := p.PageCursor(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, cursor)

	c, err := p.Continuation(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, c)

	cursor, err = p.PageCursor(ctx, sampleContinuation())
	require.NoError(t, err)

	c, err = p.Continuation(ctx, cursor)
	require.NoError(t, err)
	assert.Equal(t, sampleContinuation(), c)
}

// memoryTable answers page cursor reads and writes from a map.
func memoryTable(t *testing.T) (*dynamock.MockClient, map[string]onetable.Item) {
	mock := dynamock.NewMockClient(t)
	stored := make(map[string]onetable.Item)
	pk := func(item onetable.Item) string {
		return item["PK"].(*types.AttributeValueMemberS).Value
	}
	mock.PutFunc = func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
		stored[pk(params.Item)] = params.Item
		return &dynamodb.PutItemOutput{}, nil
	}
	mock.GetFunc = func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
		return &dynamodb.GetItemOutput{Item: stored[pk(params.Key)]}, nil
	}
	return mock, stored
}

func TestTablePaginator(t *testing.T) {
	ctx := context.Background()
	table := onetable.MustNewTable("pages")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("stores and resolves cursors", func(t *testing.T) {
		mock, stored := memoryTable(t)
		p := table.Paginator(mock)
		p.Clock = func() time.Time { return now }

		cursor, err := p.PageCursor(ctx, sampleContinuation())
		require.NoError(t, err)
		require.Len(t, stored, 1)

		item := stored["page#"+cursor]
		require.NotNil(t, item)
		assert.Equal(t, item["PK"], item["SK"])
		assert.Equal(t, &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(onetable.DefaultPageTTL).Unix(), 10)},
			item[onetable.AttributeNameExpires])
		assert.IsType(t, &types.AttributeValueMemberB{}, item[onetable.AttributeNamePageToken])

		c, err := p.Continuation(ctx, cursor)
		require.NoError(t, err)
		assert.Equal(t, sampleContinuation(), c)
	})

	t.Run("nothing is stored for the last page", func(t *testing.T) {
		mock, stored := memoryTable(t)
		cursor, err := table.Paginator(mock).PageCursor(ctx, &onetable.Continuation{Operation: onetable.OperationQuery})
		require.NoError(t, err)
		assert.Empty(t, cursor)
		assert.Empty(t, stored)
	})

	t.Run("expired cursors resolve to nothing", func(t *testing.T) {
		mock, _ := memoryTable(t)
		p := table.Paginator(mock)
		p.TTL = time.Minute
		p.Clock = func() time.Time { return now }

		cursor, err := p.PageCursor(ctx, sampleContinuation())
		require.NoError(t, err)

		p.Clock = func() time.Time { return now.Add(time.Minute) }
		c, err := p.Continuation(ctx, cursor)
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("unknown cursors resolve to nothing", func(t *testing.T) {
		mock, _ := memoryTable(t)
		c, err := table.Paginator(mock).Continuation(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("empty cursor makes no request", func(t *testing.T) {
		c, err := table.Paginator(dynamock.NewMockClient(t)).Continuation(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, c)
	})
}
