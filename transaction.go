package onetable

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// MaxTransactionItems is the maximum number of actions in one DynamoDB transaction.
const MaxTransactionItems = 100

// Transaction collects write actions across item types and commits them atomically.
// Actions are built by the Transact methods of each model:
//
//	tx := onetable.NewTransaction(table, client)
//	tx.Add(users.TransactPut(user))
//	tx.Add(orders.TransactDelete(onetable.Name("ID").Equal(orderID)))
//	err := tx.Commit(ctx)
//
// Conditions on transaction actions may reference key fields.
type Transaction struct {
	table  *Table
	client DynamoDBClient
	items  []types.TransactWriteItem
	errs   []error
}

// NewTransaction starts an empty transaction on the table.
func NewTransaction(table *Table, client DynamoDBClient) *Transaction {
	return &Transaction{table: table, client: client}
}

// Add appends an action. A non-nil err is recorded and returned by Commit, which lets
// the result of a Transact method be passed straight through.
func (tx *Transaction) Add(item types.TransactWriteItem, err error) *Transaction {
	if err != nil {
		tx.errs = append(tx.errs, err)
		return tx
	}
	tx.items = append(tx.items, item)
	return tx
}

// Len returns the number of actions added.
func (tx *Transaction) Len() int {
	return len(tx.items)
}

// Items returns the actions added so far.
func (tx *Transaction) Items() []types.TransactWriteItem {
	return tx.items
}

// Commit sends the actions in a single TransactWriteItems call. A condition failure of
// any action surfaces as ErrConditionFailed.
func (tx *Transaction) Commit(ctx context.Context) error {
	if err := errors.Join(tx.errs...); err != nil {
		return fmt.Errorf("failed to build transaction: %w", err)
	}
	switch {
	case len(tx.items) == 0:
		return errors.New("transaction has no actions")
	case len(tx.items) > MaxTransactionItems:
		return fmt.Errorf("transaction has %d actions, the limit is %d", len(tx.items), MaxTransactionItems)
	}

	_, err := tx.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: tx.items,
	})
	if err != nil {
		err = classifyError("transaction", err)
		if IsConditionFailed(err) {
			tx.table.logger.Info("transaction condition check failed", zap.Int("actions", len(tx.items)))
			return err
		}
		tx.table.logger.Error("transaction failed", zap.Int("actions", len(tx.items)), zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func transactOptions(opts []func(*RequestOptions)) []func(*RequestOptions) {
	return append([]func(*RequestOptions){AllowKeyFilter()}, opts...)
}

// TransactPut builds a put action for item.
func (m *Model[T]) TransactPut(item *T, opts ...func(*RequestOptions)) (types.TransactWriteItem, error) {
	in, err := m.MarshalPut(item, transactOptions(opts)...)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Put: &types.Put{
		TableName:                 in.TableName,
		Item:                      in.Item,
		ConditionExpression:       in.ConditionExpression,
		ExpressionAttributeNames:  in.ExpressionAttributeNames,
		ExpressionAttributeValues: in.ExpressionAttributeValues,
	}}, nil
}

// TransactUpdate builds an update action rewriting every non-key attribute of item.
func (m *Model[T]) TransactUpdate(item *T, opts ...func(*RequestOptions)) (types.TransactWriteItem, error) {
	in, err := m.MarshalUpdate(item, transactOptions(opts)...)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	if in.UpdateExpression == nil {
		return types.TransactWriteItem{}, fmt.Errorf("update of %s has nothing to write", m.name)
	}
	return types.TransactWriteItem{Update: &types.Update{
		TableName:                 in.TableName,
		Key:                       in.Key,
		UpdateExpression:          in.UpdateExpression,
		ConditionExpression:       in.ConditionExpression,
		ExpressionAttributeNames:  in.ExpressionAttributeNames,
		ExpressionAttributeValues: in.ExpressionAttributeValues,
	}}, nil
}

// TransactDelete builds a delete action for the item addressed by a key predicate.
func (m *Model[T]) TransactDelete(p Predicate, opts ...func(*RequestOptions)) (types.TransactWriteItem, error) {
	in, err := m.MarshalDelete(p, transactOptions(opts)...)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Delete: &types.Delete{
		TableName:                 in.TableName,
		Key:                       in.Key,
		ConditionExpression:       in.ConditionExpression,
		ExpressionAttributeNames:  in.ExpressionAttributeNames,
		ExpressionAttributeValues: in.ExpressionAttributeValues,
	}}, nil
}

// TransactConditionCheck builds an action that fails the transaction unless the item
// addressed by a key predicate satisfies condition.
func (m *Model[T]) TransactConditionCheck(p, condition Predicate) (types.TransactWriteItem, error) {
	key, err := m.KeyFor(p)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("failed to marshal key: %w", err)
	}
	cond, err := m.Condition(condition, true)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("failed to marshal condition: %w", err)
	}
	return types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
		TableName:                 aws.String(m.table.TableName),
		Key:                       key,
		ConditionExpression:       aws.String(cond.Expression),
		ExpressionAttributeNames:  nonEmpty(cond.Names),
		ExpressionAttributeValues: nonEmpty(cond.Values),
	}}, nil
}
