package onetable

import (
	"cmp"
	"fmt"
	"maps"
	"regexp"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// MaxBatchSize is the maximum number of items allowed in a DynamoDB batch operation.
	MaxBatchSize = 25
)

// RequestOptions tunes a marshaled request. Options that do not apply to a request
// are ignored.
type RequestOptions struct {
	Condition      Predicate // Write condition for put, update, patch and delete
	Filter         Predicate // Filter for query and scan
	AllowKeys      bool      // Allow key fields in Condition and Filter
	Limit          int       // Maximum number of items to evaluate
	StartKey       Item      // Exclusive start key for pagination
	Descending     bool      // Query in descending sort key order
	CountOnly      bool      // Return the count of matching items only
	Project        bool      // Project the result onto the mapped attributes
	ConsistentRead bool      // Strongly consistent reads for get, query and scan
}

func newRequestOptions(opts []func(*RequestOptions)) RequestOptions {
	var o RequestOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithCondition sets the write condition.
func WithCondition(p Predicate) func(*RequestOptions) {
	return func(o *RequestOptions) {
		o.Condition = p
	}
}

// WithFilter sets the query or scan filter.
func WithFilter(p Predicate) func(*RequestOptions) {
	return func(o *RequestOptions) {
		o.Filter = p
	}
}

// AllowKeyFilter lets conditions and filters reference key fields.
func AllowKeyFilter() func(*RequestOptions) {
	return func(o *RequestOptions) {
		o.AllowKeys = true
	}
}

// WithLimit sets the maximum number of items to evaluate.
func WithLimit(n int) func(*RequestOptions) {
	return func(o *RequestOptions) {
		o.Limit = n
	}
}

// WithStartKey sets the exclusive start key.
func WithStartKey(key Item) func(*RequestOptions) {
	return func(o *RequestOptions) {
		o.StartKey = key
	}
}

// Descending reverses the query order.
func Descending() func(*RequestOptions) {
	return func(o *RequestOptions) {
		o.Descending = true
	}
}

// CountOnly requests the number of matching items instead of the items.
func CountOnly() func(*RequestOptions) {
	return func(o *RequestOptions) {
		o.CountOnly = true
	}
}

// WithProjection limits returned attributes to those the item type maps.
func WithProjection() func(*RequestOptions) {
	return func(o *RequestOptions) {
		o.Project = true
	}
}

// ConsistentRead requests strongly consistent reads.
func ConsistentRead() func(*RequestOptions) {
	return func(o *RequestOptions) {
		o.ConsistentRead = true
	}
}

// MarshalGet marshals a key predicate into a get item request.
func (m *Model[T]) MarshalGet(p Predicate, opts ...func(*RequestOptions)) (*dynamodb.GetItemInput, error) {
	o := newRequestOptions(opts)

	key, err := m.KeyFor(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}

	input := &dynamodb.GetItemInput{
		TableName: aws.String(m.table.TableName),
		Key:       key,
	}
	if o.ConsistentRead {
		input.ConsistentRead = aws.Bool(true)
	}
	if o.Project {
		proj, err := m.Projection()
		if err != nil {
			return nil, err
		}
		input.ProjectionExpression = aws.String(proj.Expression)
		input.ExpressionAttributeNames = proj.Names
	}
	return input, nil
}

// MarshalPut marshals item into a put item request. Secondary key attributes holding
// NULL are left out so the item is absent from those indexes.
func (m *Model[T]) MarshalPut(item *T, opts ...func(*RequestOptions)) (*dynamodb.PutItemInput, error) {
	o := newRequestOptions(opts)

	attrs, err := m.storedItem(item)
	if err != nil {
		return nil, err
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(m.table.TableName),
		Item:      attrs,
	}

	if o.Condition.IsSet() {
		cond, err := m.Condition(o.Condition, o.AllowKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal condition: %w", err)
		}
		input.ConditionExpression = aws.String(cond.Expression)
		input.ExpressionAttributeNames = nonEmpty(cond.Names)
		input.ExpressionAttributeValues = nonEmpty(cond.Values)
	}
	return input, nil
}

// MarshalDelete marshals a key predicate into a delete item request.
func (m *Model[T]) MarshalDelete(p Predicate, opts ...func(*RequestOptions)) (*dynamodb.DeleteItemInput, error) {
	o := newRequestOptions(opts)

	key, err := m.KeyFor(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}

	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(m.table.TableName),
		Key:       key,
	}

	if o.Condition.IsSet() {
		cond, err := m.Condition(o.Condition, o.AllowKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal condition: %w", err)
		}
		input.ConditionExpression = aws.String(cond.Expression)
		input.ExpressionAttributeNames = nonEmpty(cond.Names)
		input.ExpressionAttributeValues = nonEmpty(cond.Values)
	}
	return input, nil
}

// MarshalUpdate marshals item into an update item request that rewrites every non-key
// attribute and removes the attributes of NULL fields.
func (m *Model[T]) MarshalUpdate(item *T, opts ...func(*RequestOptions)) (*dynamodb.UpdateItemInput, error) {
	op, err := m.UpdateOperation(item)
	if err != nil {
		return nil, err
	}
	return m.marshalUpdateOperation(op, types.ReturnValueNone, newRequestOptions(opts))
}

// MarshalPatch marshals an update item request that only touches the named fields. The
// request returns the updated item.
func (m *Model[T]) MarshalPatch(item *T, fields []string, opts ...func(*RequestOptions)) (*dynamodb.UpdateItemInput, error) {
	op, err := m.PatchOperation(item, fields...)
	if err != nil {
		return nil, err
	}
	return m.marshalUpdateOperation(op, types.ReturnValueAllNew, newRequestOptions(opts))
}

func (m *Model[T]) marshalUpdateOperation(op *UpdateOperation, rv types.ReturnValue, o RequestOptions) (*dynamodb.UpdateItemInput, error) {
	input := &dynamodb.UpdateItemInput{
		TableName:    aws.String(m.table.TableName),
		Key:          op.Key,
		ReturnValues: rv,
	}

	var update, cond *CompiledExpression
	exprs := []*CompiledExpression{}
	if !op.IsEmpty() {
		update = op.Expression()
		exprs = append(exprs, update)
	}
	if o.Condition.IsSet() {
		var err error
		cond, err = m.Condition(o.Condition, o.AllowKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal condition: %w", err)
		}
		exprs = append(exprs, cond)
	}

	input.ExpressionAttributeNames, input.ExpressionAttributeValues = mergeExpressions(exprs...)
	if update != nil {
		input.UpdateExpression = aws.String(update.Expression)
	}
	if cond != nil {
		input.ConditionExpression = aws.String(cond.Expression)
	}
	return input, nil
}

// MarshalQuery marshals a key predicate into a query request on the index that serves it.
func (m *Model[T]) MarshalQuery(p Predicate, opts ...func(*RequestOptions)) (*dynamodb.QueryInput, error) {
	o := newRequestOptions(opts)

	key, err := m.KeyCondition(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key condition: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(m.table.TableName),
		KeyConditionExpression: aws.String(key.Expression),
		ScanIndexForward:       aws.Bool(!o.Descending),
	}
	if key.IndexName != "" {
		input.IndexName = aws.String(key.IndexName)
	}

	var filter, proj *CompiledExpression
	exprs := []*CompiledExpression{key}
	if o.Filter.IsSet() {
		filter, err = m.Condition(o.Filter, o.AllowKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal filter: %w", err)
		}
		exprs = append(exprs, filter)
	}

	switch {
	case o.CountOnly:
		input.Select = types.SelectCount
	case o.Project:
		proj, err = m.Projection()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, proj)
	}

	input.ExpressionAttributeNames, input.ExpressionAttributeValues = mergeExpressions(exprs...)
	if filter != nil {
		input.FilterExpression = aws.String(filter.Expression)
	}
	if proj != nil {
		input.ProjectionExpression = aws.String(proj.Expression)
	}

	if o.Limit > 0 {
		input.Limit = aws.Int32(int32(o.Limit))
	}
	if o.StartKey != nil {
		input.ExclusiveStartKey = o.StartKey
	}
	if o.ConsistentRead {
		input.ConsistentRead = aws.Bool(true)
	}
	return input, nil
}

// MarshalScan marshals a scan request. When the type declares an item type the scan is
// filtered on it, so only items of this type are returned.
func (m *Model[T]) MarshalScan(opts ...func(*RequestOptions)) (*dynamodb.ScanInput, error) {
	o := newRequestOptions(opts)

	input := &dynamodb.ScanInput{
		TableName: aws.String(m.table.TableName),
	}

	var filter, proj *CompiledExpression
	discriminator := m.discriminatorFilter()
	exprs := []*CompiledExpression{}
	if discriminator != nil {
		exprs = append(exprs, discriminator)
	}
	if o.Filter.IsSet() {
		var err error
		filter, err = m.Condition(o.Filter, o.AllowKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal filter: %w", err)
		}
		exprs = append(exprs, filter)
	}

	switch {
	case o.CountOnly:
		input.Select = types.SelectCount
	case o.Project:
		var err error
		proj, err = m.Projection()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, proj)
	}

	input.ExpressionAttributeNames, input.ExpressionAttributeValues = mergeExpressions(exprs...)
	switch {
	case discriminator != nil && filter != nil:
		input.FilterExpression = aws.String(fmt.Sprintf("%s AND (%s)", discriminator.Expression, filter.Expression))
	case discriminator != nil:
		input.FilterExpression = aws.String(discriminator.Expression)
	case filter != nil:
		input.FilterExpression = aws.String(filter.Expression)
	}
	if proj != nil {
		input.ProjectionExpression = aws.String(proj.Expression)
	}

	if o.Limit > 0 {
		input.Limit = aws.Int32(int32(o.Limit))
	}
	if o.StartKey != nil {
		input.ExclusiveStartKey = o.StartKey
	}
	if o.ConsistentRead {
		input.ConsistentRead = aws.Bool(true)
	}
	return input, nil
}

func (m *Model[T]) discriminatorFilter() *CompiledExpression {
	name := m.table.config.ItemTypeAttributeName
	if m.itemType == "" || name == "" {
		return nil
	}
	return &CompiledExpression{
		Expression: "#_itemtype = :_itemtype",
		Names:      map[string]string{"#_itemtype": name},
		Values:     map[string]types.AttributeValue{":_itemtype": &types.AttributeValueMemberS{Value: m.itemType}},
	}
}

// MarshalBatchPut marshals items into batch write put requests. Since there is a limit
// on how many requests can be contained in a single input, the requests are chunked in
// sizes of 25 or less.
func (m *Model[T]) MarshalBatchPut(items []*T) ([]*dynamodb.BatchWriteItemInput, error) {
	var batches []*dynamodb.BatchWriteItemInput

	for i := 0; i < len(items); i += MaxBatchSize {
		end := min(i+MaxBatchSize, len(items))

		writeRequests := make([]types.WriteRequest, 0, end-i)
		for _, item := range items[i:end] {
			attrs, err := m.storedItem(item)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal batch item: %w", err)
			}
			writeRequests = append(writeRequests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: attrs},
			})
		}

		batches = append(batches, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				m.table.TableName: writeRequests,
			},
		})
	}

	return batches, nil
}

// Projection compiles a projection over every attribute the type writes.
func (m *Model[T]) Projection() (*CompiledExpression, error) {
	names := m.StoreNames()
	if len(names) == 0 {
		return nil, fmt.Errorf("%s maps no attributes", m.name)
	}

	proj := expression.NamesList(expression.Name(names[0]))
	for _, name := range names[1:] {
		proj = proj.AddNames(expression.Name(name))
	}

	expr, err := expression.NewBuilder().WithProjection(proj).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build projection: %w", err)
	}

	return &CompiledExpression{
		Expression: aws.ToString(expr.Projection()),
		Names:      expr.Names(),
	}, nil
}

// storedItem attributizes item for a put, dropping NULL secondary key attributes.
func (m *Model[T]) storedItem(item *T) (Item, error) {
	attrs, err := m.Attributize(item)
	if err != nil {
		return nil, err
	}
	cfg := m.table.config
	for _, f := range m.fields {
		for _, role := range f.Keys {
			name := role.StoreName(cfg)
			if role.Index > 0 && isNull(attrs[name]) {
				delete(attrs, name)
			}
		}
	}
	return attrs, nil
}

var placeholderPattern = regexp.MustCompile(`[#:][A-Za-z0-9_]+`)

// mergeExpressions merges the placeholder maps of several expressions sent in one
// request. A placeholder that an earlier expression already binds to something else is
// renamed in the later expression, text included. Name placeholders bound to the same
// attribute are shared.
func mergeExpressions(exprs ...*CompiledExpression) (map[string]string, map[string]types.AttributeValue) {
	names := make(map[string]string)
	values := make(map[string]types.AttributeValue)

	for _, e := range exprs {
		used := make(map[string]bool)
		for _, m := range []map[string]string{names, e.Names} {
			for k := range m {
				used[k] = true
			}
		}
		for _, m := range []map[string]types.AttributeValue{values, e.Values} {
			for k := range m {
				used[k] = true
			}
		}
		fresh := func(k string) string {
			for i := 2; ; i++ {
				candidate := fmt.Sprintf("%s_%d", k, i)
				if !used[candidate] {
					used[candidate] = true
					return candidate
				}
			}
		}

		renames := make(map[string]string)
		for _, k := range slices.Sorted(maps.Keys(e.Names)) {
			if existing, ok := names[k]; ok && existing != e.Names[k] {
				renames[k] = fresh(k)
			}
		}
		for _, k := range slices.Sorted(maps.Keys(e.Values)) {
			if _, ok := values[k]; ok {
				renames[k] = fresh(k)
			}
		}

		if len(renames) > 0 {
			renamedNames := make(map[string]string, len(e.Names))
			for k, v := range e.Names {
				renamedNames[cmp.Or(renames[k], k)] = v
			}
			renamedValues := make(map[string]types.AttributeValue, len(e.Values))
			for k, v := range e.Values {
				renamedValues[cmp.Or(renames[k], k)] = v
			}
			e.Names, e.Values = renamedNames, renamedValues
			e.Expression = placeholderPattern.ReplaceAllStringFunc(e.Expression, func(token string) string {
				return cmp.Or(renames[token], token)
			})
		}

		maps.Copy(names, e.Names)
		maps.Copy(values, e.Values)
	}
	return nonEmpty(names), nonEmpty(values)
}

// nonEmpty returns nil for an empty map, since the service rejects empty placeholder maps.
func nonEmpty[M ~map[K]V, K comparable, V any](m M) M {
	if len(m) == 0 {
		return nil
	}
	return m
}
