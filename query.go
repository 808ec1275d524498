package onetable

import (
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// CompiledExpression is a compiled predicate ready to hand to the store client.
type CompiledExpression struct {
	Expression string                          // Expression text
	Names      map[string]string               // Expression attribute names
	Values     map[string]types.AttributeValue // Expression attribute values
	IndexName  string                          // Secondary index to query. Empty queries the table.
}

// keyOperators are the operators a sort key term may use.
var keyOperators = map[Operator]bool{
	OpEqual:            true,
	OpLessThan:         true,
	OpLessThanEqual:    true,
	OpGreaterThan:      true,
	OpGreaterThanEqual: true,
	OpBeginsWith:       true,
	OpBetween:          true,
	OpAllByPrefix:      true,
}

// foundKey is one key field referenced by a key condition.
type foundKey[T any] struct {
	field  *boundField[T]
	op     Operator
	values []types.AttributeValue // converted, not yet prefixed
}

func (k *foundKey[T]) isPartitionCandidate() bool {
	return k.op == OpEqual && len(k.field.indexes(PartitionKeyKind)) > 0
}

func (k *foundKey[T]) isSortCandidate() bool {
	return len(k.field.indexes(SortKeyKind)) > 0
}

// KeyCondition compiles a query predicate into a key condition expression and selects
// the index that serves it.
//
// The predicate must hold an equality term on a partition key and may hold one term on
// a sort key of the same index. When fields carry several key roles the index is chosen
// as follows. Without a sort key term, the partition key with the lowest index number
// wins, so the table beats its secondary indexes. With a sort key term, sort key index
// numbers are tried in ascending order and the first one that a partition key term also
// carries wins.
func (m *Model[T]) KeyCondition(p Predicate) (*CompiledExpression, error) {
	found, err := m.findKeys(p)
	if err != nil {
		return nil, err
	}

	pk, index, err := selectIndex(found)
	if err != nil {
		return nil, err
	}

	// The sort key term is the other field when it has a role on the index, else the
	// partition key field itself when it also keys the index's sort key.
	var sk *foundKey[T]
	for _, k := range found {
		if _, ok := k.field.Role(SortKeyKind, index); ok && (sk == nil || sk == pk) {
			sk = k
		}
	}
	for _, k := range found {
		if k != pk && k != sk {
			return nil, compileErrorf(k.field.Name, "field has no key role on index %d", index)
		}
	}

	out, err := m.renderKeyCondition(pk, sk, index)
	if err != nil {
		return nil, err
	}

	m.table.logger.Debug("compiled key condition",
		zap.String("type", m.name),
		zap.String("expression", out.Expression),
		zap.String("index", out.IndexName),
	)
	return out, nil
}

func (m *Model[T]) findKeys(p Predicate) ([]*foundKey[T], error) {
	terms, err := conjunction(p)
	if err != nil {
		return nil, err
	}

	var found []*foundKey[T]
	seen := make(map[string]bool)

	for _, term := range terms {
		f, err := m.field(term.field)
		if err != nil {
			return nil, err
		}
		if !f.IsKey() {
			return nil, compileErrorf(f.Name, "field is not a key field")
		}
		if seen[f.Name] {
			return nil, compileErrorf(f.Name, "key field is referenced more than once")
		}
		seen[f.Name] = true

		if err := term.checkArity(); err != nil {
			return nil, err
		}
		if !keyOperators[term.op] {
			return nil, compileErrorf(f.Name, "%s is not supported in key conditions", term.op)
		}

		k := &foundKey[T]{field: f, op: term.op}
		for _, o := range term.operands {
			av, err := m.primaryKeyValue(f, o)
			if err != nil {
				return nil, err
			}
			k.values = append(k.values, av)
		}
		found = append(found, k)
	}

	if len(found) > 2 {
		return nil, compileErrorf("", "key conditions reference at most two key fields, got %d", len(found))
	}
	return found, nil
}

// selectIndex picks the partition key term and the index number it is queried on.
func selectIndex[T any](found []*foundKey[T]) (*foundKey[T], int, error) {
	var pks, sks []*foundKey[T]
	for _, k := range found {
		if k.isPartitionCandidate() {
			pks = append(pks, k)
		}
		if k.isSortCandidate() {
			sks = append(sks, k)
		}
	}

	if len(pks) == 0 {
		return nil, 0, compileErrorf("", "an equality term on a partition key is required")
	}

	if len(sks) > 0 {
		var indexes []int
		for _, k := range sks {
			indexes = append(indexes, k.field.indexes(SortKeyKind)...)
		}
		sort.Ints(indexes)

		for _, n := range indexes {
			for _, pk := range pks {
				if _, ok := pk.field.Role(PartitionKeyKind, n); ok {
					return pk, n, nil
				}
			}
		}

		// A lone field whose sort roles pair with nothing is queried by its partition roles.
		if len(found) > 1 {
			return nil, 0, compileErrorf("", "no index pairs the partition key and sort key terms")
		}
	}

	best, bestIndex := pks[0], pks[0].field.indexes(PartitionKeyKind)[0]
	for _, pk := range pks[1:] {
		if n := pk.field.indexes(PartitionKeyKind)[0]; n < bestIndex {
			best, bestIndex = pk, n
		}
	}
	return best, bestIndex, nil
}

func (m *Model[T]) renderKeyCondition(pk, sk *foundKey[T], index int) (*CompiledExpression, error) {
	cfg := m.table.config

	pkRole, _ := pk.field.Role(PartitionKeyKind, index)
	pkValue, err := m.formatKey(pk.field, pkRole, pk.values[0])
	if err != nil {
		return nil, err
	}

	out := &CompiledExpression{
		Expression: "#pk = :pk",
		Names:      map[string]string{"#pk": cfg.PartitionKeyName(index)},
		Values:     map[string]types.AttributeValue{":pk": pkValue},
		IndexName:  cfg.IndexName(index),
	}
	if sk == nil {
		return out, nil
	}

	skRole, _ := sk.field.Role(SortKeyKind, index)
	out.Names["#sk"] = cfg.SortKeyName(index)

	switch sk.op {
	case OpBetween:
		for i, placeholder := range []string{":sk1", ":sk2"} {
			v, err := m.formatKey(sk.field, skRole, sk.values[i])
			if err != nil {
				return nil, err
			}
			out.Values[placeholder] = v
		}
		out.Expression += " AND #sk BETWEEN :sk1 AND :sk2"
		return out, nil

	case OpAllByPrefix:
		if skRole.Prefix == "" {
			return nil, compileErrorf(sk.field.Name, "AllByPrefix requires a key prefix on index %d", index)
		}
		out.Values[":sk"] = &types.AttributeValueMemberS{Value: cfg.FormatKey(skRole.Prefix, "")}
		out.Expression += " AND begins_with(#sk,:sk)"
		return out, nil
	}

	v, err := m.formatKey(sk.field, skRole, sk.values[0])
	if err != nil {
		return nil, err
	}
	out.Values[":sk"] = v

	if sk.op == OpBeginsWith {
		out.Expression += " AND begins_with(#sk,:sk)"
	} else {
		out.Expression += " AND #sk " + comparators[sk.op] + " :sk"
	}
	return out, nil
}
